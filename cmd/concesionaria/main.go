// Command concesionaria is the dealership client: log in, manage vehicles,
// record and follow sales, and print sales reports. It works against the
// backend and falls back to its local cache for vehicle listings when the
// backend cannot be reached.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/config"
	"github.com/erazemk/concesionaria/internal/gateway"
	"github.com/erazemk/concesionaria/internal/localstore"
	"github.com/erazemk/concesionaria/internal/logging"
	"github.com/erazemk/concesionaria/internal/repository"
)

const usage = `Usage: concesionaria [global flags] <command> [flags]

Commands:
  login            log in (-email, -password)
  logout           log out
  whoami           show the logged-in user
  register         create an account (-nombre, -apellido, -email, -password)
  autos            refresh and list vehicles (-disponibles)
  auto-save        create or update a vehicle (-id to update)
  auto-imagen      upload a vehicle photo (-id, -archivo)
  auto-disponible  mark a vehicle for sale or not (-id, -disponible)
  ventas           list sales (-estatus, -desde, -hasta)
  venta            show one sale (<id>)
  venta-nueva      record a sale (-serie, -cantidad, -precio)
  venta-estatus    change a sale's status (<id> <estatus>)
  venta-cancelar   cancel a sale (<id>)
  venta-borrar     delete a sale (<id>)
  conteo           count sales per status
  reporte          sales report (-desde, -hasta, -estatus, -o, -pagina)

`

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	client *gateway.Client
	cache  *localstore.Store
	repos  *repository.Repositories
	log    *slog.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, rest, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(stdout, usage+config.Usage)
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage+config.Usage)
		return 2
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n\n%s", rest[0], usage)
		return 2
	}

	// Logs go to stderr so command output stays clean.
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Path:   cfg.LogPath,
		Stdout: stderr,
		Stderr: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	cache, err := localstore.Open(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: opening local cache: %v\n", err)
		return 1
	}
	defer cache.Close()

	opts := []gateway.Option{gateway.WithTimeout(cfg.Timeout), gateway.WithLogger(logger)}
	if cfg.Rate > 0 {
		opts = append(opts, gateway.WithRateLimit(rate.Limit(cfg.Rate), 1))
	}
	client := gateway.New(cfg.APIURL, opts...)

	a := &app{
		cfg:    cfg,
		client: client,
		cache:  cache,
		repos:  repository.New(client, cache, repository.WithLogger(logger)),
		log:    logger,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	a.repos.Session.Restore(ctx)

	if err := cmd(ctx, a, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		logger.Debug("command failed", "command", rest[0], "error", err)
		fmt.Fprintf(stderr, "error: %s\n", apperr.UserMessage(err))
		return 1
	}
	return 0
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise.
func (a *app) readPassword(prompt string) (string, error) {
	fmt.Fprint(a.stderr, prompt)
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
