// Package logging installs the process-wide slog handler shared by the
// server and the CLI.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// levelRouter is a slog.Handler that routes records below ERROR to one
// writer and ERROR+ to another.
type levelRouter struct {
	min    slog.Level
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.min
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		min:    lr.min,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		min:    lr.min,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// Options configure Setup. Nil writers default to os.Stdout and os.Stderr.
type Options struct {
	Level  slog.Level
	Path   string
	Stdout io.Writer
	Stderr io.Writer
}

// New builds a logger without installing it. If Path is set, every record
// is also appended to that file; the returned cleanup closes it.
func New(opts Options) (*slog.Logger, func(), error) {
	stdoutW, stderrW := opts.Stdout, opts.Stderr
	if stdoutW == nil {
		stdoutW = os.Stdout
	}
	if stderrW == nil {
		stderrW = os.Stderr
	}

	cleanup := func() {}
	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(stdoutW, f)
		stderrW = io.MultiWriter(stderrW, f)
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	handler := &levelRouter{
		min:    opts.Level,
		stdout: slog.NewTextHandler(stdoutW, handlerOpts),
		stderr: slog.NewTextHandler(stderrW, handlerOpts),
	}
	return slog.New(handler), cleanup, nil
}

// Setup builds a logger with New and makes it the slog default.
func Setup(opts Options) (func(), error) {
	logger, cleanup, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// ParseLevel accepts debug, info, warn(ing) and error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
