// Package config loads the CLI client's settings. Later sources win: built-in
// defaults, then a .env file, then the process environment, then flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/erazemk/concesionaria/internal/gateway"
	"github.com/erazemk/concesionaria/internal/logging"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CONCESIONARIA_"

// Environment variable names, without EnvPrefix.
const (
	EnvAPIURL   = "API_URL"
	EnvDB       = "DB"
	EnvTimeout  = "TIMEOUT"
	EnvLog      = "LOG"
	EnvLogLevel = "LOG_LEVEL"
	EnvRate     = "RATE"
)

const defaultEnvFile = ".env"

var (
	ErrAPIURLInvalid  = errors.New("api url must be an absolute http(s) URL")
	ErrDBEmpty        = errors.New("local database path is empty")
	ErrTimeoutInvalid = errors.New("timeout must be positive")
	ErrRateInvalid    = errors.New("rate must not be negative")
)

// Config is the client configuration.
type Config struct {
	APIURL   string
	DBPath   string
	Timeout  time.Duration
	LogPath  string
	LogLevel slog.Level

	// Rate caps requests per second. Zero means unlimited.
	Rate float64
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIURL:   "http://localhost:8080",
		DBPath:   "concesionaria-local.sqlite3",
		Timeout:  gateway.DefaultTimeout,
		LogLevel: slog.LevelWarn,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%w: %q", ErrAPIURLInvalid, c.APIURL))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, ErrDBEmpty)
	}
	if c.Timeout <= 0 {
		errs = append(errs, ErrTimeoutInvalid)
	}
	if c.Rate < 0 {
		errs = append(errs, ErrRateInvalid)
	}
	return errors.Join(errs...)
}

// Usage describes the global flags.
const Usage = `Global flags:
  -u, -url <url>          backend base URL (default: http://localhost:8080)
  -d, -db <path>          local cache database (default: concesionaria-local.sqlite3)
  -t, -timeout <dur>      request timeout, e.g. 20s or 20 (default: 20s)
  -r, -rate <n>           max requests per second, 0 for unlimited (default: 0)
  -l, -log <path>         also append logs to this file
  -v, -verbose            log debug output to stderr
  -e, -env <path>         dotenv file to read (default: .env)
`

// Load parses global flags from args and merges them with the environment.
// It returns the arguments left after the flags.
func Load(args []string) (*Config, []string, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookupEnv func(string) (string, bool)) (*Config, []string, error) {
	fset := flag.NewFlagSet("concesionaria", flag.ContinueOnError)
	fset.SetOutput(io.Discard)

	var flags struct {
		url, db, timeout, log, rate, envFile string
		verbose                               bool
	}
	fset.StringVar(&flags.url, "url", "", "")
	fset.StringVar(&flags.url, "u", "", "")
	fset.StringVar(&flags.db, "db", "", "")
	fset.StringVar(&flags.db, "d", "", "")
	fset.StringVar(&flags.timeout, "timeout", "", "")
	fset.StringVar(&flags.timeout, "t", "", "")
	fset.StringVar(&flags.rate, "rate", "", "")
	fset.StringVar(&flags.rate, "r", "", "")
	fset.StringVar(&flags.log, "log", "", "")
	fset.StringVar(&flags.log, "l", "", "")
	fset.BoolVar(&flags.verbose, "verbose", false, "")
	fset.BoolVar(&flags.verbose, "v", false, "")
	fset.StringVar(&flags.envFile, "env", defaultEnvFile, "")
	fset.StringVar(&flags.envFile, "e", defaultEnvFile, "")

	if err := fset.Parse(args); err != nil {
		return nil, nil, err
	}

	fileEnv, err := readEnvFile(flags.envFile)
	if err != nil {
		return nil, nil, err
	}

	get := func(name, flagValue string) string {
		if flagValue != "" {
			return flagValue
		}
		if v, ok := lookupEnv(EnvPrefix + name); ok && v != "" {
			return v
		}
		return fileEnv[EnvPrefix+name]
	}

	cfg := Default()
	var errs []error

	if v := get(EnvAPIURL, flags.url); v != "" {
		cfg.APIURL = strings.TrimRight(v, "/")
	}
	if v := get(EnvDB, flags.db); v != "" {
		cfg.DBPath = v
	}
	if v := get(EnvTimeout, flags.timeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("timeout: %w", err))
		} else {
			cfg.Timeout = d
		}
	}
	if v := get(EnvRate, flags.rate); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("rate: invalid number %q", v))
		} else {
			cfg.Rate = r
		}
	}
	cfg.LogPath = get(EnvLog, flags.log)
	if v := get(EnvLogLevel, ""); v != "" {
		level, err := logging.ParseLevel(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.LogLevel = level
		}
	}
	if flags.verbose {
		cfg.LogLevel = slog.LevelDebug
	}

	if len(errs) == 0 {
		errs = append(errs, cfg.Validate())
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return &cfg, fset.Args(), nil
}

// readEnvFile reads a dotenv file without touching the process environment.
// A missing file is only an error when it was asked for explicitly.
func readEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err == nil {
		return values, nil
	}
	if errors.Is(err, fs.ErrNotExist) && path == defaultEnvFile {
		return map[string]string{}, nil
	}
	return nil, fmt.Errorf("reading %s: %w", path, err)
}

// parseDuration accepts Go durations and plain seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
