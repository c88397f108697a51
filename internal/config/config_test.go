package config

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, rest, err := load([]string{"autos"}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"autos"}, rest)
}

func TestPrecedence(t *testing.T) {
	file := writeEnvFile(t, `
CONCESIONARIA_API_URL=http://file.example:8080
CONCESIONARIA_DB=file.sqlite3
CONCESIONARIA_TIMEOUT=5
CONCESIONARIA_RATE=2
`)
	vars := env(map[string]string{
		"CONCESIONARIA_API_URL": "https://env.example/",
		"CONCESIONARIA_TIMEOUT": "",
	})

	cfg, rest, err := load([]string{"-e", file, "-db", "flag.sqlite3", "ventas", "-estatus", "PENDING"}, vars)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example", cfg.APIURL, "environment beats file, trailing slash trimmed")
	assert.Equal(t, "flag.sqlite3", cfg.DBPath, "flag beats file")
	assert.Equal(t, 5*time.Second, cfg.Timeout, "empty env var falls through to file")
	assert.Equal(t, 2.0, cfg.Rate)
	assert.Equal(t, []string{"ventas", "-estatus", "PENDING"}, rest)
}

func TestFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, _, err := load([]string{
		"-url", "http://api.local", "-t", "1m30s", "-r", "0.5", "-l", "client.log", "-v",
	}, env(map[string]string{"CONCESIONARIA_LOG_LEVEL": "error"}))
	require.NoError(t, err)

	assert.Equal(t, "http://api.local", cfg.APIURL)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, 0.5, cfg.Rate)
	assert.Equal(t, "client.log", cfg.LogPath)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel, "-v wins over the environment")
}

func TestLogLevelFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, _, err := load(nil, env(map[string]string{"CONCESIONARIA_LOG_LEVEL": "info"}))
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestInvalidValuesReportedTogether(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := load([]string{"-t", "soon", "-r", "fast"}, env(map[string]string{"CONCESIONARIA_LOG_LEVEL": "loud"}))
	require.Error(t, err)
	assert.ErrorContains(t, err, `timeout: invalid duration "soon"`)
	assert.ErrorContains(t, err, `rate: invalid number "fast"`)
	assert.ErrorContains(t, err, `unknown log level "loud"`)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.APIURL = "localhost:8080"
	cfg.DBPath = " "
	cfg.Timeout = 0
	cfg.Rate = -1

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrAPIURLInvalid)
	assert.ErrorIs(t, err, ErrDBEmpty)
	assert.ErrorIs(t, err, ErrTimeoutInvalid)
	assert.ErrorIs(t, err, ErrRateInvalid)

	assert.NoError(t, Default().Validate())
}

func TestMissingEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := load(nil, env(nil))
	assert.NoError(t, err, "the default .env is optional")

	_, _, err = load([]string{"-env", "nope.env"}, env(nil))
	assert.ErrorContains(t, err, "reading nope.env")
}

func TestHelpFlag(t *testing.T) {
	_, _, err := load([]string{"-h"}, env(nil))
	assert.ErrorIs(t, err, flag.ErrHelp)
}
