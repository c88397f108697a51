package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// serverPragmas suit the backend: many concurrent readers, one writer.
var serverPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA synchronous=NORMAL",
}

// localPragmas suit the client cache, a single short-lived process that
// must not lose the last write when it exits.
var localPragmas = []string{
	"PRAGMA journal_mode=DELETE",
	"PRAGMA busy_timeout=2000",
	"PRAGMA synchronous=FULL",
}

// Open opens the server database.
func Open(path string) (*sql.DB, error) {
	return open(path, serverPragmas)
}

// OpenLocal opens the client cache and makes sure its table exists.
func OpenLocal(path string) (*sql.DB, error) {
	conn, err := open(path, localPragmas)
	if err != nil {
		return nil, err
	}
	if err := EnsureLocalSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func open(path string, pragmas []string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	return conn, nil
}
