// Package localstore is the client's durable cache: the last known vehicle
// list and the logged-in user, kept in a SQLite key/value table.
//
// Nothing here returns an error to callers. Failures are logged and read
// back as absence (an empty list, no session).
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/db"
	"github.com/erazemk/concesionaria/internal/model"
)

// Namespaces.
const (
	NamespaceVehicles = "vehicles"
	NamespaceSession  = "user_session"
)

const vehiclesKey = "list"

// Session field keys.
const (
	keyID         = "id"
	keyName       = "nombre"
	keySurname    = "apellido"
	keyEmail      = "email"
	keyRole       = "rol"
	keyRegistered = "fecha_registro"
	keyToken      = "token"
)

// Store is the local cache. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	// mu serializes read-modify-write cycles on the vehicle list.
	mu sync.Mutex
}

// Open opens (creating if needed) the cache file at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	conn, err := db.OpenLocal(path)
	if err != nil {
		return nil, err
	}
	return New(conn, log), nil
}

// New wraps an existing database that already has the local schema.
func New(conn *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: conn, log: log.With("component", "localstore")}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) fail(op string, err error) {
	s.log.Warn("local store failure", "error", &apperr.LocalStoreError{Op: op, Err: err})
}

func (s *Store) get(ctx context.Context, namespace, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = ? AND key = ?`, namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		s.fail("read "+namespace+"/"+key, err)
		return "", false
	}
	return value, true
}

func (s *Store) put(ctx context.Context, namespace, key, value string) bool {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, value,
	)
	if err != nil {
		s.fail("write "+namespace+"/"+key, err)
		return false
	}
	return true
}

// LoadVehicles returns the cached vehicle list. A malformed entry is logged,
// removed and read as empty.
func (s *Store) LoadVehicles(ctx context.Context) []model.Vehicle {
	raw, ok := s.get(ctx, NamespaceVehicles, vehiclesKey)
	if !ok {
		return []model.Vehicle{}
	}

	var vehicles []model.Vehicle
	if err := json.Unmarshal([]byte(raw), &vehicles); err != nil {
		s.fail("decode vehicles", err)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ? AND key = ?`, NamespaceVehicles, vehiclesKey); err != nil {
			s.fail("discard vehicles", err)
		}
		return []model.Vehicle{}
	}
	if vehicles == nil {
		vehicles = []model.Vehicle{}
	}
	return vehicles
}

// SaveVehicles replaces the cached list.
func (s *Store) SaveVehicles(ctx context.Context, vehicles []model.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveVehicles(ctx, vehicles)
}

func (s *Store) saveVehicles(ctx context.Context, vehicles []model.Vehicle) bool {
	if vehicles == nil {
		vehicles = []model.Vehicle{}
	}
	data, err := json.Marshal(vehicles)
	if err != nil {
		s.fail("encode vehicles", err)
		return false
	}
	return s.put(ctx, NamespaceVehicles, vehiclesKey, string(data))
}

// FindByID returns the cached vehicle with id.
func (s *Store) FindByID(ctx context.Context, id int64) (model.Vehicle, bool) {
	for _, v := range s.LoadVehicles(ctx) {
		if v.ID == id {
			return v, true
		}
	}
	return model.Vehicle{}, false
}

// FindBySerial returns the cached vehicle with serial.
func (s *Store) FindBySerial(ctx context.Context, serial string) (model.Vehicle, bool) {
	for _, v := range s.LoadVehicles(ctx) {
		if v.Serial == serial {
			return v, true
		}
	}
	return model.Vehicle{}, false
}

// NextID returns the largest cached ID plus one, or 1 for an empty cache.
// It is only unique on this device.
func (s *Store) NextID(ctx context.Context) int64 {
	return nextID(s.LoadVehicles(ctx))
}

// ProvisionalID returns a negative placeholder ID, below every cached one,
// for a vehicle the server has not confirmed yet.
func (s *Store) ProvisionalID(ctx context.Context) int64 {
	return provisionalID(s.LoadVehicles(ctx))
}

func nextID(vehicles []model.Vehicle) int64 {
	var highest int64
	for _, v := range vehicles {
		if v.ID > highest {
			highest = v.ID
		}
	}
	return highest + 1
}

func provisionalID(vehicles []model.Vehicle) int64 {
	var lowest int64
	for _, v := range vehicles {
		if v.ID < lowest {
			lowest = v.ID
		}
	}
	return lowest - 1
}

// Upsert stores v, replacing the entry with the same ID. A vehicle without
// an ID gets a provisional one. The stored vehicle is returned.
func (s *Store) Upsert(ctx context.Context, v model.Vehicle) model.Vehicle {
	stored := s.UpsertAll(ctx, []model.Vehicle{v})
	return stored[0]
}

// UpsertAll applies Upsert to every vehicle with a single write. When a
// server-confirmed vehicle arrives, any provisional entry with the same
// serial is dropped.
func (s *Store) UpsertAll(ctx context.Context, vehicles []model.Vehicle) []model.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.LoadVehicles(ctx)
	stored := make([]model.Vehicle, 0, len(vehicles))

	for _, v := range vehicles {
		if v.ID == 0 {
			v.ID = provisionalID(current)
		}

		replaced := false
		kept := current[:0]
		for _, existing := range current {
			switch {
			case existing.ID == v.ID:
				if !replaced {
					kept = append(kept, v)
					replaced = true
				}
			case v.Persisted() && existing.Provisional() && existing.Serial == v.Serial:
				// Confirmed by the server.
			default:
				kept = append(kept, existing)
			}
		}
		if !replaced {
			kept = append(kept, v)
		}
		current = kept
		stored = append(stored, v)
	}

	s.saveVehicles(ctx, current)
	return stored
}

// SaveUserSession caches the session's user (never the password) and token.
func (s *Store) SaveUserSession(ctx context.Context, session model.Session) {
	u := session.User
	registered := ""
	if !u.RegisteredAt.IsZero() {
		registered = u.RegisteredAt.UTC().Format(time.RFC3339)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.fail("save session", err)
		return
	}
	defer tx.Rollback()

	for key, value := range map[string]string{
		keyID:         strconv.FormatInt(u.ID, 10),
		keyName:       u.Name,
		keySurname:    u.Surname,
		keyEmail:      u.Email,
		keyRole:       u.Role,
		keyRegistered: registered,
		keyToken:      session.Token,
	} {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			NamespaceSession, key, value,
		)
		if err != nil {
			s.fail("save session", fmt.Errorf("%s: %w", key, err))
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.fail("save session", err)
	}
}

// LoadUserSession returns the cached session, or nil unless it has a
// positive ID, a name and an email. Partial sessions count as none.
func (s *Store) LoadUserSession(ctx context.Context) *model.Session {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE namespace = ?`, NamespaceSession,
	)
	if err != nil {
		s.fail("load session", err)
		return nil
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			s.fail("load session", err)
			return nil
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		s.fail("load session", err)
		return nil
	}

	id, err := strconv.ParseInt(values[keyID], 10, 64)
	if err != nil || id <= 0 || values[keyName] == "" || values[keyEmail] == "" {
		return nil
	}

	user := model.User{
		ID:      id,
		Name:    values[keyName],
		Surname: values[keySurname],
		Email:   values[keyEmail],
		Role:    values[keyRole],
	}
	if t, err := time.Parse(time.RFC3339, values[keyRegistered]); err == nil {
		user.RegisteredAt = t
	}
	return &model.Session{User: user, Token: values[keyToken]}
}

// ClearUserSession forgets the cached session.
func (s *Store) ClearUserSession(ctx context.Context) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ?`, NamespaceSession); err != nil {
		s.fail("clear session", err)
	}
}
