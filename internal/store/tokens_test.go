package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/concesionaria/internal/db"
	"github.com/erazemk/concesionaria/internal/model"
)

func createSeller(t *testing.T, database *sql.DB, email string) int64 {
	t.Helper()
	u, err := CreateUser(context.Background(), database, model.User{Name: "Ana", Email: email}, "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.ID
}

func TestRevokeSession(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	id := createSeller(t, database, "ana@example.com")
	issued := time.Now().Add(-time.Minute)

	revoked, err := SessionRevoked(ctx, database, id, "jti-1", issued)
	if err != nil {
		t.Fatalf("SessionRevoked: %v", err)
	}
	if revoked {
		t.Error("expected session not to be revoked")
	}

	if err := RevokeSession(ctx, database, id, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	// Logging out twice is fine.
	if err := RevokeSession(ctx, database, id, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("second RevokeSession: %v", err)
	}

	revoked, _ = SessionRevoked(ctx, database, id, "jti-1", issued)
	if !revoked {
		t.Error("expected session to be revoked")
	}

	revoked, _ = SessionRevoked(ctx, database, id, "jti-2", issued)
	if revoked {
		t.Error("expected another session of the same user to stay open")
	}
}

func TestRevokeSessionPrunesExpired(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	id := createSeller(t, database, "ana@example.com")

	RevokeSession(ctx, database, id, "old", time.Now().Add(-time.Hour))
	RevokeSession(ctx, database, id, "new", time.Now().Add(time.Hour))

	var n int
	database.QueryRowContext(ctx, `SELECT COUNT(*) FROM revoked_tokens`).Scan(&n)
	if n != 1 {
		t.Errorf("expected only the unexpired revocation to remain, got %d rows", n)
	}
}

func TestEndUserSessions(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	ana := createSeller(t, database, "ana@example.com")
	luis := createSeller(t, database, "luis@example.com")

	cutoff := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := EndUserSessions(ctx, database, ana, cutoff); err != nil {
		t.Fatalf("EndUserSessions: %v", err)
	}

	tests := []struct {
		name   string
		user   int64
		issued time.Time
		want   bool
	}{
		{"issued before", ana, cutoff.Add(-time.Hour), true},
		{"issued the same second", ana, cutoff, true},
		{"issued after", ana, cutoff.Add(2 * time.Second), false},
		{"other user", luis, cutoff.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SessionRevoked(ctx, database, tt.user, "jti", tt.issued)
			if err != nil {
				t.Fatalf("SessionRevoked: %v", err)
			}
			if got != tt.want {
				t.Errorf("SessionRevoked = %v, want %v", got, tt.want)
			}
		})
	}

	// A later cutoff replaces the earlier one.
	if err := EndUserSessions(ctx, database, ana, cutoff.Add(time.Hour)); err != nil {
		t.Fatalf("second EndUserSessions: %v", err)
	}
	revoked, _ := SessionRevoked(ctx, database, ana, "jti", cutoff.Add(2*time.Second))
	if !revoked {
		t.Error("expected the later cutoff to apply")
	}
}
