package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Session tokens are stateless, so ending one early takes a deny list. A
// single token is revoked at logout; a per-user cutoff ends every token the
// user was issued before a role change or account removal.

// RevokeSession ends one session token. The row is kept until the token
// would have expired anyway.
func RevokeSession(ctx context.Context, db *sql.DB, userID int64, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, usuario_id, expires_at) VALUES (?, ?, ?)`,
		jti, userID, sqlTime(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("revoking session of user %d: %w", userID, err)
	}

	_, _ = db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, sqlTime(time.Now()),
	)
	return nil
}

// EndUserSessions rejects every token issued to a user up to and including
// the second of at. Tokens only carry whole seconds, so a token issued in
// that same second is ended too.
func EndUserSessions(ctx context.Context, db *sql.DB, userID int64, at time.Time) error {
	cutoff := at.Truncate(time.Second).Add(time.Second)
	_, err := db.ExecContext(ctx, `
		INSERT INTO session_cutoffs (usuario_id, not_before) VALUES (?, ?)
		ON CONFLICT (usuario_id) DO UPDATE SET not_before = excluded.not_before`,
		userID, sqlTime(cutoff),
	)
	if err != nil {
		return fmt.Errorf("ending sessions of user %d: %w", userID, err)
	}
	return nil
}

// SessionRevoked reports whether a token was revoked at logout or issued
// before its user's sessions were ended.
func SessionRevoked(ctx context.Context, db *sql.DB, userID int64, jti string, issuedAt time.Time) (bool, error) {
	var revoked int
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)
		    OR EXISTS (SELECT 1 FROM session_cutoffs WHERE usuario_id = ? AND not_before > ?)`,
		jti, userID, sqlTime(issuedAt),
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("checking session of user %d: %w", userID, err)
	}
	return revoked != 0, nil
}
