package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/concesionaria/internal/model"
)

var (
	ErrDuplicateEmail = errors.New("an account with this email already exists")
	ErrUserNotFound   = errors.New("user not found")
)

const userColumns = `id, nombre, apellido, email, password_hash, rol, fecha_registro, fecha_baja`

func scanUser(s scanner) (*model.User, error) {
	u := &model.User{}
	err := s.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &u.Role, &u.RegisteredAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new user. The caller hashes the password.
func CreateUser(ctx context.Context, db *sql.DB, u model.User, passwordHash string) (*model.User, error) {
	if u.Role == "" {
		u.Role = model.RoleSeller
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO usuarios (nombre, apellido, email, password_hash, rol) VALUES (?, ?, ?, ?, ?)`,
		u.Name, u.Surname, u.Email, passwordHash, u.Role,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM usuarios WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the active user with the given email.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM usuarios WHERE email = ? AND fecha_baja IS NULL`, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all active users.
func ListUsers(ctx context.Context, db *sql.DB) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM usuarios WHERE fecha_baja IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// DeleteUser deactivates a user. The email becomes free for a new account.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE usuarios SET fecha_baja = CURRENT_TIMESTAMP WHERE id = ? AND fecha_baja IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// UpdateUserRole changes an active user's role.
func UpdateUserRole(ctx context.Context, db *sql.DB, id int64, role string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE usuarios SET rol = ? WHERE id = ? AND fecha_baja IS NULL`, role, id,
	)
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	return requireAffected(result, ErrUserNotFound)
}
