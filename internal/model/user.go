package model

import (
	"fmt"
	"strings"
	"time"
)

// User is a dealership account. Password is only ever set on the way in
// (registration, login) and is never serialized back out.
type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"nombre"`
	Surname      string     `json:"apellido"`
	Email        string     `json:"email"`
	Password     string     `json:"-"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"rol"`
	RegisteredAt time.Time  `json:"fecha_registro"`
	DeletedAt    *time.Time `json:"fecha_baja,omitempty"`
}

// FullName joins name and surname.
func (u User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleSeller  = "seller"
)

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleManager || role == RoleSeller
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:   3,
		RoleManager: 2,
		RoleSeller:  1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// ValidatePassword checks password strength rules.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Session is an authenticated user plus the bearer token issued at login.
type Session struct {
	User  User   `json:"usuario"`
	Token string `json:"token"`
}
