package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role     string
		minimum  string
		expected bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleManager, true},
		{RoleAdmin, RoleSeller, true},
		{RoleManager, RoleAdmin, false},
		{RoleManager, RoleManager, true},
		{RoleManager, RoleSeller, true},
		{RoleSeller, RoleAdmin, false},
		{RoleSeller, RoleManager, false},
		{RoleSeller, RoleSeller, true},
		// Unknown roles fail-closed.
		{"unknown", RoleSeller, false},
		{RoleAdmin, "unknown", false},
		{"", "", false},
		{"", RoleSeller, false},
	}

	for _, tt := range tests {
		got := RoleAtLeast(tt.role, tt.minimum)
		if got != tt.expected {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.expected)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestUserPasswordNotSerialized(t *testing.T) {
	u := User{ID: 1, Name: "Ana", Email: "ana@example.com", Password: "secret-pass", PasswordHash: "hash"}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret-pass") || strings.Contains(string(data), "hash") {
		t.Errorf("password leaked into JSON: %s", data)
	}
}
