package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

// Register creates an account. The password travels only in this request.
func (c *Client) Register(ctx context.Context, u model.User) (model.User, error) {
	switch {
	case strings.TrimSpace(u.Name) == "":
		return model.User{}, apperr.Validation("nombre", "name is required")
	case !strings.Contains(u.Email, "@"):
		return model.User{}, apperr.Validation("email", "a valid email is required")
	}
	if err := model.ValidatePassword(u.Password); err != nil {
		return model.User{}, apperr.Validation("password", "%v", err)
	}

	req, err := jsonRequest(http.MethodPost, c.paths.Users, map[string]string{
		"nombre":   u.Name,
		"apellido": u.Surname,
		"email":    u.Email,
		"password": u.Password,
	})
	if err != nil {
		return model.User{}, err
	}
	f, err := c.object(ctx, "user", req)
	if err != nil {
		return model.User{}, err
	}
	if inner, ok := f.lookup(userEnvelopes); ok {
		if m, ok := inner.(map[string]any); ok {
			f = newFields(m)
		}
	}
	return decodeUser(f)
}

// Login authenticates and returns the session. The client keeps the token
// for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (model.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return model.Session{}, apperr.Validation("", "email and password are required")
	}

	req, err := jsonRequest(http.MethodPost, c.paths.Login, map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	})
	if err != nil {
		return model.Session{}, err
	}
	f, err := c.object(ctx, "session", req)
	if err != nil {
		return model.Session{}, err
	}

	token := f.str(keyToken)
	userFields := f
	if inner, ok := f.lookup(userEnvelopes); ok {
		if m, ok := inner.(map[string]any); ok {
			userFields = newFields(m)
		}
	}
	user, err := decodeUser(userFields)
	if err != nil {
		return model.Session{}, err
	}

	c.SetToken(token)
	return model.Session{User: user, Token: token}, nil
}

// Logout ends the session on the server and forgets the token. The token is
// dropped locally even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.SetToken("")
	if c.Token() == "" {
		return nil
	}
	_, err := c.do(ctx, request{method: http.MethodPost, path: c.paths.Logout})
	return err
}
