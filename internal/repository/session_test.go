package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

func TestLoginPersistsSession(t *testing.T) {
	remote := newFakeRemote()
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	s, err := repos.Session.Login(ctx, " Ana@Example.com ", "secreto123")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", s.User.Email)
	assert.Equal(t, "tok-1", remote.Token())
	assert.Equal(t, &s, repos.Session.Current())

	cached := cache.LoadUserSession(ctx)
	require.NotNil(t, cached)
	assert.Equal(t, "tok-1", cached.Token)
}

func TestLoginRequiresCredentials(t *testing.T) {
	remote := newFakeRemote()
	repos, _ := newRepos(t, remote)

	_, err := repos.Session.Login(context.Background(), "", "x")
	assert.True(t, apperr.IsValidation(err))
	_, err = repos.Session.Login(context.Background(), "a@example.com", "")
	assert.True(t, apperr.IsValidation(err))
	assert.Zero(t, remote.count("Login"))
}

func TestLoginFailureStoresNothing(t *testing.T) {
	remote := newFakeRemote()
	remote.login = func(context.Context, string, string) (model.Session, error) {
		return model.Session{}, &apperr.ServerError{Code: 401, Message: "invalid credentials"}
	}
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	_, err := repos.Session.Login(ctx, "ana@example.com", "wrong")
	assert.Equal(t, "invalid credentials", apperr.UserMessage(err))
	assert.Nil(t, cache.LoadUserSession(ctx))
	assert.Nil(t, repos.Session.Current())
}

func TestRestoreHandsTokenToClient(t *testing.T) {
	remote := newFakeRemote()
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	assert.False(t, repos.Session.Restore(ctx))

	cache.SaveUserSession(ctx, model.Session{
		User:  model.User{ID: 3, Name: "Luis", Email: "luis@example.com", Role: model.RoleManager},
		Token: "saved-token",
	})

	require.True(t, repos.Session.Restore(ctx))
	assert.Equal(t, "saved-token", remote.Token())
	assert.Equal(t, "Luis", repos.Session.Current().User.Name)
}

func TestLogoutAlwaysClearsLocally(t *testing.T) {
	remote := newFakeRemote()
	remote.logout = func(context.Context) error { return errors.New("connection refused") }
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	_, err := repos.Session.Login(ctx, "ana@example.com", "secreto123")
	require.NoError(t, err)

	repos.Session.Logout(ctx)
	assert.Nil(t, cache.LoadUserSession(ctx))
	assert.Nil(t, repos.Session.Current())
	assert.Empty(t, remote.Token())
}

func TestRegister(t *testing.T) {
	remote := newFakeRemote()
	repos, _ := newRepos(t, remote)

	u, err := repos.Session.Register(context.Background(), model.User{Name: "Ana", Email: " ANA@example.com", Password: "secreto123"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, model.RoleSeller, u.Role)
	assert.Nil(t, repos.Session.Current(), "registering does not log in")
}
