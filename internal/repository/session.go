package repository

import (
	"context"
	"log/slog"
	"strings"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

// Session owns the logged-in user.
type Session struct {
	remote AuthRemote
	cache  SessionCache
	log    *slog.Logger
	feed   *Feed[*model.Session]
}

// NewSession returns a logged-out session repository.
func NewSession(remote AuthRemote, cache SessionCache, opts ...Option) *Session {
	o := buildOptions(opts)
	return &Session{
		remote: remote,
		cache:  cache,
		log:    o.log.With("component", "session"),
		feed:   NewFeed[*model.Session](nil),
	}
}

// Current returns the logged-in session, or nil.
func (r *Session) Current() *model.Session {
	return r.feed.Current()
}

// Subscribe follows login state.
func (r *Session) Subscribe() (<-chan *model.Session, func()) {
	return r.feed.Subscribe()
}

// Login authenticates and remembers the session locally.
func (r *Session) Login(ctx context.Context, email, password string) (model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return model.Session{}, apperr.Validation("email", "email is required")
	}
	if password == "" {
		return model.Session{}, apperr.Validation("password", "password is required")
	}

	s, err := r.remote.Login(ctx, email, password)
	if err != nil {
		return model.Session{}, err
	}
	s.User.Password = ""
	r.cache.SaveUserSession(context.WithoutCancel(ctx), s)
	r.feed.Publish(&s)
	r.log.Info("logged in", "user", s.User.Email)
	return s, nil
}

// Register creates an account. It does not log in.
func (r *Session) Register(ctx context.Context, u model.User) (model.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return r.remote.Register(ctx, u)
}

// Logout ends the session. The local session is always forgotten; a failure
// to reach the backend is only logged.
func (r *Session) Logout(ctx context.Context) {
	if err := r.remote.Logout(ctx); err != nil {
		r.log.Warn("server logout failed", "error", err)
	}
	r.cache.ClearUserSession(context.WithoutCancel(ctx))
	r.feed.Publish(nil)
}

// Restore loads the cached session, if any, and hands its token to the
// backend client. It reports whether a session was found.
func (r *Session) Restore(ctx context.Context) bool {
	s := r.cache.LoadUserSession(ctx)
	if s == nil {
		return false
	}
	r.remote.SetToken(s.Token)
	r.feed.Publish(s)
	return true
}
