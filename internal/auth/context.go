// Package auth owns the login state of the CLI: the persisted token pair,
// the current chat session id and the timer that refreshes the access token
// before it expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"invoicechat/internal/backend"
	"invoicechat/internal/logger"
)

// DefaultRefreshLead is how long before expiry the access token is refreshed.
const DefaultRefreshLead = 60 * time.Second

// ErrNotLoggedIn is returned by operations that need a session.
var ErrNotLoggedIn = errors.New("not logged in, run `invoicechat login` first")

// ErrSessionChanged is returned by a refresh whose session was logged out or
// replaced while the request was in flight. Its response is discarded.
var ErrSessionChanged = errors.New("session changed during token refresh")

// API is the part of the backend client the auth context needs.
type API interface {
	SignIn(ctx context.Context, req backend.SignInRequest) (*backend.AuthResponse, error)
	SignUp(ctx context.Context, req backend.SignUpRequest) (*backend.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*backend.AuthResponse, error)
}

// Option configures a Context.
type Option func(*Context)

// WithRefreshLead overrides DefaultRefreshLead.
func WithRefreshLead(d time.Duration) Option {
	return func(c *Context) { c.refreshLead = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// Context is the explicit auth state passed to everything that talks to the
// backend. Init arms the refresh timer; Teardown stops it.
type Context struct {
	store *TokenStore
	api   API

	refreshLead time.Duration
	now         func() time.Time
	log         zerolog.Logger

	mu      sync.Mutex
	session Session
	timer   *time.Timer
	closed  bool
}

// New creates an auth context. Call Init before use.
func New(store *TokenStore, api API, opts ...Option) *Context {
	c := &Context{
		store:       store,
		api:         api,
		refreshLead: DefaultRefreshLead,
		now:         time.Now,
		log:         logger.WithComponent("auth"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAPI wires the backend after construction, for clients that need the
// context as their token source.
func (c *Context) SetAPI(api API) {
	c.mu.Lock()
	c.api = api
	c.mu.Unlock()
}

// Init loads the persisted session. A token that is already due is refreshed
// before Init returns; otherwise the refresh timer is armed.
func (c *Context) Init(ctx context.Context) error {
	const op = "Init"

	sess, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	c.session = sess
	c.closed = false
	due := c.refreshDueLocked()
	c.mu.Unlock()

	if due {
		if err := c.Refresh(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Token refresh at startup failed")
		}
		return nil
	}

	c.mu.Lock()
	c.scheduleLocked()
	c.mu.Unlock()
	return nil
}

// Teardown stops the refresh timer. The persisted session is kept.
func (c *Context) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.stopLocked()
}

// AccessToken implements backend.TokenSource.
func (c *Context) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.AccessToken
}

// IsAuthenticated reports whether an access token is present.
func (c *Context) IsAuthenticated() bool {
	return c.AccessToken() != ""
}

// User returns the logged-in user, if known.
func (c *Context) User() *backend.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.User
}

// ExpiresAt returns the access token expiry; zero when unknown.
func (c *Context) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.TokenExpiresAt
}

// SessionID returns the current chat session id.
func (c *Context) SessionID() backend.Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.CurrentSessionID
}

// SetSessionID persists the current chat session id.
func (c *Context) SetSessionID(id backend.Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.CurrentSessionID = id
	return c.store.Save(c.session)
}

// Login signs in and persists the new token pair.
func (c *Context) Login(ctx context.Context, email, password string) error {
	resp, err := c.api.SignIn(ctx, backend.SignInRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	return c.apply(resp, "")
}

// Signup creates an account and logs in with it.
func (c *Context) Signup(ctx context.Context, email, password, name string) error {
	resp, err := c.api.SignUp(ctx, backend.SignUpRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return err
	}
	return c.apply(resp, "")
}

// Logout forgets every persisted key.
func (c *Context) Logout() error {
	c.mu.Lock()
	c.stopLocked()
	c.session = Session{}
	err := c.store.Clear()
	c.mu.Unlock()

	c.log.Info().Msg("Logged out")
	return err
}

// Refresh exchanges the refresh token for a new pair. A rejected refresh
// token ends the session. If the session is logged out or replaced while the
// request is in flight, the answer is dropped and ErrSessionChanged returned.
func (c *Context) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.session.RefreshToken
	c.mu.Unlock()

	if refreshToken == "" {
		return ErrNotLoggedIn
	}

	resp, err := c.api.RefreshToken(ctx, refreshToken)
	if err != nil {
		if backend.IsUnauthorized(err) && c.currentRefresh(refreshToken) {
			c.log.Warn().Msg("Refresh token rejected, clearing session")
			if clearErr := c.Logout(); clearErr != nil {
				c.log.Error().Err(clearErr).Msg("Failed to clear session")
			}
		}
		return err
	}
	return c.apply(resp, refreshToken)
}

func (c *Context) currentRefresh(refreshToken string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.RefreshToken == refreshToken
}

// apply stores a token response. An empty sent token means login: the user
// and chat session are replaced. Otherwise it is the refresh token the
// response answers, and the session must still hold it.
func (c *Context) apply(resp *backend.AuthResponse, sent string) error {
	login := sent == ""
	c.mu.Lock()

	if !login && c.session.RefreshToken != sent {
		c.mu.Unlock()
		c.log.Debug().Msg("Session changed during refresh, dropping new token")
		return ErrSessionChanged
	}

	if login {
		c.session = Session{User: resp.User}
	} else if resp.User != nil {
		c.session.User = resp.User
	}
	c.session.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		c.session.RefreshToken = resp.RefreshToken
	}
	c.session.TokenExpiresAt = c.expiryOf(resp)

	c.scheduleLocked()
	err := c.store.Save(c.session)
	expiresAt := c.session.TokenExpiresAt
	c.mu.Unlock()

	c.log.Debug().Time("expires_at", expiresAt).Msg("Stored access token")
	return err
}

// expiryOf prefers expires_in and falls back to the token's exp claim.
func (c *Context) expiryOf(resp *backend.AuthResponse) time.Time {
	if resp.ExpiresIn > 0 {
		return c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return TokenExpiry(resp.AccessToken)
}

// TokenExpiry reads the exp claim without verifying the signature. The
// server verifies; the client only needs to know when to refresh.
func TokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func (c *Context) refreshDueLocked() bool {
	s := c.session
	if s.RefreshToken == "" || s.TokenExpiresAt.IsZero() {
		return false
	}
	return !c.now().Before(s.TokenExpiresAt.Add(-c.refreshLead))
}

// scheduleLocked (re)arms the refresh timer for the current session. A token
// living shorter than twice the lead is refreshed halfway through its
// lifetime; an already expired one is not scheduled.
func (c *Context) scheduleLocked() {
	c.stopLocked()
	if c.closed || c.session.RefreshToken == "" || c.session.TokenExpiresAt.IsZero() {
		return
	}

	lifetime := c.session.TokenExpiresAt.Sub(c.now())
	if lifetime <= 0 {
		c.log.Warn().Time("expires_at", c.session.TokenExpiresAt).Msg("Access token already expired, refresh not scheduled")
		return
	}
	delay := lifetime - min(c.refreshLead, lifetime/2)
	c.timer = time.AfterFunc(delay, c.onTimer)
	c.log.Debug().Dur("in", delay).Msg("Scheduled token refresh")
}

func (c *Context) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Context) onTimer() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if err := c.Refresh(context.Background()); err != nil {
		c.log.Warn().Err(err).Msg("Scheduled token refresh failed")
	}
}
