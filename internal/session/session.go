// Package session keeps per-browser state on the server: the signed-in user,
// the two entity slices, pending toasts, submit guards and list filters.
// Nothing here outlives the process.
package session

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/listview"
	"github.com/mediflow/frontdesk/internal/platform/auth"
	"github.com/mediflow/frontdesk/internal/platform/notification"
	"github.com/mediflow/frontdesk/internal/store"
)

const (
	CookieName = "frontdesk_session"
	contextKey = "session"
	// DefaultTTL applies when the manager is given a non-positive TTL.
	DefaultTTL = 12 * time.Hour
)

// Session is one browser's state.
type Session struct {
	ID      string
	Store   *store.Store
	Toasts  *notification.Queue
	Guard   *form.Guard
	Lists   *listview.Tracker
	Created time.Time

	mu      sync.Mutex
	user    *auth.User
	expires time.Time
}

func newSession(now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Store:   store.New(),
		Toasts:  notification.NewQueue(),
		Guard:   form.NewGuard(),
		Lists:   listview.NewTracker(),
		Created: now,
		expires: now.Add(ttl),
	}
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

func (s *Session) setUser(u *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		return
	}
	cp := *u
	s.user = &cp
}

func (s *Session) touch(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	s.expires = now.Add(ttl)
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !now.Before(s.expires)
}

// reset drops everything tied to the signed-in user.
func (s *Session) reset() {
	s.Store.Clear()
	s.Lists.Reset()
	s.Toasts.Drain()
}

// Manager owns every live session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	secure   bool
	now      func() time.Time
	logger   zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Manager)

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(ttl time.Duration, logger zerolog.Logger, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	if s.expired(m.now()) {
		m.remove(id)
		return nil, false
	}
	return s, true
}

// Create registers a fresh anonymous session.
func (m *Manager) Create() *Session {
	s := newSession(m.now(), m.ttl)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Len returns the number of sessions held, expired or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.reset()
	}
}

// OnSessionChange applies a sign-in outcome. A nil user signs out and
// clears both entity slices.
func (m *Manager) OnSessionChange(s *Session, u *auth.User) {
	if u == nil {
		s.setUser(nil)
		s.Store.Clear()
		s.Lists.Reset()
		return
	}
	s.setUser(u)
}

// Renew moves s to a new id and reissues the cookie. Called on sign-in so a
// pre-login session id cannot be reused.
func (m *Manager) Renew(c echo.Context, s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	s.ID = uuid.NewString()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	s.touch(m.now(), m.ttl)
	m.writeCookie(c, s)
	c.Set("session_id", s.ID)
}

// Destroy removes s and expires the cookie.
func (m *Manager) Destroy(c echo.Context, s *Session) {
	m.remove(s.ID)
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) writeCookie(c echo.Context, s *Session) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Sweep drops expired sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.expired(now) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		s.reset()
	}
	return len(expired)
}

// Start runs Sweep every interval until ctx ends or Stop is called.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					m.logger.Debug().Int("expired", n).Msg("sessions swept")
				}
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Middleware attaches the caller's session, creating one when the cookie is
// missing or stale, and slides its expiry.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, "/static/") {
				return next(c)
			}
			var s *Session
			if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" {
				s, _ = m.Get(ck.Value)
			}
			if s == nil {
				s = m.Create()
			}
			s.touch(m.now(), m.ttl)
			m.writeCookie(c, s)

			c.Set(contextKey, s)
			c.Set("session_id", s.ID)
			if u := s.User(); u != nil {
				c.Set("user_id", u.ID)
				c.SetRequest(c.Request().WithContext(auth.WithUser(c.Request().Context(), u)))
			}
			return next(c)
		}
	}
}

// FromContext returns the session attached by Middleware, or nil.
func FromContext(c echo.Context) *Session {
	s, _ := c.Get(contextKey).(*Session)
	return s
}

// Toasts returns the session's toast queue, or nil without a session. The
// queue survives sign-out so the login page can show the outcome.
func Toasts(c echo.Context) *notification.Queue {
	if s := FromContext(c); s != nil {
		return s.Toasts
	}
	return nil
}

// RequireUser sends anonymous browsers to the login page with the original
// path as the redirect target. API calls get a 401 instead.
func RequireUser(skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			if s := FromContext(c); s != nil && s.Authenticated() {
				return next(c)
			}
			path := c.Request().URL.Path
			if strings.HasPrefix(path, "/api/") {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return c.Redirect(http.StatusFound, auth.LoginURL(path))
		}
	}
}
