package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Context keys shared with the session middleware.
const (
	RequestIDKey = "request_id"
	SessionIDKey = "session_id"
	UserIDKey    = "user_id"
)

func contextString(c echo.Context, key string) string {
	s, _ := c.Get(key).(string)
	return s
}

// withRequest tags evt with the identifiers a front-desk request carries.
// Session and user are only present once the session middleware has run.
func withRequest(evt *zerolog.Event, c echo.Context) *zerolog.Event {
	evt = evt.Str(RequestIDKey, contextString(c, RequestIDKey))
	if sid := contextString(c, SessionIDKey); sid != "" {
		evt = evt.Str(SessionIDKey, shortID(sid))
	}
	if uid := contextString(c, UserIDKey); uid != "" {
		evt = evt.Str(UserIDKey, uid)
	}
	return evt
}

// shortID keeps session ids out of the log in full.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
