package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths are reachable without a signed-in session.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/login":     true,
	"/signup":    true,
	"/callback":  true,
	"/error":     true,
	"/logout":    true,
	"/theme":     true,
}

// IsPublicPath reports whether path skips the sign-in guard.
func IsPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, "/static/")
}

// AuthSkipper matches on the route path so parameterized routes are never
// mistaken for public ones.
func AuthSkipper(c echo.Context) bool {
	if p := c.Path(); p != "" {
		return IsPublicPath(p)
	}
	return IsPublicPath(c.Request().URL.Path)
}
