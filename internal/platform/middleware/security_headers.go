package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityConfig lists the extra origins the pages may load from. The hosted
// sign-in widget needs its script and frame origin allowed.
type SecurityConfig struct {
	WidgetOrigins []string
	HSTS          bool
	// LogoutPath gets Clear-Site-Data so patient pages leave the browser
	// cache on sign-out. Empty disables it.
	LogoutPath string
}

func (cfg SecurityConfig) contentPolicy() string {
	widget := strings.Join(cfg.WidgetOrigins, " ")
	with := func(base string) string {
		if widget == "" {
			return base
		}
		return base + " " + widget
	}
	directives := []string{
		"default-src 'self'",
		"script-src " + with("'self'"),
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"connect-src " + with("'self'"),
		"frame-src " + with("'none'"),
		"frame-ancestors 'none'",
		"form-action 'self'",
	}
	return strings.Join(directives, "; ")
}

// SecurityHeaders sets the headers every page and API response carries.
// Responses other than static assets are marked no-store because they
// contain patient data.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	csp := cfg.contentPolicy()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			h := c.Response().Header()

			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			if strings.HasPrefix(req.URL.Path, "/static/") {
				return next(c)
			}
			h.Set("Cache-Control", "no-store")
			// Theme default comes from this client hint.
			h.Set("Accept-CH", "Sec-CH-Prefers-Color-Scheme")
			h.Add("Vary", "Sec-CH-Prefers-Color-Scheme")
			if cfg.LogoutPath != "" && req.Method == http.MethodPost && req.URL.Path == cfg.LogoutPath {
				h.Set("Clear-Site-Data", `"cache"`)
			}
			return next(c)
		}
	}
}
