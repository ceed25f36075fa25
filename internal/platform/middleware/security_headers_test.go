package middleware

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func runSecurity(t *testing.T, cfg SecurityConfig, method, path string, handler echo.HandlerFunc) (http.Header, error) {
	t.Helper()
	c, rec := newContext(method, path)
	if handler == nil {
		handler = func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	}
	err := SecurityHeaders(cfg)(handler)(c)
	return rec.Header(), err
}

func TestSecurityHeaders_PatientPage(t *testing.T) {
	h, err := runSecurity(t, SecurityConfig{HSTS: true}, http.MethodGet, "/patients", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "0",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Referrer-Policy":           "same-origin",
		"Permissions-Policy":        "camera=(), microphone=(), geolocation=()",
		"Cache-Control":             "no-store",
		"Accept-CH":                 "Sec-CH-Prefers-Color-Scheme",
		"Vary":                      "Sec-CH-Prefers-Color-Scheme",
	}
	for name, v := range want {
		if got := h.Get(name); got != v {
			t.Errorf("%s: got %q, want %q", name, got, v)
		}
	}
	if csp := h.Get("Content-Security-Policy"); !strings.Contains(csp, "frame-src 'none'") {
		t.Errorf("expected frames denied without widget origins, got %q", csp)
	}
	if h.Get("Clear-Site-Data") != "" {
		t.Error("Clear-Site-Data belongs to logout only")
	}
}

func TestSecurityHeaders_WidgetOrigins(t *testing.T) {
	h, _ := runSecurity(t, SecurityConfig{WidgetOrigins: []string{"https://auth.example.com"}}, http.MethodGet, "/login", nil)

	csp := h.Get("Content-Security-Policy")
	for _, want := range []string{
		"script-src 'self' https://auth.example.com",
		"connect-src 'self' https://auth.example.com",
		"frame-src 'none' https://auth.example.com",
	} {
		if !strings.Contains(csp, want) {
			t.Errorf("expected %q in %q", want, csp)
		}
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Error("expected no HSTS when disabled")
	}
}

func TestSecurityHeaders_StaticAssets(t *testing.T) {
	h, _ := runSecurity(t, SecurityConfig{}, http.MethodGet, "/static/app.css", nil)
	if h.Get("Cache-Control") != "" || h.Get("Accept-CH") != "" {
		t.Errorf("expected static assets cacheable without hints, got %v", h)
	}
	if h.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff on static assets")
	}
}

func TestSecurityHeaders_LogoutClearsCache(t *testing.T) {
	cfg := SecurityConfig{LogoutPath: "/logout"}
	h, _ := runSecurity(t, cfg, http.MethodPost, "/logout", nil)
	if h.Get("Clear-Site-Data") != `"cache"` {
		t.Errorf("expected cache cleared on logout, got %q", h.Get("Clear-Site-Data"))
	}
	h, _ = runSecurity(t, cfg, http.MethodGet, "/logout", nil)
	if h.Get("Clear-Site-Data") != "" {
		t.Error("a GET must not clear the cache")
	}
}

func TestSecurityHeaders_KeptOnHandlerError(t *testing.T) {
	h, err := runSecurity(t, SecurityConfig{}, http.MethodGet, "/patients/404", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "patient 404 not found")
	})
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 passed through, got %v", err)
	}
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("Cache-Control") != "no-store" {
		t.Error("expected security headers on error responses")
	}
}
