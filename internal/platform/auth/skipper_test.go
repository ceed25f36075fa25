package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path   string
		public bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/login", true},
		{"/signup", true},
		{"/callback", true},
		{"/error", true},
		{"/theme", true},
		{"/static/*", true},
		{"/", false},
		{"/dashboard", false},
		{"/patients", false},
		{"/patients/:id", false},
		{"/api/v1/patients", false},
		{"/health/extra", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(tt.path)

			if got := AuthSkipper(c); got != tt.public {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.public)
			}
		})
	}
}

func TestAuthSkipper_FallsBackToURL(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/static/app.css", nil), httptest.NewRecorder())
	if !AuthSkipper(c) {
		t.Error("expected static asset to be public")
	}
}
