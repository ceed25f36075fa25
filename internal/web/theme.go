package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ThemeCookie = "theme"
	ThemeLight  = "light"
	ThemeDark   = "dark"

	// PrefersColorSchemeHeader is the client hint browsers send once asked
	// via Accept-CH.
	PrefersColorSchemeHeader = "Sec-CH-Prefers-Color-Scheme"

	themeMaxAge = 365 * 24 * 60 * 60
)

// ThemeFor returns the saved theme, falling back to the browser's color
// scheme hint and then to light.
func ThemeFor(c echo.Context) string {
	if ck, err := c.Cookie(ThemeCookie); err == nil {
		switch ck.Value {
		case ThemeLight, ThemeDark:
			return ck.Value
		}
	}
	hint := strings.Trim(c.Request().Header.Get(PrefersColorSchemeHeader), `" `)
	if strings.EqualFold(hint, ThemeDark) {
		return ThemeDark
	}
	return ThemeLight
}

// ToggleTheme flips the theme and returns to the page the toggle was on.
func (s *Server) ToggleTheme(c echo.Context) error {
	next := ThemeDark
	if ThemeFor(c) == ThemeDark {
		next = ThemeLight
	}
	c.SetCookie(&http.Cookie{
		Name:     ThemeCookie,
		Value:    next,
		Path:     "/",
		MaxAge:   themeMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusSeeOther, backTo(c, "/"))
}

// backTo returns the same-site path the request came from: the "next" form
// field, else the Referer, else fallback.
func backTo(c echo.Context, fallback string) string {
	if next := c.FormValue("next"); next != "" {
		if safe := safeRedirect(next); safe == next {
			return next
		}
	}
	ref, err := url.Parse(c.Request().Referer())
	if err != nil || ref.Path == "" {
		return fallback
	}
	if ref.Host != "" && ref.Host != c.Request().Host {
		return fallback
	}
	target := ref.Path
	if ref.RawQuery != "" {
		target += "?" + ref.RawQuery
	}
	if safeRedirect(target) != target {
		return fallback
	}
	return target
}
