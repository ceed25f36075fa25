package auth

import (
	"net/url"
	"strings"
)

// DefaultLanding is where a signed-in user goes when nothing else applies.
const DefaultLanding = "/dashboard"

// IsAuthPage reports whether path (with or without query) is one of the
// sign-in related routes. It is a substring test, so "/login?x" matches.
func IsAuthPage(path string) bool {
	return strings.Contains(path, "/login") ||
		strings.Contains(path, "/signup") ||
		strings.Contains(path, "/callback") ||
		strings.Contains(path, "/error")
}

// ResolveRedirect decides where to send the browser after the identity
// provider reports a sign-in outcome. current is the path plus query of the
// page the outcome arrived on. The result equals current when the browser
// should stay.
func ResolveRedirect(current string, authenticated bool) string {
	redirect := ""
	if u, err := url.Parse(current); err == nil {
		redirect = u.Query().Get("redirect")
	}
	authPage := IsAuthPage(current)

	if authenticated {
		switch {
		case redirect != "":
			return redirect
		case !authPage:
			if !strings.Contains(current, "/login") && !strings.Contains(current, "/signup") {
				return current
			}
			return DefaultLanding
		default:
			return DefaultLanding
		}
	}

	switch {
	case !authPage:
		switch {
		case strings.Contains(current, "/signup"):
			return "/signup?redirect=" + current
		case strings.Contains(current, "/login"):
			return "/login?redirect=" + current
		default:
			return "/login"
		}
	case redirect != "":
		for _, p := range []string{"error", "signup", "login", "callback"} {
			if strings.Contains(current, p) {
				return current
			}
		}
		return "/login?redirect=" + redirect
	default:
		return current
	}
}

// LoginURL is the guard redirect for a protected path.
func LoginURL(path string) string {
	return "/login?redirect=" + path
}

// ErrorURL is where a widget failure is reported.
func ErrorURL(msg string) string {
	if msg == "" {
		msg = "Authentication failed"
	}
	return "/error?message=" + url.QueryEscape(msg)
}
