// Package auth verifies who is at the front desk. It knows nothing about
// sessions; callers hand a verified *User to the session layer.
package auth

import (
	"context"
	"errors"
	"strings"
)

// Auth modes selected by AUTH_MODE.
const (
	ModeDevelopment = "development"
	ModeStandalone  = "standalone"
	ModeExternal    = "external"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountExists      = errors.New("an account with this email already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrMissingToken       = errors.New("missing identity token")
)

// User is the signed-in person.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// DisplayName falls back to the email's local part.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	if i := strings.IndexByte(u.Email, '@'); i > 0 {
		return u.Email[:i]
	}
	return u.Email
}

// Credential is whatever a sign-in form or widget callback produced. Which
// fields matter depends on the provider.
type Credential struct {
	Email    string
	Password string
	Name     string
	IDToken  string
}

// IdentityProvider turns a credential into a user.
type IdentityProvider interface {
	Mode() string
	Verify(ctx context.Context, cred Credential) (*User, error)
	Logout(ctx context.Context, u *User) error
}

// Registrar is implemented by providers that accept local signups.
type Registrar interface {
	Register(ctx context.Context, cred Credential) (*User, error)
}

type contextKey string

const userKey contextKey = "user"

// WithUser stores u on ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the user stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userKey).(*User)
	return u
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
