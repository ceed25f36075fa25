package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced on signup.
const MinPasswordLength = 8

// StandaloneProvider authenticates against locally stored accounts with
// bcrypt password hashes.
type StandaloneProvider struct {
	dir  Directory
	cost int
	now  func() time.Time
}

// NewStandaloneProvider creates a provider over dir. A cost of zero uses
// bcrypt.DefaultCost.
func NewStandaloneProvider(dir Directory, cost int) *StandaloneProvider {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &StandaloneProvider{dir: dir, cost: cost, now: time.Now}
}

func (p *StandaloneProvider) Mode() string { return ModeStandalone }

func (p *StandaloneProvider) Verify(ctx context.Context, cred Credential) (*User, error) {
	email := normalizeEmail(cred.Email)
	if email == "" || cred.Password == "" {
		return nil, ErrInvalidCredentials
	}
	acct, err := p.dir.FindByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(cred.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acct.User(), nil
}

// Register creates an account and returns its user.
func (p *StandaloneProvider) Register(ctx context.Context, cred Credential) (*User, error) {
	email := normalizeEmail(cred.Email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	if len(cred.Password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	acct := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(cred.Name),
		PasswordHash: hash,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.dir.Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct.User(), nil
}

func (p *StandaloneProvider) Logout(context.Context, *User) error { return nil }
