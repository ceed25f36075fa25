package auth

import (
	"context"
	"sync"
	"time"
)

// Account is a locally stored sign-in.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}

func (a *Account) User() *User {
	return &User{ID: a.ID, Email: a.Email, Name: a.Name, Provider: ModeStandalone}
}

// Directory stores accounts for the standalone provider. Emails are passed
// already normalized.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, acct *Account) error
}

// MemoryDirectory keeps accounts in process memory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{accounts: make(map[string]*Account)}
}

func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	acct, ok := d.accounts[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (d *MemoryDirectory) Create(ctx context.Context, acct *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.accounts[acct.Email]; exists {
		return ErrAccountExists
	}
	cp := *acct
	d.accounts[acct.Email] = &cp
	return nil
}
