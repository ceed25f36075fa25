package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgConn is the slice of *pgxpool.Pool the directory needs, so tests can
// substitute a fake.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGDirectory stores accounts in the frontdesk_user table.
type PGDirectory struct {
	db pgConn
}

func NewPGDirectory(db pgConn) *PGDirectory {
	return &PGDirectory{db: db}
}

func (d *PGDirectory) FindByEmail(ctx context.Context, email string) (*Account, error) {
	const query = `SELECT id, email, name, password_hash, created_at
FROM frontdesk_user WHERE email = $1`

	var a Account
	err := d.db.QueryRow(ctx, query, email).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &a, nil
}

func (d *PGDirectory) Create(ctx context.Context, acct *Account) error {
	const query = `INSERT INTO frontdesk_user (id, email, name, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := d.db.Exec(ctx, query, acct.ID, acct.Email, acct.Name, acct.PasswordHash, acct.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}
