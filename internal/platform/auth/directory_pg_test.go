package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// -- Fake pgConn --

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *[]byte:
			*p = r.vals[i].([]byte)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		}
	}
	return nil
}

type fakePG struct {
	row      fakeRow
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (f *fakePG) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return f.row
}

func (f *fakePG) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func TestPGDirectory_FindByEmail(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	db := &fakePG{row: fakeRow{vals: []any{"u-1", "a@example.com", "Ann", []byte("hash"), created}}}
	dir := NewPGDirectory(db)

	acct, err := dir.FindByEmail(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.ID != "u-1" || acct.Name != "Ann" || !acct.CreatedAt.Equal(created) {
		t.Errorf("unexpected account: %+v", acct)
	}
	if !strings.Contains(db.lastSQL, "FROM frontdesk_user WHERE email = $1") || db.lastArgs[0] != "a@example.com" {
		t.Errorf("unexpected query %q %v", db.lastSQL, db.lastArgs)
	}
}

func TestPGDirectory_FindByEmail_NoRows(t *testing.T) {
	dir := NewPGDirectory(&fakePG{row: fakeRow{err: pgx.ErrNoRows}})
	if _, err := dir.FindByEmail(context.Background(), "x@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPGDirectory_Create(t *testing.T) {
	db := &fakePG{}
	dir := NewPGDirectory(db)
	acct := &Account{ID: "u-2", Email: "b@example.com", PasswordHash: []byte("h")}
	if err := dir.Create(context.Background(), acct); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.lastArgs) != 5 || db.lastArgs[1] != "b@example.com" {
		t.Errorf("unexpected args %v", db.lastArgs)
	}

	db.execErr = &pgconn.PgError{Code: "23505"}
	if err := dir.Create(context.Background(), acct); !errors.Is(err, ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}

	db.execErr = errors.New("connection refused")
	if err := dir.Create(context.Background(), acct); err == nil || errors.Is(err, ErrAccountExists) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
