package db

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the record store schema shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration is one numbered SQL file.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus reports a migration against the ledger. Modified means the
// file changed after it was applied.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
	Modified  bool
}

// conn is the part of *pgxpool.Pool the migrator uses.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrator applies the numbered SQL files of an fs.FS in order.
type Migrator struct {
	db    conn
	files fs.FS
}

func NewMigrator(db conn, files fs.FS) *Migrator {
	return &Migrator{db: db, files: files}
}

const ledgerTable = "frontdesk_migrations"

// migrationLock serializes concurrent "migrate up" runs across replicas.
const migrationLock int64 = 0x66726f6e74 // "front"

const createLedger = `CREATE TABLE IF NOT EXISTS ` + ledgerTable + ` (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func (m *Migrator) ensureLedger(ctx context.Context) error {
	if _, err := m.db.Exec(ctx, createLedger); err != nil {
		return fmt.Errorf("create %s: %w", ledgerTable, err)
	}
	return nil
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// LoadMigrations reads the .sql files at the root of the filesystem. The
// version is the numeric filename prefix ("001_records.sql" is 1); files
// without one are ignored. Two files with the same version are an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, name, version)
		}
		seen[version] = name

		body, err := fs.ReadFile(m.files, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sql := string(body)
		out = append(out, Migration{Version: version, Name: name, SQL: sql, Checksum: checksum(sql)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

type ledgerEntry struct {
	at       time.Time
	checksum string
}

func (m *Migrator) ledger(ctx context.Context) (map[int]ledgerEntry, error) {
	rows, err := m.db.Query(ctx, `SELECT version, applied_at, checksum FROM `+ledgerTable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	defer rows.Close()

	out := make(map[int]ledgerEntry)
	for rows.Next() {
		var v int
		var e ledgerEntry
		if err := rows.Scan(&v, &e.at, &e.checksum); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ledgerTable, err)
		}
		out[v] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	return out, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	return m.UpTo(ctx, 0)
}

// UpTo applies pending migrations up to and including target; 0 means all.
// Each migration commits on its own, so a failure leaves the earlier ones
// applied.
func (m *Migrator) UpTo(ctx context.Context, target int) (int, error) {
	if err := m.ensureLedger(ctx); err != nil {
		return 0, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	done, err := m.ledger(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migrations {
		if target > 0 && mig.Version > target {
			break
		}
		if _, ok := done[mig.Version]; ok {
			continue
		}
		ran, err := m.apply(ctx, mig)
		if err != nil {
			return count, fmt.Errorf("migration %s: %w", mig.Name, err)
		}
		if ran {
			count++
		}
	}
	return count, nil
}

// apply runs mig under the migration lock. The ledger row is claimed first;
// if another process already claimed it the migration is skipped.
func (m *Migrator) apply(ctx context.Context, mig Migration) (bool, error) {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
		return false, fmt.Errorf("lock: %w", err)
	}
	tag, err := tx.Exec(ctx,
		"INSERT INTO "+ledgerTable+" (version, name, checksum) VALUES ($1, $2, $3) ON CONFLICT (version) DO NOTHING",
		mig.Version, mig.Name, mig.Checksum,
	)
	if err != nil {
		return false, fmt.Errorf("record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Status lists every known migration against the ledger.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureLedger(ctx); err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	done, err := m.ledger(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if e, ok := done[mig.Version]; ok {
			at := e.at
			st.Applied = true
			st.AppliedAt = &at
			st.Modified = e.checksum != "" && e.checksum != mig.Checksum
		}
		out = append(out, st)
	}
	return out, nil
}
