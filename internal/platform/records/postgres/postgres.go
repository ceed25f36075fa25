// Package postgres stores front-desk records in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Gateway struct {
	db     queryable
	schema records.Schema
}

func New(pool *pgxpool.Pool, schema records.Schema) *Gateway {
	return &Gateway{db: pool, schema: schema}
}

func remoteErr(op, table string, err error) error {
	return &records.RemoteError{Op: op, Table: table, Err: err}
}

func (g *Gateway) FetchMany(ctx context.Context, table string, q records.Query) (*records.FetchResult, error) {
	def, err := g.schema.Table(table)
	if err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	sq, err := buildSelect(def, q)
	if err != nil {
		return nil, remoteErr("fetch", table, err)
	}

	var total int
	if err := g.db.QueryRow(ctx, sq.CountSQL, sq.CountArgs...).Scan(&total); err != nil {
		return nil, remoteErr("fetch", table, fmt.Errorf("count: %w", err))
	}

	data, err := g.queryRecords(ctx, sq.SQL, sq.Args...)
	if err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	if err := g.expand(ctx, def, data, q.Expands); err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	return &records.FetchResult{Data: data, Count: total}, nil
}

func (g *Gateway) FetchOne(ctx context.Context, table string, id int64, q records.Query) (records.Record, error) {
	def, err := g.schema.Table(table)
	if err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	q.Where = append([]records.Predicate{records.Where(records.FieldID, records.ExactMatch, id)}, q.Where...)
	q.Paging = &records.Paging{Limit: 1}
	q.OrderBy = nil
	sq, err := buildSelect(def, q)
	if err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	data, err := g.queryRecords(ctx, sq.SQL, sq.Args...)
	if err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	if len(data) == 0 {
		return nil, &records.NotFoundError{Table: table, ID: id}
	}
	if err := g.expand(ctx, def, data, q.Expands); err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	return data[0], nil
}

func (g *Gateway) expand(ctx context.Context, def *records.TableDef, rows []records.Record, expands []records.Expand) error {
	for _, e := range expands {
		rel, err := records.ResolveExpand(def, e)
		if err != nil {
			return err
		}
		target, err := g.schema.Table(rel.Table)
		if err != nil {
			return err
		}
		ids := records.ReferencedIDs(rows, rel.Field)
		if len(ids) == 0 {
			continue
		}
		related, err := g.queryRecords(ctx,
			`SELECT `+columnList(target.ColumnNames())+` FROM `+ident(target.Name)+
				` WHERE `+ident(records.FieldID)+` = ANY($1) AND NOT `+ident(records.FieldIsDeleted), ids)
		if err != nil {
			return fmt.Errorf("expand %s: %w", e.Name, err)
		}
		byID := make(map[int64]records.Record, len(related))
		for _, r := range related {
			if id, ok := r.ID(); ok {
				byID[id] = r
			}
		}
		records.Embed(rows, rel.Field, e.Alias, byID)
	}
	return nil
}

func (g *Gateway) CreateMany(ctx context.Context, table string, recs []records.Record) (*records.MutationResult, error) {
	def, err := g.schema.Table(table)
	if err != nil {
		return nil, remoteErr("create", table, err)
	}
	var fatal error
	res := records.Mutate(recs, func(rec records.Record) (records.Record, error) {
		row, err := def.Normalize(rec, false)
		if err != nil {
			return nil, err
		}
		sql, args := buildInsert(def, row)
		out, err := g.queryRecords(ctx, sql, args...)
		if err != nil {
			if isConnErr(err) && fatal == nil {
				fatal = err
			}
			return nil, err
		}
		if len(out) == 0 {
			return nil, errors.New("insert returned no row")
		}
		return out[0], nil
	})
	if fatal != nil {
		return nil, remoteErr("create", table, fatal)
	}
	return res, nil
}

func (g *Gateway) UpdateMany(ctx context.Context, table string, recs []records.Record) (*records.MutationResult, error) {
	def, err := g.schema.Table(table)
	if err != nil {
		return nil, remoteErr("update", table, err)
	}
	for _, rec := range recs {
		if _, ok := rec.ID(); !ok {
			return nil, remoteErr("update", table, records.ErrMissingID)
		}
	}
	var fatal error
	res := records.Mutate(recs, func(rec records.Record) (records.Record, error) {
		patch, err := def.Normalize(rec, true)
		if err != nil {
			return nil, err
		}
		sql, args, ok := buildUpdate(def, patch)
		if !ok {
			id, _ := patch.ID()
			return g.FetchOne(ctx, table, id, records.Query{Where: []records.Predicate{records.NotDeleted()}})
		}
		out, err := g.queryRecords(ctx, sql, args...)
		if err != nil {
			if isConnErr(err) && fatal == nil {
				fatal = err
			}
			return nil, err
		}
		if len(out) == 0 {
			id, _ := patch.ID()
			return nil, fmt.Errorf("record %d not found", id)
		}
		return out[0], nil
	})
	if fatal != nil {
		return nil, remoteErr("update", table, fatal)
	}
	return res, nil
}

// DeleteMany soft-deletes rows in one transaction. The batch is rolled back
// unless every distinct id names a live row.
func (g *Gateway) DeleteMany(ctx context.Context, table string, ids []int64) (res *records.DeleteResult, err error) {
	def, err := g.schema.Table(table)
	if err != nil {
		return nil, remoteErr("delete", table, err)
	}
	sql, uniq := buildSoftDelete(def, ids)
	tx, err := g.db.Begin(ctx)
	if err != nil {
		return nil, remoteErr("delete", table, err)
	}
	defer func() {
		if res == nil || !res.Success {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, sql, uniq)
	if err != nil {
		return nil, remoteErr("delete", table, err)
	}
	if n := tag.RowsAffected(); int(n) != len(uniq) {
		return &records.DeleteResult{
			Success: false,
			Message: fmt.Sprintf("%d of %d records not found", len(uniq)-int(n), len(uniq)),
		}, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, remoteErr("delete", table, err)
	}
	return &records.DeleteResult{Success: true}, nil
}

// queryRecords runs sql and drains the rows into records keyed by column
// name.
func (g *Gateway) queryRecords(ctx context.Context, sql string, args ...any) ([]records.Record, error) {
	rows, err := g.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out []records.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(records.Record, len(fields))
		for i, f := range fields {
			rec[f.Name] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// isConnErr separates transport failures from per-row constraint errors.
func isConnErr(err error) bool {
	var pgErr *pgconn.PgError
	return !errors.As(err, &pgErr)
}

var _ records.Gateway = (*Gateway)(nil)
