// Package memory is an in-process record store. It backs the development
// server, the demo seeder and the tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

type table struct {
	def    *records.TableDef
	nextID int64
	rows   []records.Record
}

type Gateway struct {
	mu     sync.RWMutex
	tables map[string]*table
	now    func() time.Time
}

func New(schema records.Schema) *Gateway {
	g := &Gateway{tables: make(map[string]*table), now: time.Now}
	for name, def := range schema {
		g.tables[name] = &table{def: def, nextID: 1}
	}
	return g
}

// SetClock overrides the CreatedOn source.
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

func (g *Gateway) table(op, name string) (*table, error) {
	t, ok := g.tables[name]
	if !ok {
		return nil, &records.RemoteError{Op: op, Table: name, Message: "unknown table"}
	}
	return t, nil
}

func validateQuery(op string, t *table, q records.Query) error {
	for _, p := range q.Where {
		if err := p.Validate(); err != nil {
			return &records.RemoteError{Op: op, Table: t.def.Name, Message: err.Error()}
		}
		if _, ok := t.def.Column(p.Field); !ok {
			return &records.RemoteError{Op: op, Table: t.def.Name, Message: fmt.Sprintf("unknown field %q", p.Field)}
		}
	}
	for _, o := range q.OrderBy {
		if _, ok := t.def.Column(o.Field); !ok {
			return &records.RemoteError{Op: op, Table: t.def.Name, Message: fmt.Sprintf("unknown order field %q", o.Field)}
		}
	}
	return nil
}

func (g *Gateway) FetchMany(ctx context.Context, name string, q records.Query) (*records.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &records.RemoteError{Op: "fetch", Table: name, Err: err}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, err := g.table("fetch", name)
	if err != nil {
		return nil, err
	}
	if err := validateQuery("fetch", t, q); err != nil {
		return nil, err
	}

	var matched []records.Record
	for _, r := range t.rows {
		if records.MatchAll(r, q.Where) {
			matched = append(matched, r)
		}
	}
	records.SortRecords(matched, q.OrderBy)
	total := len(matched)

	page := records.Page(matched, q.Paging)
	out := make([]records.Record, len(page))
	for i, r := range page {
		out[i] = records.Project(r, q.Fields)
	}
	if err := g.expand("fetch", t, out, q.Expands); err != nil {
		return nil, err
	}
	return &records.FetchResult{Data: out, Count: total}, nil
}

func (g *Gateway) FetchOne(ctx context.Context, name string, id int64, q records.Query) (records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &records.RemoteError{Op: "fetch", Table: name, Err: err}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, err := g.table("fetch", name)
	if err != nil {
		return nil, err
	}
	if err := validateQuery("fetch", t, q); err != nil {
		return nil, err
	}
	idx := t.index(id)
	if idx < 0 || !records.MatchAll(t.rows[idx], q.Where) {
		return nil, &records.NotFoundError{Table: name, ID: id}
	}
	out := []records.Record{records.Project(t.rows[idx], q.Fields)}
	if err := g.expand("fetch", t, out, q.Expands); err != nil {
		return nil, err
	}
	return out[0], nil
}

// expand must be called with the read lock held.
func (g *Gateway) expand(op string, t *table, rows []records.Record, expands []records.Expand) error {
	for _, e := range expands {
		rel, err := records.ResolveExpand(t.def, e)
		if err != nil {
			return &records.RemoteError{Op: op, Table: t.def.Name, Message: err.Error()}
		}
		target, ok := g.tables[rel.Table]
		if !ok {
			return &records.RemoteError{Op: op, Table: rel.Table, Message: "unknown table"}
		}
		related := make(map[int64]records.Record)
		for _, id := range records.ReferencedIDs(rows, rel.Field) {
			if idx := target.live(id); idx >= 0 {
				related[id] = target.rows[idx]
			}
		}
		records.Embed(rows, rel.Field, e.Alias, related)
	}
	return nil
}

func (t *table) index(id int64) int {
	for i, r := range t.rows {
		if rid, ok := r.ID(); ok && rid == id {
			return i
		}
	}
	return -1
}

// live is index restricted to rows that are not soft-deleted.
func (t *table) live(id int64) int {
	idx := t.index(id)
	if idx < 0 || t.rows[idx].Bool(records.FieldIsDeleted) {
		return -1
	}
	return idx
}

func (g *Gateway) CreateMany(ctx context.Context, name string, recs []records.Record) (*records.MutationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &records.RemoteError{Op: "create", Table: name, Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	t, err := g.table("create", name)
	if err != nil {
		return nil, err
	}
	now := g.now().UTC()
	return records.Mutate(recs, func(rec records.Record) (records.Record, error) {
		row, err := t.def.Normalize(rec, false)
		if err != nil {
			return nil, err
		}
		row[records.FieldID] = t.nextID
		row[records.FieldCreatedOn] = now
		if _, ok := row[records.FieldIsDeleted]; !ok {
			row[records.FieldIsDeleted] = false
		}
		t.nextID++
		t.rows = append(t.rows, row)
		return row.Clone(), nil
	}), nil
}

func (g *Gateway) UpdateMany(ctx context.Context, name string, recs []records.Record) (*records.MutationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &records.RemoteError{Op: "update", Table: name, Err: err}
	}
	for _, rec := range recs {
		if _, ok := rec.ID(); !ok {
			return nil, &records.RemoteError{Op: "update", Table: name, Err: records.ErrMissingID}
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	t, err := g.table("update", name)
	if err != nil {
		return nil, err
	}
	return records.Mutate(recs, func(rec records.Record) (records.Record, error) {
		patch, err := t.def.Normalize(rec, true)
		if err != nil {
			return nil, err
		}
		id, _ := patch.ID()
		idx := t.live(id)
		if idx < 0 {
			return nil, fmt.Errorf("record %d not found", id)
		}
		row := t.rows[idx].Clone()
		for k, v := range patch {
			row[k] = v
		}
		t.rows[idx] = row
		return row.Clone(), nil
	}), nil
}

// DeleteMany soft-deletes rows by flagging IsDeleted. Nothing changes unless
// every id names a live row.
func (g *Gateway) DeleteMany(ctx context.Context, name string, ids []int64) (*records.DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &records.RemoteError{Op: "delete", Table: name, Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	t, err := g.table("delete", name)
	if err != nil {
		return nil, err
	}
	var missing []int64
	for _, id := range ids {
		if t.live(id) < 0 {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &records.DeleteResult{Success: false, Message: fmt.Sprintf("records not found: %v", missing)}, nil
	}
	for _, id := range ids {
		idx := t.index(id)
		row := t.rows[idx].Clone()
		row[records.FieldIsDeleted] = true
		t.rows[idx] = row
	}
	return &records.DeleteResult{Success: true}, nil
}

var _ records.Gateway = (*Gateway)(nil)
