package records

import (
	"fmt"
	"sort"
)

// ReferencedIDs collects the distinct identifiers stored in field across rows,
// in first-seen order.
func ReferencedIDs(rows []Record, field string) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range rows {
		id, ok := r.Int64(field)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Embed places the related record under alias on every row that references
// it. Rows whose reference is missing get no alias key.
func Embed(rows []Record, field, alias string, related map[int64]Record) {
	for _, r := range rows {
		id, ok := r.Int64(field)
		if !ok {
			continue
		}
		if rel, ok := related[id]; ok {
			r[alias] = rel.Clone()
		}
	}
}

// ResolveExpand validates an expand request against the table definition and
// returns the relation it follows.
func ResolveExpand(def *TableDef, e Expand) (Relation, error) {
	rel, ok := def.Relation(e.Name)
	if !ok {
		return Relation{}, fmt.Errorf("%s has no relation %q", def.Name, e.Name)
	}
	if e.Alias == "" {
		return Relation{}, fmt.Errorf("expand %q needs an alias", e.Name)
	}
	return rel, nil
}

// Project keeps only the requested fields; an empty list keeps everything.
// The identifier is always retained.
func Project(r Record, fields []string) Record {
	if len(fields) == 0 {
		return r.Clone()
	}
	out := make(Record, len(fields)+1)
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	if v, ok := r[FieldID]; ok {
		out[FieldID] = v
	}
	return out
}

// SortRecords orders rows in place by the given clauses. Rows that cannot be
// compared on a clause keep their relative order.
func SortRecords(rows []Record, orders []Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			c, ok := compareValues(rows[i][o.Field], rows[j][o.Field])
			if !ok || c == 0 {
				continue
			}
			if o.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Page applies limit/offset to an already filtered and sorted slice.
func Page(rows []Record, p *Paging) []Record {
	if p == nil {
		return rows
	}
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > len(rows) {
		return nil
	}
	end := len(rows)
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return rows[start:end]
}
