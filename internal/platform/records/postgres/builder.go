package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columnList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}

// escapeLike escapes LIKE metacharacters so Contains is a literal substring
// match.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// selectQuery holds the statements for one FetchMany call.
type selectQuery struct {
	SQL       string
	Args      []any
	CountSQL  string
	CountArgs []any
}

// buildSelect renders a Query into parameterized SQL. Every field name is
// checked against the table definition before it reaches the statement.
func buildSelect(def *records.TableDef, q records.Query) (*selectQuery, error) {
	cols := def.ColumnNames()
	if len(q.Fields) > 0 {
		cols = cols[:0:0]
		hasID := false
		for _, f := range q.Fields {
			if _, ok := def.Column(f); !ok {
				return nil, fmt.Errorf("unknown field %q", f)
			}
			if f == records.FieldID {
				hasID = true
			}
			cols = append(cols, f)
		}
		if !hasID {
			cols = append([]string{records.FieldID}, cols...)
		}
	}

	where, args, err := buildWhere(def, q.Where, 1)
	if err != nil {
		return nil, err
	}

	from := ` FROM ` + ident(def.Name) + where
	sq := &selectQuery{
		CountSQL:  `SELECT COUNT(*)` + from,
		CountArgs: append([]any(nil), args...),
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + columnList(cols) + from)

	if len(q.OrderBy) > 0 {
		parts := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			if _, ok := def.Column(o.Field); !ok {
				return nil, fmt.Errorf("unknown order field %q", o.Field)
			}
			dir := "ASC"
			if o.Direction == records.Desc {
				dir = "DESC"
			}
			parts = append(parts, ident(o.Field)+" "+dir)
		}
		b.WriteString(` ORDER BY ` + strings.Join(parts, ", "))
	} else {
		b.WriteString(` ORDER BY ` + ident(records.FieldID) + ` ASC`)
	}

	if q.Paging != nil {
		idx := len(args) + 1
		if q.Paging.Limit > 0 {
			b.WriteString(fmt.Sprintf(` LIMIT $%d`, idx))
			args = append(args, q.Paging.Limit)
			idx++
		}
		if q.Paging.Offset > 0 {
			b.WriteString(fmt.Sprintf(` OFFSET $%d`, idx))
			args = append(args, q.Paging.Offset)
		}
	}

	sq.SQL = b.String()
	sq.Args = args
	return sq, nil
}

// buildWhere renders predicates starting at placeholder $start.
func buildWhere(def *records.TableDef, preds []records.Predicate, start int) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}
	idx := start
	var args []any
	clauses := make([]string, 0, len(preds))
	for _, p := range preds {
		if err := p.Validate(); err != nil {
			return "", nil, err
		}
		col, ok := def.Column(p.Field)
		if !ok {
			return "", nil, fmt.Errorf("unknown field %q", p.Field)
		}
		name := ident(col.Name)

		if p.Operator == records.Contains {
			clauses = append(clauses, fmt.Sprintf(`%s::text ILIKE '%%' || $%d || '%%'`, name, idx))
			args = append(args, escapeLike(fmt.Sprint(p.Values[0])))
			idx++
			continue
		}

		vals := make([]any, len(p.Values))
		for i, v := range p.Values {
			cv, err := records.Coerce(col, v)
			if err != nil {
				return "", nil, err
			}
			vals[i] = cv
		}

		switch p.Operator {
		case records.ExactMatch:
			if col.Name == records.FieldIsDeleted {
				// Rows written before the flag existed carry NULL.
				clauses = append(clauses, fmt.Sprintf(`COALESCE(%s, false) = $%d`, name, idx))
			} else {
				clauses = append(clauses, fmt.Sprintf(`%s = $%d`, name, idx))
			}
		case records.Between:
			clauses = append(clauses, fmt.Sprintf(`%s BETWEEN $%d AND $%d`, name, idx, idx+1))
		case records.GreaterThanOrEquals:
			clauses = append(clauses, fmt.Sprintf(`%s >= $%d`, name, idx))
		case records.LessThanOrEquals:
			clauses = append(clauses, fmt.Sprintf(`%s <= $%d`, name, idx))
		}
		args = append(args, vals...)
		idx += len(vals)
	}
	return ` WHERE ` + strings.Join(clauses, ` AND `), args, nil
}

// buildInsert renders an INSERT for a normalized record.
func buildInsert(def *records.TableDef, rec records.Record) (string, []any) {
	names := sortedKeys(rec)
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[n]
	}
	sql := `INSERT INTO ` + ident(def.Name)
	if len(names) == 0 {
		sql += ` DEFAULT VALUES`
	} else {
		sql += ` (` + columnList(names) + `) VALUES (` + strings.Join(placeholders, ", ") + `)`
	}
	return sql + ` RETURNING ` + columnList(def.ColumnNames()), args
}

// buildUpdate renders an UPDATE addressed by the record's Id. ok is false
// when there is nothing to set.
func buildUpdate(def *records.TableDef, rec records.Record) (string, []any, bool) {
	id, _ := rec.ID()
	args := []any{id}
	var sets []string
	for _, n := range sortedKeys(rec) {
		if n == records.FieldID {
			continue
		}
		args = append(args, rec[n])
		sets = append(sets, fmt.Sprintf(`%s = $%d`, ident(n), len(args)))
	}
	if len(sets) == 0 {
		return "", nil, false
	}
	return `UPDATE ` + ident(def.Name) + ` SET ` + strings.Join(sets, ", ") +
		` WHERE ` + ident(records.FieldID) + ` = $1 AND NOT ` + ident(records.FieldIsDeleted) +
		` RETURNING ` + columnList(def.ColumnNames()), args, true
}

// buildSoftDelete flags live rows as deleted. ids are de-duplicated so the
// affected row count can be compared against the returned length.
func buildSoftDelete(def *records.TableDef, ids []int64) (string, []int64) {
	seen := make(map[int64]bool, len(ids))
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	return `UPDATE ` + ident(def.Name) + ` SET ` + ident(records.FieldIsDeleted) + ` = true WHERE ` +
		ident(records.FieldID) + ` = ANY($1) AND NOT ` + ident(records.FieldIsDeleted), uniq
}

func sortedKeys(rec records.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
