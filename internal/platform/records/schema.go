package records

import (
	"fmt"
	"time"
)

// ColumnType drives value coercion in drivers that store typed columns.
type ColumnType int

const (
	Text ColumnType = iota
	Int
	Timestamp
	Bool
)

type Column struct {
	Name     string
	Type     ColumnType
	ReadOnly bool
}

// Relation declares that Field holds the identifier of a row in Table.
type Relation struct {
	Field string
	Table string
}

type TableDef struct {
	Name      string
	Columns   []Column
	Relations []Relation
}

func (t *TableDef) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t *TableDef) Relation(field string) (Relation, bool) {
	for _, r := range t.Relations {
		if r.Field == field {
			return r, true
		}
	}
	return Relation{}, false
}

// ColumnNames lists every column in declaration order.
func (t *TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Schema maps table names to their definitions.
type Schema map[string]*TableDef

func (s Schema) Table(name string) (*TableDef, error) {
	t, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

func commonColumns() []Column {
	return []Column{
		{Name: FieldID, Type: Int, ReadOnly: true},
		{Name: FieldName, Type: Text},
		{Name: FieldTags, Type: Text},
		{Name: FieldOwner, Type: Text},
		{Name: FieldCreatedOn, Type: Timestamp, ReadOnly: true},
		{Name: FieldIsDeleted, Type: Bool},
	}
}

// FrontDeskSchema describes the patient and appointment tables.
func FrontDeskSchema() Schema {
	return Schema{
		TablePatient: {
			Name: TablePatient,
			Columns: append(commonColumns(),
				Column{Name: "age", Type: Int},
				Column{Name: "gender", Type: Text},
				Column{Name: "phone", Type: Text},
			),
		},
		TableAppointment: {
			Name: TableAppointment,
			Columns: append(commonColumns(),
				Column{Name: "patient", Type: Int},
				Column{Name: "appointmentDate", Type: Timestamp},
				Column{Name: "status", Type: Text},
				Column{Name: "reason", Type: Text},
			),
			Relations: []Relation{{Field: "patient", Table: TablePatient}},
		},
	}
}

// Coerce converts a loosely typed value (form strings, JSON numbers) into the
// Go type a column stores. nil stays nil.
func Coerce(col Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case Int:
		if s, ok := v.(string); ok && s == "" {
			return nil, nil
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("field %s: %v is not an integer", col.Name, v)
		}
		return n, nil
	case Timestamp:
		if s, ok := v.(string); ok && s == "" {
			return nil, nil
		}
		t, ok := toTime(v, time.Local)
		if !ok {
			return nil, fmt.Errorf("field %s: %v is not a timestamp", col.Name, v)
		}
		return t.UTC(), nil
	case Bool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return b == "true" || b == "1", nil
		}
		return nil, fmt.Errorf("field %s: %v is not a boolean", col.Name, v)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339), nil
	}
	return fmt.Sprint(v), nil
}

// Normalize checks a write against the table definition and coerces every
// value. Read-only columns are dropped except the identifier when keepID is
// set (updates address rows through it).
func (t *TableDef) Normalize(rec Record, keepID bool) (Record, error) {
	out := make(Record, len(rec))
	for k, v := range rec {
		col, ok := t.Column(k)
		if !ok {
			return nil, fmt.Errorf("unknown field %q on %s", k, t.Name)
		}
		if col.ReadOnly && !(keepID && k == FieldID) {
			continue
		}
		cv, err := Coerce(col, v)
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	return out, nil
}
