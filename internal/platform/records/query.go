package records

import (
	"fmt"
	"strings"
	"time"
)

// Operator is a predicate comparison understood by every driver.
type Operator string

const (
	ExactMatch          Operator = "ExactMatch"
	Contains            Operator = "Contains"
	Between             Operator = "Between"
	GreaterThanOrEquals Operator = "GreaterThanOrEquals"
	LessThanOrEquals    Operator = "LessThanOrEquals"
)

// Arity returns the number of values the operator consumes.
func (o Operator) Arity() int {
	if o == Between {
		return 2
	}
	return 1
}

func (o Operator) Valid() bool {
	switch o {
	case ExactMatch, Contains, Between, GreaterThanOrEquals, LessThanOrEquals:
		return true
	}
	return false
}

// Direction of an ORDER BY clause.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

type Predicate struct {
	Field    string
	Operator Operator
	Values   []any
}

type Paging struct {
	Limit  int
	Offset int
}

// Expand embeds the record referenced by Name under Alias.
type Expand struct {
	Name  string
	Alias string
}

type Order struct {
	Field     string
	Direction Direction
}

// Query carries the options of a fetch. The zero value selects every field
// of every row in backend order.
type Query struct {
	Fields  []string
	Paging  *Paging
	Where   []Predicate
	Expands []Expand
	OrderBy []Order
}

// Where builds a predicate.
func Where(field string, op Operator, values ...any) Predicate {
	return Predicate{Field: field, Operator: op, Values: values}
}

// NotDeleted is the soft-delete predicate callers append to every query.
func NotDeleted() Predicate {
	return Where(FieldIsDeleted, ExactMatch, false)
}

// Validate checks operator arity. Field names are checked by the drivers
// against their schema.
func (p Predicate) Validate() error {
	if !p.Operator.Valid() {
		return fmt.Errorf("unsupported operator %q on %s", p.Operator, p.Field)
	}
	if len(p.Values) != p.Operator.Arity() {
		return fmt.Errorf("operator %s on %s takes %d value(s), got %d",
			p.Operator, p.Field, p.Operator.Arity(), len(p.Values))
	}
	return nil
}

// Match evaluates the predicate against a record in memory.
func (p Predicate) Match(r Record) bool {
	v := r[p.Field]
	switch p.Operator {
	case ExactMatch:
		return equalValues(v, p.Values[0])
	case Contains:
		if v == nil {
			return false
		}
		return strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(p.Values[0])))
	case Between:
		lo, ok1 := compareValues(v, p.Values[0])
		hi, ok2 := compareValues(v, p.Values[1])
		return ok1 && ok2 && lo >= 0 && hi <= 0
	case GreaterThanOrEquals:
		c, ok := compareValues(v, p.Values[0])
		return ok && c >= 0
	case LessThanOrEquals:
		c, ok := compareValues(v, p.Values[0])
		return ok && c <= 0
	}
	return false
}

// MatchAll reports whether every predicate matches.
func MatchAll(r Record, preds []Predicate) bool {
	for _, p := range preds {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		// A missing soft-delete flag counts as false.
		if bb, ok := b.(bool); ok && !bb && a == nil {
			return true
		}
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		switch bv := b.(type) {
		case bool:
			return ab == bv
		case string:
			return fmt.Sprint(ab) == strings.ToLower(bv)
		}
		return false
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareValues orders a against b numerically, then as timestamps, then as
// strings. The boolean is false when the values are not comparable.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)
	if !aIsTime && !bIsTime {
		if af, ok := toFloat(a); ok {
			if bf, ok := toFloat(b); ok {
				switch {
				case af < bf:
					return -1, true
				case af > bf:
					return 1, true
				}
				return 0, true
			}
		}
	}
	if at, ok := toTime(a, time.Local); ok {
		if bt, ok := toTime(b, time.Local); ok {
			return at.Compare(bt), true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}
