// Package records is the boundary to the record-storage backend. It defines
// the query shape, result envelopes and error taxonomy shared by every
// driver (memory, postgres, remote) and the domain services that call them.
package records

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical backend field names present on every table.
const (
	FieldID        = "Id"
	FieldName      = "Name"
	FieldTags      = "Tags"
	FieldOwner     = "Owner"
	FieldCreatedOn = "CreatedOn"
	FieldIsDeleted = "IsDeleted"
)

// Table names known to the front desk.
const (
	TablePatient     = "patient"
	TableAppointment = "appointment"
)

// Record is a raw row keyed by backend field names.
type Record map[string]any

// Clone returns a shallow copy. Embedded expand records are cloned too.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if nested, ok := v.(Record); ok {
			out[k] = nested.Clone()
			continue
		}
		out[k] = v
	}
	return out
}

// ID returns the canonical identifier, or false when absent or malformed.
func (r Record) ID() (int64, bool) {
	return r.Int64(FieldID)
}

func (r Record) Int64(key string) (int64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	return toInt64(v)
}

func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (r Record) Time(key string) (time.Time, bool) {
	return r.TimeIn(key, time.Local)
}

// TimeIn is Time with zone-less strings read in loc.
func (r Record) TimeIn(key string, loc *time.Location) (time.Time, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return time.Time{}, false
	}
	return toTime(v, loc)
}

// Nested returns an embedded record (an expand alias). JSON-decoded maps are
// accepted as well.
func (r Record) Nested(key string) (Record, bool) {
	switch v := r[key].(type) {
	case Record:
		return v, true
	case map[string]any:
		return Record(v), true
	}
	return nil, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), float64(n) == math.Trunc(float64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// timeLayouts are tried in order when a string carries a timestamp.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func toTime(v any, loc *time.Location) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		return ParseTime(t, loc)
	}
	return time.Time{}, false
}

// ParseTime parses the timestamp forms the backend and the forms produce.
// Layouts without a zone are interpreted in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range timeLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
