// Package listview derives the filtered, sorted and paginated view of an
// in-memory collection. Everything here is recomputed from scratch on each
// request; nothing is cached.
package listview

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediflow/frontdesk/pkg/pagination"
)

// DefaultPageSize is the number of rows per list page.
const DefaultPageSize = 10

// All disables the category filter.
const All = "all"

// Criteria are the user-controlled filter inputs of a list.
type Criteria struct {
	Search   string `query:"q" form:"q"`
	Category string `query:"status" form:"status"`
	From     string `query:"from" form:"from"`
	To       string `query:"to" form:"to"`
}

// Normalize trims the inputs and maps an empty category to All.
func (c Criteria) Normalize() Criteria {
	c.Search = strings.TrimSpace(c.Search)
	c.Category = strings.TrimSpace(c.Category)
	if c.Category == "" {
		c.Category = All
	}
	c.From = strings.TrimSpace(c.From)
	c.To = strings.TrimSpace(c.To)
	return c
}

// Active reports whether any filter narrows the list.
func (c Criteria) Active() bool {
	c = c.Normalize()
	return c.Search != "" || c.Category != All || c.From != "" || c.To != ""
}

// Spec describes how one entity type is searched, filtered and ordered.
type Spec[T any] struct {
	// SearchFields returns the values the free-text search looks in.
	SearchFields func(T) []string
	// Category returns the value compared against Criteria.Category. Nil
	// disables the category filter.
	Category func(T) string
	// Time returns the timestamp used by the date range and the sort. Nil
	// disables both.
	Time func(T) (time.Time, bool)
	// PageSize defaults to DefaultPageSize.
	PageSize int
	// Location interprets the date-range inputs. Defaults to time.Local.
	Location *time.Location
}

func (s Spec[T]) pageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return DefaultPageSize
}

func (s Spec[T]) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.Local
}

// DateRange resolves the From/To inputs. The end bound is the last second of
// its day. Unparseable inputs are treated as unset.
func (s Spec[T]) DateRange(c Criteria) (from, to time.Time, hasFrom, hasTo bool) {
	loc := s.location()
	if c.From != "" {
		if d, err := time.ParseInLocation("2006-01-02", c.From, loc); err == nil {
			from, hasFrom = d, true
		}
	}
	if c.To != "" {
		if d, err := time.ParseInLocation("2006-01-02", c.To, loc); err == nil {
			to, hasTo = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc), true
		}
	}
	return from, to, hasFrom, hasTo
}

// Filter applies search, category and date range in that order and then
// sorts by time when the spec has one. The input is not modified.
func Filter[T any](items []T, spec Spec[T], c Criteria) []T {
	c = c.Normalize()
	needle := strings.ToLower(c.Search)
	from, to, hasFrom, hasTo := spec.DateRange(c)

	out := make([]T, 0, len(items))
	for _, it := range items {
		if needle != "" && spec.SearchFields != nil && !matchesSearch(spec.SearchFields(it), needle) {
			continue
		}
		if c.Category != All && spec.Category != nil && spec.Category(it) != c.Category {
			continue
		}
		if spec.Time != nil && (hasFrom || hasTo) {
			at, ok := spec.Time(it)
			if !ok {
				continue
			}
			if hasFrom && at.Before(from) {
				continue
			}
			if hasTo && at.After(to) {
				continue
			}
		}
		out = append(out, it)
	}

	if spec.Time != nil {
		sort.SliceStable(out, func(i, j int) bool {
			ti, okI := spec.Time(out[i])
			tj, okJ := spec.Time(out[j])
			if okI != okJ {
				return okI
			}
			return ti.Before(tj)
		})
	}
	return out
}

func matchesSearch(fields []string, needle string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Page is one rendered page of a filtered list.
type Page[T any] struct {
	Items     []T
	Page      int
	PageCount int
	Size      int
	// Total is the filtered length, not the collection length.
	Total int
	// From and To are 1-based positions of the first and last row shown.
	From, To int
	// Empty is set when nothing is shown. Filtered tells "no matches for
	// these filters" apart from "no data at all".
	Empty    bool
	Filtered bool
	Criteria Criteria
}

func (p Page[T]) HasPrev() bool { return p.Page > 1 }

func (p Page[T]) HasNext() bool { return p.Page < p.PageCount }

func (p Page[T]) Prev() int { return p.Page - 1 }

func (p Page[T]) Next() int { return p.Page + 1 }

// Pages lists every page number, for rendering the pager.
func (p Page[T]) Pages() []int {
	out := make([]int, p.PageCount)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Paginate slices items into the requested page of the given size.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	n := len(items)
	count := pagination.PageCount(n, size)
	page = pagination.Clamp(page, count)
	start, end := pagination.Bounds(page, size, n)

	p := Page[T]{
		Items:     items[start:end:end],
		Page:      page,
		PageCount: count,
		Size:      size,
		Total:     n,
		Empty:     n == 0,
	}
	if n > 0 {
		p.From, p.To = start+1, end
	}
	return p
}

// Apply filters, sorts and paginates source.
func Apply[T any](source []T, spec Spec[T], c Criteria, page int) Page[T] {
	c = c.Normalize()
	filtered := Filter(source, spec, c)
	p := Paginate(filtered, page, spec.pageSize())
	p.Criteria = c
	p.Filtered = p.Empty && len(source) > 0
	return p
}

// Tracker remembers the last criteria seen per list so the page can be reset
// when they change.
type Tracker struct {
	mu   sync.Mutex
	last map[string]Criteria
}

func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]Criteria)}
}

// Page returns requested when c matches the previous criteria of list and 1
// otherwise, and records c.
func (t *Tracker) Page(list string, c Criteria, requested int) int {
	c = c.Normalize()
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.last[list]
	t.last[list] = c
	if seen && prev != c {
		return 1
	}
	if !seen && c.Active() {
		return 1
	}
	if requested < 1 {
		return 1
	}
	return requested
}

// Reset forgets every list's criteria.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = make(map[string]Criteria)
	t.mu.Unlock()
}
