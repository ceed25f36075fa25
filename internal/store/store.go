// Package store holds the per-session collection state for patients and
// appointments. Every transition runs under the slice's mutex, so a reader
// never observes a half-applied change.
package store

import (
	"sync"

	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/domain/patient"
)

// Entity is anything addressable by its backend identifier.
type Entity interface {
	GetID() int64
}

// State is an immutable copy of a slice handed to views.
type State[T Entity] struct {
	Items    []T
	Selected *T
	Loading  bool
	Error    string
	Total    int
	Loaded   bool
}

// Slice is the collection state of one entity type.
type Slice[T Entity] struct {
	mu         sync.Mutex
	items      []T
	selectedID int64
	hasSel     bool
	loading    bool
	err        string
	total      int
	loaded     bool
}

// FetchStart marks a load in flight and clears any previous error.
func (s *Slice[T]) FetchStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	s.err = ""
}

// FetchSuccess replaces the collection. A zero count falls back to the
// number of items received.
func (s *Slice[T]) FetchSuccess(items []T, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]T(nil), items...)
	if count == 0 {
		count = len(items)
	}
	s.total = count
	s.loading = false
	s.err = ""
	s.loaded = true
}

// FetchFailure records msg and leaves the collection as it was.
func (s *Slice[T]) FetchFailure(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = msg
}

// SetSelected stores a weak reference; it may name an id that is not loaded.
func (s *Slice[T]) SetSelected(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = id
	s.hasSel = true
}

func (s *Slice[T]) ClearSelected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = 0
	s.hasSel = false
}

// Add appends item.
func (s *Slice[T]) Add(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	s.total++
}

// Update replaces the item with the same id in place. Unknown ids are
// ignored.
func (s *Slice[T]) Update(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := item.GetID()
	for i := range s.items {
		if s.items[i].GetID() == id {
			s.items[i] = item
			return
		}
	}
}

// Delete removes the item and clears a selection pointing at it. The total
// only drops when the item was present.
func (s *Slice[T]) Delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasSel && s.selectedID == id {
		s.selectedID = 0
		s.hasSel = false
	}
	for i := range s.items {
		if s.items[i].GetID() == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			if s.total > 0 {
				s.total--
			}
			return
		}
	}
}

// Clear resets the slice to its initial state.
func (s *Slice[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.selectedID = 0
	s.hasSel = false
	s.loading = false
	s.err = ""
	s.total = 0
	s.loaded = false
}

func (s *Slice[T]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State[T]{
		Items:   append([]T(nil), s.items...),
		Loading: s.loading,
		Error:   s.err,
		Total:   s.total,
		Loaded:  s.loaded,
	}
	if sel, ok := s.lookupLocked(); ok {
		st.Selected = &sel
	}
	return st
}

// Selected resolves the selection against the current items.
func (s *Slice[T]) Selected() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked()
}

// SelectedID returns the raw selection, which may dangle.
func (s *Slice[T]) SelectedID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID, s.hasSel
}

// Find returns the loaded item with id.
func (s *Slice[T]) Find(id int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.GetID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func (s *Slice[T]) lookupLocked() (T, bool) {
	var zero T
	if !s.hasSel {
		return zero, false
	}
	for _, it := range s.items {
		if it.GetID() == s.selectedID {
			return it, true
		}
	}
	return zero, false
}

// Store bundles the two slices owned by a session.
type Store struct {
	Patients     Slice[patient.Patient]
	Appointments Slice[appointment.Appointment]
}

func New() *Store {
	return &Store{}
}

// Clear empties both slices.
func (s *Store) Clear() {
	s.Patients.Clear()
	s.Appointments.Clear()
}
