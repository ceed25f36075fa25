// Package form implements the validate-then-submit flow shared by the
// patient and appointment editors.
package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

// InvalidMessage is toasted when local validation fails.
const InvalidMessage = "Please fix the form errors"

// Errors maps a field name to its first validation message.
type Errors map[string]string

// Add records msg for field unless the field already has an error.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Err returns a *ValidationError, or nil when there are no errors.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return &ValidationError{Fields: e}
}

// ValidationError carries every field error found in one pass.
type ValidationError struct {
	Fields Errors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldErrors extracts the field map from err, or nil.
func FieldErrors(err error) Errors {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// Value is a form field that binds from a form post or from a JSON string,
// number or null.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*v = Value(n.String())
	return nil
}

func (v Value) String() string { return string(v) }

// Trimmed returns the value without surrounding whitespace.
func (v Value) Trimmed() string { return strings.TrimSpace(string(v)) }

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

type State int

const (
	Idle State = iota
	Validating
	Invalid
	Submitting
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Invalid:
		return "invalid"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[State][]State{
	Idle:       {Validating},
	Validating: {Invalid, Submitting},
	Invalid:    {Validating},
	Submitting: {Success, Failure},
	Failure:    {Idle},
	Success:    {},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Guard
// ---------------------------------------------------------------------------

var ErrSubmitInProgress = errors.New("a submission for this form is already in progress")

// Guard allows one in-flight submission per key.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// Acquire reserves key. The returned release must be called once the
// submission settles.
func (g *Guard) Acquire(key string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return nil, ErrSubmitInProgress
	}
	g.inflight[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports whether key has a submission in flight.
func (g *Guard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inflight[key]
	return busy
}

// ---------------------------------------------------------------------------
// Flow
// ---------------------------------------------------------------------------

// Toaster receives the user-facing outcome of a submission.
type Toaster interface {
	Success(message string)
	Error(message string)
}

// Messages are the toasts of one form action.
type Messages struct {
	Success  string // "Patient created successfully"
	Rejected string // fallback when the backend refuses without a message
	Failed   string // fallback when the call itself fails without a message
}

// Flow is one submission of a form instance.
type Flow struct {
	Key      string
	Guard    *Guard
	Toasts   Toaster
	Logger   zerolog.Logger
	Messages Messages

	state State
	trail []State
	errs  Errors
}

func (f *Flow) State() State { return f.state }

// Trail lists every state entered, starting from Idle.
func (f *Flow) Trail() []State {
	return append([]State{Idle}, f.trail...)
}

// Errors returns the field errors of the last validation.
func (f *Flow) Errors() Errors { return f.errs }

func (f *Flow) to(s State) {
	if !canTransition(f.state, s) {
		panic(fmt.Sprintf("form: illegal transition %s -> %s", f.state, s))
	}
	f.state = s
	f.trail = append(f.trail, s)
}

// Run validates and, when valid, submits. The submit function is never
// called for invalid input or while another submission with the same key is
// in flight. A failed submission returns the flow to Idle with the error.
func Run[T any](ctx context.Context, f *Flow, validate func() error, submit func(context.Context) (T, error)) (T, error) {
	var zero T

	if f.Guard != nil {
		release, err := f.Guard.Acquire(f.Key)
		if err != nil {
			return zero, err
		}
		defer release()
	}

	f.to(Validating)
	if err := validate(); err != nil {
		f.errs = FieldErrors(err)
		f.to(Invalid)
		f.toastError(InvalidMessage)
		return zero, err
	}
	f.errs = nil

	f.to(Submitting)
	out, err := submit(ctx)
	if err != nil {
		f.to(Failure)
		f.toastError(f.failureMessage(err))
		f.to(Idle)
		return zero, err
	}
	f.to(Success)
	if f.Toasts != nil && f.Messages.Success != "" {
		f.Toasts.Success(f.Messages.Success)
	}
	return out, nil
}

func (f *Flow) failureMessage(err error) string {
	msg := records.Message(err)
	if records.IsRejected(err) {
		if msg == "" {
			msg = f.Messages.Rejected
		}
		f.Logger.Warn().Err(err).Str("form", f.Key).Msg("submission rejected")
		return msg
	}
	f.Logger.Error().Err(err).Str("form", f.Key).Msg("submission failed")
	if msg == "" {
		msg = f.Messages.Failed
	}
	return msg
}

func (f *Flow) toastError(msg string) {
	if f.Toasts != nil && msg != "" {
		f.Toasts.Error(msg)
	}
}
