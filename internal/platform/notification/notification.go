// Package notification provides the transient toast messages shown to a
// front-desk user, a per-session FIFO queue and the Echo handler that drains
// it.
package notification

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Toast Types
// ---------------------------------------------------------------------------

// Kind selects the styling of a toast.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Toast is a single transient message.
type Toast struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

// DefaultLimit bounds the number of undelivered toasts kept per queue.
const DefaultLimit = 20

// Queue is a bounded FIFO of toasts waiting to be rendered. When full, the
// oldest toast is dropped.
type Queue struct {
	mu    sync.Mutex
	items []Toast
	limit int
	now   func() time.Time
}

// NewQueue creates an empty queue holding at most DefaultLimit toasts.
func NewQueue() *Queue {
	return &Queue{limit: DefaultLimit, now: time.Now}
}

// Push appends a toast and returns it.
func (q *Queue) Push(kind Kind, message string) Toast {
	t := Toast{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   message,
		CreatedAt: q.now().UTC(),
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
	if over := len(q.items) - q.limit; over > 0 {
		q.items = append([]Toast(nil), q.items[over:]...)
	}
	return t
}

func (q *Queue) Success(message string) { q.Push(KindSuccess, message) }

func (q *Queue) Error(message string) { q.Push(KindError, message) }

func (q *Queue) Info(message string) { q.Push(KindInfo, message) }

// Drain removes and returns every pending toast in arrival order.
func (q *Queue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		return []Toast{}
	}
	return out
}

// Pending returns a copy of the queue without consuming it.
func (q *Queue) Pending() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Toast(nil), q.items...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ---------------------------------------------------------------------------
// Echo Handler
// ---------------------------------------------------------------------------

// Handler serves the pending toasts of the queue resolved for the request
// and empties it.
type Handler struct {
	queueFor func(c echo.Context) *Queue
}

// NewHandler creates a Handler. queueFor returns nil when the request has no
// queue (no session).
func NewHandler(queueFor func(c echo.Context) *Queue) *Handler {
	return &Handler{queueFor: queueFor}
}

// RegisterRoutes mounts GET /toasts on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/toasts", h.Drain)
}

func (h *Handler) Drain(c echo.Context) error {
	q := h.queueFor(c)
	if q == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"toasts": q.Drain(),
	})
}
