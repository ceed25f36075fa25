package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is a snapshot of the record store pool.
type PoolStats struct {
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	AcquireWait   string `json:"acquire_wait"`
}

func statsOf(pool *pgxpool.Pool) *PoolStats {
	s := pool.Stat()
	return &PoolStats{
		TotalConns:    s.TotalConns(),
		IdleConns:     s.IdleConns(),
		AcquiredConns: s.AcquiredConns(),
		MaxConns:      s.MaxConns(),
		AcquireWait:   s.AcquireDuration().String(),
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealth is the body of GET /health/db.
type StoreHealth struct {
	Status  string     `json:"status"`
	Backend string     `json:"backend"`
	Latency string     `json:"latency,omitempty"`
	Error   string     `json:"error,omitempty"`
	Pool    *PoolStats `json:"pool,omitempty"`
}

const pingTimeout = 5 * time.Second

// HealthHandler reports whether the record store answers. The memory and
// remote backends pass a nil pinger and are reported healthy; the remote API
// is probed by the pages themselves.
func HealthHandler(p Pinger, backend string) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := StoreHealth{Status: "healthy", Backend: backend}
		if p == nil {
			return c.JSON(http.StatusOK, h)
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		start := time.Now()
		err := p.Ping(ctx)
		h.Latency = time.Since(start).Round(time.Microsecond).String()
		if pool, ok := p.(*pgxpool.Pool); ok {
			h.Pool = statsOf(pool)
		}
		if err != nil {
			h.Status = "unhealthy"
			h.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, h)
		}
		return c.JSON(http.StatusOK, h)
	}
}
