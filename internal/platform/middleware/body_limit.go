package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// DefaultBodyLimit fits any patient or appointment form with room to spare.
const DefaultBodyLimit = 64 << 10

// BodyLimit caps request bodies at limit bytes (see ParseSize). A declared
// Content-Length over the cap is rejected before the handler runs; a body
// without one fails with 413 once the reader crosses the cap.
func BodyLimit(limit string) echo.MiddlewareFunc {
	capBytes := ParseSize(limit, DefaultBodyLimit)
	msg := fmt.Sprintf("Request body exceeds %s", humanSize(capBytes))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > capBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, msg)
			}
			req.Body = &cappedBody{ReadCloser: req.Body, left: capBytes, msg: msg}
			return next(c)
		}
	}
}

type cappedBody struct {
	io.ReadCloser
	left int64
	msg  string
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.left < 0 {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, b.msg)
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, b.msg)
	}
	return n, err
}

// ParseSize reads sizes like "64K", "1M" or "2048". Anything unparseable
// yields def.
func ParseSize(s string, def int64) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, strings.TrimSuffix(s, "M")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n * mult
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return strconv.FormatInt(n>>20, 10) + " MB"
	case n >= 1<<10 && n%(1<<10) == 0:
		return strconv.FormatInt(n>>10, 10) + " KB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
