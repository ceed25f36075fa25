// Package pagination holds the page arithmetic shared by the record API and
// the list pages.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a limit/offset window over a record table.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset (or a 1-based page) from the query.
// An explicit offset wins over page.
func FromContext(c echo.Context) Params {
	limit := clampLimit(atoi(c.QueryParam("limit")))

	offset := atoi(c.QueryParam("offset"))
	if offset <= 0 {
		offset = 0
		if page := atoi(c.QueryParam("page")); page > 1 {
			offset = (page - 1) * limit
		}
	}
	return Params{Limit: limit, Offset: offset}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// ForPage converts a 1-based page number into limit/offset. Unlike
// FromContext the limit is not capped, so the list pages can fetch their
// whole working set in one call.
func ForPage(page, limit int) Params {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		page = 1
	}
	return Params{Limit: limit, Offset: (page - 1) * limit}
}

// Page is the 1-based page the window starts on.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Response is the envelope of a record API list.
type Response[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	HasMore bool `json:"has_more"`
}

// NewResponse wraps one window of rows. A nil slice is sent as [].
func NewResponse[T any](data []T, total int, p Params) *Response[T] {
	if data == nil {
		data = []T{}
	}
	return &Response[T]{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		Page:    p.Page(),
		Pages:   PageCount(total, p.Limit),
		HasMore: p.Offset+len(data) < total,
	}
}

// PageCount returns ceil(total/size). An empty set has zero pages.
func PageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Clamp keeps page within [1, pages]. With zero pages it returns 1.
func Clamp(page, pages int) int {
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Bounds returns the half-open index range [start, end) of a 1-based page
// over total items. The page is clamped first.
func Bounds(page, size, total int) (start, end int) {
	if size <= 0 || total <= 0 {
		return 0, 0
	}
	page = Clamp(page, PageCount(total, size))
	start = (page - 1) * size
	end = start + size
	if end > total {
		end = total
	}
	return start, end
}
