package web

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/listview"
	"github.com/mediflow/frontdesk/internal/session"
)

// viewParams are the query parameters that change the view of an already
// loaded list. A GET without any of them is a fresh mount and reloads.
var viewParams = []string{"q", "status", "from", "to", "page"}

func mounting(c echo.Context) bool {
	q := c.QueryParams()
	for _, p := range viewParams {
		if _, ok := q[p]; ok {
			return false
		}
	}
	return true
}

func criteriaFromQuery(c echo.Context) listview.Criteria {
	return listview.Criteria{
		Search:   c.QueryParam("q"),
		Category: c.QueryParam("status"),
		From:     c.QueryParam("from"),
		To:       c.QueryParam("to"),
	}.Normalize()
}

func requestedPage(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// criteriaURL encodes crit and page onto path, omitting defaults.
func criteriaURL(path string, crit listview.Criteria, page int, extra ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i+1] != "" {
			v.Set(extra[i], extra[i+1])
		}
	}
	if crit.Search != "" {
		v.Set("q", crit.Search)
	}
	if crit.Category != "" && crit.Category != listview.All {
		v.Set("status", crit.Category)
	}
	if crit.From != "" {
		v.Set("from", crit.From)
	}
	if crit.To != "" {
		v.Set("to", crit.To)
	}
	v.Set("page", strconv.Itoa(page))
	return path + "?" + v.Encode()
}

// flow starts a submission of the form identified by key, guarded per
// session and reporting through the session's toasts.
func (s *Server) flow(sess *session.Session, key string, msgs form.Messages) *form.Flow {
	return &form.Flow{
		Key:      key,
		Guard:    sess.Guard,
		Toasts:   sess.Toasts,
		Logger:   s.logger,
		Messages: msgs,
	}
}

func noValidation() error { return nil }

// formStatus is the status a re-rendered form is sent with.
func formStatus(err error) int {
	return form.HTTPError(err).Code
}
