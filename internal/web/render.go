package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/platform/auth"
	"github.com/mediflow/frontdesk/internal/platform/notification"
	"github.com/mediflow/frontdesk/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// DisplayLayout is how appointment times are shown.
const DisplayLayout = "Jan 2, 2006 - 3:04 PM"

// shared templates parsed into every page.
var shared = []string{"templates/layout.html", "templates/partials.html"}

// Renderer implements echo.Renderer over the embedded page templates. Each
// page is parsed together with the layout so their blocks never collide.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	funcs := template.FuncMap{
		"icon": Icon,
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return "Invalid date"
			}
			return t.In(loc).Format(DisplayLayout)
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(loc).Format("Jan 2, 2006")
		},
		"statusClass": func(s appointment.Status) string {
			switch s {
			case appointment.StatusScheduled, appointment.StatusCompleted, appointment.StatusCancelled:
				return "badge badge-" + string(s)
			}
			return "badge"
		},
		"statusIcon": func(s appointment.Status) template.HTML {
			switch s {
			case appointment.StatusCompleted:
				return Icon("CheckCircle")
			case appointment.StatusCancelled:
				return Icon("XCircle")
			}
			return Icon("Clock")
		},
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"query": func(path string, kv ...string) string {
			v := url.Values{}
			for i := 0; i+1 < len(kv); i += 2 {
				if kv[i+1] != "" {
					v.Set(kv[i], kv[i+1])
				}
			}
			if len(v) == 0 {
				return path
			}
			return path + "?" + v.Encode()
		},
		"itoa": strconv.Itoa,
		"i64":  func(n int64) string { return strconv.FormatInt(n, 10) },
	}

	entries, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, path := range entries {
		name := strings.TrimPrefix(path, "templates/")
		if isShared(path) {
			continue
		}
		files := append(append([]string(nil), shared...), path)
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, files...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func isShared(path string) bool {
	for _, s := range shared {
		if s == path {
			return true
		}
	}
	return false
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// Page is the data every template receives.
type Page struct {
	Title string
	// Nav marks the active navigation entry.
	Nav    string
	Theme  string
	User   *auth.User
	Toasts []notification.Toast
	// Bare pages (sign-in screens) render without the navigation shell.
	Bare    bool
	Version string
	Data    any
}

// render fills the per-request fields of p and draws the named page. Pending
// toasts are drained into it.
func (s *Server) render(c echo.Context, code int, name string, p Page) error {
	p.Theme = ThemeFor(c)
	p.Version = s.version
	if sess := session.FromContext(c); sess != nil {
		p.User = sess.User()
		p.Toasts = sess.Toasts.Drain()
	}
	return c.Render(code, name, p)
}
