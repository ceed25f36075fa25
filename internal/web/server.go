// Package web serves the front-desk screens: sign-in pages, the dashboard,
// and the patient and appointment lists with their forms.
package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/domain/patient"
	"github.com/mediflow/frontdesk/internal/listview"
	"github.com/mediflow/frontdesk/internal/platform/auth"
	"github.com/mediflow/frontdesk/internal/platform/notification"
	"github.com/mediflow/frontdesk/internal/session"
)

// Deps are the collaborators of the web layer.
type Deps struct {
	Patients     *patient.Service
	Appointments *appointment.Service
	Sessions     *session.Manager
	Identity     auth.IdentityProvider
	Logger       zerolog.Logger

	// PageSize rows are shown per list page.
	PageSize int
	// FetchLimit caps how many rows one list load pulls from the backend.
	FetchLimit int
	// WidgetURL is the hosted sign-in script, external mode only.
	WidgetURL string
	ClientID  string
	Version   string
}

type Server struct {
	patients     *patient.Service
	appointments *appointment.Service
	sessions     *session.Manager
	identity     auth.IdentityProvider
	logger       zerolog.Logger
	renderer     *Renderer
	loc          *time.Location

	pageSize   int
	fetchLimit int
	widgetURL  string
	clientID   string
	version    string
}

func New(d Deps) (*Server, error) {
	if d.Patients == nil || d.Appointments == nil || d.Sessions == nil || d.Identity == nil {
		return nil, errors.New("web: services, sessions and identity provider are required")
	}
	if d.PageSize <= 0 {
		d.PageSize = listview.DefaultPageSize
	}
	if d.FetchLimit < d.PageSize {
		d.FetchLimit = d.PageSize
	}
	loc := d.Appointments.Location()
	r, err := NewRenderer(loc)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return &Server{
		patients:     d.Patients,
		appointments: d.Appointments,
		sessions:     d.Sessions,
		identity:     d.Identity,
		logger:       d.Logger,
		renderer:     r,
		loc:          loc,
		pageSize:     d.PageSize,
		fetchLimit:   d.FetchLimit,
		widgetURL:    d.WidgetURL,
		clientID:     d.ClientID,
		version:      d.Version,
	}, nil
}

// Mount installs the renderer, error handler, session middleware and every
// page route on e, and the session-scoped JSON endpoints on api.
func (s *Server) Mount(e *echo.Echo, api *echo.Group) {
	e.Renderer = s.renderer
	e.HTTPErrorHandler = s.HTTPErrorHandler

	e.StaticFS("/static", echo.MustSubFS(staticFS, "static"))
	e.Use(s.sessions.Middleware(), session.RequireUser(sessionSkipper))

	e.GET("/login", s.LoginPage)
	e.POST("/login", s.Login)
	e.GET("/signup", s.SignupPage)
	e.POST("/signup", s.Signup)
	e.GET("/callback", s.Callback)
	e.POST("/callback", s.Callback)
	e.GET("/error", s.ErrorPage)
	e.POST("/logout", s.Logout)
	e.POST("/theme", s.ToggleTheme)

	e.GET("/", s.Home)
	e.GET("/dashboard", s.Dashboard)

	e.GET("/patients", s.PatientList)
	e.GET("/patients/new", s.NewPatient)
	e.POST("/patients", s.CreatePatient)
	e.GET("/patients/:id", s.PatientDetail)
	e.GET("/patients/:id/edit", s.EditPatient)
	e.POST("/patients/:id", s.UpdatePatient)
	e.POST("/patients/:id/delete", s.DeletePatient)

	e.GET("/appointments", s.AppointmentList)
	e.GET("/appointments/new", s.NewAppointment)
	e.POST("/appointments", s.CreateAppointment)
	e.GET("/appointments/:id", s.AppointmentDetail)
	e.GET("/appointments/:id/edit", s.EditAppointment)
	e.POST("/appointments/:id", s.UpdateAppointment)
	e.POST("/appointments/:id/delete", s.DeleteAppointment)

	api.GET("/session", s.SessionInfo)
	api.GET("/dashboard", s.DashboardJSON)
	notification.NewHandler(session.Toasts).RegisterRoutes(api)
}

// Home sends signed-in users to the dashboard.
func (s *Server) Home(c echo.Context) error {
	return c.Redirect(http.StatusFound, auth.DefaultLanding)
}

// HTTPErrorHandler answers JSON under /api and renders the error page
// everywhere else.
func (s *Server) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var body interface{} = http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		body = he.Message
	}
	msg, isText := body.(string)
	if !isText {
		msg = http.StatusText(code)
		if m, ok := body.(map[string]interface{}); ok {
			if s, ok := m["message"].(string); ok {
				msg = s
			}
		}
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
	}

	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/health") {
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			if isText {
				body = map[string]string{"message": msg}
			}
			err = c.JSON(code, body)
		}
	} else {
		title := "Something went wrong"
		if code == http.StatusNotFound {
			title = "Page not found"
			msg = "The page you are looking for doesn't exist or has been moved."
		}
		err = s.render(c, code, "status.html", Page{
			Title: title,
			Data:  statusView{Code: code, Message: msg},
		})
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("writing error response")
	}
}

// sessionSkipper lets public pages and the session probe through anonymously.
func sessionSkipper(c echo.Context) bool {
	if auth.AuthSkipper(c) {
		return true
	}
	path := c.Request().URL.Path
	return strings.HasPrefix(path, "/api/") && strings.HasSuffix(path, "/session")
}

type statusView struct {
	Code    int
	Message string
}

// safeRedirect keeps redirects on this site.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return auth.DefaultLanding
	}
	if u, err := url.Parse(target); err != nil || u.Host != "" || u.Scheme != "" {
		return auth.DefaultLanding
	}
	return target
}
