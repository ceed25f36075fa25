package web

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/domain/patient"
	"github.com/mediflow/frontdesk/internal/session"
)

const dashboardRows = 5

// dashboardView is the dashboard's summary of both slices.
type dashboardView struct {
	TotalPatients int                       `json:"total_patients"`
	Scheduled     int                       `json:"scheduled"`
	Completed     int                       `json:"completed"`
	Cancelled     int                       `json:"cancelled"`
	Upcoming      []appointment.Appointment `json:"upcoming"`
	Recent        []patient.Patient         `json:"recent_patients"`
	PatientsError string                    `json:"patients_error,omitempty"`
	AppointError  string                    `json:"appointments_error,omitempty"`
	Loading       bool                      `json:"loading"`
}

// loadDashboard refreshes both slices concurrently. A failed fetch is
// recorded on its own slice and does not cancel the other.
func (s *Server) loadDashboard(c echo.Context, sess *session.Session) dashboardView {
	ctx := c.Request().Context()
	var g errgroup.Group
	g.Go(func() error { return s.loadPatients(ctx, sess) })
	g.Go(func() error { return s.loadAppointments(ctx, sess, 0) })
	if err := g.Wait(); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard loaded partially")
	}

	patients := sess.Store.Patients.Snapshot()
	appts := sess.Store.Appointments.Snapshot()
	counts := appointment.CountByStatus(appts.Items)

	recent := patients.Items
	if len(recent) > dashboardRows {
		recent = recent[:dashboardRows]
	}
	return dashboardView{
		TotalPatients: patients.Total,
		Scheduled:     counts[appointment.StatusScheduled],
		Completed:     counts[appointment.StatusCompleted],
		Cancelled:     counts[appointment.StatusCancelled],
		Upcoming:      appointment.Upcoming(appts.Items, dashboardRows),
		Recent:        recent,
		PatientsError: patients.Error,
		AppointError:  appts.Error,
		Loading:       patients.Loading || appts.Loading,
	}
}

func (s *Server) Dashboard(c echo.Context) error {
	view := s.loadDashboard(c, session.FromContext(c))
	return s.render(c, http.StatusOK, "dashboard.html", Page{Title: "Dashboard", Nav: "dashboard", Data: view})
}

func (s *Server) DashboardJSON(c echo.Context) error {
	return c.JSON(http.StatusOK, s.loadDashboard(c, session.FromContext(c)))
}
