package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/domain/patient"
	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/listview"
	"github.com/mediflow/frontdesk/internal/platform/records"
	"github.com/mediflow/frontdesk/internal/session"
	"github.com/mediflow/frontdesk/internal/store"
	"github.com/mediflow/frontdesk/pkg/pagination"
)

const appointmentsList = "appointments"

type appointmentListView struct {
	State         store.State[appointment.Appointment]
	Page          listview.Page[appointment.Appointment]
	Selected      *appointment.Appointment
	ConfirmDelete bool
	Statuses      []appointment.Status
	// PatientID scopes the list to one patient; PatientName heads it.
	PatientID   int64
	PatientName string
}

func (v appointmentListView) scope() string {
	if v.PatientID == 0 {
		return ""
	}
	return strconv.FormatInt(v.PatientID, 10)
}

// PageURL links to page n with the current filters and patient scope.
func (v appointmentListView) PageURL(n int) string {
	return criteriaURL("/appointments", v.Page.Criteria, n, "patientId", v.scope())
}

// DetailURL selects an appointment while keeping filters, page and scope.
func (v appointmentListView) DetailURL(id int64) string {
	return criteriaURL("/appointments/"+strconv.FormatInt(id, 10), v.Page.Criteria, v.Page.Page, "patientId", v.scope())
}

// NewURL pre-selects the scoped patient on the create form.
func (v appointmentListView) NewURL() string {
	if v.PatientID == 0 {
		return "/appointments/new"
	}
	return "/appointments/new?patientId=" + v.scope()
}

type appointmentFormView struct {
	Input    appointment.Input
	Errors   form.Errors
	Editing  bool
	Action   string
	Patients []patient.Patient
	Statuses []appointment.Status
}

func scopeFromQuery(c echo.Context) (int64, error) {
	raw := c.QueryParam("patientId")
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "patientId must be a positive integer")
	}
	return id, nil
}

// loadAppointments replaces the session's appointment slice, optionally
// scoped to one patient.
func (s *Server) loadAppointments(ctx context.Context, sess *session.Session, patientID int64) error {
	slice := &sess.Store.Appointments
	slice.FetchStart()
	items, total, err := s.appointments.List(ctx, appointment.Filter{PatientID: patientID}, pagination.ForPage(1, s.fetchLimit))
	if err != nil {
		msg := records.Message(err)
		if msg == "" {
			msg = "Failed to load appointments"
		}
		slice.FetchFailure(msg)
		sess.Toasts.Error("Failed to load appointments")
		s.logger.Error().Err(err).Int64("patient_id", patientID).Msg("loading appointments")
		return err
	}
	slice.FetchSuccess(items, total)
	return nil
}

func (s *Server) AppointmentList(c echo.Context) error {
	scope, err := scopeFromQuery(c)
	if err != nil {
		return err
	}
	sess := session.FromContext(c)
	if mounting(c) || !sess.Store.Appointments.Snapshot().Loaded {
		_ = s.loadAppointments(c.Request().Context(), sess, scope)
	}
	return s.renderAppointments(c, sess, scope, false)
}

func (s *Server) renderAppointments(c echo.Context, sess *session.Session, scope int64, confirm bool) error {
	crit := criteriaFromQuery(c)
	state := sess.Store.Appointments.Snapshot()
	list := appointmentsList
	if scope != 0 {
		list += ":" + strconv.FormatInt(scope, 10)
	}
	page := sess.Lists.Page(list, crit, requestedPage(c))

	view := appointmentListView{
		State:         state,
		Page:          listview.Apply(state.Items, appointment.ListSpec(s.pageSize, s.loc), crit, page),
		Selected:      state.Selected,
		ConfirmDelete: confirm && state.Selected != nil,
		Statuses:      appointment.Statuses,
		PatientID:     scope,
	}
	if scope != 0 {
		view.PatientName = s.patientName(c, sess, scope, state.Items)
	}
	return s.render(c, http.StatusOK, "appointments.html", Page{Title: "Appointments", Nav: "appointments", Data: view})
}

// patientName finds a display name for the scoped patient without an extra
// call when the session already knows it.
func (s *Server) patientName(c echo.Context, sess *session.Session, id int64, items []appointment.Appointment) string {
	for _, a := range items {
		if a.PatientID == id && a.PatientName() != "" {
			return a.PatientName()
		}
	}
	if p, ok := sess.Store.Patients.Find(id); ok {
		return p.Name
	}
	p, err := s.patients.Get(c.Request().Context(), id)
	if err != nil {
		return ""
	}
	return p.Name
}

func (s *Server) AppointmentDetail(c echo.Context) error {
	id, err := appointment.ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, err := scopeFromQuery(c)
	if err != nil {
		return err
	}
	sess := session.FromContext(c)
	if !sess.Store.Appointments.Snapshot().Loaded {
		_ = s.loadAppointments(c.Request().Context(), sess, scope)
	}
	if _, ok := sess.Store.Appointments.Find(id); !ok {
		a, err := s.appointments.Get(c.Request().Context(), id)
		if err != nil {
			return form.HTTPError(err)
		}
		sess.Store.Appointments.Add(a)
	}
	sess.Store.Appointments.SetSelected(id)
	return s.renderAppointments(c, sess, scope, c.QueryParam("confirm") == "delete")
}

func (s *Server) findAppointment(c echo.Context) (appointment.Appointment, error) {
	id, err := appointment.ParseID(c.Param("id"))
	if err != nil {
		return appointment.Appointment{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if a, ok := session.FromContext(c).Store.Appointments.Find(id); ok {
		return a, nil
	}
	a, err := s.appointments.Get(c.Request().Context(), id)
	if err != nil {
		return appointment.Appointment{}, form.HTTPError(err)
	}
	return a, nil
}

func (s *Server) NewAppointment(c echo.Context) error {
	scope, err := scopeFromQuery(c)
	if err != nil {
		return err
	}
	return s.renderAppointmentForm(c, http.StatusOK, appointmentFormView{Input: appointment.NewInput(scope)})
}

func (s *Server) EditAppointment(c echo.Context) error {
	a, err := s.findAppointment(c)
	if err != nil {
		return err
	}
	session.FromContext(c).Store.Appointments.SetSelected(a.ID)
	return s.renderAppointmentForm(c, http.StatusOK, appointmentFormView{Input: appointment.InputFrom(a, s.loc), Editing: true})
}

// renderAppointmentForm draws the form with the patient picker, loading the
// patient slice first when the session has none.
func (s *Server) renderAppointmentForm(c echo.Context, code int, v appointmentFormView) error {
	sess := session.FromContext(c)
	if !sess.Store.Patients.Snapshot().Loaded {
		_ = s.loadPatients(c.Request().Context(), sess)
	}
	v.Patients = sess.Store.Patients.Snapshot().Items
	v.Statuses = appointment.Statuses
	v.Action = "/appointments"
	title := "Schedule Appointment"
	if v.Editing {
		v.Action = "/appointments/" + strconv.FormatInt(v.Input.ID, 10)
		title = "Edit Appointment"
	}
	return s.render(c, code, "appointment_form.html", Page{Title: title, Nav: "appointments", Data: v})
}

func bindAppointment(c echo.Context) (appointment.Input, error) {
	var in appointment.Input
	if err := c.Bind(&in); err != nil {
		return in, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return in, nil
}

func (s *Server) CreateAppointment(c echo.Context) error {
	in, err := bindAppointment(c)
	if err != nil {
		return err
	}
	in.ID = 0
	sess := session.FromContext(c)
	flow := s.flow(sess, "appointment:new", form.Messages{
		Success:  "Appointment created successfully",
		Rejected: "Failed to create appointment",
		Failed:   "An error occurred while saving the appointment",
	})
	validate := func() error { return in.Validate(s.loc) }
	a, err := form.Run(c.Request().Context(), flow, validate, func(ctx context.Context) (appointment.Appointment, error) {
		return s.appointments.Create(ctx, in)
	})
	if err != nil {
		return s.renderAppointmentForm(c, formStatus(err), appointmentFormView{Input: in, Errors: flow.Errors()})
	}
	sess.Store.Appointments.Add(a)
	return c.Redirect(http.StatusSeeOther, "/appointments")
}

func (s *Server) UpdateAppointment(c echo.Context) error {
	id, err := appointment.ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	in, err := bindAppointment(c)
	if err != nil {
		return err
	}
	in.ID = id
	sess := session.FromContext(c)
	flow := s.flow(sess, "appointment:"+strconv.FormatInt(id, 10), form.Messages{
		Success:  "Appointment updated successfully",
		Rejected: "Failed to update appointment",
		Failed:   "An error occurred while saving the appointment",
	})
	validate := func() error { return in.Validate(s.loc) }
	a, err := form.Run(c.Request().Context(), flow, validate, func(ctx context.Context) (appointment.Appointment, error) {
		return s.appointments.Update(ctx, in)
	})
	if err != nil {
		return s.renderAppointmentForm(c, formStatus(err), appointmentFormView{Input: in, Errors: flow.Errors(), Editing: true})
	}
	sess.Store.Appointments.Update(a)
	return c.Redirect(http.StatusSeeOther, "/appointments/"+strconv.FormatInt(a.ID, 10))
}

func (s *Server) DeleteAppointment(c echo.Context) error {
	id, err := appointment.ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sess := session.FromContext(c)
	flow := s.flow(sess, "appointment:delete:"+strconv.FormatInt(id, 10), form.Messages{
		Success:  "Appointment deleted successfully",
		Rejected: "Failed to delete appointment",
		Failed:   "An error occurred while deleting the appointment",
	})
	_, err = form.Run(c.Request().Context(), flow, noValidation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.appointments.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, form.ErrSubmitInProgress) {
			return form.HTTPError(err)
		}
		return c.Redirect(http.StatusSeeOther, "/appointments/"+strconv.FormatInt(id, 10))
	}
	sess.Store.Appointments.Delete(id)
	target := "/appointments"
	if scope := c.FormValue("patientId"); scope != "" {
		target += "?patientId=" + url.QueryEscape(scope)
	}
	return c.Redirect(http.StatusSeeOther, target)
}
