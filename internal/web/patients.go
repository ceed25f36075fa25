package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mediflow/frontdesk/internal/domain/patient"
	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/listview"
	"github.com/mediflow/frontdesk/internal/platform/records"
	"github.com/mediflow/frontdesk/internal/session"
	"github.com/mediflow/frontdesk/internal/store"
	"github.com/mediflow/frontdesk/pkg/pagination"
)

const patientsList = "patients"

type patientListView struct {
	State         store.State[patient.Patient]
	Page          listview.Page[patient.Patient]
	Selected      *patient.Patient
	ConfirmDelete bool
	Genders       []patient.Gender
}

// PageURL links to page n with the current filters.
func (v patientListView) PageURL(n int) string {
	return criteriaURL("/patients", v.Page.Criteria, n)
}

// DetailURL selects a patient while keeping the current filters and page.
func (v patientListView) DetailURL(id int64) string {
	return criteriaURL("/patients/"+strconv.FormatInt(id, 10), v.Page.Criteria, v.Page.Page)
}

type patientFormView struct {
	Input   patient.Input
	Errors  form.Errors
	Editing bool
	Action  string
	Genders []patient.Gender
}

// loadPatients replaces the session's patient slice with a fresh backend
// fetch. A failure is stored on the slice and toasted.
func (s *Server) loadPatients(ctx context.Context, sess *session.Session) error {
	slice := &sess.Store.Patients
	slice.FetchStart()
	items, total, err := s.patients.List(ctx, patient.Filter{}, pagination.ForPage(1, s.fetchLimit))
	if err != nil {
		msg := records.Message(err)
		if msg == "" {
			msg = "Failed to load patients"
		}
		slice.FetchFailure(msg)
		sess.Toasts.Error("Failed to load patients")
		s.logger.Error().Err(err).Msg("loading patients")
		return err
	}
	slice.FetchSuccess(items, total)
	return nil
}

// ensurePatients loads the slice when the page is mounted fresh or nothing is
// loaded yet. Filter and pager requests reuse what is there.
func (s *Server) ensurePatients(c echo.Context, sess *session.Session) {
	if mounting(c) || !sess.Store.Patients.Snapshot().Loaded {
		_ = s.loadPatients(c.Request().Context(), sess)
	}
}

func (s *Server) PatientList(c echo.Context) error {
	sess := session.FromContext(c)
	s.ensurePatients(c, sess)
	return s.renderPatients(c, sess, http.StatusOK, false)
}

func (s *Server) renderPatients(c echo.Context, sess *session.Session, code int, confirm bool) error {
	crit := criteriaFromQuery(c)
	state := sess.Store.Patients.Snapshot()
	page := sess.Lists.Page(patientsList, crit, requestedPage(c))

	view := patientListView{
		State:         state,
		Page:          listview.Apply(state.Items, patient.ListSpec(s.pageSize), crit, page),
		Selected:      state.Selected,
		ConfirmDelete: confirm && state.Selected != nil,
		Genders:       patient.Genders,
	}
	return s.render(c, code, "patients.html", Page{Title: "Patients", Nav: "patients", Data: view})
}

// PatientDetail selects a patient and shows it next to the list. With
// ?confirm=delete the delete confirmation is shown instead of the actions.
func (s *Server) PatientDetail(c echo.Context) error {
	id, err := patient.ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sess := session.FromContext(c)
	if !sess.Store.Patients.Snapshot().Loaded {
		_ = s.loadPatients(c.Request().Context(), sess)
	}
	if _, ok := sess.Store.Patients.Find(id); !ok {
		p, err := s.patients.Get(c.Request().Context(), id)
		if err != nil {
			return form.HTTPError(err)
		}
		sess.Store.Patients.Add(p)
	}
	sess.Store.Patients.SetSelected(id)
	return s.renderPatients(c, sess, http.StatusOK, c.QueryParam("confirm") == "delete")
}

func (s *Server) NewPatient(c echo.Context) error {
	return s.renderPatientForm(c, http.StatusOK, patientFormView{Input: patient.NewInput()})
}

func (s *Server) EditPatient(c echo.Context) error {
	p, err := s.findPatient(c)
	if err != nil {
		return err
	}
	session.FromContext(c).Store.Patients.SetSelected(p.ID)
	return s.renderPatientForm(c, http.StatusOK, patientFormView{Input: patient.InputFrom(p), Editing: true})
}

// findPatient resolves :id from the slice, falling back to the backend.
func (s *Server) findPatient(c echo.Context) (patient.Patient, error) {
	id, err := patient.ParseID(c.Param("id"))
	if err != nil {
		return patient.Patient{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if p, ok := session.FromContext(c).Store.Patients.Find(id); ok {
		return p, nil
	}
	p, err := s.patients.Get(c.Request().Context(), id)
	if err != nil {
		return patient.Patient{}, form.HTTPError(err)
	}
	return p, nil
}

func (s *Server) renderPatientForm(c echo.Context, code int, v patientFormView) error {
	v.Genders = patient.Genders
	v.Action = "/patients"
	title := "Add New Patient"
	if v.Editing {
		v.Action = "/patients/" + strconv.FormatInt(v.Input.ID, 10)
		title = "Edit Patient"
	}
	return s.render(c, code, "patient_form.html", Page{Title: title, Nav: "patients", Data: v})
}

func bindPatient(c echo.Context) (patient.Input, error) {
	var in patient.Input
	if err := c.Bind(&in); err != nil {
		return in, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return in, nil
}

func (s *Server) CreatePatient(c echo.Context) error {
	in, err := bindPatient(c)
	if err != nil {
		return err
	}
	in.ID = 0
	sess := session.FromContext(c)
	flow := s.flow(sess, "patient:new", form.Messages{
		Success:  "Patient created successfully",
		Rejected: "Failed to create patient",
		Failed:   "An error occurred while saving the patient",
	})
	p, err := form.Run(c.Request().Context(), flow, in.Validate, func(ctx context.Context) (patient.Patient, error) {
		return s.patients.Create(ctx, in)
	})
	if err != nil {
		return s.renderPatientForm(c, formStatus(err), patientFormView{Input: in, Errors: flow.Errors()})
	}
	sess.Store.Patients.Add(p)
	return c.Redirect(http.StatusSeeOther, "/patients")
}

func (s *Server) UpdatePatient(c echo.Context) error {
	id, err := patient.ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	in, err := bindPatient(c)
	if err != nil {
		return err
	}
	in.ID = id
	sess := session.FromContext(c)
	flow := s.flow(sess, "patient:"+strconv.FormatInt(id, 10), form.Messages{
		Success:  "Patient updated successfully",
		Rejected: "Failed to update patient",
		Failed:   "An error occurred while saving the patient",
	})
	p, err := form.Run(c.Request().Context(), flow, in.Validate, func(ctx context.Context) (patient.Patient, error) {
		return s.patients.Update(ctx, in)
	})
	if err != nil {
		return s.renderPatientForm(c, formStatus(err), patientFormView{Input: in, Errors: flow.Errors(), Editing: true})
	}
	sess.Store.Patients.Update(p)
	return c.Redirect(http.StatusSeeOther, "/patients/"+strconv.FormatInt(p.ID, 10))
}

func (s *Server) DeletePatient(c echo.Context) error {
	id, err := patient.ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sess := session.FromContext(c)
	flow := s.flow(sess, "patient:delete:"+strconv.FormatInt(id, 10), form.Messages{
		Success:  "Patient deleted successfully",
		Rejected: "Failed to delete patient",
		Failed:   "An error occurred while deleting the patient",
	})
	_, err = form.Run(c.Request().Context(), flow, noValidation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.patients.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, form.ErrSubmitInProgress) {
			return form.HTTPError(err)
		}
		return c.Redirect(http.StatusSeeOther, "/patients/"+strconv.FormatInt(id, 10))
	}
	sess.Store.Patients.Delete(id)
	return c.Redirect(http.StatusSeeOther, "/patients")
}
