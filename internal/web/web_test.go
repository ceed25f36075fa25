package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/domain/patient"
	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/platform/auth"
	"github.com/mediflow/frontdesk/internal/platform/records"
	"github.com/mediflow/frontdesk/internal/platform/records/memory"
	"github.com/mediflow/frontdesk/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Gateways --

// countingGateway records mutating calls and can fail fetches.
type countingGateway struct {
	records.Gateway
	mu       sync.Mutex
	creates  int
	failLoad bool
}

func (g *countingGateway) FetchMany(ctx context.Context, table string, q records.Query) (*records.FetchResult, error) {
	if g.failLoad {
		return nil, &records.RemoteError{Op: "fetch", Table: table, Err: errors.New("backend unavailable")}
	}
	return g.Gateway.FetchMany(ctx, table, q)
}

func (g *countingGateway) CreateMany(ctx context.Context, table string, recs []records.Record) (*records.MutationResult, error) {
	g.mu.Lock()
	g.creates++
	g.mu.Unlock()
	return g.Gateway.CreateMany(ctx, table, recs)
}

func seededGateway(t *testing.T) *countingGateway {
	t.Helper()
	gw := memory.New(records.FrontDeskSchema())
	ctx := context.Background()
	res, err := gw.CreateMany(ctx, records.TablePatient, []records.Record{
		{records.FieldName: "Jane Cooper", "age": 34, "gender": "Female", "phone": "555-0101"},
		{records.FieldName: "Michael Scott", "age": 45, "gender": "Male", "phone": "555-0102"},
	})
	if err != nil || !res.Success {
		t.Fatalf("seed patients: %v", err)
	}
	svc := appointment.NewService(gw, time.UTC)
	for _, in := range []appointment.Input{
		{Name: "Annual checkup", PatientID: "1", AppointmentDate: "2030-05-01T09:30", Status: "scheduled", Reason: "Routine"},
		{Name: "Blood test", PatientID: "2", AppointmentDate: "2030-05-02T14:00", Status: "completed"},
	} {
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("seed appointment %s: %v", in.Name, err)
		}
	}
	return &countingGateway{Gateway: gw}
}

// -- Harness --

type harness struct {
	t       *testing.T
	e       *echo.Echo
	srv     *Server
	gw      *countingGateway
	cookies map[string]*http.Cookie
}

func newHarness(t *testing.T, gw *countingGateway) *harness {
	t.Helper()
	srv, err := New(Deps{
		Patients:     patient.NewService(gw),
		Appointments: appointment.NewService(gw, time.UTC),
		Sessions:     session.NewManager(time.Hour, zerolog.Nop()),
		Identity:     auth.NewDevProvider(),
		Logger:       zerolog.Nop(),
		PageSize:     10,
		FetchLimit:   100,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	e := echo.New()
	srv.Mount(e, e.Group("/api/v1"))
	return &harness{t: t, e: e, srv: srv, gw: gw, cookies: make(map[string]*http.Cookie)}
}

func (h *harness) do(method, target string, body url.Values, header ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	for _, ck := range h.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(h.cookies, ck.Name)
			continue
		}
		h.cookies[ck.Name] = ck
	}
	return rec
}

func (h *harness) signIn() {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/login", url.Values{})
	if rec.Code != http.StatusSeeOther {
		h.t.Fatalf("sign in: expected 303, got %d", rec.Code)
	}
}

func location(rec *httptest.ResponseRecorder) string {
	return rec.Header().Get(echo.HeaderLocation)
}

// -- Auth and routing --

func TestProtectedPages_RedirectToLogin(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	for _, path := range []string{"/", "/dashboard", "/patients", "/patients/new", "/appointments", "/appointments/new"} {
		rec := h.do(http.MethodGet, path, nil)
		if rec.Code != http.StatusFound {
			t.Errorf("%s: expected 302, got %d", path, rec.Code)
		}
		if want := "/login?redirect=" + path; location(rec) != want {
			t.Errorf("%s: expected %q, got %q", path, want, location(rec))
		}
	}
}

func TestLogin_ReturnsToRequestedPage(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	rec := h.do(http.MethodPost, "/login?redirect=/appointments", url.Values{})
	if rec.Code != http.StatusSeeOther || location(rec) != "/appointments" {
		t.Fatalf("expected 303 to /appointments, got %d %q", rec.Code, location(rec))
	}

	rec = h.do(http.MethodGet, "/login", nil)
	if rec.Code != http.StatusFound || location(rec) != auth.DefaultLanding {
		t.Errorf("signed-in login page: expected redirect to dashboard, got %d %q", rec.Code, location(rec))
	}
}

func TestLogin_RejectsOffsiteRedirect(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	rec := h.do(http.MethodPost, "/login?redirect=//evil.example", url.Values{})
	if location(rec) != auth.DefaultLanding {
		t.Errorf("expected dashboard, got %q", location(rec))
	}
}

func TestLogout_ClearsSessionAndToasts(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()
	h.do(http.MethodGet, "/patients", nil)

	rec := h.do(http.MethodPost, "/logout", url.Values{})
	if rec.Code != http.StatusSeeOther || location(rec) != "/login" {
		t.Fatalf("expected 303 to /login, got %d %q", rec.Code, location(rec))
	}
	rec = h.do(http.MethodGet, "/login", nil)
	if !strings.Contains(rec.Body.String(), "Logged out successfully") {
		t.Error("expected logout toast on login page")
	}
	if rec := h.do(http.MethodGet, "/patients", nil); rec.Code != http.StatusFound {
		t.Errorf("expected guard after logout, got %d", rec.Code)
	}
}

func TestSessionInfo_Anonymous(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	rec := h.do(http.MethodGet, "/api/v1/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var info sessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Authenticated || info.Mode != auth.ModeDevelopment {
		t.Errorf("unexpected session info: %+v", info)
	}
}

func TestAPI_UnauthenticatedIsJSON401(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	rec := h.do(http.MethodGet, "/api/v1/dashboard", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q", rec.Body.String())
	}
	if body["message"] != "authentication required" {
		t.Errorf("unexpected message: %v", body)
	}
}

// -- Theme --

func TestTheme_HintAndToggle(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	rec := h.do(http.MethodGet, "/login", nil, PrefersColorSchemeHeader, `"dark"`)
	if !strings.Contains(rec.Body.String(), `data-theme="dark"`) {
		t.Error("expected dark theme from client hint")
	}

	rec = h.do(http.MethodPost, "/theme", url.Values{"next": {"/login"}}, PrefersColorSchemeHeader, `"dark"`)
	if rec.Code != http.StatusSeeOther || location(rec) != "/login" {
		t.Fatalf("expected 303 back to /login, got %d %q", rec.Code, location(rec))
	}
	ck := h.cookies[ThemeCookie]
	if ck == nil || ck.Value != ThemeLight {
		t.Fatalf("expected light theme cookie, got %+v", ck)
	}
	if ck.MaxAge != themeMaxAge {
		t.Errorf("expected one-year cookie, got %d", ck.MaxAge)
	}

	rec = h.do(http.MethodGet, "/login", nil, PrefersColorSchemeHeader, `"dark"`)
	if !strings.Contains(rec.Body.String(), `data-theme="light"`) {
		t.Error("saved theme must win over the client hint")
	}
}

// -- Patients --

func TestCreatePatient_InvalidNeverReachesBackend(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()

	rec := h.do(http.MethodPost, "/patients", url.Values{"name": {" "}, "age": {"200"}, "phone": {"abc"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, msg := range []string{"Patient name is required", "Age must be between 0 and 120", "Invalid phone number format"} {
		if !strings.Contains(body, msg) {
			t.Errorf("expected %q in form", msg)
		}
	}
	if h.gw.creates != 0 {
		t.Errorf("expected no backend call, got %d", h.gw.creates)
	}
}

func TestCreatePatient_AddsToList(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()
	h.do(http.MethodGet, "/patients", nil)

	rec := h.do(http.MethodPost, "/patients", url.Values{"name": {"Priya Raman"}, "age": {"29"}, "gender": {"Female"}, "phone": {"(555) 010-3000"}})
	if rec.Code != http.StatusSeeOther || location(rec) != "/patients" {
		t.Fatalf("expected 303 to /patients, got %d %q", rec.Code, location(rec))
	}
	if h.gw.creates != 1 {
		t.Errorf("expected one backend create, got %d", h.gw.creates)
	}

	rec = h.do(http.MethodGet, "/patients?page=1", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "Priya Raman") {
		t.Error("expected new patient in list")
	}
	if !strings.Contains(body, "Patient created successfully") {
		t.Error("expected success toast")
	}
}

func TestPatientList_FilterResetsPage(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()
	rec := h.do(http.MethodGet, "/patients?q=cooper&page=1", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "Jane Cooper") || strings.Contains(body, "Michael Scott") {
		t.Error("expected only the matching patient")
	}

	rec = h.do(http.MethodGet, "/patients?q=nobody&page=1", nil)
	if !strings.Contains(rec.Body.String(), "No patients match your filters.") {
		t.Error("expected filtered empty state")
	}
}

func TestPatientList_LoadFailureShowsInlineError(t *testing.T) {
	gw := seededGateway(t)
	h := newHarness(t, gw)
	h.signIn()
	gw.failLoad = true

	rec := h.do(http.MethodGet, "/patients", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "backend unavailable") || !strings.Contains(body, "Retry") {
		t.Error("expected inline error with retry")
	}
	if !strings.Contains(body, "Failed to load patients") {
		t.Error("expected load failure toast")
	}
	if strings.Contains(body, "<table>") {
		t.Error("error state must replace the list")
	}
}

func TestDeletePatient_ConfirmThenDelete(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()

	rec := h.do(http.MethodGet, "/patients/2?confirm=delete", nil)
	if !strings.Contains(rec.Body.String(), "This cannot be undone.") {
		t.Fatal("expected delete confirmation")
	}
	rec = h.do(http.MethodPost, "/patients/2/delete", url.Values{})
	if rec.Code != http.StatusSeeOther || location(rec) != "/patients" {
		t.Fatalf("expected 303 to /patients, got %d %q", rec.Code, location(rec))
	}
	rec = h.do(http.MethodGet, "/patients?page=1", nil)
	body := rec.Body.String()
	if strings.Contains(body, "Michael Scott") {
		t.Error("expected deleted patient gone")
	}
	if !strings.Contains(body, "Select a patient to see details.") {
		t.Error("expected empty detail pane")
	}
	if !strings.Contains(body, "Patient deleted successfully") {
		t.Error("expected delete toast")
	}
}

// -- Appointments --

func TestAppointmentList_ScopedToPatient(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()

	rec := h.do(http.MethodGet, "/appointments?patientId=1", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "Appointments for Jane Cooper") {
		t.Error("expected scoped heading")
	}
	if !strings.Contains(body, "Annual checkup") || strings.Contains(body, "Blood test") {
		t.Error("expected only Jane's appointments")
	}

	if rec := h.do(http.MethodGet, "/appointments?patientId=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad scope, got %d", rec.Code)
	}
}

func TestDeleteSelectedAppointment_ClearsDetail(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()

	rec := h.do(http.MethodGet, "/appointments/1", nil)
	if strings.Contains(rec.Body.String(), "Select an appointment to see details.") {
		t.Fatal("expected appointment selected")
	}
	rec = h.do(http.MethodPost, "/appointments/1/delete", url.Values{})
	if rec.Code != http.StatusSeeOther || location(rec) != "/appointments" {
		t.Fatalf("expected 303 to /appointments, got %d %q", rec.Code, location(rec))
	}

	rec = h.do(http.MethodGet, "/appointments?page=1", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "Select an appointment to see details.") {
		t.Error("expected selection cleared")
	}
	if strings.Contains(body, "Annual checkup") {
		t.Error("expected deleted appointment gone")
	}
	if !strings.Contains(body, "Appointment deleted successfully") {
		t.Error("expected delete toast")
	}
}

func TestCreateAppointment_FormListsPatients(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()

	rec := h.do(http.MethodGet, "/appointments/new?patientId=2", nil)
	body := rec.Body.String()
	if !strings.Contains(body, `<option value="2" selected>Michael Scott</option>`) {
		t.Errorf("expected preselected patient option")
	}

	rec = h.do(http.MethodPost, "/appointments", url.Values{"name": {"Follow-up"}, "patientId": {"2"}, "appointmentDate": {"tomorrow"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid date and time") {
		t.Error("expected date error")
	}
	if h.gw.creates != 0 {
		t.Errorf("expected no backend call, got %d", h.gw.creates)
	}

	rec = h.do(http.MethodPost, "/appointments", url.Values{"name": {"Follow-up"}, "patientId": {"2"}, "appointmentDate": {"2030-06-01T10:00"}, "status": {"scheduled"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	rec = h.do(http.MethodGet, "/appointments?page=1", nil)
	if !strings.Contains(rec.Body.String(), "Jun 1, 2030 - 10:00 AM") {
		t.Error("expected new appointment with display time")
	}
}

// -- Dashboard --

func TestDashboard(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()

	rec := h.do(http.MethodGet, "/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Total patients", "Annual checkup", "Jane Cooper", "May 1, 2030 - 9:30 AM"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q on dashboard", want)
		}
	}

	rec = h.do(http.MethodGet, "/api/v1/dashboard", nil)
	var view dashboardView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.TotalPatients != 2 || view.Scheduled != 1 || view.Completed != 1 || len(view.Upcoming) != 1 {
		t.Errorf("unexpected dashboard: %+v", view)
	}
}

func TestDashboard_PartialFailure(t *testing.T) {
	gw := seededGateway(t)
	h := newHarness(t, gw)
	h.signIn()
	gw.failLoad = true

	rec := h.do(http.MethodGet, "/api/v1/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view dashboardView
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.PatientsError == "" || view.AppointError == "" {
		t.Errorf("expected both errors recorded, got %+v", view)
	}
}

// -- Errors --

func TestNotFoundPage(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	h.signIn()
	rec := h.do(http.MethodGet, "/patients/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Page not found") {
		t.Error("expected not found page")
	}
}

func TestHTTPErrorHandler_KeepsValidationFieldsForAPI(t *testing.T) {
	h := newHarness(t, seededGateway(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	c := h.e.NewContext(req, rec)

	errs := form.Errors{"name": "Patient name is required"}
	h.srv.HTTPErrorHandler(form.HTTPError(errs.Err()), c)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Patient name is required") {
		t.Errorf("expected field errors in body, got %s", rec.Body.String())
	}
}

func TestSafeRedirect(t *testing.T) {
	tests := map[string]string{
		"":                     auth.DefaultLanding,
		"/patients?page=2":     "/patients?page=2",
		"//evil.example":       auth.DefaultLanding,
		"https://evil.example": auth.DefaultLanding,
		`/\evil.example`:       auth.DefaultLanding,
	}
	for in, want := range tests {
		if got := safeRedirect(in); got != want {
			t.Errorf("safeRedirect(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestIcon_Fallback(t *testing.T) {
	if Icon("DoesNotExist") != Icon(FallbackIcon) {
		t.Error("expected fallback glyph for unknown icon")
	}
	if Icon("Calendar") == Icon(FallbackIcon) {
		t.Error("expected distinct glyph for a known icon")
	}
}
