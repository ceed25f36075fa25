package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/domain/patient"
	"github.com/mediflow/frontdesk/internal/platform/records"
	"github.com/mediflow/frontdesk/internal/platform/records/memory"
)

var seedDay = time.Date(2023, 11, 16, 7, 0, 0, 0, time.UTC)

func newTestSeeder() (*Seeder, records.Gateway) {
	gw := memory.New(records.FrontDeskSchema())
	s := NewSeeder(gw, time.UTC, zerolog.Nop())
	s.now = func() time.Time { return seedDay }
	return s, gw
}

func fetchAll(t *testing.T, gw records.Gateway, table string) []records.Record {
	t.Helper()
	res, err := gw.FetchMany(context.Background(), table, records.Query{
		Where: []records.Predicate{records.NotDeleted()},
	})
	if err != nil {
		t.Fatalf("fetch %s: %v", table, err)
	}
	return res.Data
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func TestDemoFixtures_Valid(t *testing.T) {
	fx, err := DemoFixtures()
	if err != nil {
		t.Fatalf("DemoFixtures() error: %v", err)
	}
	if len(fx.Patients) == 0 || len(fx.Appointments) == 0 {
		t.Fatalf("expected demo patients and appointments, got %d/%d", len(fx.Patients), len(fx.Appointments))
	}
}

func TestLoadFixtures_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"unknown field", "patients:\n  - key: a\n    nickname: A\n", "nickname"},
		{"missing key", "patients:\n  - name: A\n", "key is required"},
		{"duplicate key", "patients:\n  - key: a\n  - key: a\n", "duplicate key"},
		{"unknown patient", "appointments:\n  - patient: ghost\n    time: \"09:00\"\n", "unknown patient"},
		{"bad time", "patients:\n  - key: a\nappointments:\n  - patient: a\n    time: noon\n", "HH:MM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixtures(strings.NewReader(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFixtures_Empty(t *testing.T) {
	fx, err := LoadFixtures(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fx.Patients) != 0 {
		t.Errorf("expected no patients, got %d", len(fx.Patients))
	}
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

func TestDataGenerator_Deterministic(t *testing.T) {
	a, b := NewDataGenerator(42), NewDataGenerator(42)
	for i := 0; i < 10; i++ {
		pa, pb := a.Patient(), b.Patient()
		if pa != pb {
			t.Fatalf("same seed diverged at %d: %+v vs %+v", i, pa, pb)
		}
	}
}

func TestDataGenerator_OutputValidates(t *testing.T) {
	gen := NewDataGenerator(7)
	for i := 0; i < 200; i++ {
		if err := gen.Patient().Validate(); err != nil {
			t.Fatalf("generated patient %d invalid: %v", i, err)
		}
		in := gen.Appointment(1, seedDay)
		if err := in.Validate(time.UTC); err != nil {
			t.Fatalf("generated appointment %d invalid: %v", i, err)
		}
		at, _ := time.Parse(appointment.DateTimeLayout, in.AppointmentDate.String())
		if at.Hour() < 8 || at.Hour() > 17 || at.Minute()%15 != 0 {
			t.Fatalf("appointment outside office hours: %s", in.AppointmentDate)
		}
	}
}

func TestDataGenerator_IgnoresTimeOfDay(t *testing.T) {
	clinic := time.FixedZone("clinic", 9*60*60)
	late := time.Date(2023, 11, 16, 22, 45, 0, 0, clinic)
	gen := NewDataGenerator(11)
	for i := 0; i < 100; i++ {
		in := gen.Appointment(1, late)
		at, err := time.ParseInLocation(appointment.DateTimeLayout, in.AppointmentDate.String(), clinic)
		if err != nil {
			t.Fatalf("unparseable appointment date %q: %v", in.AppointmentDate, err)
		}
		if at.Hour() < 8 || at.Hour() > 17 {
			t.Fatalf("appointment outside office hours: %s", in.AppointmentDate)
		}
		if days := at.Sub(time.Date(2023, 11, 16, 0, 0, 0, 0, clinic)).Hours() / 24; days < -14 || days > 15 {
			t.Fatalf("appointment %s more than two weeks from the seed day", in.AppointmentDate)
		}
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

func TestSeeder_Run(t *testing.T) {
	s, gw := newTestSeeder()
	fx, err := DemoFixtures()
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Run(context.Background(), fx, SeedConfig{GeneratedPatients: 3, AppointmentsPerPatient: 2, Seed: 42})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	wantPatients := len(fx.Patients) + 3
	wantAppts := len(fx.Appointments) + 6
	if res.Patients != wantPatients || res.Appointments != wantAppts {
		t.Errorf("expected %d/%d, got %d/%d", wantPatients, wantAppts, res.Patients, res.Appointments)
	}
	if got := len(fetchAll(t, gw, patient.Table)); got != wantPatients {
		t.Errorf("expected %d stored patients, got %d", wantPatients, got)
	}

	var found bool
	for _, a := range appointment.FromRecords(fetchAll(t, gw, appointment.Table), time.UTC) {
		if a.Name == "Annual checkup" {
			found = true
			want := time.Date(2023, 11, 16, 9, 30, 0, 0, time.UTC)
			if !a.AppointmentDate.Equal(want) {
				t.Errorf("expected fixture at %v, got %v", want, a.AppointmentDate)
			}
			if a.Status != appointment.StatusScheduled {
				t.Errorf("expected default status, got %q", a.Status)
			}
		}
	}
	if !found {
		t.Error("expected the fixture appointment to be stored")
	}
}

func TestSeeder_SkipsWhenPopulated(t *testing.T) {
	s, gw := newTestSeeder()
	ctx := context.Background()
	if _, err := s.Run(ctx, nil, SeedConfig{GeneratedPatients: 2}); err != nil {
		t.Fatal(err)
	}

	res, err := s.Run(ctx, nil, SeedConfig{GeneratedPatients: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Error("expected second run to be skipped")
	}

	if _, err := s.Run(ctx, nil, SeedConfig{GeneratedPatients: 2, Force: true}); err != nil {
		t.Fatal(err)
	}
	if got := len(fetchAll(t, gw, patient.Table)); got != 4 {
		t.Errorf("expected 4 patients after forced run, got %d", got)
	}
}

func TestSeeder_InvalidFixtureNeverWrites(t *testing.T) {
	s, gw := newTestSeeder()
	fx := &Fixtures{Patients: []PatientFixture{
		{Key: "ok", Name: "Valid Person", Age: 30, Phone: "555-0101"},
		{Key: "bad", Name: "Too Old", Age: 130, Phone: "555-0102"},
	}}
	if _, err := s.Run(context.Background(), fx, SeedConfig{}); err == nil {
		t.Fatal("expected validation error")
	}
	if got := len(fetchAll(t, gw, patient.Table)); got != 0 {
		t.Errorf("expected no writes, got %d patients", got)
	}
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

func TestSeedHandler(t *testing.T) {
	s, _ := newTestSeeder()
	e := echo.New()
	NewSeedHandler(s).RegisterRoutes(e.Group("/api/v1"))

	body := `{"generatedPatients": 1, "appointmentsPerPatient": 1, "seed": 3}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	fx, _ := DemoFixtures()
	if res.Patients != len(fx.Patients)+1 {
		t.Errorf("expected %d patients, got %d", len(fx.Patients)+1, res.Patients)
	}
}

func TestSeedHandler_NegativeCounts(t *testing.T) {
	s, _ := newTestSeeder()
	e := echo.New()
	NewSeedHandler(s).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(`{"generatedPatients": -1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
