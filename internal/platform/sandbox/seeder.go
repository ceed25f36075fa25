// Package sandbox loads demo patients and appointments into a record store
// for local development and UI demos.
package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/domain/patient"
	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/platform/records"
)

//go:embed fixtures/demo.yaml
var demoFixtures []byte

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls how much synthetic data is generated on top of the
// fixtures.
type SeedConfig struct {
	GeneratedPatients      int   `json:"generatedPatients"`
	AppointmentsPerPatient int   `json:"appointmentsPerPatient"`
	Seed                   int64 `json:"seed"`
	// Force seeds even when the patient table already has rows.
	Force bool `json:"force"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		GeneratedPatients:      20,
		AppointmentsPerPatient: 2,
	}
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type PatientFixture struct {
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	Age    int    `yaml:"age"`
	Gender string `yaml:"gender"`
	Phone  string `yaml:"phone"`
}

type AppointmentFixture struct {
	Patient string `yaml:"patient"`
	Name    string `yaml:"name"`
	Day     int    `yaml:"day"`
	Time    string `yaml:"time"`
	Status  string `yaml:"status"`
	Reason  string `yaml:"reason"`
}

type Fixtures struct {
	Patients     []PatientFixture     `yaml:"patients"`
	Appointments []AppointmentFixture `yaml:"appointments"`
}

// LoadFixtures decodes a fixture document. Unknown keys are rejected and
// every appointment must reference a declared patient key.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fx Fixtures
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	keys := make(map[string]bool, len(fx.Patients))
	for i, p := range fx.Patients {
		if p.Key == "" {
			return nil, fmt.Errorf("patient %d: key is required", i)
		}
		if keys[p.Key] {
			return nil, fmt.Errorf("patient %d: duplicate key %q", i, p.Key)
		}
		keys[p.Key] = true
	}
	for i, a := range fx.Appointments {
		if !keys[a.Patient] {
			return nil, fmt.Errorf("appointment %d: unknown patient %q", i, a.Patient)
		}
		if _, err := time.Parse("15:04", a.Time); err != nil {
			return nil, fmt.Errorf("appointment %d: time %q is not HH:MM", i, a.Time)
		}
	}
	return &fx, nil
}

// DemoFixtures returns the fixtures embedded in the binary.
func DemoFixtures() (*Fixtures, error) {
	return LoadFixtures(bytes.NewReader(demoFixtures))
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

var (
	givenNames = []string{
		"Ava", "Liam", "Noah", "Emma", "Mia", "Lucas", "Sofia", "Ethan",
		"Amara", "Kenji", "Fatima", "Diego", "Hana", "Tariq", "Elena", "Yusuf",
	}
	familyNames = []string{
		"Nguyen", "Garcia", "Okafor", "Kowalski", "Silva", "Tanaka", "Haddad",
		"Johansson", "Patel", "Brennan", "Moreau", "Adeyemi", "Costa", "Fischer",
	}
	visitKinds = []string{
		"Checkup", "Follow-up", "Consultation", "Lab review", "Vaccination", "Screening",
	}
	visitReasons = []string{
		"Routine physical", "Persistent cough", "Blood test results", "Flu shot",
		"Back pain", "Medication review", "Allergy symptoms", "Blood pressure monitoring",
	}
)

// DataGenerator produces reproducible synthetic front-desk data.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator seeds the generator; 0 seeds from the clock.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("(555) %03d-%04d", 100+g.rng.Intn(900), g.rng.Intn(10000))
}

func (g *DataGenerator) Patient() patient.Input {
	return patient.Input{
		Name:   form.Value(g.pick(givenNames) + " " + g.pick(familyNames)),
		Age:    form.Value(strconv.Itoa(g.rng.Intn(patient.MaxAge + 1))),
		Gender: form.Value(patient.Genders[g.rng.Intn(len(patient.Genders))]),
		Phone:  form.Value(g.randomPhone()),
	}
}

// Appointment places a visit within two weeks either side of day, on a
// quarter hour between 08:00 and 17:00. Past visits are mostly completed.
func (g *DataGenerator) Appointment(patientID int64, day time.Time) appointment.Input {
	offset := g.rng.Intn(29) - 14
	minutes := 8*60 + 15*g.rng.Intn(37)
	midnight := time.Date(day.Year(), day.Month(), day.Day()+offset, 0, 0, 0, 0, day.Location())
	at := midnight.Add(time.Duration(minutes) * time.Minute)

	status := appointment.StatusScheduled
	if offset < 0 {
		status = appointment.StatusCompleted
		if g.rng.Intn(5) == 0 {
			status = appointment.StatusCancelled
		}
	}
	return appointment.Input{
		Name:            form.Value(g.pick(visitKinds)),
		PatientID:       form.Value(strconv.FormatInt(patientID, 10)),
		AppointmentDate: form.Value(at.Format(appointment.DateTimeLayout)),
		Status:          form.Value(status),
		Reason:          form.Value(g.pick(visitReasons)),
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

type SeedResult struct {
	Patients     int    `json:"patients"`
	Appointments int    `json:"appointments"`
	Skipped      bool   `json:"skipped"`
	Duration     string `json:"duration"`
}

// Seeder writes fixtures and generated data through a records.Gateway. Every
// row passes the same validation the forms apply.
type Seeder struct {
	gw     records.Gateway
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time
}

func NewSeeder(gw records.Gateway, loc *time.Location, logger zerolog.Logger) *Seeder {
	if loc == nil {
		loc = time.Local
	}
	return &Seeder{gw: gw, loc: loc, logger: logger, now: time.Now}
}

// hasPatients reports whether at least one live patient exists.
func (s *Seeder) hasPatients(ctx context.Context) (bool, error) {
	res, err := s.gw.FetchMany(ctx, patient.Table, records.Query{
		Fields: []string{records.FieldID},
		Paging: &records.Paging{Limit: 1},
		Where:  []records.Predicate{records.NotDeleted()},
	})
	if err != nil {
		return false, err
	}
	return len(res.Data) > 0, nil
}

// Run loads fx (may be nil) and then cfg.GeneratedPatients synthetic
// patients, each with cfg.AppointmentsPerPatient appointments. A store that
// already holds patients is left alone unless cfg.Force is set.
func (s *Seeder) Run(ctx context.Context, fx *Fixtures, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{}

	if !cfg.Force {
		exists, err := s.hasPatients(ctx)
		if err != nil {
			return nil, fmt.Errorf("check existing patients: %w", err)
		}
		if exists {
			result.Skipped = true
			result.Duration = time.Since(start).String()
			s.logger.Info().Msg("record store already has patients, skipping seed")
			return result, nil
		}
	}

	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	var (
		patients []patient.Input
		appts    []appointment.Input
	)
	keyIndex := map[string]int{}
	if fx != nil {
		for _, p := range fx.Patients {
			keyIndex[p.Key] = len(patients)
			patients = append(patients, patient.Input{
				Name:   form.Value(p.Name),
				Age:    form.Value(strconv.Itoa(p.Age)),
				Gender: form.Value(p.Gender),
				Phone:  form.Value(p.Phone),
			})
		}
	}
	gen := NewDataGenerator(cfg.Seed)
	for i := 0; i < cfg.GeneratedPatients; i++ {
		patients = append(patients, gen.Patient())
	}

	ids, err := s.createPatients(ctx, patients)
	if err != nil {
		return nil, err
	}
	result.Patients = len(ids)

	if fx != nil {
		for _, a := range fx.Appointments {
			clock, _ := time.Parse("15:04", a.Time)
			at := today.AddDate(0, 0, a.Day).Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
			appts = append(appts, appointment.Input{
				Name:            form.Value(a.Name),
				PatientID:       form.Value(strconv.FormatInt(ids[keyIndex[a.Patient]], 10)),
				AppointmentDate: form.Value(at.Format(appointment.DateTimeLayout)),
				Status:          form.Value(a.Status),
				Reason:          form.Value(a.Reason),
			})
		}
	}
	for _, id := range ids[len(ids)-cfg.GeneratedPatients:] {
		for j := 0; j < cfg.AppointmentsPerPatient; j++ {
			appts = append(appts, gen.Appointment(id, today))
		}
	}

	n, err := s.createAppointments(ctx, appts)
	if err != nil {
		return nil, err
	}
	result.Appointments = n
	result.Duration = time.Since(start).String()

	s.logger.Info().
		Int("patients", result.Patients).
		Int("appointments", result.Appointments).
		Str("duration", result.Duration).
		Msg("demo data seeded")
	return result, nil
}

func (s *Seeder) createPatients(ctx context.Context, inputs []patient.Input) ([]int64, error) {
	batch := make([]records.Record, 0, len(inputs))
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("patient %d (%s): %w", i, in.Name, err)
		}
		ui := in.UIRecord()
		delete(ui, "id")
		batch = append(batch, patient.FieldMap.Map(ui))
	}
	return s.create(ctx, patient.Table, batch)
}

func (s *Seeder) createAppointments(ctx context.Context, inputs []appointment.Input) (int, error) {
	batch := make([]records.Record, 0, len(inputs))
	for i, in := range inputs {
		if err := in.Validate(s.loc); err != nil {
			return 0, fmt.Errorf("appointment %d (%s): %w", i, in.Name, err)
		}
		ui := in.UIRecord(s.loc)
		delete(ui, "id")
		batch = append(batch, appointment.FieldMap.Map(ui))
	}
	ids, err := s.create(ctx, appointment.Table, batch)
	return len(ids), err
}

// create writes one batch and returns the new identifiers in input order.
func (s *Seeder) create(ctx context.Context, table string, batch []records.Record) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	res, err := s.gw.CreateMany(ctx, table, batch)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("create %s: %w", table, &records.RemoteError{Op: "create", Table: table, Message: res.Message, Rejected: true})
	}
	ids := make([]int64, 0, len(res.Results))
	for _, r := range res.Results {
		id, ok := r.Data.ID()
		if !ok {
			return nil, fmt.Errorf("create %s: backend returned a record without %s", table, records.FieldID)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding over HTTP. Only mounted in development mode.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sandbox/seed", h.handleSeed)
}

// handleSeed accepts an optional SeedConfig body and seeds the demo fixtures
// plus generated data.
func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid seed config: "+err.Error())
		}
	}
	if cfg.GeneratedPatients < 0 || cfg.AppointmentsPerPatient < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "counts must not be negative")
	}

	fx, err := DemoFixtures()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	result, err := h.seeder.Run(c.Request().Context(), fx, cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}
