package appointment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mediflow/frontdesk/internal/platform/records"
	"github.com/mediflow/frontdesk/pkg/pagination"
)

// Filter narrows a backend fetch. Zero values are ignored.
type Filter struct {
	PatientID int64
	Status    string
	From      *time.Time
	To        *time.Time
	// Search matches the reason text.
	Search string
}

func (f Filter) predicates() []records.Predicate {
	var where []records.Predicate
	if f.PatientID > 0 {
		where = append(where, records.Where("patient", records.ExactMatch, f.PatientID))
	}
	if f.Status != "" {
		where = append(where, records.Where("status", records.ExactMatch, f.Status))
	}
	switch {
	case f.From != nil && f.To != nil:
		where = append(where, records.Where("appointmentDate", records.Between, *f.From, *f.To))
	case f.From != nil:
		where = append(where, records.Where("appointmentDate", records.GreaterThanOrEquals, *f.From))
	case f.To != nil:
		where = append(where, records.Where("appointmentDate", records.LessThanOrEquals, *f.To))
	}
	if f.Search != "" {
		where = append(where, records.Where("reason", records.Contains, f.Search))
	}
	return append(where, records.NotDeleted())
}

type Service struct {
	gw  records.Gateway
	loc *time.Location
}

// NewService creates a Service. loc interprets form times without a zone.
func NewService(gw records.Gateway, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{gw: gw, loc: loc}
}

// Location is the zone used for form input and date filters.
func (s *Service) Location() *time.Location { return s.loc }

// List fetches one backend page of live appointments, newest first, with the
// patient expanded.
func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) ([]Appointment, int, error) {
	res, err := s.gw.FetchMany(ctx, Table, records.Query{
		Fields:  listFields,
		Expands: []records.Expand{PatientExpand},
		Paging:  &records.Paging{Limit: p.Limit, Offset: p.Offset},
		Where:   f.predicates(),
		OrderBy: []records.Order{{Field: "appointmentDate", Direction: records.Desc}},
	})
	if err != nil {
		return nil, 0, err
	}
	return FromRecords(res.Data, s.loc), res.Count, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Appointment, error) {
	rec, err := s.gw.FetchOne(ctx, Table, id, records.Query{
		Fields:  detailFields,
		Expands: []records.Expand{PatientExpand},
		Where:   []records.Predicate{records.NotDeleted()},
	})
	if err != nil {
		return Appointment{}, err
	}
	return FromRecord(rec, s.loc), nil
}

// Create validates in and stores a new appointment. The returned value is
// re-read so it carries the patient expand.
func (s *Service) Create(ctx context.Context, in Input) (Appointment, error) {
	if err := in.Validate(s.loc); err != nil {
		return Appointment{}, err
	}
	ui := in.UIRecord(s.loc)
	delete(ui, "id")
	res, err := s.gw.CreateMany(ctx, Table, []records.Record{FieldMap.Map(ui)})
	if err != nil {
		return Appointment{}, err
	}
	rec, err := res.First("create", Table)
	if err != nil {
		return Appointment{}, err
	}
	return s.withPatient(ctx, FromRecord(rec, s.loc)), nil
}

// Update validates in and writes it over the appointment identified by in.ID.
func (s *Service) Update(ctx context.Context, in Input) (Appointment, error) {
	if err := in.Validate(s.loc); err != nil {
		return Appointment{}, err
	}
	rec, err := FieldMap.MapForUpdate(in.UIRecord(s.loc))
	if err != nil {
		return Appointment{}, &records.RemoteError{Op: "update", Table: Table, Message: "Appointment ID is required for update operation", Err: err}
	}
	res, err := s.gw.UpdateMany(ctx, Table, []records.Record{rec})
	if err != nil {
		return Appointment{}, err
	}
	out, err := res.First("update", Table)
	if err != nil {
		return Appointment{}, err
	}
	return s.withPatient(ctx, FromRecord(out, s.loc)), nil
}

// withPatient fills PatientInfo from a point lookup. Mutation responses do
// not carry expands; a failed lookup leaves the reference empty.
func (s *Service) withPatient(ctx context.Context, a Appointment) Appointment {
	if a.PatientInfo != nil || a.PatientID == 0 {
		return a
	}
	if full, err := s.Get(ctx, a.ID); err == nil {
		return full
	}
	return a
}

// Delete soft-deletes one or more appointments in a single call.
func (s *Service) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	res, err := s.gw.DeleteMany(ctx, Table, ids)
	if err != nil {
		return err
	}
	if res == nil || !res.Success {
		msg := ""
		if res != nil {
			msg = res.Message
		}
		return &records.RemoteError{Op: "delete", Table: Table, Message: msg, Rejected: true}
	}
	return nil
}

// ParseID parses a path identifier.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid appointment id %q", s)
	}
	return id, nil
}
