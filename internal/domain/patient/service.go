package patient

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mediflow/frontdesk/internal/platform/records"
	"github.com/mediflow/frontdesk/pkg/pagination"
)

// Filter narrows a backend fetch. Zero values are ignored.
type Filter struct {
	Name   string
	Gender string
	AgeMin *int
	AgeMax *int
}

func (f Filter) predicates() []records.Predicate {
	var where []records.Predicate
	if f.Name != "" {
		where = append(where, records.Where(records.FieldName, records.Contains, f.Name))
	}
	if f.Gender != "" {
		where = append(where, records.Where("gender", records.ExactMatch, f.Gender))
	}
	switch {
	case f.AgeMin != nil && f.AgeMax != nil:
		where = append(where, records.Where("age", records.Between, *f.AgeMin, *f.AgeMax))
	case f.AgeMin != nil:
		where = append(where, records.Where("age", records.GreaterThanOrEquals, *f.AgeMin))
	case f.AgeMax != nil:
		where = append(where, records.Where("age", records.LessThanOrEquals, *f.AgeMax))
	}
	return append(where, records.NotDeleted())
}

type Service struct {
	gw records.Gateway
}

func NewService(gw records.Gateway) *Service {
	return &Service{gw: gw}
}

// List fetches one backend page of live patients and the total match count.
func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) ([]Patient, int, error) {
	res, err := s.gw.FetchMany(ctx, Table, records.Query{
		Fields: listFields,
		Paging: &records.Paging{Limit: p.Limit, Offset: p.Offset},
		Where:  f.predicates(),
	})
	if err != nil {
		return nil, 0, err
	}
	return FromRecords(res.Data), res.Count, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Patient, error) {
	rec, err := s.gw.FetchOne(ctx, Table, id, records.Query{
		Fields: detailFields,
		Where:  []records.Predicate{records.NotDeleted()},
	})
	if err != nil {
		return Patient{}, err
	}
	return FromRecord(rec), nil
}

// Create validates in and stores a new patient. Invalid input never reaches
// the gateway.
func (s *Service) Create(ctx context.Context, in Input) (Patient, error) {
	if err := in.Validate(); err != nil {
		return Patient{}, err
	}
	ui := in.UIRecord()
	delete(ui, "id")
	res, err := s.gw.CreateMany(ctx, Table, []records.Record{FieldMap.Map(ui)})
	if err != nil {
		return Patient{}, err
	}
	rec, err := res.First("create", Table)
	if err != nil {
		return Patient{}, err
	}
	return FromRecord(rec), nil
}

// Update validates in and writes it over the patient identified by in.ID.
func (s *Service) Update(ctx context.Context, in Input) (Patient, error) {
	if err := in.Validate(); err != nil {
		return Patient{}, err
	}
	rec, err := FieldMap.MapForUpdate(in.UIRecord())
	if err != nil {
		return Patient{}, &records.RemoteError{Op: "update", Table: Table, Message: "Patient ID is required for update operation", Err: err}
	}
	res, err := s.gw.UpdateMany(ctx, Table, []records.Record{rec})
	if err != nil {
		return Patient{}, err
	}
	out, err := res.First("update", Table)
	if err != nil {
		return Patient{}, err
	}
	return FromRecord(out), nil
}

// Delete soft-deletes one or more patients in a single call.
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
		return 0, fmt.Errorf("invalid patient id %q", s)
	}
	return id, nil
}
