package records

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPredicate_Contains_CaseInsensitive(t *testing.T) {
	r := Record{FieldName: "Alice Cooper"}
	if !Where(FieldName, Contains, "cooper").Match(r) {
		t.Error("expected Contains to ignore case")
	}
	if Where(FieldName, Contains, "smith").Match(r) {
		t.Error("expected no match for smith")
	}
	if Where("phone", Contains, "1").Match(r) {
		t.Error("expected missing field not to match")
	}
}

func TestPredicate_Between_Inclusive(t *testing.T) {
	p := Where("age", Between, 30, 40)
	for age, want := range map[int]bool{29: false, 30: true, 35: true, 40: true, 41: false} {
		if got := p.Match(Record{"age": int64(age)}); got != want {
			t.Errorf("age %d: expected %v, got %v", age, want, got)
		}
	}
}

func TestPredicate_TimeComparison(t *testing.T) {
	at := time.Date(2023, 11, 16, 9, 0, 0, 0, time.UTC)
	r := Record{"appointmentDate": at}

	if !Where("appointmentDate", GreaterThanOrEquals, "2023-11-16T00:00:00Z").Match(r) {
		t.Error("expected GTE with RFC3339 string to match")
	}
	if Where("appointmentDate", LessThanOrEquals, at.Add(-time.Minute)).Match(r) {
		t.Error("expected LTE before the appointment not to match")
	}
}

func TestPredicate_ExactMatch(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		pred Predicate
		want bool
	}{
		{"string", Record{"status": "scheduled"}, Where("status", ExactMatch, "scheduled"), true},
		{"string mismatch", Record{"status": "completed"}, Where("status", ExactMatch, "scheduled"), false},
		{"int vs string", Record{"patient": int64(3)}, Where("patient", ExactMatch, "3"), true},
		{"bool", Record{FieldIsDeleted: true}, NotDeleted(), false},
		{"missing flag counts as false", Record{}, NotDeleted(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred.Match(tt.rec); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPredicate_Validate(t *testing.T) {
	if err := Where("age", Between, 1).Validate(); err == nil {
		t.Error("expected arity error for Between with one value")
	}
	if err := Where("age", Operator("Like"), 1).Validate(); err == nil {
		t.Error("expected unsupported operator error")
	}
	if err := Where("age", GreaterThanOrEquals, 1).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMutationResult_First(t *testing.T) {
	data := Record{FieldID: int64(7), FieldName: "Alice"}

	got, err := (&MutationResult{Success: true, Results: []RecordResult{{Success: true, Data: data}}}).First("create", TablePatient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	_, err = (&MutationResult{Success: true}).First("create", TablePatient)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError for empty results, got %v", err)
	}
	if re.Rejected {
		t.Error("expected empty results not to count as a rejection")
	}

	_, err = (&MutationResult{Success: false, Message: "quota exceeded"}).First("create", TablePatient)
	if !IsRejected(err) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if Message(err) != "quota exceeded" {
		t.Errorf("expected backend message, got %q", Message(err))
	}

	_, err = (&MutationResult{Success: false, Message: "batch failed", Results: []RecordResult{{Message: "phone taken"}}}).First("create", TablePatient)
	if Message(err) != "phone taken" {
		t.Errorf("expected per-record message, got %q", Message(err))
	}
}

func TestMutate_PartialFailure(t *testing.T) {
	res := Mutate([]Record{{"n": 1}, {"n": 2}}, func(r Record) (Record, error) {
		if r["n"] == 2 {
			return nil, errors.New("boom")
		}
		return r, nil
	})
	if res.Success {
		t.Error("expected envelope failure when one record fails")
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Results))
	}
	if !res.Results[0].Success || res.Results[1].Success {
		t.Errorf("unexpected per-record flags: %+v", res.Results)
	}
	if !strings.Contains(res.Message, "record 1") {
		t.Errorf("expected message to name the failed record, got %q", res.Message)
	}
}

func TestFieldMap_Map(t *testing.T) {
	m := FieldMap{"id": FieldID, "name": FieldName, "patientId": "patient"}
	got := m.Map(map[string]any{"name": "Checkup", "patientId": 3, "status": "scheduled"})
	want := Record{FieldName: "Checkup", "patient": 3, "status": "scheduled"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mapped record mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldMap_MapForUpdate(t *testing.T) {
	m := FieldMap{"name": FieldName}

	got, err := m.MapForUpdate(map[string]any{"id": int64(4), "name": "Bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, _ := got.ID(); id != 4 {
		t.Errorf("expected Id 4, got %v", got[FieldID])
	}

	if _, err := m.MapForUpdate(map[string]any{"name": "Bob"}); !errors.Is(err, ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
}

func TestTableDef_Normalize(t *testing.T) {
	def := FrontDeskSchema()[TablePatient]

	got, err := def.Normalize(Record{FieldID: 9, FieldName: "Ann", "age": "42", FieldCreatedOn: "2020-01-01"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Record{FieldName: "Ann", "age": int64(42)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("normalized record mismatch (-want +got):\n%s", diff)
	}

	got, err = def.Normalize(Record{FieldID: 9, "age": ""}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(Record{FieldID: int64(9), "age": nil}, got); diff != "" {
		t.Errorf("update record mismatch (-want +got):\n%s", diff)
	}

	if _, err := def.Normalize(Record{"weight": 80}, false); err == nil {
		t.Error("expected unknown field error")
	}
	if _, err := def.Normalize(Record{"age": "forty"}, false); err == nil {
		t.Error("expected coercion error for non-integer age")
	}
}

func TestSortAndPage(t *testing.T) {
	rows := []Record{
		{FieldID: int64(1), "appointmentDate": "2023-11-17T10:00:00Z"},
		{FieldID: int64(2), "appointmentDate": "2023-11-15T10:00:00Z"},
		{FieldID: int64(3), "appointmentDate": "2023-11-16T10:00:00Z"},
	}
	SortRecords(rows, []Order{{Field: "appointmentDate", Direction: Desc}})

	var ids []int64
	for _, r := range rows {
		id, _ := r.ID()
		ids = append(ids, id)
	}
	if diff := cmp.Diff([]int64{1, 3, 2}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if got := Page(rows, &Paging{Limit: 2, Offset: 2}); len(got) != 1 {
		t.Errorf("expected 1 row on the second page, got %d", len(got))
	}
	if got := Page(rows, &Paging{Limit: 2, Offset: 5}); got != nil {
		t.Errorf("expected no rows past the end, got %d", len(got))
	}
}

func TestEmbed(t *testing.T) {
	rows := []Record{{FieldID: int64(1), "patient": int64(10)}, {FieldID: int64(2), "patient": int64(11)}}
	related := map[int64]Record{10: {FieldID: int64(10), FieldName: "Alice"}}

	if diff := cmp.Diff([]int64{10, 11}, ReferencedIDs(rows, "patient")); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	Embed(rows, "patient", "patientInfo", related)
	info, ok := rows[0].Nested("patientInfo")
	if !ok || info.String(FieldName) != "Alice" {
		t.Errorf("expected embedded patient Alice, got %v", rows[0]["patientInfo"])
	}
	if _, ok := rows[1]["patientInfo"]; ok {
		t.Error("expected no alias for a dangling reference")
	}
}

func TestParseTime_LocalLayouts(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	got, ok := ParseTime("2023-11-16T14:30", loc)
	if !ok {
		t.Fatal("expected datetime-local layout to parse")
	}
	if got.Location() != loc || got.Hour() != 14 {
		t.Errorf("expected 14:30 in EST, got %v", got)
	}
	if _, ok := ParseTime("16/11/2023", loc); ok {
		t.Error("expected unsupported layout to fail")
	}
}
