package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

func appointmentDef() *records.TableDef {
	return records.FrontDeskSchema()[records.TableAppointment]
}

func TestBuildSelect_WhereOrderPaging(t *testing.T) {
	from := time.Date(2023, 11, 16, 0, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Second)

	sq, err := buildSelect(appointmentDef(), records.Query{
		Fields: []string{records.FieldName, "status"},
		Where: []records.Predicate{
			records.Where("status", records.ExactMatch, "scheduled"),
			records.Where("appointmentDate", records.Between, from, to),
			records.Where("reason", records.Contains, "50%"),
			records.NotDeleted(),
		},
		OrderBy: []records.Order{{Field: "appointmentDate", Direction: records.Desc}},
		Paging:  &records.Paging{Limit: 20, Offset: 40},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantWhere := ` WHERE "status" = $1 AND "appointmentDate" BETWEEN $2 AND $3 AND "reason"::text ILIKE '%' || $4 || '%' AND COALESCE("IsDeleted", false) = $5`
	wantSQL := `SELECT "Id", "Name", "status" FROM "appointment"` + wantWhere +
		` ORDER BY "appointmentDate" DESC LIMIT $6 OFFSET $7`
	if sq.SQL != wantSQL {
		t.Errorf("unexpected SQL:\n got: %s\nwant: %s", sq.SQL, wantSQL)
	}
	if sq.CountSQL != `SELECT COUNT(*) FROM "appointment"`+wantWhere {
		t.Errorf("unexpected count SQL: %s", sq.CountSQL)
	}

	wantArgs := []any{"scheduled", from, to, `50\%`, false, 20, 40}
	if diff := cmp.Diff(wantArgs, sq.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if len(sq.CountArgs) != 5 {
		t.Errorf("expected 5 count args, got %d", len(sq.CountArgs))
	}
}

func TestBuildSelect_DefaultOrderAndColumns(t *testing.T) {
	sq, err := buildSelect(appointmentDef(), records.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(sq.SQL, `SELECT "Id", "Name", "Tags", "Owner", "CreatedOn", "IsDeleted", "patient"`) {
		t.Errorf("expected every column selected, got %s", sq.SQL)
	}
	if !strings.HasSuffix(sq.SQL, `ORDER BY "Id" ASC`) {
		t.Errorf("expected stable default order, got %s", sq.SQL)
	}
	if len(sq.Args) != 0 {
		t.Errorf("expected no args, got %v", sq.Args)
	}
}

func TestBuildSelect_RejectsUnknownFields(t *testing.T) {
	tests := []records.Query{
		{Fields: []string{"password"}},
		{Where: []records.Predicate{records.Where(`Name"; DROP TABLE patient; --`, records.ExactMatch, "x")}},
		{OrderBy: []records.Order{{Field: "weight"}}},
		{Where: []records.Predicate{records.Where("status", records.Between, "a")}},
	}
	for i, q := range tests {
		if _, err := buildSelect(appointmentDef(), q); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestBuildSelect_CoercesValues(t *testing.T) {
	sq, err := buildSelect(appointmentDef(), records.Query{
		Where: []records.Predicate{records.Where("patient", records.ExactMatch, "12")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{int64(12)}, sq.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildInsert(t *testing.T) {
	sql, args := buildInsert(appointmentDef(), records.Record{"status": "scheduled", records.FieldName: "Checkup"})
	want := `INSERT INTO "appointment" ("Name", "status") VALUES ($1, $2) RETURNING "Id", "Name", "Tags", "Owner", "CreatedOn", "IsDeleted", "patient", "appointmentDate", "status", "reason"`
	if sql != want {
		t.Errorf("unexpected SQL:\n got: %s\nwant: %s", sql, want)
	}
	if diff := cmp.Diff([]any{"Checkup", "scheduled"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildUpdate(t *testing.T) {
	sql, args, ok := buildUpdate(appointmentDef(), records.Record{records.FieldID: int64(5), "status": "completed"})
	if !ok {
		t.Fatal("expected an update statement")
	}
	if !strings.HasPrefix(sql, `UPDATE "appointment" SET "status" = $2 WHERE "Id" = $1 AND NOT "IsDeleted" RETURNING`) {
		t.Errorf("unexpected SQL: %s", sql)
	}
	if diff := cmp.Diff([]any{int64(5), "completed"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	if _, _, ok := buildUpdate(appointmentDef(), records.Record{records.FieldID: int64(5)}); ok {
		t.Error("expected no statement for an identifier-only patch")
	}
}

func TestBuildSoftDelete_DeduplicatesIDs(t *testing.T) {
	sql, ids := buildSoftDelete(appointmentDef(), []int64{3, 1, 3, 1, 7})
	want := `UPDATE "appointment" SET "IsDeleted" = true WHERE "Id" = ANY($1) AND NOT "IsDeleted"`
	if sql != want {
		t.Errorf("unexpected SQL:\n got: %s\nwant: %s", sql, want)
	}
	if diff := cmp.Diff([]int64{3, 1, 7}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}
