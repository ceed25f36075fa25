package patient

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/platform/records"
)

func TestInput_Validate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want form.Errors
	}{
		{"valid", Input{Name: "Jane", Age: "0", Phone: "+1 (555) 123-4567"}, nil},
		{"all missing", Input{Name: "  ", Phone: " "}, form.Errors{
			"name":  "Patient name is required",
			"age":   "Age is required",
			"phone": "Phone number is required",
		}},
		{"age too high", Input{Name: "Jane", Age: "121", Phone: "555"}, form.Errors{"age": "Age must be between 0 and 120"}},
		{"age negative", Input{Name: "Jane", Age: "-1", Phone: "555"}, form.Errors{"age": "Age must be between 0 and 120"}},
		{"age not a number", Input{Name: "Jane", Age: "forty", Phone: "555"}, form.Errors{"age": "Age must be a whole number"}},
		{"bad phone", Input{Name: "Jane", Age: "40", Phone: "555-CALL"}, form.Errors{"phone": "Invalid phone number format"}},
		{"bad gender", Input{Name: "Jane", Age: "40", Phone: "555", Gender: "Unknown"}, form.Errors{"gender": "Gender must be Female, Male or Other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := form.FieldErrors(tt.in.Validate())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("errors mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInput_MapsToBackendFields(t *testing.T) {
	in := Input{ID: 9, Name: " Jane ", Age: "41", Phone: "555"}
	got, err := FieldMap.MapForUpdate(in.UIRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := records.Record{
		records.FieldID:   int64(9),
		records.FieldName: "Jane",
		"age":             41,
		"gender":          "Female",
		"phone":           "555",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestInputFrom_DefaultsGender(t *testing.T) {
	in := InputFrom(Patient{ID: 3, Name: "Bob", Age: 50})
	if in.Gender != form.Value(GenderFemale) {
		t.Errorf("expected default gender Female, got %q", in.Gender)
	}
	if in.Age != "50" {
		t.Errorf("expected age 50, got %q", in.Age)
	}
}

func TestFromRecord(t *testing.T) {
	p := FromRecord(records.Record{
		records.FieldID:        int64(4),
		records.FieldName:      "Jane Cooper",
		"age":                  float64(34),
		"gender":               "Female",
		"phone":                "555",
		records.FieldCreatedOn: "2023-11-01T08:00:00Z",
	})
	if p.ID != 4 || p.Age != 34 || p.Name != "Jane Cooper" {
		t.Errorf("unexpected patient: %+v", p)
	}
	if p.CreatedOn.Year() != 2023 {
		t.Errorf("expected CreatedOn parsed, got %v", p.CreatedOn)
	}
}
