package patient

import (
	"testing"

	"github.com/mediflow/frontdesk/internal/listview"
)

func TestListSpec_SearchCooper(t *testing.T) {
	items := []Patient{
		{ID: 1, Name: "Jane Cooper", Gender: GenderFemale, Phone: "555-0101"},
		{ID: 2, Name: "Michael Scott", Gender: GenderMale, Phone: "555-0102"},
	}
	page := listview.Apply(items, ListSpec(10), listview.Criteria{Search: "Cooper"}, 1)

	if len(page.Items) != 1 || page.Items[0].ID != 1 {
		t.Errorf("expected only Jane Cooper, got %+v", page.Items)
	}
}

func TestListSpec_SearchPhoneAndGender(t *testing.T) {
	items := []Patient{
		{ID: 1, Name: "Jane", Gender: GenderFemale, Phone: "555-0101"},
		{ID: 2, Name: "Mike", Gender: GenderMale, Phone: "555-0101"},
		{ID: 3, Name: "Ann", Gender: GenderFemale, Phone: "777"},
	}
	page := listview.Apply(items, ListSpec(10), listview.Criteria{Search: "0101", Category: "Female"}, 1)

	if len(page.Items) != 1 || page.Items[0].ID != 1 {
		t.Errorf("expected only patient 1, got %+v", page.Items)
	}
}

func TestListSpec_KeepsBackendOrder(t *testing.T) {
	items := []Patient{{ID: 3, Name: "C"}, {ID: 1, Name: "A"}, {ID: 2, Name: "B"}}
	page := listview.Apply(items, ListSpec(10), listview.Criteria{}, 1)
	for i, want := range []int64{3, 1, 2} {
		if page.Items[i].ID != want {
			t.Fatalf("position %d: expected %d, got %d", i, want, page.Items[i].ID)
		}
	}
}
