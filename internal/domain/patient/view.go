package patient

import "github.com/mediflow/frontdesk/internal/listview"

// ListSpec searches name and phone and filters by gender. Patients keep
// backend order.
func ListSpec(pageSize int) listview.Spec[Patient] {
	return listview.Spec[Patient]{
		SearchFields: func(p Patient) []string { return []string{p.Name, p.Phone} },
		Category:     func(p Patient) string { return string(p.Gender) },
		PageSize:     pageSize,
	}
}
