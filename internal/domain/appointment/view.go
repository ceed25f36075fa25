package appointment

import (
	"time"

	"github.com/mediflow/frontdesk/internal/listview"
)

// ListSpec searches title, reason and the patient's name, filters by status
// and date, and orders by appointment time ascending.
func ListSpec(pageSize int, loc *time.Location) listview.Spec[Appointment] {
	return listview.Spec[Appointment]{
		SearchFields: func(a Appointment) []string { return []string{a.Name, a.Reason, a.PatientName()} },
		Category:     func(a Appointment) string { return string(a.Status) },
		Time: func(a Appointment) (time.Time, bool) {
			return a.AppointmentDate, !a.AppointmentDate.IsZero()
		},
		PageSize: pageSize,
		Location: loc,
	}
}

// Upcoming returns the first n scheduled appointments, soonest first.
func Upcoming(items []Appointment, n int) []Appointment {
	scheduled := listview.Filter(items, ListSpec(0, nil), listview.Criteria{Category: string(StatusScheduled)})
	if len(scheduled) > n {
		scheduled = scheduled[:n]
	}
	return scheduled
}

// CountByStatus tallies appointments per status.
func CountByStatus(items []Appointment) map[Status]int {
	out := make(map[Status]int, len(Statuses))
	for _, a := range items {
		out[a.Status]++
	}
	return out
}
