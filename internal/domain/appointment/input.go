package appointment

import (
	"strconv"
	"time"

	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/platform/records"
)

// DateTimeLayout is the value format of a datetime-local input.
const DateTimeLayout = "2006-01-02T15:04"

// Input is the appointment form as submitted, keyed by UI field names.
type Input struct {
	ID              int64      `json:"id" form:"id"`
	Name            form.Value `json:"name" form:"name"`
	PatientID       form.Value `json:"patientId" form:"patientId"`
	AppointmentDate form.Value `json:"appointmentDate" form:"appointmentDate"`
	Status          form.Value `json:"status" form:"status"`
	Reason          form.Value `json:"reason" form:"reason"`
}

// NewInput returns an empty create form, optionally preselecting a patient.
func NewInput(patientID int64) Input {
	in := Input{Status: form.Value(StatusScheduled)}
	if patientID > 0 {
		in.PatientID = form.Value(strconv.FormatInt(patientID, 10))
	}
	return in
}

// InputFrom pre-fills the edit form, rendering the time in loc.
func InputFrom(a Appointment, loc *time.Location) Input {
	in := Input{
		ID:     a.ID,
		Name:   form.Value(a.Name),
		Status: form.Value(a.Status),
		Reason: form.Value(a.Reason),
	}
	if a.PatientID > 0 {
		in.PatientID = form.Value(strconv.FormatInt(a.PatientID, 10))
	}
	if !a.AppointmentDate.IsZero() {
		if loc == nil {
			loc = time.Local
		}
		in.AppointmentDate = form.Value(a.AppointmentDate.In(loc).Format(DateTimeLayout))
	}
	if in.Status == "" {
		in.Status = form.Value(StatusScheduled)
	}
	return in
}

// Validate checks every field and reports all failures together. Times
// without a zone are read in loc.
func (in Input) Validate(loc *time.Location) error {
	errs := form.Errors{}

	if in.Name.Trimmed() == "" {
		errs.Add("name", "Appointment name is required")
	}

	if in.PatientID.Trimmed() == "" {
		errs.Add("patientId", "Patient is required")
	} else if id, err := strconv.ParseInt(in.PatientID.Trimmed(), 10, 64); err != nil || id <= 0 {
		errs.Add("patientId", "Patient is required")
	}

	if in.AppointmentDate.Trimmed() == "" {
		errs.Add("appointmentDate", "Date and time are required")
	} else if _, ok := records.ParseTime(in.AppointmentDate.Trimmed(), loc); !ok {
		errs.Add("appointmentDate", "Invalid date and time")
	}

	if s := in.Status.Trimmed(); s != "" && !Status(s).Valid() {
		errs.Add("status", "Status must be scheduled, completed or cancelled")
	}

	return errs.Err()
}

// UIRecord returns the UI-shaped record handed to the field mapper. It must
// only be called on validated input.
func (in Input) UIRecord(loc *time.Location) map[string]any {
	patientID, _ := strconv.ParseInt(in.PatientID.Trimmed(), 10, 64)
	at, _ := records.ParseTime(in.AppointmentDate.Trimmed(), loc)
	status := in.Status.Trimmed()
	if status == "" {
		status = string(StatusScheduled)
	}
	rec := map[string]any{
		"name":            in.Name.Trimmed(),
		"patientId":       patientID,
		"appointmentDate": at.UTC().Format(time.RFC3339),
		"status":          status,
		"reason":          in.Reason.Trimmed(),
	}
	if in.ID != 0 {
		rec["id"] = in.ID
	}
	return rec
}
