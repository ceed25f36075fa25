package appointment

import (
	"time"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

// Table is the backend table holding appointments.
const Table = records.TableAppointment

// PatientExpand embeds the referenced patient under "patientInfo".
var PatientExpand = records.Expand{Name: "patient", Alias: "patientInfo"}

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists the selectable values in display order.
var Statuses = []Status{StatusScheduled, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// PatientRef is the embedded patient returned by the expand.
type PatientRef struct {
	ID    int64  `json:"Id"`
	Name  string `json:"Name"`
	Phone string `json:"phone,omitempty"`
}

// Appointment is an appointment record as read from the backend.
type Appointment struct {
	ID              int64       `json:"Id"`
	Name            string      `json:"Name"`
	PatientID       int64       `json:"patient"`
	AppointmentDate time.Time   `json:"appointmentDate"`
	Status          Status      `json:"status"`
	Reason          string      `json:"reason"`
	Tags            string      `json:"Tags,omitempty"`
	Owner           string      `json:"Owner,omitempty"`
	CreatedOn       time.Time   `json:"CreatedOn"`
	PatientInfo     *PatientRef `json:"patientInfo,omitempty"`
}

func (a Appointment) GetID() int64 { return a.ID }

// PatientName is the expanded patient's name, or "" when not expanded.
func (a Appointment) PatientName() string {
	if a.PatientInfo == nil {
		return ""
	}
	return a.PatientInfo.Name
}

// FromRecord decodes a backend row, including the patientInfo expand.
// Timestamps stored without a zone are read in loc.
func FromRecord(r records.Record, loc *time.Location) Appointment {
	a := Appointment{
		Name:   r.String(records.FieldName),
		Status: Status(r.String("status")),
		Reason: r.String("reason"),
		Tags:   r.String(records.FieldTags),
		Owner:  r.String(records.FieldOwner),
	}
	a.ID, _ = r.ID()
	a.PatientID, _ = r.Int64("patient")
	if t, ok := r.TimeIn("appointmentDate", loc); ok {
		a.AppointmentDate = t
	}
	if t, ok := r.TimeIn(records.FieldCreatedOn, loc); ok {
		a.CreatedOn = t
	}
	if info, ok := r.Nested(PatientExpand.Alias); ok {
		ref := &PatientRef{Name: info.String(records.FieldName), Phone: info.String("phone")}
		ref.ID, _ = info.ID()
		a.PatientInfo = ref
	}
	return a
}

func FromRecords(rows []records.Record, loc *time.Location) []Appointment {
	out := make([]Appointment, len(rows))
	for i, r := range rows {
		out[i] = FromRecord(r, loc)
	}
	return out
}

// FieldMap translates appointment form keys into backend field names.
var FieldMap = records.FieldMap{
	"id":              records.FieldID,
	"name":            records.FieldName,
	"patientId":       "patient",
	"appointmentDate": "appointmentDate",
	"status":          "status",
	"reason":          "reason",
	"tags":            records.FieldTags,
	"owner":           records.FieldOwner,
	"createdOn":       records.FieldCreatedOn,
	"isDeleted":       records.FieldIsDeleted,
}

var listFields = []string{
	records.FieldID, records.FieldName, "patient", "appointmentDate", "status", "reason", records.FieldCreatedOn,
}

var detailFields = append(append([]string(nil), listFields...), records.FieldOwner)
