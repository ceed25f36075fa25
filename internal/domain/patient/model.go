package patient

import (
	"time"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

// Table is the backend table holding patients.
const Table = records.TablePatient

// Gender is the administrative gender shown on the patient form.
type Gender string

const (
	GenderFemale Gender = "Female"
	GenderMale   Gender = "Male"
	GenderOther  Gender = "Other"
)

// Genders lists the selectable values in display order.
var Genders = []Gender{GenderFemale, GenderMale, GenderOther}

func (g Gender) Valid() bool {
	for _, v := range Genders {
		if g == v {
			return true
		}
	}
	return false
}

// Patient is a patient record as read from the backend.
type Patient struct {
	ID        int64     `json:"Id"`
	Name      string    `json:"Name"`
	Age       int       `json:"age"`
	Gender    Gender    `json:"gender"`
	Phone     string    `json:"phone"`
	Tags      string    `json:"Tags,omitempty"`
	Owner     string    `json:"Owner,omitempty"`
	CreatedOn time.Time `json:"CreatedOn"`
}

func (p Patient) GetID() int64 { return p.ID }

// FromRecord decodes a backend row. Missing fields keep their zero value.
func FromRecord(r records.Record) Patient {
	p := Patient{
		Name:   r.String(records.FieldName),
		Gender: Gender(r.String("gender")),
		Phone:  r.String("phone"),
		Tags:   r.String(records.FieldTags),
		Owner:  r.String(records.FieldOwner),
	}
	p.ID, _ = r.ID()
	if age, ok := r.Int64("age"); ok {
		p.Age = int(age)
	}
	if t, ok := r.Time(records.FieldCreatedOn); ok {
		p.CreatedOn = t
	}
	return p
}

// FromRecords decodes a batch of rows in order.
func FromRecords(rows []records.Record) []Patient {
	out := make([]Patient, len(rows))
	for i, r := range rows {
		out[i] = FromRecord(r)
	}
	return out
}

// FieldMap translates patient form keys into backend field names.
var FieldMap = records.FieldMap{
	"id":        records.FieldID,
	"name":      records.FieldName,
	"age":       "age",
	"gender":    "gender",
	"phone":     "phone",
	"tags":      records.FieldTags,
	"owner":     records.FieldOwner,
	"createdOn": records.FieldCreatedOn,
	"isDeleted": records.FieldIsDeleted,
}

// listFields are requested by list fetches.
var listFields = []string{
	records.FieldID, records.FieldName, "age", "gender", "phone", records.FieldTags, records.FieldCreatedOn,
}

// detailFields add the owner for point lookups.
var detailFields = append(append([]string(nil), listFields...), records.FieldOwner)
