package patient

import (
	"regexp"
	"strconv"

	"github.com/mediflow/frontdesk/internal/form"
)

const (
	MinAge = 0
	MaxAge = 120
)

var phonePattern = regexp.MustCompile(`^[\d\s()+\-]+$`)

// Input is the patient form as submitted, keyed by UI field names.
type Input struct {
	ID     int64      `json:"id" form:"id"`
	Name   form.Value `json:"name" form:"name"`
	Age    form.Value `json:"age" form:"age"`
	Gender form.Value `json:"gender" form:"gender"`
	Phone  form.Value `json:"phone" form:"phone"`
}

// NewInput returns an empty create form.
func NewInput() Input {
	return Input{Gender: form.Value(GenderFemale)}
}

// InputFrom pre-fills the edit form.
func InputFrom(p Patient) Input {
	in := Input{
		ID:     p.ID,
		Name:   form.Value(p.Name),
		Gender: form.Value(p.Gender),
		Phone:  form.Value(p.Phone),
	}
	if p.Age != 0 {
		in.Age = form.Value(strconv.Itoa(p.Age))
	}
	if in.Gender == "" {
		in.Gender = form.Value(GenderFemale)
	}
	return in
}

// Validate checks every field and reports all failures together.
func (in Input) Validate() error {
	errs := form.Errors{}

	if in.Name.Trimmed() == "" {
		errs.Add("name", "Patient name is required")
	}

	if in.Age.Trimmed() == "" {
		errs.Add("age", "Age is required")
	} else if age, err := strconv.Atoi(in.Age.Trimmed()); err != nil {
		errs.Add("age", "Age must be a whole number")
	} else if age < MinAge || age > MaxAge {
		errs.Add("age", "Age must be between 0 and 120")
	}

	if in.Phone.Trimmed() == "" {
		errs.Add("phone", "Phone number is required")
	} else if !phonePattern.MatchString(in.Phone.String()) {
		errs.Add("phone", "Invalid phone number format")
	}

	if g := in.Gender.Trimmed(); g != "" && !Gender(g).Valid() {
		errs.Add("gender", "Gender must be Female, Male or Other")
	}

	return errs.Err()
}

// UIRecord returns the UI-shaped record handed to the field mapper. It must
// only be called on validated input.
func (in Input) UIRecord() map[string]any {
	age, _ := strconv.Atoi(in.Age.Trimmed())
	gender := in.Gender.Trimmed()
	if gender == "" {
		gender = string(GenderFemale)
	}
	rec := map[string]any{
		"name":   in.Name.Trimmed(),
		"age":    age,
		"gender": gender,
		"phone":  in.Phone.Trimmed(),
	}
	if in.ID != 0 {
		rec["id"] = in.ID
	}
	return rec
}
