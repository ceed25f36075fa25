package records

import "errors"

// FieldMap translates UI field names into backend field names.
type FieldMap map[string]string

// Map produces a backend-shaped record. Keys without a mapping pass through
// unchanged.
func (m FieldMap) Map(ui map[string]any) Record {
	out := make(Record, len(ui))
	for k, v := range ui {
		if backend, ok := m[k]; ok {
			out[backend] = v
			continue
		}
		out[k] = v
	}
	return out
}

var ErrMissingID = errors.New("record identifier is required for update")

// MapForUpdate maps like Map and guarantees the canonical identifier is set,
// copying it from the "id" alias when the caller only provided that.
func (m FieldMap) MapForUpdate(ui map[string]any) (Record, error) {
	out := m.Map(ui)
	if _, ok := out.ID(); ok {
		return out, nil
	}
	if v, ok := ui["id"]; ok {
		out[FieldID] = v
		if _, ok := out.ID(); ok {
			return out, nil
		}
	}
	return nil, ErrMissingID
}
