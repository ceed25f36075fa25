package records

import (
	"errors"
	"fmt"
)

// RemoteError reports a backend or transport failure. Rejected is set when
// the backend answered with a non-success envelope rather than failing to
// answer at all.
type RemoteError struct {
	Op       string
	Table    string
	Message  string
	Rejected bool
	Err      error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Table, msg)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NotFoundError reports a point lookup on an identifier that does not exist.
type NotFoundError struct {
	Table string
	ID    int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Table, e.ID)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsRejected reports whether err is a backend non-success envelope.
func IsRejected(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Rejected
}

// Message extracts the human-facing part of a gateway error, or "" when
// there is none.
func Message(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		if re.Message != "" {
			return re.Message
		}
		if re.Err != nil {
			return re.Err.Error()
		}
		return ""
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
