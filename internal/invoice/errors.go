package invoice

import "fmt"

// ValidationError describes why a structured payload could not become a
// valid invoice. Reason is safe to surface to the end user so the
// conversation can continue and repair the data; it always names the
// offending field.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "missing required field"}
}

func invalidField(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
