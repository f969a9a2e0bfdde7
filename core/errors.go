package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific request or descriptor field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// FieldRequired reports a missing or blank field.
func FieldRequired(field string) FieldError {
	return FieldError{Field: field, Error: "this field is required"}
}

// ValidationError is returned when a launch request, an API payload or a package descriptor is invalid.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// FieldMessages maps each invalid field to its message, the first one winning.
func (err ValidationError) FieldMessages() map[string]string {
	msgs := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		if _, ok := msgs[f.Field]; !ok {
			msgs[f.Field] = f.Error
		}
	}
	return msgs
}

// shutdown asks the API process to stop, e.g. when the tracking store is gone for good.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
