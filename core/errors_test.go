package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var errInvalidLaunch = errors.New("invalid launch request")

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		flds     []FieldError
		wantMsg  string
		wantFlds map[string]string
	}{
		{name: "no cause", wantMsg: "", wantFlds: map[string]string{}},
		{
			name:     "required fields",
			err:      errInvalidLaunch,
			flds:     []FieldError{FieldRequired("package_id"), FieldRequired("user_id")},
			wantMsg:  "invalid launch request",
			wantFlds: map[string]string{"package_id": "this field is required", "user_id": "this field is required"},
		},
		{
			name:     "first message wins",
			err:      errInvalidLaunch,
			flds:     []FieldError{{Field: "typical_duration", Error: "not a duration"}, FieldRequired("typical_duration")},
			wantMsg:  "invalid launch request",
			wantFlds: map[string]string{"typical_duration": "not a duration"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.err, tt.flds...)
			vErr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("NewValidationError() = %T, want *ValidationError", err)
			}
			assert.Equal(t, tt.wantMsg, vErr.Error())
			assert.Equal(t, tt.wantFlds, vErr.FieldMessages())
			assert.Equal(t, tt.err, vErr.Unwrap())
		})
	}
}

func TestIsShutdown(t *testing.T) {
	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("db gone"), "committing")))
	assert.False(t, IsShutdown(errors.New("nope")))
}
