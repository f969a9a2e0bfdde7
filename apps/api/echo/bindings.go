package echoapi

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
)

type (
	LaunchRequest struct {
		PackageID string `json:"package_id" validate:"required,notblank"`
	}

	LaunchResponse struct {
		SessionID string       `json:"session_id"`
		Version   cmi.Version  `json:"version"`
		LaunchURL string       `json:"launch_url"`
		Resumed   bool         `json:"resumed"`
		Tracking  cmi.Tracking `json:"tracking"`
	}

	// SetValueRequest carries the value of a SetValue call; the empty string is a valid value.
	SetValueRequest struct {
		Value *string `json:"value" validate:"required"`
	}

	ValueResponse struct {
		Value string `json:"value"`
	}

	SuccessResponse struct {
		Success bool `json:"success"`
	}

	CommitResponse struct {
		Revision int64  `json:"revision"`
		Conflict bool   `json:"conflict"`
		Warning  string `json:"warning,omitempty"`
	}
)

// bindAndValidate binds the request body into data and validates it.
func bindAndValidate(ctx echo.Context, data interface{}, validate *validator.Validate, translator ut.Translator) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrapf(err, "binding to %T", data)
	}
	if err := validate.Struct(data); err != nil {
		return core.TranslateValidationErrors(err, translator)
	}
	return nil
}
