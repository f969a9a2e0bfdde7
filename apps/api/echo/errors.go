package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "learner not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// scormStatus is the HTTP status of each runtime error code.
var scormStatus = map[scorm.ErrorCode]int{
	scorm.CodeSessionNotFound:           http.StatusNotFound,
	scorm.CodePackageNotFound:           http.StatusNotFound,
	scorm.CodeSessionAlreadyTerminated:  http.StatusConflict,
	scorm.CodeConcurrentSessionConflict: http.StatusConflict,
	scorm.CodeUnknownCmiKey:             http.StatusBadRequest,
	scorm.CodeInvalidValueFormat:        http.StatusBadRequest,
	scorm.CodeReadOnlyKeyWriteAttempt:   http.StatusForbidden,
	scorm.CodeCommitFailed:              http.StatusServiceUnavailable,
}

// scormErrorBody is the body of a failed runtime call.
type scormErrorBody struct {
	Error   string          `json:"error"`
	Code    scorm.ErrorCode `json:"code"`
	RTECode int             `json:"rte_code"`
}

func newScormErrorBody(err *scorm.Error, v cmi.Version) scormErrorBody {
	return scormErrorBody{Error: err.Error(), Code: err.Code, RTECode: err.RTECode(v)}
}

// contextPerson returns the learner of the request, if authenticated.
func contextPerson(ctx echo.Context) core.Person {
	var p core.Person
	if claims, err := getContextClaims(ctx); err == nil {
		p.ID = claims.Subject
		p.Username = claims.Name
	}
	return p
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		serverError := func() {
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextPerson(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				message = origErr.FieldMessages()
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *scorm.Error:
			status, ok := scormStatus[origErr.Code]
			if !ok {
				serverError()
			} else {
				code = status
			}
			message = newScormErrorBody(origErr, contextVersion(ctx))
		default: // any other error is a server error
			serverError()
		}

		if m, ok := message.(string); ok {
			if ctx.Echo().Debug {
				m = err.Error()
			}
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
