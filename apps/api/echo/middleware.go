package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

const contextSessionKey = "scormSession"

// sessionOwnerMiddleware loads the session named by the :id param into the context and
// rejects requests from any learner but its owner.
func sessionOwnerMiddleware(mgr *scorm.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			sess, err := mgr.Session(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return err
			}
			if sess.UserID != claims.Subject {
				return errHttpForbidden
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		}
	}
}

func getContextSession(ctx echo.Context) (scorm.Session, bool) {
	sess, ok := ctx.Get(contextSessionKey).(scorm.Session)
	return sess, ok
}

// contextVersion is the SCORM version runtime error codes are rendered for.
func contextVersion(ctx echo.Context) cmi.Version {
	if sess, ok := getContextSession(ctx); ok {
		return sess.Version
	}
	return cmi.Version2004
}
