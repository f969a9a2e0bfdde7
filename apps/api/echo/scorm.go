package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

const (
	warnConflict   = "another process committed to this session since its last commit"
	warnSaveFailed = "progress may not be saved"
)

type scormApi struct {
	logger     core.Logger
	mgr        *scorm.Manager
	gateway    *scorm.Gateway
	scheduler  *scorm.Scheduler
	validate   *validator.Validate
	translator ut.Translator
}

func registerScormAPI(g *echo.Group, deps ServerDeps) {
	api := scormApi{
		logger:     deps.Logger,
		mgr:        deps.Manager,
		gateway:    deps.Gateway,
		scheduler:  deps.Scheduler,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	sg := g.Group("/scorm")

	// content in a frame cannot set headers on a WebSocket handshake
	sg.GET("/sessions/:id/rte", api.rte,
		middleware.JWTWithConfig(newJWTConfig(deps.Conf, "query:token")),
		sessionOwnerMiddleware(api.mgr),
	)

	ag := sg.Group("", middleware.JWTWithConfig(newJWTConfig(deps.Conf)))
	ag.POST("/launch", api.launch)
	ag.GET("/progress", api.userProgress)
	ag.GET("/packages/:id/progress", api.packageProgress)
	ag.GET("/packages/:id/attempts", api.attempts)

	// session endpoints
	dg := ag.Group("/sessions/:id", sessionOwnerMiddleware(api.mgr))
	dg.GET("/values/:key", api.getValue)
	dg.PUT("/values/:key", api.setValue)
	dg.POST("/commit", api.commit)
	dg.POST("/terminate", api.terminate)
	dg.GET("/progress", api.progress)
}

// Handlers

func (api *scormApi) launch(ctx echo.Context) error {
	var data LaunchRequest
	if err := bindAndValidate(ctx, &data, api.validate, api.translator); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	l, err := api.mgr.Launch(ctx.Request().Context(), scorm.LaunchRequest{
		PackageID:   data.PackageID,
		UserID:      claims.Subject,
		LearnerName: claims.Name,
	})
	if err != nil {
		return err
	}
	api.scheduler.Watch(l.SessionID)

	code := http.StatusCreated
	if l.Resumed {
		code = http.StatusOK
	}
	return ctx.JSON(code, LaunchResponse{
		SessionID: l.SessionID,
		Version:   l.Version,
		LaunchURL: l.LaunchURL,
		Resumed:   l.Resumed,
		Tracking:  l.Tracking,
	})
}

func (api *scormApi) getValue(ctx echo.Context) error {
	value, err := api.gateway.GetValue(ctx.Request().Context(), ctx.Param("id"), ctx.Param("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ValueResponse{Value: value})
}

func (api *scormApi) setValue(ctx echo.Context) error {
	var data SetValueRequest
	if err := bindAndValidate(ctx, &data, api.validate, api.translator); err != nil {
		return err
	}
	if err := api.gateway.SetValue(ctx.Request().Context(), ctx.Param("id"), ctx.Param("key"), *data.Value); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *scormApi) commit(ctx echo.Context) error {
	id := ctx.Param("id")
	report, err := api.gateway.Commit(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CommitResponse{
		Revision: report.Revision,
		Conflict: report.Conflict,
		Warning:  api.commitWarning(id, report),
	})
}

func (api *scormApi) terminate(ctx echo.Context) error {
	if err := api.terminateSession(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *scormApi) progress(ctx echo.Context) error {
	p, err := api.gateway.Progress(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *scormApi) userProgress(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	res, err := api.mgr.UserProgress(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting user progress")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *scormApi) packageProgress(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	p, err := api.mgr.PackageProgress(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *scormApi) attempts(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	res, err := api.mgr.Attempts(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

// Helpers

// terminateSession stops the auto-commit of a session, then terminates it.
// A failed last auto-commit is not fatal: Terminate writes the buffer with the final record.
func (api *scormApi) terminateSession(ctx context.Context, id string) error {
	if err := api.scheduler.Close(ctx, id); err != nil {
		api.logger.Warn("closing auto-commit of session "+id, err)
	}
	return api.gateway.Terminate(ctx, id)
}

func (api *scormApi) commitWarning(id string, report scorm.CommitReport) string {
	switch {
	case api.scheduler.SaveFailing(id):
		return warnSaveFailed
	case report.Conflict:
		return warnConflict
	}
	return ""
}
