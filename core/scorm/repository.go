package scorm

import (
	"context"
	"time"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
)

type (
	// Repository is the durable store of sessions, their tracking records and the attempt history.
	Repository interface {
		// CreateSession inserts an active session and its initial record.
		// ErrActiveSessionExists is returned when the learner already has an active session of the package.
		CreateSession(ctx context.Context, sess Session, t cmi.Tracking) error
		GetSession(ctx context.Context, id string) (Session, error)
		GetActiveSession(ctx context.Context, userID, packageID string) (Session, error)
		GetTracking(ctx context.Context, sessionID string) (cmi.Tracking, error)
		// LatestTracking returns the most recently updated record of the learner for the package.
		LatestTracking(ctx context.Context, userID, packageID string) (cmi.Tracking, error)
		// UpdateTracking reads the record, applies mutate and writes the result in one transaction.
		// The session's last activity is set to at. ErrSessionTerminated if the session is not active.
		UpdateTracking(ctx context.Context, sessionID string, at time.Time, mutate func(t *cmi.Tracking) error) (cmi.Tracking, error)
		TouchSession(ctx context.Context, sessionID string, at time.Time) error
		// TerminateSession applies mutate to the record, marks the session terminated and appends
		// the attempt row, in one transaction. ErrSessionTerminated if it already is.
		TerminateSession(ctx context.Context, sessionID string, at time.Time, mutate func(t *cmi.Tracking) error) (Attempt, error)
		// ListIdleSessions returns the active sessions without activity since cutoff.
		ListIdleSessions(ctx context.Context, cutoff time.Time) ([]Session, error)
		// ListAttempts returns the attempt history, newest first.
		ListAttempts(ctx context.Context, userID, packageID string) ([]Attempt, error)
		// ListLatestTrackings returns the latest record of each package the learner launched.
		ListLatestTrackings(ctx context.Context, userID string) ([]PackageTracking, error)
	}

	// PackageCatalog is the read-only boundary to the package upload service.
	PackageCatalog interface {
		GetPackage(ctx context.Context, id string) (Package, error)
	}
)
