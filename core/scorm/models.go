// Package scorm is the SCORM runtime engine: session lifecycle, the runtime API gateway content talks
// to, the auto-commit scheduler and the idle sweeper.
package scorm

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
)

var (
	newSessionID = func() string { return uuid.New().String() }  // mockable
	newAttemptID = func() string { return ulid.Make().String() } // mockable
)

type (
	// Package is the descriptor of an uploaded SCORM package. The engine never mutates it.
	Package struct {
		ID              string       `json:"id" validate:"required,notblank"`
		Version         cmi.Version  `json:"version" validate:"required,scormversion"`
		Title           string       `json:"title"`
		LaunchURL       string       `json:"launch_url" validate:"required,notblank"`
		LaunchData      string       `json:"launch_data,omitempty"`
		Organization    Organization `json:"organization"`
		TypicalDuration cmi.Duration `json:"typical_duration"`
	}

	Organization struct {
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
		Items      []Item `json:"items,omitempty"`
	}

	Item struct {
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
		Href       string `json:"href,omitempty"`
		Items      []Item `json:"items,omitempty"`
	}
)

type SessionState string

const (
	StateActive     SessionState = "active"
	StateTerminated SessionState = "terminated"
)

// Session is one launch of a package by a learner.
type Session struct {
	ID             string       `json:"id"`
	PackageID      string       `json:"package_id"`
	UserID         string       `json:"user_id"`
	Version        cmi.Version  `json:"version"`
	State          SessionState `json:"state"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	TerminatedAt   time.Time    `json:"terminated_at,omitempty"` // zero while active
}

func (s Session) Active() bool { return s.State == StateActive }

// Attempt is the history row appended each time a session terminates.
type Attempt struct {
	ID               string               `json:"id"`
	SessionID        string               `json:"session_id"`
	PackageID        string               `json:"package_id"`
	UserID           string               `json:"user_id"`
	LessonStatus     cmi.LessonStatus     `json:"lesson_status"`
	CompletionStatus cmi.CompletionStatus `json:"completion_status,omitempty"`
	ScoreRaw         *float64             `json:"score_raw"`
	ScoreMax         *float64             `json:"score_max"`
	SessionTime      cmi.Duration         `json:"session_time"`
	TotalTime        cmi.Duration         `json:"total_time"`
	Archived         bool                 `json:"archived"`
	TerminatedAt     time.Time            `json:"terminated_at"`
}

// NewAttempt builds the history row of sess closed with the final record t.
func NewAttempt(sess Session, t cmi.Tracking, at time.Time) Attempt {
	return Attempt{
		ID:               newAttemptID(),
		SessionID:        sess.ID,
		PackageID:        sess.PackageID,
		UserID:           sess.UserID,
		LessonStatus:     t.LessonStatus,
		CompletionStatus: t.CompletionStatus,
		ScoreRaw:         t.ScoreRaw,
		ScoreMax:         t.ScoreMax,
		SessionTime:      t.SessionTime,
		TotalTime:        t.TotalTime,
		Archived:         t.Archived(),
		TerminatedAt:     at.UTC(),
	}
}

// PackageTracking is the latest record of a learner for one package.
type PackageTracking struct {
	PackageID string
	Tracking  cmi.Tracking
}

type (
	LaunchRequest struct {
		PackageID   string `json:"package_id" validate:"required,notblank"`
		UserID      string `json:"user_id" validate:"required,notblank"`
		LearnerName string `json:"learner_name"`
	}

	Launch struct {
		SessionID string       `json:"session_id"`
		PackageID string       `json:"package_id"`
		Version   cmi.Version  `json:"version"`
		LaunchURL string       `json:"launch_url"`
		Resumed   bool         `json:"resumed"`
		Tracking  cmi.Tracking `json:"tracking"`
	}

	// CommitReport describes a successful commit.
	// Conflict is set when another process committed to the same session since this one last did.
	CommitReport struct {
		Keys     []string `json:"keys"`
		Revision int64    `json:"revision"`
		Conflict bool     `json:"conflict"`
	}
)
