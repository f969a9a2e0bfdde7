package cmi

import (
	"time"

	"github.com/pkg/errors"
)

// Tracking is the durable CMI record of one session.
type Tracking struct {
	Version  Version `json:"version"`
	Revision int64   `json:"revision"`

	LessonLocation   string           `json:"lesson_location"`
	LessonStatus     LessonStatus     `json:"lesson_status"`
	CompletionStatus CompletionStatus `json:"completion_status,omitempty"`
	SuccessStatus    SuccessStatus    `json:"success_status,omitempty"`

	ScoreRaw    *float64 `json:"score_raw,omitempty"`
	ScoreMin    *float64 `json:"score_min,omitempty"`
	ScoreMax    *float64 `json:"score_max,omitempty"`
	ScoreScaled *float64 `json:"score_scaled,omitempty"`

	TotalTime   Duration `json:"total_time"`
	SessionTime Duration `json:"session_time"`

	SuspendData []byte `json:"suspend_data,omitempty"`
	LaunchData  []byte `json:"launch_data,omitempty"`

	Entry       Entry  `json:"entry"`
	Exit        string `json:"exit,omitempty"`
	LearnerID   string `json:"learner_id"`
	LearnerName string `json:"learner_name"`
	Credit      string `json:"credit"`
	Mode        string `json:"mode"`

	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewTracking returns the default record of a first launch.
func NewTracking(v Version) Tracking {
	t := Tracking{
		Version:      v,
		LessonStatus: StatusNotAttempted,
		Entry:        EntryAbInitio,
		Credit:       "credit",
		Mode:         "normal",
	}
	if v == Version2004 {
		t.CompletionStatus = CompletionUnknown
		t.SuccessStatus = SuccessUnknown
	}
	return t
}

// Archived reports whether the attempt recorded by t is closed.
func (t Tracking) Archived() bool {
	return t.LessonStatus.Terminal()
}

// Seed copies the state a new session inherits from the learner's previous record of the same
// package. Total time always carries over; an archived attempt starts the next one from scratch.
func (t *Tracking) Seed(prev Tracking) {
	t.TotalTime = prev.TotalTime
	if prev.Archived() || prev.Version != t.Version {
		return
	}
	t.LessonLocation = prev.LessonLocation
	t.LessonStatus = prev.LessonStatus
	t.CompletionStatus = prev.CompletionStatus
	t.SuccessStatus = prev.SuccessStatus
	t.ScoreRaw = copyFloat(prev.ScoreRaw)
	t.ScoreMin = copyFloat(prev.ScoreMin)
	t.ScoreMax = copyFloat(prev.ScoreMax)
	t.ScoreScaled = copyFloat(prev.ScoreScaled)
	t.SuspendData = append([]byte(nil), prev.SuspendData...)
	if len(t.SuspendData) == 0 {
		t.SuspendData = nil
	}
	if t.LessonLocation != "" || len(t.SuspendData) > 0 {
		t.Entry = EntryResume
	}
}

// Finish closes the session: its time is added to the package total.
func (t *Tracking) Finish() {
	t.TotalTime = t.TotalTime.Add(t.SessionTime)
}

// DeriveStatus folds the 2004 success and completion statuses into LessonStatus.
func (t *Tracking) DeriveStatus() {
	if t.Version != Version2004 {
		return
	}
	switch t.SuccessStatus {
	case SuccessPassed:
		t.LessonStatus = StatusPassed
		return
	case SuccessFailed:
		t.LessonStatus = StatusFailed
		return
	}
	switch t.CompletionStatus {
	case CompletionCompleted:
		t.LessonStatus = StatusCompleted
	case CompletionIncomplete:
		t.LessonStatus = StatusIncomplete
	case CompletionNotAttempted:
		t.LessonStatus = StatusNotAttempted
	}
}

// CheckScores verifies scoreMin <= scoreRaw <= scoreMax for the bounds that are present.
func (t Tracking) CheckScores() error {
	if t.ScoreMin != nil && t.ScoreMax != nil && *t.ScoreMin > *t.ScoreMax {
		return errors.Wrapf(ErrOutOfRange, "score.min %v is greater than score.max %v", *t.ScoreMin, *t.ScoreMax)
	}
	if t.ScoreRaw == nil {
		return nil
	}
	if t.ScoreMin != nil && *t.ScoreRaw < *t.ScoreMin {
		return errors.Wrapf(ErrOutOfRange, "score.raw %v is below score.min %v", *t.ScoreRaw, *t.ScoreMin)
	}
	if t.ScoreMax != nil && *t.ScoreRaw > *t.ScoreMax {
		return errors.Wrapf(ErrOutOfRange, "score.raw %v is above score.max %v", *t.ScoreRaw, *t.ScoreMax)
	}
	return nil
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
