package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

type (
	sessionRow struct {
		ID             string     `db:"id"`
		PackageID      string     `db:"package_id"`
		UserID         string     `db:"user_id"`
		Version        string     `db:"version"`
		State          string     `db:"state"`
		CreatedAt      int64      `db:"created_at"`
		LastActivityAt int64      `db:"last_activity_at"`
		TerminatedAt   null.Int64 `db:"terminated_at"`
	}

	trackingRow struct {
		SessionID        string       `db:"session_id"`
		Version          string       `db:"version"`
		Revision         int64        `db:"revision"`
		LessonLocation   string       `db:"lesson_location"`
		LessonStatus     string       `db:"lesson_status"`
		CompletionStatus string       `db:"completion_status"`
		SuccessStatus    string       `db:"success_status"`
		ScoreRaw         null.Float64 `db:"score_raw"`
		ScoreMin         null.Float64 `db:"score_min"`
		ScoreMax         null.Float64 `db:"score_max"`
		ScoreScaled      null.Float64 `db:"score_scaled"`
		TotalTime        cmi.Duration `db:"total_time"`
		SessionTime      cmi.Duration `db:"session_time"`
		SuspendData      null.String  `db:"suspend_data"`
		LaunchData       null.String  `db:"launch_data"`
		Entry            string       `db:"entry"`
		Exit             string       `db:"exit"`
		LearnerID        string       `db:"learner_id"`
		LearnerName      string       `db:"learner_name"`
		Credit           string       `db:"credit"`
		Mode             string       `db:"mode"`
		UpdatedAt        int64        `db:"updated_at"`
	}

	// packageTrackingRow is a tracking row joined with the package id of its session.
	packageTrackingRow struct {
		PackageID string `db:"package_id"`
		trackingRow
	}

	attemptRow struct {
		ID               string       `db:"id"`
		SessionID        string       `db:"session_id"`
		PackageID        string       `db:"package_id"`
		UserID           string       `db:"user_id"`
		LessonStatus     string       `db:"lesson_status"`
		CompletionStatus string       `db:"completion_status"`
		ScoreRaw         null.Float64 `db:"score_raw"`
		ScoreMax         null.Float64 `db:"score_max"`
		SessionTime      cmi.Duration `db:"session_time"`
		TotalTime        cmi.Duration `db:"total_time"`
		Archived         bool         `db:"archived"`
		TerminatedAt     int64        `db:"terminated_at"`
	}
)

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func blob(b []byte) null.String {
	return null.NewString(string(b), b != nil)
}

func unblob(s null.String) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}

func newSessionRow(sess scorm.Session) sessionRow {
	row := sessionRow{
		ID:             sess.ID,
		PackageID:      sess.PackageID,
		UserID:         sess.UserID,
		Version:        string(sess.Version),
		State:          string(sess.State),
		CreatedAt:      toMillis(sess.CreatedAt),
		LastActivityAt: toMillis(sess.LastActivityAt),
	}
	if !sess.TerminatedAt.IsZero() {
		row.TerminatedAt = null.Int64From(toMillis(sess.TerminatedAt))
	}
	return row
}

func (row sessionRow) session() scorm.Session {
	sess := scorm.Session{
		ID:             row.ID,
		PackageID:      row.PackageID,
		UserID:         row.UserID,
		Version:        cmi.Version(row.Version),
		State:          scorm.SessionState(row.State),
		CreatedAt:      fromMillis(row.CreatedAt),
		LastActivityAt: fromMillis(row.LastActivityAt),
	}
	if row.TerminatedAt.Valid {
		sess.TerminatedAt = fromMillis(row.TerminatedAt.Int64)
	}
	return sess
}

func newTrackingRow(sessionID string, t cmi.Tracking) trackingRow {
	return trackingRow{
		SessionID:        sessionID,
		Version:          string(t.Version),
		Revision:         t.Revision,
		LessonLocation:   t.LessonLocation,
		LessonStatus:     string(t.LessonStatus),
		CompletionStatus: string(t.CompletionStatus),
		SuccessStatus:    string(t.SuccessStatus),
		ScoreRaw:         null.Float64FromPtr(t.ScoreRaw),
		ScoreMin:         null.Float64FromPtr(t.ScoreMin),
		ScoreMax:         null.Float64FromPtr(t.ScoreMax),
		ScoreScaled:      null.Float64FromPtr(t.ScoreScaled),
		TotalTime:        t.TotalTime,
		SessionTime:      t.SessionTime,
		SuspendData:      blob(t.SuspendData),
		LaunchData:       blob(t.LaunchData),
		Entry:            string(t.Entry),
		Exit:             t.Exit,
		LearnerID:        t.LearnerID,
		LearnerName:      t.LearnerName,
		Credit:           t.Credit,
		Mode:             t.Mode,
		UpdatedAt:        toMillis(t.UpdatedAt),
	}
}

func (row trackingRow) tracking() cmi.Tracking {
	return cmi.Tracking{
		Version:          cmi.Version(row.Version),
		Revision:         row.Revision,
		LessonLocation:   row.LessonLocation,
		LessonStatus:     cmi.LessonStatus(row.LessonStatus),
		CompletionStatus: cmi.CompletionStatus(row.CompletionStatus),
		SuccessStatus:    cmi.SuccessStatus(row.SuccessStatus),
		ScoreRaw:         row.ScoreRaw.Ptr(),
		ScoreMin:         row.ScoreMin.Ptr(),
		ScoreMax:         row.ScoreMax.Ptr(),
		ScoreScaled:      row.ScoreScaled.Ptr(),
		TotalTime:        row.TotalTime,
		SessionTime:      row.SessionTime,
		SuspendData:      unblob(row.SuspendData),
		LaunchData:       unblob(row.LaunchData),
		Entry:            cmi.Entry(row.Entry),
		Exit:             row.Exit,
		LearnerID:        row.LearnerID,
		LearnerName:      row.LearnerName,
		Credit:           row.Credit,
		Mode:             row.Mode,
		UpdatedAt:        fromMillis(row.UpdatedAt),
	}
}

func newAttemptRow(a scorm.Attempt) attemptRow {
	return attemptRow{
		ID:               a.ID,
		SessionID:        a.SessionID,
		PackageID:        a.PackageID,
		UserID:           a.UserID,
		LessonStatus:     string(a.LessonStatus),
		CompletionStatus: string(a.CompletionStatus),
		ScoreRaw:         null.Float64FromPtr(a.ScoreRaw),
		ScoreMax:         null.Float64FromPtr(a.ScoreMax),
		SessionTime:      a.SessionTime,
		TotalTime:        a.TotalTime,
		Archived:         a.Archived,
		TerminatedAt:     toMillis(a.TerminatedAt),
	}
}

func (row attemptRow) attempt() scorm.Attempt {
	return scorm.Attempt{
		ID:               row.ID,
		SessionID:        row.SessionID,
		PackageID:        row.PackageID,
		UserID:           row.UserID,
		LessonStatus:     cmi.LessonStatus(row.LessonStatus),
		CompletionStatus: cmi.CompletionStatus(row.CompletionStatus),
		ScoreRaw:         row.ScoreRaw.Ptr(),
		ScoreMax:         row.ScoreMax.Ptr(),
		SessionTime:      row.SessionTime,
		TotalTime:        row.TotalTime,
		Archived:         row.Archived,
		TerminatedAt:     fromMillis(row.TerminatedAt),
	}
}

// trapNoRowsErr maps the "no rows" error to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}
