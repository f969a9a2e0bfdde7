// Package progress derives the learner-facing progress of a SCORM package from its tracking record.
package progress

import (
	"math"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
)

// Labels is the one status label table of the LMS.
var Labels = map[cmi.LessonStatus]string{
	cmi.StatusPassed:       "Passed",
	cmi.StatusCompleted:    "Completed",
	cmi.StatusFailed:       "Failed",
	cmi.StatusIncomplete:   "In progress",
	cmi.StatusBrowsed:      "Browsed",
	cmi.StatusNotAttempted: "Not started",
}

// Label returns the human label of status; unknown statuses are rendered as "Not started".
func Label(status cmi.LessonStatus) string {
	if l, ok := Labels[status]; ok {
		return l
	}
	return Labels[cmi.StatusNotAttempted]
}

// Percent returns the 0-100 progress of t.
func Percent(t cmi.Tracking) int {
	switch t.LessonStatus {
	case cmi.StatusCompleted, cmi.StatusPassed:
		return 100
	}
	if t.ScoreMax == nil || *t.ScoreMax <= 0 {
		return 0
	}
	var raw float64
	if t.ScoreRaw != nil {
		raw = *t.ScoreRaw
	}
	pct := math.Round(raw / *t.ScoreMax * 100)
	switch {
	case math.IsNaN(pct), pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// Progress is the read-only projection of a tracking record shown by the LMS.
type Progress struct {
	PackageID        string               `json:"package_id"`
	LessonStatus     cmi.LessonStatus     `json:"lesson_status"`
	StatusLabel      string               `json:"status_label"`
	CompletionStatus cmi.CompletionStatus `json:"completion_status,omitempty"`
	ScoreRaw         *float64             `json:"score_raw"`
	ScoreMax         *float64             `json:"score_max"`
	TotalTime        cmi.Duration         `json:"total_time"`
	Progress         int                  `json:"progress"`
}

func Project(packageID string, t cmi.Tracking) Progress {
	return Progress{
		PackageID:        packageID,
		LessonStatus:     t.LessonStatus,
		StatusLabel:      Label(t.LessonStatus),
		CompletionStatus: t.CompletionStatus,
		ScoreRaw:         t.ScoreRaw,
		ScoreMax:         t.ScoreMax,
		TotalTime:        t.TotalTime,
		Progress:         Percent(t),
	}
}
