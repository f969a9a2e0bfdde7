package progress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
)

func score(f float64) *float64 { return &f }

func TestPercent(t *testing.T) {
	tests := []struct {
		name   string
		status cmi.LessonStatus
		raw    *float64
		max    *float64
		want   int
	}{
		{name: "passed overrides score", status: cmi.StatusPassed, raw: score(10), max: score(100), want: 100},
		{name: "completed without score", status: cmi.StatusCompleted, want: 100},
		{name: "score derived", status: cmi.StatusIncomplete, raw: score(75), max: score(100), want: 75},
		{name: "score rounded", status: cmi.StatusIncomplete, raw: score(2), max: score(3), want: 67},
		{name: "score over max clamped", status: cmi.StatusFailed, raw: score(150), max: score(100), want: 100},
		{name: "negative score clamped", status: cmi.StatusFailed, raw: score(-5), max: score(100), want: 0},
		{name: "zero max", status: cmi.StatusIncomplete, raw: score(5), max: score(0), want: 0},
		{name: "no max", status: cmi.StatusIncomplete, raw: score(5), want: 0},
		{name: "no raw", status: cmi.StatusIncomplete, max: score(100), want: 0},
		{name: "not attempted", status: cmi.StatusNotAttempted, want: 0},
		{name: "huge ratio clamped", status: cmi.StatusIncomplete, raw: score(1e308), max: score(1e-10), want: 100},
		{name: "huge negative ratio clamped", status: cmi.StatusIncomplete, raw: score(-1e308), max: score(1e-10), want: 0},
		{name: "infinite score clamped", status: cmi.StatusIncomplete, raw: score(math.Inf(1)), max: score(100), want: 100},
		{name: "NaN score", status: cmi.StatusIncomplete, raw: score(math.NaN()), max: score(100), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := cmi.NewTracking(cmi.Version12)
			tr.LessonStatus = tt.status
			tr.ScoreRaw, tr.ScoreMax = tt.raw, tt.max
			if got := Percent(tr); got != tt.want {
				t.Errorf("Percent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "In progress", Label(cmi.StatusIncomplete))
	assert.Equal(t, "Not started", Label(cmi.StatusNotAttempted))
	assert.Equal(t, "Not started", Label("whatever"))
	for status := range Labels {
		assert.NotEmpty(t, Label(status))
	}
}

func TestProject(t *testing.T) {
	tr := cmi.NewTracking(cmi.Version12)
	tr.LessonStatus = cmi.StatusIncomplete
	tr.ScoreRaw, tr.ScoreMax = score(75), score(100)
	tr.TotalTime = cmi.Duration(5*time.Minute + 30*time.Second)

	p := Project("P1", tr)
	assert.Equal(t, "P1", p.PackageID)
	assert.Equal(t, "In progress", p.StatusLabel)
	assert.Equal(t, 75, p.Progress)
	assert.Equal(t, "PT5M30S", p.TotalTime.String())
}
