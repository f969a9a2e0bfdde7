package cmi

import (
	"database/sql/driver"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// centisecond is the finest time resolution SCORM exchanges.
const centisecond = 10 * time.Millisecond

var (
	isoDurationRegex = regexp.MustCompile(
		`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
	)
	timespanRegex = regexp.MustCompile(`^(\d{2,4}):(\d{2}):(\d{2})(?:\.(\d{1,2}))?$`)

	errBadDuration = errors.New("invalid duration")
)

// Duration is a SCORM time interval with centisecond precision.
// It serializes to ISO-8601 (e.g. "PT5M30S") in JSON and SQL.
type Duration time.Duration

// ParseISODuration parses an ISO-8601 duration as accepted by SCORM 2004 (timeinterval (second,10,2)).
// Years and months are converted using 365 and 30 days.
func ParseISODuration(s string) (Duration, error) {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, errors.Wrapf(errBadDuration, "%q is not an ISO-8601 duration", s)
	}

	units := []time.Duration{
		365 * 24 * time.Hour, // Y
		30 * 24 * time.Hour,  // M
		7 * 24 * time.Hour,   // W
		24 * time.Hour,       // D
		time.Hour,            // H
		time.Minute,          // M
	}
	var total time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrOutOfRange, "%q: %v", s, err)
		}
		if total, err = addUnits(total, n, unit); err != nil {
			return 0, errors.Wrapf(err, "%q", s)
		}
	}
	if m[7] != "" {
		secs, err := strconv.ParseFloat(m[7], 64)
		if err != nil {
			return 0, errors.Wrapf(ErrOutOfRange, "%q: %v", s, err)
		}
		cs := math.Round(secs * 100)
		if cs >= math.MaxInt64 {
			return 0, errors.Wrapf(ErrOutOfRange, "%q: seconds overflow", s)
		}
		if total, err = addUnits(total, int64(cs), centisecond); err != nil {
			return 0, errors.Wrapf(err, "%q", s)
		}
	}
	return Duration(total), nil
}

// addUnits returns total + n*unit, or ErrOutOfRange when the sum is not representable.
func addUnits(total time.Duration, n int64, unit time.Duration) (time.Duration, error) {
	if n < 0 || total < 0 || n > int64((math.MaxInt64-total)/unit) {
		return 0, errors.Wrapf(ErrOutOfRange, "duration exceeds %v", time.Duration(math.MaxInt64))
	}
	return total + time.Duration(n)*unit, nil
}

// ParseTimespan parses a SCORM 1.2 CMITimespan ("HHHH:MM:SS.SS").
func ParseTimespan(s string) (Duration, error) {
	m := timespanRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.Wrapf(errBadDuration, "%q is not a CMITimespan", s)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	if mins > 59 || sec > 59 {
		return 0, errors.Wrapf(errBadDuration, "%q: minutes and seconds must be below 60", s)
	}
	var cs int
	if m[4] != "" {
		frac := m[4]
		if len(frac) == 1 {
			frac += "0"
		}
		cs, _ = strconv.Atoi(frac)
	}

	var d time.Duration
	var err error
	for _, part := range []struct {
		n    int
		unit time.Duration
	}{{h, time.Hour}, {mins, time.Minute}, {sec, time.Second}, {cs, centisecond}} {
		if d, err = addUnits(d, int64(part.n), part.unit); err != nil {
			return 0, errors.Wrapf(err, "%q", s)
		}
	}
	return Duration(d), nil
}

// Add returns d + o, saturating at the largest representable Duration.
func (d Duration) Add(o Duration) Duration {
	if o <= 0 {
		return d
	}
	if d > Duration(math.MaxInt64)-o {
		return Duration(math.MaxInt64)
	}
	return d + o
}

// ParseDuration accepts the duration formats of the given version:
// ISO-8601 for both, CMITimespan additionally for 1.2.
func ParseDuration(v Version, s string) (Duration, error) {
	if v == Version12 && timespanRegex.MatchString(s) {
		return ParseTimespan(s)
	}
	return ParseISODuration(s)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) centiseconds() int64 {
	if d <= 0 {
		return 0
	}
	return int64(time.Duration(d) / centisecond)
}

// String formats d as ISO-8601, hours being the largest unit.
func (d Duration) String() string {
	cs := d.centiseconds()
	if cs == 0 {
		return "PT0S"
	}
	h := cs / 360000
	cs -= h * 360000
	m := cs / 6000
	cs -= m * 6000
	s, frac := cs/100, cs%100

	var b strings.Builder
	b.WriteString("PT")
	if h > 0 {
		fmt.Fprintf(&b, "%dH", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dM", m)
	}
	switch {
	case frac > 0:
		fs := strings.TrimRight(fmt.Sprintf("%02d", frac), "0")
		fmt.Fprintf(&b, "%d.%sS", s, fs)
	case s > 0:
		fmt.Fprintf(&b, "%dS", s)
	}
	return b.String()
}

// Timespan formats d as a SCORM 1.2 CMITimespan.
func (d Duration) Timespan() string {
	cs := d.centiseconds()
	h := cs / 360000
	cs -= h * 360000
	m := cs / 6000
	cs -= m * 6000
	return fmt.Sprintf("%04d:%02d:%02d.%02d", h, m, cs/100, cs%100)
}

// Format renders d the way content of version v expects to read it back.
func (d Duration) Format(v Version) string {
	if v == Version12 {
		return d.Timespan()
	}
	return d.String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseISODuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Duration) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *Duration) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = 0
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	default:
		return errors.Errorf("cannot scan %T into cmi.Duration", src)
	}
}
