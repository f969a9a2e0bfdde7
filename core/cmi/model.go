package cmi

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnknownKey   = errors.New("undefined data model element")
	ErrReadOnly     = errors.New("data model element is read only")
	ErrTypeMismatch = errors.New("data model element type mismatch")
	ErrOutOfRange   = errors.New("data model element value out of range")
)

// IsInvalidValue reports whether err is a value format/range error.
func IsInvalidValue(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrTypeMismatch || cause == ErrOutOfRange
}

type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadOnly {
		return "read-only"
	}
	return "read-write"
}

// Field is one element of the data model.
type Field struct {
	Key    string
	Access Access

	get func(t *Tracking) string
	set func(t *Tracking, value string) error
}

// Model is the data model of one SCORM version.
type Model struct {
	version Version
	fields  map[string]*Field
}

var models = map[Version]*Model{
	Version12:   newModel12(),
	Version2004: newModel2004(),
}

// ModelFor returns the data model of v; nil when v is unknown.
func ModelFor(v Version) *Model {
	return models[v]
}

func (m *Model) Version() Version { return m.version }

// Keys lists the defined elements, sorted.
func (m *Model) Keys() []string {
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Model) Lookup(key string) (*Field, error) {
	if f, ok := m.fields[key]; ok {
		return f, nil
	}
	return nil, errors.Wrapf(ErrUnknownKey, "%q (SCORM %s)", key, m.version)
}

// Get reads key from t, formatted as content of this version expects it.
func (m *Model) Get(t *Tracking, key string) (string, error) {
	f, err := m.Lookup(key)
	if err != nil {
		return "", err
	}
	return f.get(t), nil
}

// Set validates value and writes it into t.
func (m *Model) Set(t *Tracking, key, value string) error {
	f, err := m.Lookup(key)
	if err != nil {
		return err
	}
	if f.Access == ReadOnly {
		return errors.Wrapf(ErrReadOnly, "%q", key)
	}
	if err := f.set(t, value); err != nil {
		return errors.Wrapf(err, "%q", key)
	}
	return nil
}

// Validate checks key and value without touching any record.
func (m *Model) Validate(key, value string) error {
	scratch := NewTracking(m.version)
	return m.Set(&scratch, key, value)
}

// field builders

func readOnly(key string, get func(t *Tracking) string) *Field {
	return &Field{Key: key, Access: ReadOnly, get: get}
}

func stringField(key string, maxLen int, ptr func(t *Tracking) *string) *Field {
	return &Field{
		Key:    key,
		Access: ReadWrite,
		get:    func(t *Tracking) string { return *ptr(t) },
		set: func(t *Tracking, value string) error {
			if len(value) > maxLen {
				return errors.Wrapf(ErrOutOfRange, "length %d exceeds %d", len(value), maxLen)
			}
			*ptr(t) = value
			return nil
		},
	}
}

func enumField(key string, vocabulary []string, get func(t *Tracking) string, set func(t *Tracking, value string)) *Field {
	allowed := make(map[string]bool, len(vocabulary))
	for _, v := range vocabulary {
		allowed[v] = true
	}
	return &Field{
		Key:    key,
		Access: ReadWrite,
		get:    get,
		set: func(t *Tracking, value string) error {
			if !allowed[value] {
				return errors.Wrapf(ErrTypeMismatch, "%q is not one of [%s]", value, strings.Join(vocabulary, ", "))
			}
			set(t, value)
			return nil
		},
	}
}

type decimalRange struct {
	min, max float64
	bounded  bool
}

func decimalField(key string, rng decimalRange, allowBlank bool, ptr func(t *Tracking) **float64) *Field {
	return &Field{
		Key:    key,
		Access: ReadWrite,
		get: func(t *Tracking) string {
			if p := *ptr(t); p != nil {
				return strconv.FormatFloat(*p, 'f', -1, 64)
			}
			return ""
		},
		set: func(t *Tracking, value string) error {
			value = strings.TrimSpace(value)
			if value == "" && allowBlank {
				*ptr(t) = nil
				return nil
			}
			f, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return errors.Wrapf(ErrTypeMismatch, "%q is not a decimal", value)
			}
			if rng.bounded && (f < rng.min || f > rng.max) {
				return errors.Wrapf(ErrOutOfRange, "%v is outside [%v, %v]", f, rng.min, rng.max)
			}
			*ptr(t) = &f
			return nil
		},
	}
}

func durationField(key string, v Version, ptr func(t *Tracking) *Duration) *Field {
	return &Field{
		Key:    key,
		Access: ReadWrite,
		get:    func(t *Tracking) string { return ptr(t).Format(v) },
		set: func(t *Tracking, value string) error {
			d, err := ParseDuration(v, strings.TrimSpace(value))
			if err != nil {
				if errors.Cause(err) == ErrOutOfRange {
					return err
				}
				return errors.Wrap(ErrTypeMismatch, err.Error())
			}
			*ptr(t) = d
			return nil
		},
	}
}

func blobField(key string, limit int, ptr func(t *Tracking) *[]byte) *Field {
	return &Field{
		Key:    key,
		Access: ReadWrite,
		get:    func(t *Tracking) string { return string(*ptr(t)) },
		set: func(t *Tracking, value string) error {
			if len(value) > limit {
				return errors.Wrapf(ErrOutOfRange, "%d bytes exceeds the %d bytes limit", len(value), limit)
			}
			if value == "" {
				*ptr(t) = nil
				return nil
			}
			*ptr(t) = []byte(value)
			return nil
		},
	}
}

func register(v Version, fields ...*Field) *Model {
	m := &Model{version: v, fields: make(map[string]*Field, len(fields))}
	for _, f := range fields {
		m.fields[f.Key] = f
	}
	return m
}

// shared accessors

func location(t *Tracking) *string { return &t.LessonLocation }
func scoreRaw(t *Tracking) **float64 { return &t.ScoreRaw }
func scoreMin(t *Tracking) **float64 { return &t.ScoreMin }
func scoreMax(t *Tracking) **float64 { return &t.ScoreMax }
func scoreScaled(t *Tracking) **float64 { return &t.ScoreScaled }
func sessionTime(t *Tracking) *Duration { return &t.SessionTime }
func suspendData(t *Tracking) *[]byte { return &t.SuspendData }
func learnerID(t *Tracking) string { return t.LearnerID }
func learnerName(t *Tracking) string { return t.LearnerName }
func launchData(t *Tracking) string { return string(t.LaunchData) }
func entry(t *Tracking) string { return string(t.Entry) }
func credit(t *Tracking) string { return t.Credit }
func mode(t *Tracking) string { return t.Mode }
func exit(t *Tracking) string { return t.Exit }
func setExit(t *Tracking, value string) { t.Exit = value }
func lessonStatus(t *Tracking) string { return string(t.LessonStatus) }
func completionStatus(t *Tracking) string { return string(t.CompletionStatus) }
func successStatus(t *Tracking) string { return string(t.SuccessStatus) }

func newModel12() *Model {
	v := Version12
	score := decimalRange{min: 0, max: 100, bounded: true}
	return register(v,
		enumField("cmi.core.lesson_status",
			// "not attempted" can be read but never set by content
			[]string{"passed", "completed", "failed", "incomplete", "browsed"},
			lessonStatus,
			func(t *Tracking, value string) { t.LessonStatus = LessonStatus(value) },
		),
		stringField("cmi.core.lesson_location", v.locationLimit(), location),
		decimalField("cmi.core.score.raw", score, true, scoreRaw),
		decimalField("cmi.core.score.min", score, true, scoreMin),
		decimalField("cmi.core.score.max", score, true, scoreMax),
		durationField("cmi.core.session_time", v, sessionTime),
		readOnly("cmi.core.total_time", func(t *Tracking) string { return t.TotalTime.Format(v) }),
		enumField("cmi.core.exit", []string{"time-out", "suspend", "logout", ""}, exit, setExit),
		readOnly("cmi.core.entry", entry),
		readOnly("cmi.core.credit", credit),
		readOnly("cmi.core.lesson_mode", mode),
		readOnly("cmi.core.student_id", learnerID),
		readOnly("cmi.core.student_name", learnerName),
		blobField("cmi.suspend_data", v.SuspendDataLimit(), suspendData),
		readOnly("cmi.launch_data", launchData),
	)
}

func newModel2004() *Model {
	v := Version2004
	return register(v,
		enumField("cmi.completion_status",
			[]string{"completed", "incomplete", "not attempted", "unknown"},
			completionStatus,
			func(t *Tracking, value string) { t.CompletionStatus = CompletionStatus(value) },
		),
		enumField("cmi.success_status",
			[]string{"passed", "failed", "unknown"},
			successStatus,
			func(t *Tracking, value string) { t.SuccessStatus = SuccessStatus(value) },
		),
		stringField("cmi.location", v.locationLimit(), location),
		decimalField("cmi.score.raw", decimalRange{}, false, scoreRaw),
		decimalField("cmi.score.min", decimalRange{}, false, scoreMin),
		decimalField("cmi.score.max", decimalRange{}, false, scoreMax),
		decimalField("cmi.score.scaled", decimalRange{min: -1, max: 1, bounded: true}, false, scoreScaled),
		durationField("cmi.session_time", v, sessionTime),
		readOnly("cmi.total_time", func(t *Tracking) string { return t.TotalTime.Format(v) }),
		enumField("cmi.exit", []string{"time-out", "suspend", "logout", "normal", ""}, exit, setExit),
		readOnly("cmi.entry", entry),
		readOnly("cmi.credit", credit),
		readOnly("cmi.mode", mode),
		readOnly("cmi.learner_id", learnerID),
		readOnly("cmi.learner_name", learnerName),
		blobField("cmi.suspend_data", v.SuspendDataLimit(), suspendData),
		readOnly("cmi.launch_data", launchData),
	)
}
