// Package cmi holds the SCORM Content-to-LMS data model: the trackable fields of SCORM 1.2 and
// 2004, their access rules and value constraints, and the tracking record they are stored in.
package cmi

import (
	"strings"

	"github.com/pkg/errors"
)

type Version string

const (
	Version12   Version = "1.2"
	Version2004 Version = "2004"
)

var Versions = []Version{Version12, Version2004}

// suspend_data limits, in bytes
const (
	SuspendDataLimit12   = 4 * 1024
	SuspendDataLimit2004 = 64 * 1024
)

var ErrUnknownVersion = errors.New("unknown SCORM version")

// ParseVersion accepts "1.2" and "2004" (any 2004 edition suffix is ignored).
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == string(Version12):
		return Version12, nil
	case strings.HasPrefix(s, string(Version2004)):
		return Version2004, nil
	}
	return "", errors.Wrapf(ErrUnknownVersion, "%q", s)
}

func (v Version) Valid() bool {
	return v == Version12 || v == Version2004
}

func (v Version) SuspendDataLimit() int {
	if v == Version12 {
		return SuspendDataLimit12
	}
	return SuspendDataLimit2004
}

func (v Version) locationLimit() int {
	if v == Version12 {
		return 255
	}
	return 1000
}

type LessonStatus string

const (
	StatusPassed       LessonStatus = "passed"
	StatusCompleted    LessonStatus = "completed"
	StatusFailed       LessonStatus = "failed"
	StatusIncomplete   LessonStatus = "incomplete"
	StatusBrowsed      LessonStatus = "browsed"
	StatusNotAttempted LessonStatus = "not attempted"
)

// Terminal reports whether the status closes an attempt (passing or failing).
func (s LessonStatus) Terminal() bool {
	return s == StatusPassed || s == StatusFailed
}

type CompletionStatus string

const (
	CompletionCompleted    CompletionStatus = "completed"
	CompletionIncomplete   CompletionStatus = "incomplete"
	CompletionNotAttempted CompletionStatus = "not attempted"
	CompletionUnknown      CompletionStatus = "unknown"
)

type SuccessStatus string

const (
	SuccessPassed  SuccessStatus = "passed"
	SuccessFailed  SuccessStatus = "failed"
	SuccessUnknown SuccessStatus = "unknown"
)

type Entry string

const (
	EntryAbInitio Entry = "ab-initio"
	EntryResume   Entry = "resume"
)
