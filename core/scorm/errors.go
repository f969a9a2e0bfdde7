package scorm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
)

var (
	// store errors
	ErrNotFound            = errors.New("scorm session not found")
	ErrPackageNotFound     = errors.New("scorm package not found")
	ErrActiveSessionExists = errors.New("an active session already exists for this learner and package")
	ErrSessionTerminated   = errors.New("scorm session is terminated")
)

type ErrorCode string

const (
	CodeSessionNotFound           ErrorCode = "SessionNotFound"
	CodeSessionAlreadyTerminated  ErrorCode = "SessionAlreadyTerminated"
	CodeUnknownCmiKey             ErrorCode = "UnknownCmiKey"
	CodeReadOnlyKeyWriteAttempt   ErrorCode = "ReadOnlyKeyWriteAttempt"
	CodeInvalidValueFormat        ErrorCode = "InvalidValueFormat"
	CodeConcurrentSessionConflict ErrorCode = "ConcurrentSessionConflict"
	CodeCommitFailed              ErrorCode = "CommitFailed"
	CodePackageNotFound           ErrorCode = "PackageNotFound"
	CodeGeneralException          ErrorCode = "GeneralException"
)

// Op is the runtime call an Error was returned by.
type Op string

const (
	OpLaunch    Op = "Launch"
	OpGetValue  Op = "GetValue"
	OpSetValue  Op = "SetValue"
	OpCommit    Op = "Commit"
	OpTerminate Op = "Terminate"
	OpProgress  Op = "GetProgress"
)

// Error is the typed result of a failed runtime call.
type Error struct {
	Code ErrorCode
	Op   Op
	Key  string // CMI element, if any
	Err  error
}

func newError(op Op, code ErrorCode, key string, err error) *Error {
	return &Error{Code: code, Op: op, Key: key, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Code)
	if e.Key != "" {
		msg += fmt.Sprintf(" %q", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the ErrorCode carried by err; "" for nil, GeneralException for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Code
	}
	return CodeGeneralException
}

// RTECode returns the numeric SCORM API error code of err for content of version v; 0 for nil.
func RTECode(err error, v cmi.Version) int {
	if err == nil {
		return 0
	}
	e, ok := errors.Cause(err).(*Error)
	if !ok {
		return 101
	}
	return e.RTECode(v)
}

// RTECode maps the error to the numeric code the SCORM API of version v reports through GetLastError.
func (e *Error) RTECode(v cmi.Version) int {
	if v == cmi.Version12 {
		switch e.Code {
		case CodeSessionNotFound, CodeSessionAlreadyTerminated:
			return 301 // not initialized
		case CodeUnknownCmiKey:
			return 401
		case CodeReadOnlyKeyWriteAttempt:
			return 403
		case CodeInvalidValueFormat:
			return 405
		}
		return 101
	}

	switch e.Code {
	case CodeSessionNotFound:
		return byOp(e.Op, 122, 132, 142, 112)
	case CodeSessionAlreadyTerminated:
		return byOp(e.Op, 123, 133, 143, 113)
	case CodeUnknownCmiKey:
		return 401
	case CodeReadOnlyKeyWriteAttempt:
		return 404
	case CodeInvalidValueFormat:
		if errors.Cause(e.Err) == cmi.ErrOutOfRange {
			return 407
		}
		return 406
	case CodeCommitFailed:
		if e.Op == OpTerminate {
			return 111
		}
		return 391
	case CodeConcurrentSessionConflict, CodePackageNotFound:
		if e.Op == OpLaunch {
			return 102
		}
	}
	return 101
}

func byOp(op Op, get, set, commit, terminate int) int {
	switch op {
	case OpGetValue:
		return get
	case OpSetValue:
		return set
	case OpCommit:
		return commit
	case OpTerminate:
		return terminate
	}
	return 101
}

// cmiError converts a data model error into the matching runtime Error.
func cmiError(op Op, key string, err error) *Error {
	switch errors.Cause(err) {
	case cmi.ErrUnknownKey:
		return newError(op, CodeUnknownCmiKey, key, err)
	case cmi.ErrReadOnly:
		return newError(op, CodeReadOnlyKeyWriteAttempt, key, err)
	case cmi.ErrTypeMismatch, cmi.ErrOutOfRange:
		return newError(op, CodeInvalidValueFormat, key, err)
	}
	return newError(op, CodeGeneralException, key, err)
}
