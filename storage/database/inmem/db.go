package inmemdb

import (
	"sync"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

type (
	// DB is an in-memory database, for tests and single-process development.
	// One lock guards every table so a repository call behaves like a transaction.
	DB struct {
		mutex     sync.RWMutex
		sessions  map[string]*scorm.Session
		trackings map[string]*cmi.Tracking // by session id
		attempts  []scorm.Attempt
		packages  map[string]scorm.Package
	}
)

func Open() *DB {
	return &DB{
		sessions:  make(map[string]*scorm.Session),
		trackings: make(map[string]*cmi.Tracking),
		packages:  make(map[string]scorm.Package),
	}
}
