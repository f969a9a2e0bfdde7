package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
	inmemdb "github.com/qahhor/FREE-LMS-sub001/storage/database/inmem"
)

// Logger records log entries in memory.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

type LogEntry struct {
	Level   string
	Message string
	Args    []interface{}
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Message: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Count returns the number of entries logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, e := range l.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Store is an in-memory repository and catalog sharing one DB.
type Store struct {
	DB      *inmemdb.DB
	Repo    scorm.Repository
	Catalog *inmemdb.PackageCatalog
}

func NewStore() Store {
	db := inmemdb.Open()
	return Store{DB: db, Repo: inmemdb.NewScormRepository(db), Catalog: inmemdb.NewPackageCatalog(db)}
}

// PackageSaver is a catalog packages can be added to.
type PackageSaver interface {
	SavePackage(ctx context.Context, pkg scorm.Package) error
}

func CreatePackage(t *testing.T, cat PackageSaver, id string, version cmi.Version) scorm.Package {
	pkg := scorm.Package{
		ID:         id,
		Version:    version,
		Title:      "Package " + id,
		LaunchURL:  "/content/" + id + "/index.html",
		LaunchData: "chapter=1",
		Organization: scorm.Organization{
			Identifier: "ORG-" + id,
			Title:      "Package " + id,
			Items: []scorm.Item{
				{Identifier: "ITEM-1", Title: "Lesson 1", Href: "index.html"},
			},
		},
	}
	if err := cat.SavePackage(context.Background(), pkg); err != nil {
		t.Fatalf("CreatePackage() failed: %v", err)
	}
	return pkg
}

// ScormConfig returns the engine timings used by tests: the defaults with a short commit interval.
func ScormConfig() core.ScormConfig {
	conf := core.DefaultScormConfig()
	conf.AutoCommitInterval = 20 * time.Millisecond
	conf.CommitMaxBackoff = 80 * time.Millisecond
	conf.CommitMaxRetries = 3
	return conf
}
