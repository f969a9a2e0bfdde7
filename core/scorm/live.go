package scorm

import (
	"sort"
	"sync"
	"time"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
)

type (
	bufferedValue struct {
		value string
		seq   uint64
	}

	bufferEntry struct {
		key   string
		value string
		seq   uint64
	}

	// liveSession is the in-process state of one session: its last committed record and the writes
	// content made since. Every tab of the session shares it.
	liveSession struct {
		commitMu sync.Mutex // serializes commits and termination

		mu              sync.Mutex
		sess            Session
		model           *cmi.Model
		committed       cmi.Tracking
		buffer          map[string]bufferedValue
		seq             uint64
		lastActivity    time.Time
		readsSinceWrite bool
		terminated      bool
		terminatedAt    time.Time
	}
)

func newLiveSession(sess Session, t cmi.Tracking) *liveSession {
	return &liveSession{
		sess:         sess,
		model:        cmi.ModelFor(sess.Version),
		committed:    t,
		buffer:       make(map[string]bufferedValue),
		lastActivity: sess.LastActivityAt,
	}
}

// put buffers a write; last write wins per key. Caller holds mu.
func (ls *liveSession) put(key, value string) {
	ls.seq++
	ls.buffer[key] = bufferedValue{value: value, seq: ls.seq}
}

// snapshot returns the buffered writes in call order. Caller holds mu.
func (ls *liveSession) snapshot() []bufferEntry {
	entries := make([]bufferEntry, 0, len(ls.buffer))
	for k, v := range ls.buffer {
		entries = append(entries, bufferEntry{key: k, value: v.value, seq: v.seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

// flushed drops the entries of snap that were not rewritten since it was taken. Caller holds mu.
func (ls *liveSession) flushed(snap []bufferEntry) {
	for _, e := range snap {
		if cur, ok := ls.buffer[e.key]; ok && cur.seq == e.seq {
			delete(ls.buffer, e.key)
		}
	}
}

// view is the committed record with the buffered writes applied. Caller holds mu.
func (ls *liveSession) view() (cmi.Tracking, error) {
	t := ls.committed
	if err := apply(ls.model, &t, ls.snapshot()); err != nil {
		return cmi.Tracking{}, err
	}
	return t, nil
}

func (ls *liveSession) touch(at time.Time) {
	if at.After(ls.lastActivity) {
		ls.lastActivity = at
	}
}

func apply(model *cmi.Model, t *cmi.Tracking, entries []bufferEntry) error {
	for _, e := range entries {
		if err := model.Set(t, e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func keys(entries []bufferEntry) []string {
	ks := make([]string, 0, len(entries))
	for _, e := range entries {
		ks = append(ks, e.key)
	}
	return ks
}
