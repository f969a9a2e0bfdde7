package scorm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/progress"
)

// Gateway is the runtime API content calls: GetValue, SetValue, Commit and Terminate.
// Writes are validated against the data model of the session's version and buffered until Commit.
// It is safe for concurrent use.
type Gateway struct {
	m *Manager
}

func NewGateway(m *Manager) *Gateway {
	return &Gateway{m: m}
}

// Version returns the SCORM version of a session, active or not.
func (g *Gateway) Version(ctx context.Context, sessionID string) (cmi.Version, error) {
	sess, err := g.m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return "", storeError(OpGetValue, err)
	}
	return sess.Version, nil
}

// GetValue returns the buffered value of key if there is one, its last committed value otherwise.
func (g *Gateway) GetValue(ctx context.Context, sessionID, key string) (string, error) {
	ls, err := g.m.liveSession(ctx, sessionID, OpGetValue)
	if err != nil {
		return "", err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.terminated {
		return "", newError(OpGetValue, CodeSessionAlreadyTerminated, key, ErrSessionTerminated)
	}
	view, err := ls.view()
	if err != nil {
		return "", newError(OpGetValue, CodeGeneralException, key, errors.Wrap(err, "applying buffer"))
	}
	value, err := ls.model.Get(&view, key)
	if err != nil {
		return "", cmiError(OpGetValue, key, err)
	}
	ls.touch(g.m.now())
	ls.readsSinceWrite = true
	return value, nil
}

// SetValue validates value and buffers it. Nothing is written to the store until Commit.
func (g *Gateway) SetValue(ctx context.Context, sessionID, key, value string) error {
	ls, err := g.m.liveSession(ctx, sessionID, OpSetValue)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.terminated {
		return newError(OpSetValue, CodeSessionAlreadyTerminated, key, ErrSessionTerminated)
	}
	view, err := ls.view()
	if err != nil {
		return newError(OpSetValue, CodeGeneralException, key, errors.Wrap(err, "applying buffer"))
	}
	if err = ls.model.Set(&view, key, value); err != nil {
		return cmiError(OpSetValue, key, err)
	}
	if err = view.CheckScores(); err != nil {
		return cmiError(OpSetValue, key, err)
	}
	ls.put(key, value)
	ls.touch(g.m.now())
	return nil
}

// Commit writes the buffered values in one store transaction. Values committed meanwhile by another
// process are kept unless overwritten; such a commit is reported as a conflict.
func (g *Gateway) Commit(ctx context.Context, sessionID string) (CommitReport, error) {
	return g.m.commit(ctx, sessionID, OpCommit)
}

// Terminate flushes the buffer and closes the session.
func (g *Gateway) Terminate(ctx context.Context, sessionID string) error {
	if _, err := g.m.commit(ctx, sessionID, OpTerminate); err != nil {
		switch CodeOf(err) {
		case CodeSessionNotFound, CodeSessionAlreadyTerminated:
			return err
		}
		// the buffer is kept: termination writes it with the final record
		g.m.logger.Warn("final commit before terminate failed", err)
	}
	return g.m.Terminate(ctx, sessionID)
}

// Progress projects the last committed record of a session.
func (g *Gateway) Progress(ctx context.Context, sessionID string) (progress.Progress, error) {
	sess, err := g.m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return progress.Progress{}, storeError(OpProgress, err)
	}

	g.m.mu.Lock()
	ls, ok := g.m.live[sessionID]
	g.m.mu.Unlock()
	if ok {
		ls.mu.Lock()
		t := ls.committed
		ls.mu.Unlock()
		return progress.Project(sess.PackageID, t), nil
	}

	t, err := g.m.repo.GetTracking(ctx, sessionID)
	if err != nil {
		return progress.Progress{}, storeError(OpProgress, err)
	}
	return progress.Project(sess.PackageID, t), nil
}
