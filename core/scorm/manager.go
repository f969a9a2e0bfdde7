package scorm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/progress"
)

// Manager owns the session lifecycle: launch, resume, terminate, idle sweep and reconciliation of
// terminations that could not be written.
type Manager struct {
	repo    Repository
	catalog PackageCatalog
	logger  core.Logger
	conf    core.ScormConfig
	now     func() time.Time

	mu      sync.Mutex
	live    map[string]*liveSession
	pending map[string]*liveSession // terminated in memory, not in the store yet
}

func NewManager(repo Repository, catalog PackageCatalog, logger core.Logger, conf core.ScormConfig) *Manager {
	if conf.IdleTimeout <= 0 {
		conf.IdleTimeout = core.DefaultScormConfig().IdleTimeout
	}
	return &Manager{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
		conf:    conf,
		now:     func() time.Time { return time.Now().UTC() },
		live:    make(map[string]*liveSession),
		pending: make(map[string]*liveSession),
	}
}

// Launch opens the learner's session of a package, resuming the active one if there is any.
func (m *Manager) Launch(ctx context.Context, req LaunchRequest) (Launch, error) {
	req.PackageID = core.CleanString(req.PackageID)
	req.UserID = core.CleanString(req.UserID)
	if err := checkLaunchRequest(req); err != nil {
		return Launch{}, err
	}

	pkg, err := m.catalog.GetPackage(ctx, req.PackageID)
	if err != nil {
		if errors.Cause(err) == ErrPackageNotFound {
			return Launch{}, newError(OpLaunch, CodePackageNotFound, "", err)
		}
		return Launch{}, newError(OpLaunch, CodeGeneralException, "", errors.Wrap(err, "getting package"))
	}

	// a racing launch may insert the active session between our read and our insert: re-read once
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := m.repo.GetActiveSession(ctx, req.UserID, req.PackageID)
		switch errors.Cause(err) {
		case nil:
			closed, err := m.finishTermination(ctx, sess.ID)
			if err != nil {
				return Launch{}, err
			}
			if !closed {
				if !m.idle(sess) {
					return m.resume(ctx, sess, pkg)
				}
				if err = m.terminateGhost(ctx, sess); err != nil {
					return Launch{}, err
				}
			}
		case ErrNotFound:
		default:
			return Launch{}, newError(OpLaunch, CodeGeneralException, "", errors.Wrap(err, "getting active session"))
		}

		l, err := m.create(ctx, pkg, req)
		if errors.Cause(err) == ErrActiveSessionExists {
			continue
		}
		return l, err
	}
	return Launch{}, newError(OpLaunch, CodeConcurrentSessionConflict, "", ErrActiveSessionExists)
}

func checkLaunchRequest(req LaunchRequest) error {
	var flds []core.FieldError
	if req.PackageID == "" {
		flds = append(flds, core.FieldRequired("package_id"))
	}
	if req.UserID == "" {
		flds = append(flds, core.FieldRequired("user_id"))
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid launch request"), flds...)
	}
	return nil
}

// idle reports whether sess saw no activity, stored or in memory, within the idle window.
func (m *Manager) idle(sess Session) bool {
	last := sess.LastActivityAt
	m.mu.Lock()
	if ls, ok := m.live[sess.ID]; ok {
		ls.mu.Lock()
		if ls.lastActivity.After(last) {
			last = ls.lastActivity
		}
		ls.mu.Unlock()
	}
	m.mu.Unlock()
	return m.now().Sub(last) > m.conf.IdleTimeout
}

func (m *Manager) terminateGhost(ctx context.Context, sess Session) error {
	m.logger.Info(fmt.Sprintf("terminating idle session %s before relaunch", sess.ID), core.Person{ID: sess.UserID})
	_, err := m.terminate(ctx, sess.ID, OpLaunch)
	switch CodeOf(err) {
	case "", CodeSessionAlreadyTerminated, CodeSessionNotFound:
		return nil
	}
	return err
}

// finishTermination writes the pending termination of a session already terminated in memory.
// closed reports whether the session was such a session; it is never resumed.
func (m *Manager) finishTermination(ctx context.Context, id string) (closed bool, err error) {
	m.mu.Lock()
	ls, ok := m.live[id]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	ls.mu.Lock()
	terminated := ls.terminated
	ls.mu.Unlock()
	if !terminated {
		return false, nil
	}

	ls.commitMu.Lock()
	defer ls.commitMu.Unlock()
	_, err = m.persistTermination(ctx, ls)
	switch errors.Cause(err) {
	case nil, ErrNotFound, ErrSessionTerminated:
		return true, nil
	}
	return true, newError(OpLaunch, CodeCommitFailed, "", errors.Wrapf(err, "terminating session %s", id))
}

func (m *Manager) resume(ctx context.Context, sess Session, pkg Package) (Launch, error) {
	ls, err := m.liveSession(ctx, sess.ID, OpLaunch)
	if err != nil {
		return Launch{}, err
	}
	ls.mu.Lock()
	if ls.terminated {
		ls.mu.Unlock()
		return Launch{}, newError(OpLaunch, CodeConcurrentSessionConflict, "", ErrSessionTerminated)
	}
	ls.touch(m.now())
	t := ls.committed
	ls.mu.Unlock()

	return Launch{
		SessionID: sess.ID,
		PackageID: sess.PackageID,
		Version:   sess.Version,
		LaunchURL: pkg.LaunchURL,
		Resumed:   true,
		Tracking:  t,
	}, nil
}

func (m *Manager) create(ctx context.Context, pkg Package, req LaunchRequest) (Launch, error) {
	t := cmi.NewTracking(pkg.Version)
	prev, err := m.repo.LatestTracking(ctx, req.UserID, pkg.ID)
	switch errors.Cause(err) {
	case nil:
		t.Seed(prev)
	case ErrNotFound:
	default:
		return Launch{}, newError(OpLaunch, CodeGeneralException, "", errors.Wrap(err, "getting latest tracking"))
	}

	now := m.now()
	t.LearnerID = req.UserID
	t.LearnerName = req.LearnerName
	if pkg.LaunchData != "" {
		t.LaunchData = []byte(pkg.LaunchData)
	}
	t.UpdatedAt = now

	sess := Session{
		ID:             newSessionID(),
		PackageID:      pkg.ID,
		UserID:         req.UserID,
		Version:        pkg.Version,
		State:          StateActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err = m.repo.CreateSession(ctx, sess, t); err != nil {
		if errors.Cause(err) == ErrActiveSessionExists {
			return Launch{}, err
		}
		return Launch{}, newError(OpLaunch, CodeGeneralException, "", errors.Wrap(err, "creating session"))
	}

	m.mu.Lock()
	m.live[sess.ID] = newLiveSession(sess, t)
	m.mu.Unlock()

	return Launch{
		SessionID: sess.ID,
		PackageID: sess.PackageID,
		Version:   sess.Version,
		LaunchURL: pkg.LaunchURL,
		Tracking:  t,
	}, nil
}

// liveSession returns the in-process state of an active session, loading it from the store when
// the session was launched by another process or before a restart.
func (m *Manager) liveSession(ctx context.Context, id string, op Op) (*liveSession, error) {
	m.mu.Lock()
	ls, ok := m.live[id]
	m.mu.Unlock()
	if ok {
		return ls, nil
	}

	sess, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	if !sess.Active() {
		return nil, newError(op, CodeSessionAlreadyTerminated, "", ErrSessionTerminated)
	}
	t, err := m.repo.GetTracking(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ls, ok = m.live[id]; ok {
		return ls, nil
	}
	ls = newLiveSession(sess, t)
	m.live[id] = ls
	return ls, nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.live, id)
	delete(m.pending, id)
	m.mu.Unlock()
}

// storeError converts a store error into a runtime Error.
func storeError(op Op, err error) *Error {
	switch errors.Cause(err) {
	case ErrNotFound:
		return newError(op, CodeSessionNotFound, "", err)
	case ErrSessionTerminated:
		return newError(op, CodeSessionAlreadyTerminated, "", err)
	}
	return newError(op, CodeGeneralException, "", err)
}

// commit writes the buffered values of a session in one store transaction.
func (m *Manager) commit(ctx context.Context, id string, op Op) (CommitReport, error) {
	ls, err := m.liveSession(ctx, id, op)
	if err != nil {
		return CommitReport{}, err
	}
	ls.commitMu.Lock()
	defer ls.commitMu.Unlock()

	ls.mu.Lock()
	if ls.terminated {
		ls.mu.Unlock()
		return CommitReport{}, newError(op, CodeSessionAlreadyTerminated, "", ErrSessionTerminated)
	}
	snap := ls.snapshot()
	touch := ls.readsSinceWrite
	revision := ls.committed.Revision
	ls.mu.Unlock()

	now := m.now()
	if len(snap) == 0 {
		if touch {
			if err = m.repo.TouchSession(ctx, id, now); err != nil {
				return CommitReport{}, m.commitError(op, id, ls, err)
			}
			ls.mu.Lock()
			ls.readsSinceWrite = false
			ls.mu.Unlock()
		}
		return CommitReport{Keys: []string{}, Revision: revision}, nil
	}

	var conflict bool
	t, err := m.repo.UpdateTracking(ctx, id, now, func(t *cmi.Tracking) error {
		conflict = t.Revision != revision
		if err := apply(ls.model, t, snap); err != nil {
			return err
		}
		t.DeriveStatus()
		t.Revision++
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return CommitReport{}, m.commitError(op, id, ls, err)
	}

	ls.mu.Lock()
	ls.committed = t
	ls.flushed(snap)
	ls.readsSinceWrite = false
	ls.touch(now)
	ls.mu.Unlock()

	if conflict {
		m.logger.Warn(
			fmt.Sprintf("session %s was committed by another process since revision %d", id, revision),
			map[string]interface{}{"session_id": id, "revision": t.Revision},
			core.Person{ID: ls.sess.UserID},
		)
	}
	return CommitReport{Keys: keys(snap), Revision: t.Revision, Conflict: conflict}, nil
}

func (m *Manager) commitError(op Op, id string, ls *liveSession, err error) error {
	switch errors.Cause(err) {
	case ErrNotFound, ErrSessionTerminated:
		// terminated by another process or the sweeper
		ls.mu.Lock()
		ls.terminated = true
		ls.mu.Unlock()
		m.forget(id)
		return storeError(op, err)
	}
	return newError(op, CodeCommitFailed, "", errors.Wrap(err, "committing tracking"))
}

// Terminate closes a session: buffered writes are applied, the session time is added to the total
// time, the session is marked terminated and the attempt is recorded, in one store transaction.
// When that write fails the session is terminated in memory anyway and the write is retried by Reconcile.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	_, err := m.terminate(ctx, id, OpTerminate)
	return err
}

func (m *Manager) terminate(ctx context.Context, id string, op Op) (Attempt, error) {
	ls, err := m.liveSession(ctx, id, op)
	if err != nil {
		return Attempt{}, err
	}
	ls.commitMu.Lock()
	defer ls.commitMu.Unlock()

	ls.mu.Lock()
	if ls.terminated {
		ls.mu.Unlock()
		return Attempt{}, newError(op, CodeSessionAlreadyTerminated, "", ErrSessionTerminated)
	}
	ls.terminated = true
	ls.terminatedAt = m.now()
	ls.mu.Unlock()

	a, err := m.persistTermination(ctx, ls)
	switch errors.Cause(err) {
	case nil:
		return a, nil
	case ErrNotFound, ErrSessionTerminated:
		return Attempt{}, storeError(op, err)
	}

	m.mu.Lock()
	m.pending[id] = ls
	m.mu.Unlock()
	m.logger.Error(
		fmt.Sprintf("terminating session %s failed, will retry: %v", id, err),
		err, core.Person{ID: ls.sess.UserID},
	)
	return Attempt{}, newError(op, CodeCommitFailed, "", errors.Wrap(err, "terminating session"))
}

func (m *Manager) persistTermination(ctx context.Context, ls *liveSession) (Attempt, error) {
	ls.mu.Lock()
	snap := ls.snapshot()
	at := ls.terminatedAt
	ls.mu.Unlock()

	a, err := m.repo.TerminateSession(ctx, ls.sess.ID, at, func(t *cmi.Tracking) error {
		if err := apply(ls.model, t, snap); err != nil {
			return err
		}
		t.DeriveStatus()
		t.Finish()
		t.Revision++
		t.UpdatedAt = at
		return nil
	})
	switch errors.Cause(err) {
	case nil, ErrNotFound, ErrSessionTerminated:
		ls.mu.Lock()
		ls.flushed(snap)
		ls.mu.Unlock()
		m.forget(ls.sess.ID)
	}
	return a, err
}

// SweepIdle force-terminates the active sessions without activity within the idle window.
func (m *Manager) SweepIdle(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.conf.IdleTimeout)
	sessions, err := m.repo.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "listing idle sessions")
	}

	var swept int
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return swept, ctx.Err()
		}
		if !m.idle(sess) {
			continue
		}
		_, err := m.terminate(ctx, sess.ID, OpTerminate)
		switch CodeOf(err) {
		case "":
			swept++
		case CodeSessionAlreadyTerminated, CodeSessionNotFound:
		default:
			m.logger.Warn(fmt.Sprintf("sweeping session %s: %v", sess.ID, err), err)
		}
	}
	return swept, nil
}

// Reconcile retries the terminations whose store write failed.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	m.mu.Lock()
	pending := make([]*liveSession, 0, len(m.pending))
	for _, ls := range m.pending {
		pending = append(pending, ls)
	}
	m.mu.Unlock()

	var reconciled int
	var lastErr error
	for _, ls := range pending {
		if ctx.Err() != nil {
			return reconciled, ctx.Err()
		}
		ls.commitMu.Lock()
		_, err := m.persistTermination(ctx, ls)
		ls.commitMu.Unlock()
		switch errors.Cause(err) {
		case nil:
			reconciled++
		case ErrNotFound, ErrSessionTerminated:
		default:
			lastErr = errors.Wrapf(err, "reconciling session %s", ls.sess.ID)
		}
	}
	return reconciled, lastErr
}

// Pending returns the ids of the sessions awaiting reconciliation.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) Session(ctx context.Context, id string) (Session, error) {
	sess, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, storeError(OpProgress, err)
	}
	return sess, nil
}

// PackageProgress returns the learner's progress on a package; not started if never launched.
func (m *Manager) PackageProgress(ctx context.Context, userID, packageID string) (progress.Progress, error) {
	t, err := m.repo.LatestTracking(ctx, userID, packageID)
	switch errors.Cause(err) {
	case nil:
		return progress.Project(packageID, t), nil
	case ErrNotFound:
	default:
		return progress.Progress{}, errors.Wrap(err, "getting latest tracking")
	}

	pkg, err := m.catalog.GetPackage(ctx, packageID)
	if err != nil {
		if errors.Cause(err) == ErrPackageNotFound {
			return progress.Progress{}, newError(OpProgress, CodePackageNotFound, "", err)
		}
		return progress.Progress{}, errors.Wrap(err, "getting package")
	}
	return progress.Project(pkg.ID, cmi.NewTracking(pkg.Version)), nil
}

// UserProgress returns the learner's progress on every package launched.
func (m *Manager) UserProgress(ctx context.Context, userID string) ([]progress.Progress, error) {
	pts, err := m.repo.ListLatestTrackings(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing latest trackings")
	}
	res := make([]progress.Progress, 0, len(pts))
	for _, pt := range pts {
		res = append(res, progress.Project(pt.PackageID, pt.Tracking))
	}
	return res, nil
}

func (m *Manager) Attempts(ctx context.Context, userID, packageID string) ([]Attempt, error) {
	attempts, err := m.repo.ListAttempts(ctx, userID, packageID)
	if err != nil {
		return nil, errors.Wrap(err, "listing attempts")
	}
	return attempts, nil
}
