package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

type scormRepository struct {
	db *DB
}

var _ scorm.Repository = (*scormRepository)(nil) // interface compliance check

func NewScormRepository(db *DB) scorm.Repository {
	return &scormRepository{db: db}
}

func clone(t cmi.Tracking) cmi.Tracking {
	c := t
	c.ScoreRaw = copyFloat(t.ScoreRaw)
	c.ScoreMin = copyFloat(t.ScoreMin)
	c.ScoreMax = copyFloat(t.ScoreMax)
	c.ScoreScaled = copyFloat(t.ScoreScaled)
	if t.SuspendData != nil {
		c.SuspendData = append([]byte(nil), t.SuspendData...)
	}
	if t.LaunchData != nil {
		c.LaunchData = append([]byte(nil), t.LaunchData...)
	}
	return c
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func (repo *scormRepository) CreateSession(_ context.Context, sess scorm.Session, t cmi.Tracking) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.sessions {
		if s.Active() && s.UserID == sess.UserID && s.PackageID == sess.PackageID {
			return scorm.ErrActiveSessionExists
		}
	}
	repo.db.sessions[sess.ID] = &sess
	t = clone(t)
	repo.db.trackings[sess.ID] = &t
	return nil
}

func (repo *scormRepository) GetSession(_ context.Context, id string) (scorm.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sess, ok := repo.db.sessions[id]; ok {
		return *sess, nil
	}
	return scorm.Session{}, scorm.ErrNotFound
}

func (repo *scormRepository) GetActiveSession(_ context.Context, userID, packageID string) (scorm.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.sessions {
		if s.Active() && s.UserID == userID && s.PackageID == packageID {
			return *s, nil
		}
	}
	return scorm.Session{}, scorm.ErrNotFound
}

func (repo *scormRepository) GetTracking(_ context.Context, sessionID string) (cmi.Tracking, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.trackings[sessionID]; ok {
		return clone(*t), nil
	}
	return cmi.Tracking{}, scorm.ErrNotFound
}

// latest returns the session of the most recently updated record among sessions matching keep.
// Caller holds the lock.
func (repo *scormRepository) latest(keep func(s *scorm.Session) bool) map[string]*scorm.Session {
	byPackage := make(map[string]*scorm.Session)
	for id, s := range repo.db.sessions {
		if !keep(s) {
			continue
		}
		cur, ok := byPackage[s.PackageID]
		if !ok || newer(repo.db.trackings[id], s, repo.db.trackings[cur.ID], cur) {
			byPackage[s.PackageID] = s
		}
	}
	return byPackage
}

func newer(t *cmi.Tracking, s *scorm.Session, than *cmi.Tracking, thanS *scorm.Session) bool {
	if !t.UpdatedAt.Equal(than.UpdatedAt) {
		return t.UpdatedAt.After(than.UpdatedAt)
	}
	return s.CreatedAt.After(thanS.CreatedAt)
}

func (repo *scormRepository) LatestTracking(_ context.Context, userID, packageID string) (cmi.Tracking, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	latest := repo.latest(func(s *scorm.Session) bool { return s.UserID == userID && s.PackageID == packageID })
	if s, ok := latest[packageID]; ok {
		return clone(*repo.db.trackings[s.ID]), nil
	}
	return cmi.Tracking{}, scorm.ErrNotFound
}

// activeSession returns the session to write to. Caller holds the lock.
func (repo *scormRepository) activeSession(sessionID string) (*scorm.Session, error) {
	sess, ok := repo.db.sessions[sessionID]
	if !ok {
		return nil, scorm.ErrNotFound
	}
	if !sess.Active() {
		return nil, scorm.ErrSessionTerminated
	}
	return sess, nil
}

func (repo *scormRepository) UpdateTracking(
	_ context.Context,
	sessionID string,
	at time.Time,
	mutate func(t *cmi.Tracking) error,
) (cmi.Tracking, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess, err := repo.activeSession(sessionID)
	if err != nil {
		return cmi.Tracking{}, err
	}
	t := clone(*repo.db.trackings[sessionID])
	if err = mutate(&t); err != nil {
		return cmi.Tracking{}, err
	}
	repo.db.trackings[sessionID] = &t
	sess.LastActivityAt = at.UTC()
	return clone(t), nil
}

func (repo *scormRepository) TouchSession(_ context.Context, sessionID string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess, err := repo.activeSession(sessionID)
	if err != nil {
		return err
	}
	sess.LastActivityAt = at.UTC()
	return nil
}

func (repo *scormRepository) TerminateSession(
	_ context.Context,
	sessionID string,
	at time.Time,
	mutate func(t *cmi.Tracking) error,
) (scorm.Attempt, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess, err := repo.activeSession(sessionID)
	if err != nil {
		return scorm.Attempt{}, err
	}
	t := clone(*repo.db.trackings[sessionID])
	if err = mutate(&t); err != nil {
		return scorm.Attempt{}, err
	}

	at = at.UTC()
	repo.db.trackings[sessionID] = &t
	sess.State = scorm.StateTerminated
	sess.TerminatedAt = at
	sess.LastActivityAt = at
	a := scorm.NewAttempt(*sess, clone(t), at)
	repo.db.attempts = append(repo.db.attempts, a)
	return a, nil
}

func (repo *scormRepository) ListIdleSessions(_ context.Context, cutoff time.Time) ([]scorm.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sessions := make([]scorm.Session, 0)
	for _, s := range repo.db.sessions {
		if s.Active() && s.LastActivityAt.Before(cutoff) {
			sessions = append(sessions, *s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].LastActivityAt.Before(sessions[j].LastActivityAt) })
	return sessions, nil
}

func (repo *scormRepository) ListAttempts(_ context.Context, userID, packageID string) ([]scorm.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	attempts := make([]scorm.Attempt, 0)
	for i := len(repo.db.attempts) - 1; i >= 0; i-- {
		if a := repo.db.attempts[i]; a.UserID == userID && a.PackageID == packageID {
			attempts = append(attempts, a)
		}
	}
	return attempts, nil
}

func (repo *scormRepository) ListLatestTrackings(_ context.Context, userID string) ([]scorm.PackageTracking, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	latest := repo.latest(func(s *scorm.Session) bool { return s.UserID == userID })
	pts := make([]scorm.PackageTracking, 0, len(latest))
	for pkgID, s := range latest {
		pts = append(pts, scorm.PackageTracking{PackageID: pkgID, Tracking: clone(*repo.db.trackings[s.ID])})
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].PackageID < pts[j].PackageID })
	return pts, nil
}
