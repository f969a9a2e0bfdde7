package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
	"github.com/qahhor/FREE-LMS-sub001/storage/database"
)

// NewSQLiteDB opens a migrated SQLite database in a temporary directory, closed with the test.
func NewSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := &core.Config{Database: core.DatabaseConfig{Engine: database.EngineSQLite, Path: filepath.Join(t.TempDir(), "test.db")}}
	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func float(f float64) *float64 { return &f }

func newSession(id, userID, packageID string, at time.Time) scorm.Session {
	return scorm.Session{
		ID:             id,
		PackageID:      packageID,
		UserID:         userID,
		Version:        cmi.Version12,
		State:          scorm.StateActive,
		CreatedAt:      at,
		LastActivityAt: at,
	}
}

func newTracking(at time.Time) cmi.Tracking {
	t := cmi.NewTracking(cmi.Version12)
	t.LearnerID = "U1"
	t.UpdatedAt = at
	return t
}

// RunRepositoryTests runs the behaviour every scorm.Repository must have against the repository newRepo returns.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) scorm.Repository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		sess := newSession("S1", "U1", "P1", epoch)
		tr := newTracking(epoch)
		tr.LessonLocation = "page3"
		tr.ScoreRaw = float(75.5)
		tr.ScoreMax = float(100)
		tr.TotalTime = cmi.Duration(5*time.Minute + 30*time.Second)
		tr.SuspendData = []byte("q1=a;q2=b")
		tr.LaunchData = []byte("chapter=1")
		tr.Entry = cmi.EntryResume
		require.NoError(t, repo.CreateSession(ctx, sess, tr))

		got, err := repo.GetSession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, sess, got)
		assert.True(t, got.Active())

		gotT, err := repo.GetTracking(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, tr, gotT)

		active, err := repo.GetActiveSession(ctx, "U1", "P1")
		require.NoError(t, err)
		assert.Equal(t, "S1", active.ID)

		_, err = repo.GetSession(ctx, "nope")
		assert.Equal(t, scorm.ErrNotFound, errors.Cause(err))
		_, err = repo.GetTracking(ctx, "nope")
		assert.Equal(t, scorm.ErrNotFound, errors.Cause(err))
		_, err = repo.GetActiveSession(ctx, "U2", "P1")
		assert.Equal(t, scorm.ErrNotFound, errors.Cause(err))
	})

	t.Run("one active session per learner and package", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateSession(ctx, newSession("S1", "U1", "P1", epoch), newTracking(epoch)))

		err := repo.CreateSession(ctx, newSession("S2", "U1", "P1", epoch), newTracking(epoch))
		assert.Equal(t, scorm.ErrActiveSessionExists, errors.Cause(err))
		_, err = repo.GetSession(ctx, "S2")
		assert.Equal(t, scorm.ErrNotFound, errors.Cause(err))

		require.NoError(t, repo.CreateSession(ctx, newSession("S3", "U2", "P1", epoch), newTracking(epoch)))
		require.NoError(t, repo.CreateSession(ctx, newSession("S4", "U1", "P2", epoch), newTracking(epoch)))

		_, err = repo.TerminateSession(ctx, "S1", epoch.Add(time.Minute), func(*cmi.Tracking) error { return nil })
		require.NoError(t, err)
		require.NoError(t, repo.CreateSession(ctx, newSession("S2", "U1", "P1", epoch.Add(time.Minute)), newTracking(epoch)))
	})

	t.Run("update tracking", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateSession(ctx, newSession("S1", "U1", "P1", epoch), newTracking(epoch)))

		at := epoch.Add(time.Minute)
		got, err := repo.UpdateTracking(ctx, "S1", at, func(tr *cmi.Tracking) error {
			tr.LessonLocation = "page4"
			tr.Revision++
			tr.UpdatedAt = at
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "page4", got.LessonLocation)
		assert.Equal(t, int64(1), got.Revision)

		stored, err := repo.GetTracking(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, got, stored)
		sess, err := repo.GetSession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, at, sess.LastActivityAt)

		// a failing mutation writes nothing
		boom := errors.New("boom")
		_, err = repo.UpdateTracking(ctx, "S1", at.Add(time.Minute), func(tr *cmi.Tracking) error {
			tr.LessonLocation = "page9"
			return boom
		})
		assert.Equal(t, boom, errors.Cause(err))
		stored, err = repo.GetTracking(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, "page4", stored.LessonLocation)

		_, err = repo.UpdateTracking(ctx, "nope", at, func(*cmi.Tracking) error { return nil })
		assert.Equal(t, scorm.ErrNotFound, errors.Cause(err))
	})

	t.Run("touch session", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateSession(ctx, newSession("S1", "U1", "P1", epoch), newTracking(epoch)))

		at := epoch.Add(10 * time.Minute)
		require.NoError(t, repo.TouchSession(ctx, "S1", at))
		sess, err := repo.GetSession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, at, sess.LastActivityAt)

		assert.Equal(t, scorm.ErrNotFound, errors.Cause(repo.TouchSession(ctx, "nope", at)))
		_, err = repo.TerminateSession(ctx, "S1", at, func(*cmi.Tracking) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, scorm.ErrSessionTerminated, errors.Cause(repo.TouchSession(ctx, "S1", at)))
	})

	t.Run("terminate session", func(t *testing.T) {
		repo := newRepo(t)
		tr := newTracking(epoch)
		tr.SessionTime = cmi.Duration(2 * time.Minute)
		require.NoError(t, repo.CreateSession(ctx, newSession("S1", "U1", "P1", epoch), tr))

		at := epoch.Add(3 * time.Minute)
		a, err := repo.TerminateSession(ctx, "S1", at, func(tr *cmi.Tracking) error {
			tr.LessonStatus = cmi.StatusPassed
			tr.ScoreRaw = float(90)
			tr.Finish()
			tr.UpdatedAt = at
			return nil
		})
		require.NoError(t, err)
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "S1", a.SessionID)
		assert.Equal(t, "PT2M", a.TotalTime.String())
		assert.True(t, a.Archived)
		assert.Equal(t, at, a.TerminatedAt)

		sess, err := repo.GetSession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, scorm.StateTerminated, sess.State)
		assert.Equal(t, at, sess.TerminatedAt)

		_, err = repo.TerminateSession(ctx, "S1", at, func(*cmi.Tracking) error { return nil })
		assert.Equal(t, scorm.ErrSessionTerminated, errors.Cause(err))
		_, err = repo.UpdateTracking(ctx, "S1", at, func(*cmi.Tracking) error { return nil })
		assert.Equal(t, scorm.ErrSessionTerminated, errors.Cause(err))
		_, err = repo.GetActiveSession(ctx, "U1", "P1")
		assert.Equal(t, scorm.ErrNotFound, errors.Cause(err))

		attempts, err := repo.ListAttempts(ctx, "U1", "P1")
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, a, attempts[0])
	})

	t.Run("idle sessions", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateSession(ctx, newSession("S1", "U1", "P1", epoch), newTracking(epoch)))
		require.NoError(t, repo.CreateSession(ctx, newSession("S2", "U2", "P1", epoch.Add(-time.Hour)), newTracking(epoch)))
		require.NoError(t, repo.CreateSession(ctx, newSession("S3", "U3", "P1", epoch.Add(time.Hour)), newTracking(epoch)))
		require.NoError(t, repo.CreateSession(ctx, newSession("S4", "U4", "P1", epoch.Add(-2*time.Hour)), newTracking(epoch)))
		_, err := repo.TerminateSession(ctx, "S4", epoch.Add(-2*time.Hour), func(*cmi.Tracking) error { return nil })
		require.NoError(t, err)

		sessions, err := repo.ListIdleSessions(ctx, epoch.Add(time.Minute))
		require.NoError(t, err)
		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		assert.Equal(t, []string{"S2", "S1"}, ids)
	})

	t.Run("latest trackings", func(t *testing.T) {
		repo := newRepo(t)
		for i, id := range []string{"S1", "S2", "S3"} {
			at := epoch.Add(time.Duration(i) * time.Minute)
			require.NoError(t, repo.CreateSession(ctx, newSession(id, "U1", "P1", at), newTracking(at)))
			_, err := repo.TerminateSession(ctx, id, at, func(tr *cmi.Tracking) error {
				tr.LessonLocation = id
				tr.UpdatedAt = at
				return nil
			})
			require.NoError(t, err)
		}
		require.NoError(t, repo.CreateSession(ctx, newSession("S4", "U1", "P2", epoch), newTracking(epoch)))
		require.NoError(t, repo.CreateSession(ctx, newSession("S5", "U2", "P1", epoch.Add(time.Hour)), newTracking(epoch.Add(time.Hour))))

		latest, err := repo.LatestTracking(ctx, "U1", "P1")
		require.NoError(t, err)
		assert.Equal(t, "S3", latest.LessonLocation)

		_, err = repo.LatestTracking(ctx, "U1", "P3")
		assert.Equal(t, scorm.ErrNotFound, errors.Cause(err))

		pts, err := repo.ListLatestTrackings(ctx, "U1")
		require.NoError(t, err)
		require.Len(t, pts, 2)
		assert.Equal(t, "P1", pts[0].PackageID)
		assert.Equal(t, "S3", pts[0].Tracking.LessonLocation)
		assert.Equal(t, "P2", pts[1].PackageID)

		attempts, err := repo.ListAttempts(ctx, "U1", "P1")
		require.NoError(t, err)
		require.Len(t, attempts, 3)
		assert.Equal(t, "S3", attempts[0].SessionID)
		assert.Equal(t, "S1", attempts[2].SessionID)

		pts, err = repo.ListLatestTrackings(ctx, "U9")
		require.NoError(t, err)
		assert.Empty(t, pts)
	})
}
