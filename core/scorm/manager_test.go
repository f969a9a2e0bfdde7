package scorm_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
	"github.com/qahhor/FREE-LMS-sub001/tests"
)

var errBoom = errors.New("database is gone")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyRepo fails the next n writes.
type flakyRepo struct {
	scorm.Repository
	mu       sync.Mutex
	failNext int
}

func (r *flakyRepo) fail(n int) {
	r.mu.Lock()
	r.failNext = n
	r.mu.Unlock()
}

func (r *flakyRepo) shouldFail() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return true
	}
	return false
}

func (r *flakyRepo) UpdateTracking(ctx context.Context, id string, at time.Time, mutate func(t *cmi.Tracking) error) (cmi.Tracking, error) {
	if r.shouldFail() {
		return cmi.Tracking{}, errBoom
	}
	return r.Repository.UpdateTracking(ctx, id, at, mutate)
}

func (r *flakyRepo) TerminateSession(ctx context.Context, id string, at time.Time, mutate func(t *cmi.Tracking) error) (scorm.Attempt, error) {
	if r.shouldFail() {
		return scorm.Attempt{}, errBoom
	}
	return r.Repository.TerminateSession(ctx, id, at, mutate)
}

type env struct {
	store  testutil.Store
	repo   *flakyRepo
	clock  *clock
	logger *testutil.Logger
	mgr    *scorm.Manager
	gw     *scorm.Gateway
}

func setup(t *testing.T) *env {
	t.Helper()
	e := &env{store: testutil.NewStore(), clock: newClock(), logger: new(testutil.Logger)}
	e.repo = &flakyRepo{Repository: e.store.Repo}
	e.mgr, e.gw = e.newProcess()
	testutil.CreatePackage(t, e.store.Catalog, "P1", cmi.Version12)
	testutil.CreatePackage(t, e.store.Catalog, "P2", cmi.Version2004)
	return e
}

// newProcess returns a manager sharing the store with the others, as another API process would.
func (e *env) newProcess() (*scorm.Manager, *scorm.Gateway) {
	mgr := scorm.NewManager(e.repo, e.store.Catalog, e.logger, testutil.ScormConfig())
	scorm.SetNow(mgr, e.clock.Now)
	return mgr, scorm.NewGateway(mgr)
}

func (e *env) launch(t *testing.T, userID, packageID string) scorm.Launch {
	t.Helper()
	e.clock.Advance(time.Second)
	l, err := e.mgr.Launch(context.Background(), scorm.LaunchRequest{PackageID: packageID, UserID: userID, LearnerName: "Learner " + userID})
	require.NoError(t, err)
	return l
}

func (e *env) set(t *testing.T, sessionID string, kv ...string) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, e.gw.SetValue(context.Background(), sessionID, kv[i], kv[i+1]), kv[i])
	}
}

func (e *env) get(t *testing.T, sessionID, key string) string {
	t.Helper()
	v, err := e.gw.GetValue(context.Background(), sessionID, key)
	require.NoError(t, err, key)
	return v
}

func (e *env) terminate(t *testing.T, sessionID string) {
	t.Helper()
	e.clock.Advance(time.Second)
	require.NoError(t, e.gw.Terminate(context.Background(), sessionID))
}

func TestEndToEnd(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	l := e.launch(t, "U1", "P1")
	assert.False(t, l.Resumed)
	assert.Equal(t, "/content/P1/index.html", l.LaunchURL)
	assert.Equal(t, "ab-initio", e.get(t, l.SessionID, "cmi.core.entry"))
	assert.Equal(t, "Learner U1", e.get(t, l.SessionID, "cmi.core.student_name"))
	assert.Equal(t, "chapter=1", e.get(t, l.SessionID, "cmi.launch_data"))

	e.set(t, l.SessionID,
		"cmi.core.lesson_location", "page3",
		"cmi.core.score.raw", "75",
		"cmi.core.score.max", "100",
		"cmi.core.session_time", "PT5M30S",
	)
	_, err := e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	e.terminate(t, l.SessionID)

	p, err := e.mgr.PackageProgress(ctx, "U1", "P1")
	require.NoError(t, err)
	assert.Equal(t, "PT5M30S", p.TotalTime.String())
	assert.Equal(t, 75, p.Progress)

	next := e.launch(t, "U1", "P1")
	assert.NotEqual(t, l.SessionID, next.SessionID)
	assert.False(t, next.Resumed)
	assert.Equal(t, "page3", e.get(t, next.SessionID, "cmi.core.lesson_location"))
	assert.Equal(t, "resume", e.get(t, next.SessionID, "cmi.core.entry"))
	assert.Equal(t, "0000:05:30.00", e.get(t, next.SessionID, "cmi.core.total_time"))
	assert.Equal(t, "0000:00:00.00", e.get(t, next.SessionID, "cmi.core.session_time"))
}

func TestLaunch_resumesActiveSession(t *testing.T) {
	e := setup(t)

	first := e.launch(t, "U1", "P1")
	e.set(t, first.SessionID, "cmi.core.lesson_location", "page7", "cmi.suspend_data", "q1=a")
	_, err := e.gw.Commit(context.Background(), first.SessionID)
	require.NoError(t, err)

	// second tab
	second := e.launch(t, "U1", "P1")
	assert.True(t, second.Resumed)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "page7", second.Tracking.LessonLocation)
	assert.Equal(t, "q1=a", string(second.Tracking.SuspendData))

	// another learner gets their own session
	other := e.launch(t, "U2", "P1")
	assert.NotEqual(t, first.SessionID, other.SessionID)
}

func TestLaunch_errors(t *testing.T) {
	e := setup(t)

	_, err := e.mgr.Launch(context.Background(), scorm.LaunchRequest{PackageID: "nope", UserID: "U1"})
	assert.Equal(t, scorm.CodePackageNotFound, scorm.CodeOf(err))

	_, err = e.mgr.Launch(context.Background(), scorm.LaunchRequest{PackageID: " ", UserID: "U1"})
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "want *core.ValidationError, got %T", err)
	assert.Equal(t, map[string]string{"package_id": "this field is required"}, vErr.FieldMessages())
}

// racingRepo never sees the active session it is told already exists.
type racingRepo struct {
	scorm.Repository
}

func (racingRepo) GetActiveSession(context.Context, string, string) (scorm.Session, error) {
	return scorm.Session{}, scorm.ErrNotFound
}

func (racingRepo) CreateSession(context.Context, scorm.Session, cmi.Tracking) error {
	return scorm.ErrActiveSessionExists
}

func TestLaunch_concurrentSessionConflict(t *testing.T) {
	store := testutil.NewStore()
	testutil.CreatePackage(t, store.Catalog, "P1", cmi.Version12)
	mgr := scorm.NewManager(racingRepo{store.Repo}, store.Catalog, new(testutil.Logger), testutil.ScormConfig())

	_, err := mgr.Launch(context.Background(), scorm.LaunchRequest{PackageID: "P1", UserID: "U1"})
	assert.Equal(t, scorm.CodeConcurrentSessionConflict, scorm.CodeOf(err))
}

func TestLaunch_concurrentTabs(t *testing.T) {
	e := setup(t)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	errs := make([]error, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := e.mgr.Launch(context.Background(), scorm.LaunchRequest{PackageID: "P1", UserID: "U1"})
			ids[i], errs[i] = l.SessionID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestTotalTimeAccumulates(t *testing.T) {
	e := setup(t)

	for _, st := range []string{"00:01:00", "PT2M", "0000:03:00.50"} {
		l := e.launch(t, "U1", "P1")
		e.set(t, l.SessionID, "cmi.core.session_time", st)
		e.terminate(t, l.SessionID)
	}

	p, err := e.mgr.PackageProgress(context.Background(), "U1", "P1")
	require.NoError(t, err)
	assert.Equal(t, "PT6M0.5S", p.TotalTime.String())

	attempts, err := e.mgr.Attempts(context.Background(), "U1", "P1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, "PT6M0.5S", attempts[0].TotalTime.String())
	assert.Equal(t, "PT3M0.5S", attempts[0].SessionTime.String())
	assert.Equal(t, "PT1M", attempts[2].TotalTime.String())
}

func TestTotalTime_rejectsOverflowingSessionTime(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	first := e.launch(t, "U1", "P1")
	e.set(t, first.SessionID, "cmi.core.session_time", "PT1H")
	e.terminate(t, first.SessionID)

	second := e.launch(t, "U1", "P1")
	for _, v := range []string{"P300Y", "PT99999999999999H"} {
		err := e.gw.SetValue(ctx, second.SessionID, "cmi.core.session_time", v)
		assert.Equal(t, scorm.CodeInvalidValueFormat, scorm.CodeOf(err), v)
		assert.Equal(t, 405, scorm.RTECode(err, cmi.Version12), v)
	}
	e.set(t, second.SessionID, "cmi.core.session_time", "PT30M")
	e.terminate(t, second.SessionID)

	p, err := e.mgr.PackageProgress(ctx, "U1", "P1")
	require.NoError(t, err)
	assert.Equal(t, "PT1H30M", p.TotalTime.String())
}

func TestSetValue_readOnly(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")

	for _, key := range []string{"cmi.core.student_name", "cmi.launch_data", "cmi.core.total_time", "cmi.core.entry", "cmi.core.credit"} {
		before := e.get(t, l.SessionID, key)
		err := e.gw.SetValue(context.Background(), l.SessionID, key, "hacked")
		assert.Equal(t, scorm.CodeReadOnlyKeyWriteAttempt, scorm.CodeOf(err), key)
		assert.Equal(t, 403, scorm.RTECode(err, cmi.Version12), key)
		assert.Equal(t, before, e.get(t, l.SessionID, key), key)
	}
}

func TestSetValue_validation(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	tests := []struct {
		name     string
		key      string
		value    string
		wantCode scorm.ErrorCode
	}{
		{name: "unknown key", key: "cmi.core.nope", value: "x", wantCode: scorm.CodeUnknownCmiKey},
		{name: "2004 key on 1.2", key: "cmi.location", value: "x", wantCode: scorm.CodeUnknownCmiKey},
		{name: "bad status", key: "cmi.core.lesson_status", value: "done", wantCode: scorm.CodeInvalidValueFormat},
		{name: "bad score", key: "cmi.core.score.raw", value: "lots", wantCode: scorm.CodeInvalidValueFormat},
		{name: "bad duration", key: "cmi.core.session_time", value: "5 min", wantCode: scorm.CodeInvalidValueFormat},
		{name: "suspend data at limit", key: "cmi.suspend_data", value: strings.Repeat("s", cmi.SuspendDataLimit12)},
		{name: "suspend data over limit", key: "cmi.suspend_data", value: strings.Repeat("s", cmi.SuspendDataLimit12+1), wantCode: scorm.CodeInvalidValueFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.gw.SetValue(ctx, l.SessionID, tt.key, tt.value)
			if got := scorm.CodeOf(err); got != tt.wantCode {
				t.Errorf("SetValue() code = %v, wantCode %v (err %v)", got, tt.wantCode, err)
			}
		})
	}

	// rejected writes are not truncated into the record
	assert.Len(t, e.get(t, l.SessionID, "cmi.suspend_data"), cmi.SuspendDataLimit12)
}

func TestSetValue_scoreOrdering(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	e.set(t, l.SessionID, "cmi.core.score.max", "50")
	err := e.gw.SetValue(ctx, l.SessionID, "cmi.core.score.raw", "75")
	assert.Equal(t, scorm.CodeInvalidValueFormat, scorm.CodeOf(err))

	// checked against the committed record too
	_, err = e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	err = e.gw.SetValue(ctx, l.SessionID, "cmi.core.score.min", "60")
	assert.Equal(t, scorm.CodeInvalidValueFormat, scorm.CodeOf(err))
	e.set(t, l.SessionID, "cmi.core.score.raw", "40")
}

func TestGetValue_buffered(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	e.set(t, l.SessionID, "cmi.core.lesson_location", "page2", "cmi.core.lesson_location", "page3")
	assert.Equal(t, "page3", e.get(t, l.SessionID, "cmi.core.lesson_location"))

	stored, err := e.store.Repo.GetTracking(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Empty(t, stored.LessonLocation)

	report, err := e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmi.core.lesson_location"}, report.Keys)
	assert.Equal(t, int64(1), report.Revision)
	assert.False(t, report.Conflict)

	stored, err = e.store.Repo.GetTracking(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "page3", stored.LessonLocation)
}

func TestCommit_preservesCommittedKeys(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	e.set(t, l.SessionID, "cmi.core.lesson_location", "page3")
	_, err := e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)

	e.set(t, l.SessionID, "cmi.core.score.raw", "80")
	report, err := e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Revision)

	stored, err := e.store.Repo.GetTracking(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "page3", stored.LessonLocation)
	assert.Equal(t, 80.0, *stored.ScoreRaw)

	// empty buffer: no write
	report, err = e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Empty(t, report.Keys)
	assert.Equal(t, int64(2), report.Revision)
}

func TestCommit_touchesAfterReads(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	e.clock.Advance(10 * time.Minute)
	e.get(t, l.SessionID, "cmi.core.lesson_location")
	_, err := e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)

	sess, err := e.mgr.Session(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, e.clock.Now(), sess.LastActivityAt)
}

func TestCommit_conflictAcrossProcesses(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	l := e.launch(t, "U1", "P1")

	_, otherGw := e.newProcess()
	assert.Equal(t, "", func() string {
		v, err := otherGw.GetValue(ctx, l.SessionID, "cmi.core.lesson_location")
		require.NoError(t, err)
		return v
	}())

	e.set(t, l.SessionID, "cmi.core.lesson_location", "page3")
	report, err := e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	assert.False(t, report.Conflict)

	require.NoError(t, otherGw.SetValue(ctx, l.SessionID, "cmi.core.score.raw", "90"))
	report, err = otherGw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	assert.True(t, report.Conflict)
	assert.Equal(t, int64(2), report.Revision)
	assert.Equal(t, 1, e.logger.Count("warn"))

	stored, err := e.store.Repo.GetTracking(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "page3", stored.LessonLocation)
	assert.Equal(t, 90.0, *stored.ScoreRaw)
}

func TestCommit_failureKeepsBuffer(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	e.set(t, l.SessionID, "cmi.core.lesson_location", "page9")
	e.repo.fail(1)
	_, err := e.gw.Commit(ctx, l.SessionID)
	assert.Equal(t, scorm.CodeCommitFailed, scorm.CodeOf(err))
	assert.Equal(t, 391, scorm.RTECode(err, cmi.Version2004))
	assert.Equal(t, "page9", e.get(t, l.SessionID, "cmi.core.lesson_location"))

	report, err := e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmi.core.lesson_location"}, report.Keys)
}

func TestTerminate_idempotent(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	e.set(t, l.SessionID, "cmi.core.session_time", "PT1M")
	e.terminate(t, l.SessionID)

	err := e.gw.Terminate(ctx, l.SessionID)
	assert.Equal(t, scorm.CodeSessionAlreadyTerminated, scorm.CodeOf(err))
	assert.Equal(t, 113, scorm.RTECode(err, cmi.Version2004))

	// from another process too
	_, otherGw := e.newProcess()
	err = otherGw.Terminate(ctx, l.SessionID)
	assert.Equal(t, scorm.CodeSessionAlreadyTerminated, scorm.CodeOf(err))

	attempts, err := e.mgr.Attempts(ctx, "U1", "P1")
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
	stored, err := e.store.Repo.GetTracking(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "PT1M", stored.TotalTime.String())

	for _, call := range []func() error{
		func() error { _, err := e.gw.GetValue(ctx, l.SessionID, "cmi.core.lesson_location"); return err },
		func() error { return e.gw.SetValue(ctx, l.SessionID, "cmi.core.lesson_location", "x") },
		func() error { _, err := e.gw.Commit(ctx, l.SessionID); return err },
	} {
		assert.Equal(t, scorm.CodeSessionAlreadyTerminated, scorm.CodeOf(call()))
	}
}

func TestUnknownSession(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.gw.GetValue(ctx, "nope", "cmi.core.lesson_location")
	assert.Equal(t, scorm.CodeSessionNotFound, scorm.CodeOf(err))
	assert.Equal(t, 301, scorm.RTECode(err, cmi.Version12))
	assert.Equal(t, 122, scorm.RTECode(err, cmi.Version2004))

	err = e.gw.Terminate(ctx, "nope")
	assert.Equal(t, scorm.CodeSessionNotFound, scorm.CodeOf(err))

	_, err = e.gw.Progress(ctx, "nope")
	assert.Equal(t, scorm.CodeSessionNotFound, scorm.CodeOf(err))
}

func TestTerminate_storeFailureIsReconciled(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	e.set(t, l.SessionID, "cmi.core.lesson_location", "page4", "cmi.core.session_time", "PT2M")
	e.repo.fail(2) // final commit and termination
	err := e.gw.Terminate(ctx, l.SessionID)
	assert.Equal(t, scorm.CodeCommitFailed, scorm.CodeOf(err))
	assert.Equal(t, 111, scorm.RTECode(err, cmi.Version2004))
	assert.Equal(t, []string{l.SessionID}, e.mgr.Pending())
	assert.Equal(t, 1, e.logger.Count("error"))

	// terminated in memory
	_, err = e.gw.GetValue(ctx, l.SessionID, "cmi.core.lesson_location")
	assert.Equal(t, scorm.CodeSessionAlreadyTerminated, scorm.CodeOf(err))

	n, err := e.mgr.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, e.mgr.Pending())

	stored, err := e.store.Repo.GetTracking(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "page4", stored.LessonLocation)
	assert.Equal(t, "PT2M", stored.TotalTime.String())

	sess, err := e.mgr.Session(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, scorm.StateTerminated, sess.State)
}

func TestLaunch_afterFailedTerminate(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	req := scorm.LaunchRequest{PackageID: "P1", UserID: "U1"}

	l := e.launch(t, "U1", "P1")
	e.set(t, l.SessionID, "cmi.core.lesson_location", "page4", "cmi.core.session_time", "PT2M")
	e.repo.fail(2) // final commit and termination
	err := e.gw.Terminate(ctx, l.SessionID)
	require.Equal(t, scorm.CodeCommitFailed, scorm.CodeOf(err))

	// the store is still failing: the terminated session is not handed back
	e.repo.fail(1)
	_, err = e.mgr.Launch(ctx, req)
	assert.Equal(t, scorm.CodeCommitFailed, scorm.CodeOf(err))
	assert.Equal(t, []string{l.SessionID}, e.mgr.Pending())

	relaunched, err := e.mgr.Launch(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, l.SessionID, relaunched.SessionID)
	assert.False(t, relaunched.Resumed)
	assert.Equal(t, "page4", relaunched.Tracking.LessonLocation)
	assert.Equal(t, "PT2M", relaunched.Tracking.TotalTime.String())
	assert.Empty(t, e.mgr.Pending())

	sess, err := e.mgr.Session(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, scorm.StateTerminated, sess.State)
	assert.Equal(t, "page4", e.get(t, relaunched.SessionID, "cmi.core.lesson_location"))
}

func TestSweepIdle(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	idle := e.launch(t, "U1", "P1")
	e.set(t, idle.SessionID, "cmi.core.session_time", "PT4M")
	_, err := e.gw.Commit(ctx, idle.SessionID)
	require.NoError(t, err)

	e.clock.Advance(20 * time.Minute)
	busy := e.launch(t, "U2", "P1")

	e.clock.Advance(15 * time.Minute)
	e.get(t, busy.SessionID, "cmi.core.lesson_location") // in-memory activity only

	n, err := e.mgr.SweepIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sess, err := e.mgr.Session(ctx, idle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, scorm.StateTerminated, sess.State)
	sess, err = e.mgr.Session(ctx, busy.SessionID)
	require.NoError(t, err)
	assert.Equal(t, scorm.StateActive, sess.State)

	p, err := e.mgr.PackageProgress(ctx, "U1", "P1")
	require.NoError(t, err)
	assert.Equal(t, "PT4M", p.TotalTime.String())
}

func TestLaunch_replacesGhostSession(t *testing.T) {
	e := setup(t)

	ghost := e.launch(t, "U1", "P1")
	e.set(t, ghost.SessionID, "cmi.core.lesson_location", "page5")

	e.clock.Advance(31 * time.Minute)
	l := e.launch(t, "U1", "P1")
	assert.NotEqual(t, ghost.SessionID, l.SessionID)
	assert.False(t, l.Resumed)
	assert.Equal(t, "page5", l.Tracking.LessonLocation)

	sess, err := e.mgr.Session(context.Background(), ghost.SessionID)
	require.NoError(t, err)
	assert.Equal(t, scorm.StateTerminated, sess.State)
}

func TestScorm2004(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	l := e.launch(t, "U1", "P2")
	assert.Equal(t, cmi.Version2004, l.Version)
	assert.Equal(t, "unknown", e.get(t, l.SessionID, "cmi.completion_status"))

	_, err := e.gw.GetValue(ctx, l.SessionID, "cmi.core.lesson_status")
	assert.Equal(t, 401, scorm.RTECode(err, cmi.Version2004))

	err = e.gw.SetValue(ctx, l.SessionID, "cmi.score.scaled", "2")
	assert.Equal(t, 407, scorm.RTECode(err, cmi.Version2004))
	err = e.gw.SetValue(ctx, l.SessionID, "cmi.success_status", "maybe")
	assert.Equal(t, 406, scorm.RTECode(err, cmi.Version2004))

	e.set(t, l.SessionID,
		"cmi.location", "s4",
		"cmi.completion_status", "completed",
		"cmi.success_status", "passed",
		"cmi.score.raw", "12",
		"cmi.session_time", "PT10M",
	)
	_, err = e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)

	p, err := e.gw.Progress(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, cmi.StatusPassed, p.LessonStatus)
	assert.Equal(t, "Passed", p.StatusLabel)
	assert.Equal(t, 100, p.Progress)

	e.terminate(t, l.SessionID)
	attempts, err := e.mgr.Attempts(ctx, "U1", "P2")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Archived)

	// an archived attempt is not resumed, only its time carries over
	next := e.launch(t, "U1", "P2")
	assert.Equal(t, "", e.get(t, next.SessionID, "cmi.location"))
	assert.Equal(t, "ab-initio", e.get(t, next.SessionID, "cmi.entry"))
	assert.Equal(t, "unknown", e.get(t, next.SessionID, "cmi.success_status"))
	assert.Equal(t, "PT10M", e.get(t, next.SessionID, "cmi.total_time"))
}

func TestUserProgress(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	l1 := e.launch(t, "U1", "P1")
	e.set(t, l1.SessionID, "cmi.core.lesson_status", "incomplete", "cmi.core.score.raw", "30", "cmi.core.score.max", "60")
	_, err := e.gw.Commit(ctx, l1.SessionID)
	require.NoError(t, err)
	l2 := e.launch(t, "U1", "P2")
	e.set(t, l2.SessionID, "cmi.completion_status", "completed")
	_, err = e.gw.Commit(ctx, l2.SessionID)
	require.NoError(t, err)

	ps, err := e.mgr.UserProgress(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "P1", ps[0].PackageID)
	assert.Equal(t, 50, ps[0].Progress)
	assert.Equal(t, "In progress", ps[0].StatusLabel)
	assert.Equal(t, "P2", ps[1].PackageID)
	assert.Equal(t, 100, ps[1].Progress)

	// never launched
	p, err := e.mgr.PackageProgress(ctx, "U9", "P1")
	require.NoError(t, err)
	assert.Equal(t, "Not started", p.StatusLabel)
	assert.Equal(t, 0, p.Progress)

	_, err = e.mgr.PackageProgress(ctx, "U9", "nope")
	assert.Equal(t, scorm.CodePackageNotFound, scorm.CodeOf(err))
}

func TestGateway_concurrentUse(t *testing.T) {
	e := setup(t)
	l := e.launch(t, "U1", "P1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, e.gw.SetValue(ctx, l.SessionID, "cmi.suspend_data", fmt.Sprintf("step=%d", i)))
			_, err := e.gw.Commit(ctx, l.SessionID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	_, err := e.gw.Commit(ctx, l.SessionID)
	require.NoError(t, err)
	stored, err := e.store.Repo.GetTracking(ctx, l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, e.get(t, l.SessionID, "cmi.suspend_data"), string(stored.SuspendData))
}
