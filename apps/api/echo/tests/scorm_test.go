package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/qahhor/FREE-LMS-sub001/apps/api/echo"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/progress"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

func float(f float64) *float64 { return &f }

func sPtr(s string) *string { return &s }

func valuePath(sessionID, key string) string {
	return "/v1/scorm/sessions/" + sessionID + "/values/" + key
}

func setValue(t *testing.T, e env, token, sessionID, key, value string) {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPut, valuePath(sessionID, key), token, marchallObj(t, SetValueRequest{Value: sPtr(value)}))
	e.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_scormApi_auth(t *testing.T) {
	e := setup(t)

	tests := []httpTest{
		{
			name:     "missing token",
			method:   http.MethodPost,
			path:     "/v1/scorm/launch",
			body:     []byte(`{"package_id": "P1"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "invalid token",
			method:   http.MethodGet,
			path:     "/v1/scorm/progress",
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name:     "tampered token",
			method:   http.MethodGet,
			path:     "/v1/scorm/progress",
			token:    getToken(t, e.conf, "U1") + "x",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			e.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_scormApi_launch(t *testing.T) {
	e := setup(t)
	token := getToken(t, e.conf, "U1")

	tests := []httpTest{
		{
			name:     "missing package",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"package_id": "this field is required"}),
		},
		{
			name:     "blank package",
			body:     []byte(`{"package_id": "   "}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"package_id": "this field cannot be blank"}),
		},
		{
			name:     "malformed body",
			body:     []byte(`{"package_id": `),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/scorm/launch", token, tt.body)
			e.serve(req, rec)
			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("unknown package", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/scorm/launch", token, []byte(`{"package_id": "P9"}`))
		e.serve(req, rec)
		checkScormErr(t, httpTest{wantCode: http.StatusNotFound, extra: scormErr{Code: scorm.CodePackageNotFound, RTECode: 102}}, rec)
	})

	t.Run("launch then resume", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/scorm/launch", token, []byte(`{"package_id": "P1"}`))
		e.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var first LaunchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
		assert.NotEmpty(t, first.SessionID)
		assert.False(t, first.Resumed)
		assert.Equal(t, cmi.Version12, first.Version)
		assert.Equal(t, "/content/P1/index.html", first.LaunchURL)
		assert.Equal(t, "U1", first.Tracking.LearnerID)
		assert.Equal(t, "Learner U1", first.Tracking.LearnerName)
		assert.Equal(t, cmi.EntryAbInitio, first.Tracking.Entry)
		assert.True(t, e.scheduler.Watching(first.SessionID))

		req, rec = newAuthRequest(http.MethodPost, "/v1/scorm/launch", token, []byte(`{"package_id": "P1"}`))
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var second LaunchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
		assert.True(t, second.Resumed)
		assert.Equal(t, first.SessionID, second.SessionID)
	})
}

func Test_scormApi_endToEnd(t *testing.T) {
	e := setup(t)
	token := getToken(t, e.conf, "U1")

	l := e.launch(t, token, "P1")
	setValue(t, e, token, l.SessionID, "cmi.core.lesson_location", "page3")
	setValue(t, e, token, l.SessionID, "cmi.core.lesson_status", "incomplete")
	setValue(t, e, token, l.SessionID, "cmi.core.score.max", "100")
	setValue(t, e, token, l.SessionID, "cmi.core.score.raw", "75")
	setValue(t, e, token, l.SessionID, "cmi.core.session_time", "00:05:30")

	tests := []httpTest{
		{
			name:     "buffered value is read back",
			method:   http.MethodGet,
			path:     valuePath(l.SessionID, "cmi.core.lesson_location"),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, ValueResponse{Value: "page3"}),
		},
		{
			name:     "progress ignores the buffer",
			method:   http.MethodGet,
			path:     "/v1/scorm/sessions/" + l.SessionID + "/progress",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, progress.Project("P1", cmi.NewTracking(cmi.Version12))),
		},
		{
			name:     "commit",
			method:   http.MethodPost,
			path:     "/v1/scorm/sessions/" + l.SessionID + "/commit",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CommitResponse{Revision: 1}),
		},
		{
			name:     "empty commit",
			method:   http.MethodPost,
			path:     "/v1/scorm/sessions/" + l.SessionID + "/commit",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CommitResponse{Revision: 1}),
		},
		{
			name:     "terminate",
			method:   http.MethodPost,
			path:     "/v1/scorm/sessions/" + l.SessionID + "/terminate",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: true}),
		},
		{
			name:     "package progress",
			method:   http.MethodGet,
			path:     "/v1/scorm/packages/P1/progress",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, progress.Progress{
				PackageID:    "P1",
				LessonStatus: cmi.StatusIncomplete,
				StatusLabel:  "In progress",
				ScoreRaw:     float(75),
				ScoreMax:     float(100),
				TotalTime:    cmi.Duration(330e9),
				Progress:     75,
			}),
		},
		{
			name:     "not started package progress",
			method:   http.MethodGet,
			path:     "/v1/scorm/packages/P2/progress",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, progress.Project("P2", cmi.NewTracking(cmi.Version2004))),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, token)
			e.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
	assert.False(t, e.scheduler.Watching(l.SessionID))

	t.Run("relaunch resumes in a new session", func(t *testing.T) {
		l2 := e.launch(t, token, "P1")
		assert.NotEqual(t, l.SessionID, l2.SessionID)
		assert.False(t, l2.Resumed)
		assert.Equal(t, "page3", l2.Tracking.LessonLocation)
		assert.Equal(t, cmi.EntryResume, l2.Tracking.Entry)
		assert.Equal(t, "PT5M30S", l2.Tracking.TotalTime.String())

		req, rec := newAuthRequest(http.MethodGet, valuePath(l2.SessionID, "cmi.core.total_time"), token)
		e.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, ValueResponse{Value: "0000:05:30.00"})}, rec)
	})

	t.Run("user progress and attempts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/scorm/progress", token)
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var res []progress.Progress
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Len(t, res, 1)
		assert.Equal(t, "P1", res[0].PackageID)

		req, rec = newAuthRequest(http.MethodGet, "/v1/scorm/packages/P1/attempts", token)
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var attempts []scorm.Attempt
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempts))
		require.Len(t, attempts, 1)
		assert.Equal(t, l.SessionID, attempts[0].SessionID)
		assert.Equal(t, "PT5M30S", attempts[0].SessionTime.String())
		assert.False(t, attempts[0].Archived)
	})
}

func Test_scormApi_errors(t *testing.T) {
	e := setup(t)
	token := getToken(t, e.conf, "U1")
	l := e.launch(t, token, "P1")
	l2004 := e.launch(t, token, "P2")

	tests := []httpTest{
		{
			name:     "unknown session",
			method:   http.MethodGet,
			path:     valuePath("nope", "cmi.core.lesson_location"),
			wantCode: http.StatusNotFound,
			extra:    scormErr{Code: scorm.CodeSessionNotFound, RTECode: 101},
		},
		{
			name:     "unknown key",
			method:   http.MethodGet,
			path:     valuePath(l.SessionID, "cmi.core.nope"),
			wantCode: http.StatusBadRequest,
			extra:    scormErr{Code: scorm.CodeUnknownCmiKey, RTECode: 401},
		},
		{
			name:     "2004 key on a 1.2 session",
			method:   http.MethodGet,
			path:     valuePath(l.SessionID, "cmi.location"),
			wantCode: http.StatusBadRequest,
			extra:    scormErr{Code: scorm.CodeUnknownCmiKey, RTECode: 401},
		},
		{
			name:     "read-only key",
			method:   http.MethodPut,
			path:     valuePath(l.SessionID, "cmi.core.total_time"),
			body:     []byte(`{"value": "00:10:00"}`),
			wantCode: http.StatusForbidden,
			extra:    scormErr{Code: scorm.CodeReadOnlyKeyWriteAttempt, RTECode: 403},
		},
		{
			name:     "invalid vocabulary",
			method:   http.MethodPut,
			path:     valuePath(l.SessionID, "cmi.core.lesson_status"),
			body:     []byte(`{"value": "done"}`),
			wantCode: http.StatusBadRequest,
			extra:    scormErr{Code: scorm.CodeInvalidValueFormat, RTECode: 405},
		},
		{
			name:     "2004 read-only key",
			method:   http.MethodPut,
			path:     valuePath(l2004.SessionID, "cmi.learner_id"),
			body:     []byte(`{"value": "U2"}`),
			wantCode: http.StatusForbidden,
			extra:    scormErr{Code: scorm.CodeReadOnlyKeyWriteAttempt, RTECode: 404},
		},
		{
			name:     "2004 out of range",
			method:   http.MethodPut,
			path:     valuePath(l2004.SessionID, "cmi.score.scaled"),
			body:     []byte(`{"value": "1.5"}`),
			wantCode: http.StatusBadRequest,
			extra:    scormErr{Code: scorm.CodeInvalidValueFormat, RTECode: 407},
		},
		{
			name:     "2004 type mismatch",
			method:   http.MethodPut,
			path:     valuePath(l2004.SessionID, "cmi.score.raw"),
			body:     []byte(`{"value": "seventy"}`),
			wantCode: http.StatusBadRequest,
			extra:    scormErr{Code: scorm.CodeInvalidValueFormat, RTECode: 406},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, token, tt.body)
			e.serve(req, rec)
			checkScormErr(t, tt, rec)
		})
	}

	t.Run("missing value", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, valuePath(l.SessionID, "cmi.core.lesson_location"), token, []byte(`{}`))
		e.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"value": "this field is required"}),
		}, rec)
	})

	t.Run("empty value is a value", func(t *testing.T) {
		setValue(t, e, token, l.SessionID, "cmi.core.lesson_location", "")
	})

	t.Run("session of another learner", func(t *testing.T) {
		other := getToken(t, e.conf, "U2")
		for _, path := range []string{
			valuePath(l.SessionID, "cmi.core.lesson_location"),
			"/v1/scorm/sessions/" + l.SessionID + "/progress",
		} {
			req, rec := newAuthRequest(http.MethodGet, path, other)
			e.serve(req, rec)
			checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/scorm/sessions/"+l.SessionID+"/terminate", other)
		e.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("terminated session", func(t *testing.T) {
		path := "/v1/scorm/sessions/" + l2004.SessionID + "/terminate"
		req, rec := newAuthRequest(http.MethodPost, path, token)
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodPost, path, token)
		e.serve(req, rec)
		checkScormErr(t, httpTest{wantCode: http.StatusConflict, extra: scormErr{Code: scorm.CodeSessionAlreadyTerminated, RTECode: 113}}, rec)

		req, rec = newAuthRequest(http.MethodGet, valuePath(l2004.SessionID, "cmi.location"), token)
		e.serve(req, rec)
		checkScormErr(t, httpTest{wantCode: http.StatusConflict, extra: scormErr{Code: scorm.CodeSessionAlreadyTerminated, RTECode: 123}}, rec)

		req, rec = newAuthRequest(http.MethodPost, "/v1/scorm/sessions/"+l2004.SessionID+"/commit", token)
		e.serve(req, rec)
		checkScormErr(t, httpTest{wantCode: http.StatusConflict, extra: scormErr{Code: scorm.CodeSessionAlreadyTerminated, RTECode: 143}}, rec)
	})
}

func Test_scormApi_commitConflict(t *testing.T) {
	e := setup(t)
	token := getToken(t, e.conf, "U1")
	l := e.launch(t, token, "P1")

	// another process commits to the same session
	other := scorm.NewGateway(scorm.NewManager(e.store.Repo, e.store.Catalog, e.logger, e.conf.Scorm))
	require.NoError(t, other.SetValue(context.Background(), l.SessionID, "cmi.core.lesson_location", "page7"))
	_, err := other.Commit(context.Background(), l.SessionID)
	require.NoError(t, err)

	setValue(t, e, token, l.SessionID, "cmi.suspend_data", "q1=a")
	req, rec := newAuthRequest(http.MethodPost, "/v1/scorm/sessions/"+l.SessionID+"/commit", token)
	e.serve(req, rec)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, CommitResponse{Revision: 2, Conflict: true, Warning: "another process committed to this session since its last commit"}),
	}, rec)

	req, rec = newAuthRequest(http.MethodGet, valuePath(l.SessionID, "cmi.core.lesson_location"), token)
	e.serve(req, rec)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, ValueResponse{Value: "page7"})}, rec)
}

func TestServer_Shutdown(t *testing.T) {
	e := setup(t)
	token := getToken(t, e.conf, "U1")
	l := e.launch(t, token, "P1")
	setValue(t, e, token, l.SessionID, "cmi.core.lesson_location", "page5")

	require.NoError(t, e.app.Shutdown(context.Background()))
	assert.False(t, e.scheduler.Watching(l.SessionID))

	tr, err := e.store.Repo.GetTracking(context.Background(), l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "page5", tr.LessonLocation)
	assert.Equal(t, int64(1), tr.Revision)
}
