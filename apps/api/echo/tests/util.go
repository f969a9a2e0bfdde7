package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/qahhor/FREE-LMS-sub001/apps/api/echo"
	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
	"github.com/qahhor/FREE-LMS-sub001/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	conf      *core.Config
	store     testutil.Store
	logger    *testutil.Logger
	mgr       *scorm.Manager
	gateway   *scorm.Gateway
	scheduler *scorm.Scheduler
	app       *Server
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// setup returns a server over an in-memory store holding P1 (SCORM 1.2) and P2 (SCORM 2004).
// Auto-commit is slowed down so that only explicit commits write.
func setup(t *testing.T) env {
	conf := &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "freelms",
		SecretKey: "secret",
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
		Scorm:     testutil.ScormConfig(),
	}
	conf.Scorm.AutoCommitInterval = time.Hour
	conf.Scorm.CommitMaxBackoff = time.Hour

	e := env{conf: conf, store: testutil.NewStore(), logger: new(testutil.Logger)}
	testutil.CreatePackage(t, e.store.Catalog, "P1", cmi.Version12)
	testutil.CreatePackage(t, e.store.Catalog, "P2", cmi.Version2004)

	e.mgr = scorm.NewManager(e.store.Repo, e.store.Catalog, e.logger, conf.Scorm)
	e.gateway = scorm.NewGateway(e.mgr)
	e.scheduler = scorm.NewScheduler(e.gateway, e.logger, conf.Scorm)
	t.Cleanup(func() { _ = e.scheduler.Shutdown(context.Background()) })

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	e.app = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     e.logger,
		Validate:   validate,
		Translator: translator,
		Manager:    e.mgr,
		Gateway:    e.gateway,
		Scheduler:  e.scheduler,
	})
	return e
}

func (e env) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	e.app.ServeHTTP(rec, req)
}

// launch launches pkgID for the learner of token and returns the session.
func (e env) launch(t *testing.T, token, pkgID string) LaunchResponse {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/scorm/launch", token, marchallObj(t, LaunchRequest{PackageID: pkgID}))
	e.serve(req, rec)
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("launch() failed: %d %s", rec.Code, rec.Body.String())
	}
	var l LaunchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &l); err != nil {
		t.Fatalf("launch() failed: %v", err)
	}
	return l
}

type httpErr struct {
	Error string `json:"error"`
}

type scormErr struct {
	Code    scorm.ErrorCode `json:"code"`
	RTECode int             `json:"rte_code"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, learnerID string) string {
	claims := NewLearnerClaims(conf, learnerID, "Learner "+learnerID)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// checkScormErr checks the status and the runtime error codes of a failed call.
func checkScormErr(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	var got scormErr
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Errorf("json.Unmarshal() failed; err %v", err)
	}
	assert.Equal(t, tt.extra, got)
}
