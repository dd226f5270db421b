package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mirrorlake/augur/report"
	"github.com/mirrorlake/augur/research"
	"github.com/mirrorlake/augur/types"
	"github.com/mirrorlake/augur/workflow"
)

// fakeRunService 脚本化的运行服务
type fakeRunService struct {
	startFn  func(subject research.Subject) (string, error)
	statusFn func(runID string) (research.RunStatus, error)
	finalFn  func(runID string) (*workflow.RunResult, error)
}

func (f *fakeRunService) StartRun(_ context.Context, subject research.Subject) (string, error) {
	return f.startFn(subject)
}

func (f *fakeRunService) Status(runID string) (research.RunStatus, error) {
	return f.statusFn(runID)
}

func (f *fakeRunService) GetFinalState(_ context.Context, runID string) (*workflow.RunResult, error) {
	return f.finalFn(runID)
}

func newTestServer(service RunService) *httptest.Server {
	handler := NewHandler(service, zap.NewNop())
	return httptest.NewServer(Routes(handler, nil))
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleStartRun_Accepted(t *testing.T) {
	var gotSubject research.Subject
	srv := newTestServer(&fakeRunService{
		startFn: func(subject research.Subject) (string, error) {
			gotSubject = subject
			return "run-123", nil
		},
	})
	defer srv.Close()

	body := bytes.NewBufferString(`{"company": "Acme Corp", "industry": "robotics"}`)
	resp, err := http.Post(srv.URL+"/api/research", "application/json", body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decodeResponse(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, "Acme Corp", gotSubject.Company)
	assert.Equal(t, "robotics", gotSubject.Industry)

	data := out.Data.(map[string]interface{})
	assert.Equal(t, "run-123", data["run_id"])
	assert.Equal(t, string(research.RunRunning), data["status"])
}

func TestHandleStartRun_InvalidSubject(t *testing.T) {
	srv := newTestServer(&fakeRunService{
		startFn: func(research.Subject) (string, error) {
			return "", types.NewError(types.ErrInvalidRequest, "company name is required")
		},
	})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/research", "application/json", bytes.NewBufferString(`{"company": ""}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decodeResponse(t, resp)
	assert.False(t, out.Success)
	assert.Equal(t, string(types.ErrInvalidRequest), out.Error.Code)
}

func TestHandleStartRun_MalformedBody(t *testing.T) {
	srv := newTestServer(&fakeRunService{
		startFn: func(research.Subject) (string, error) {
			t.Fatal("service must not be called")
			return "", nil
		},
	})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/research", "application/json", bytes.NewBufferString(`{"company": `))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStartRun_RejectsUnknownFields(t *testing.T) {
	srv := newTestServer(&fakeRunService{
		startFn: func(research.Subject) (string, error) {
			t.Fatal("service must not be called")
			return "", nil
		},
	})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/research", "application/json",
		bytes.NewBufferString(`{"company": "Acme", "bogus": true}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleGetRun_Terminal(t *testing.T) {
	now := time.Now().UTC()
	srv := newTestServer(&fakeRunService{
		finalFn: func(runID string) (*workflow.RunResult, error) {
			require.Equal(t, "run-123", runID)
			return &workflow.RunResult{
				Snapshot: &research.Snapshot{
					RunID:   runID,
					Subject: research.Subject{Company: "Acme Corp"},
					Status:  research.RunCompleted,
				},
				Report: report.Document{RunID: runID, Title: "Acme Corp", Markdown: "# Acme Corp", GeneratedAt: now},
			}, nil
		},
	})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/research/run-123")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResponse(t, resp)
	require.True(t, out.Success)

	data := out.Data.(map[string]interface{})
	assert.Equal(t, "run-123", data["run_id"])
	assert.Equal(t, string(research.RunCompleted), data["status"])
	assert.NotNil(t, data["snapshot"])
	assert.NotNil(t, data["report"])
}

func TestHandleGetRun_StillRunning(t *testing.T) {
	srv := newTestServer(&fakeRunService{
		finalFn: func(string) (*workflow.RunResult, error) {
			return nil, types.NewError(types.ErrRunNotTerminal, "run is still in progress")
		},
		statusFn: func(string) (research.RunStatus, error) {
			return research.RunRunning, nil
		},
	})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/research/run-123")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResponse(t, resp)
	require.True(t, out.Success)

	data := out.Data.(map[string]interface{})
	assert.Equal(t, string(research.RunRunning), data["status"])
	assert.Nil(t, data["snapshot"])
	assert.Nil(t, data["report"])
}

func TestHandleGetRun_NotFound(t *testing.T) {
	srv := newTestServer(&fakeRunService{
		finalFn: func(string) (*workflow.RunResult, error) {
			return nil, types.NewError(types.ErrRunNotFound, "unknown run")
		},
	})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/research/nope")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	out := decodeResponse(t, resp)
	assert.False(t, out.Success)
	assert.Equal(t, string(types.ErrRunNotFound), out.Error.Code)
}

func TestHandleHealthz(t *testing.T) {
	srv := newTestServer(&fakeRunService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpointMounted(t *testing.T) {
	srv := newTestServer(&fakeRunService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
