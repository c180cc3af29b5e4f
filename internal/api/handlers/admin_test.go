package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/taskdispatch/internal/reactor"
	"github.com/maumercado/taskdispatch/internal/task"
)

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type fakeExecer struct{}

func (fakeExecer) Exec(fn func()) { fn() }

type fakeController struct {
	tasks    []task.Task
	workers  map[reactor.ConnID]string
	kickable map[string]bool
}

func (f *fakeController) TaskSnapshot() []task.Task                    { return f.tasks }
func (f *fakeController) WorkerSnapshot() map[reactor.ConnID]string    { return f.workers }
func (f *fakeController) Kick(workerID string) bool                    { return f.kickable[workerID] }

func newTestAdminHandler(c *fakeController, storeErr error) *AdminHandler {
	return NewAdminHandler(c, fakeExecer{}, func() error { return storeErr })
}

func TestAdminHandler_respondJSON(t *testing.T) {
	h := &AdminHandler{}

	w := httptest.NewRecorder()
	data := map[string]string{"status": "ok"}

	h.respondJSON(w, http.StatusOK, data)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

func TestHealthCheck_Healthy(t *testing.T) {
	h := newTestAdminHandler(&fakeController{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()
	h.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	h := newTestAdminHandler(&fakeController{}, errors.New("store unreachable"))

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()
	h.HealthCheck(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListTasks(t *testing.T) {
	c := &fakeController{tasks: []task.Task{{Name: "T1", State: task.Running}}}
	h := newTestAdminHandler(c, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/tasks", nil)
	w := httptest.NewRecorder()
	h.ListTasks(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["count"])
}

func TestListWorkers(t *testing.T) {
	c := &fakeController{workers: map[reactor.ConnID]string{1: "W1"}}
	h := newTestAdminHandler(c, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/workers", nil)
	w := httptest.NewRecorder()
	h.ListWorkers(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["count"])
}

func TestKickWorker_MissingID(t *testing.T) {
	h := newTestAdminHandler(&fakeController{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/workers//kick", nil)
	w := httptest.NewRecorder()
	h.KickWorker(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKickWorker_NotConnected(t *testing.T) {
	c := &fakeController{kickable: map[string]bool{}}
	h := newTestAdminHandler(c, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/workers/W1/kick", nil)
	req = withURLParam(req, "worker_id", "W1")
	w := httptest.NewRecorder()
	h.KickWorker(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKickWorker_Success(t *testing.T) {
	c := &fakeController{kickable: map[string]bool{"W1": true}}
	h := newTestAdminHandler(c, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/workers/W1/kick", nil)
	req = withURLParam(req, "worker_id", "W1")
	w := httptest.NewRecorder()
	h.KickWorker(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
