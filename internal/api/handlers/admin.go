package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maumercado/taskdispatch/internal/logger"
	"github.com/maumercado/taskdispatch/internal/reactor"
	"github.com/maumercado/taskdispatch/internal/task"
)

// ControllerView is the subset of *controller.Controller the admin surface
// needs. Every method must be called through Exec from outside the
// reactor's owner goroutine; AdminHandler does that on every request.
type ControllerView interface {
	TaskSnapshot() []task.Task
	WorkerSnapshot() map[reactor.ConnID]string
	Kick(workerID string) bool
}

// Execer runs fn on the reactor's owner goroutine and blocks until done.
// Implemented by *reactor.Reactor.
type Execer interface {
	Exec(fn func())
}

// AdminHandler serves the read-mostly admin/observability HTTP surface: task
// and worker snapshots, health, and the force-redispatch kick action.
type AdminHandler struct {
	controller ControllerView
	reactor    Execer
	storeOpen  func() error
}

// NewAdminHandler constructs an AdminHandler. storeOpen is a liveness probe
// for the health endpoint (typically the Controller's store.Open).
func NewAdminHandler(controller ControllerView, rx Execer, storeOpen func() error) *AdminHandler {
	return &AdminHandler{controller: controller, reactor: rx, storeOpen: storeOpen}
}

// HealthCheck handles GET /admin/health.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.storeOpen(); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"store":  "unreachable",
			"error":  err.Error(),
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"store":  "reachable",
	})
}

// ListTasks handles GET /admin/tasks.
func (h *AdminHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var tasks []task.Task
	h.reactor.Exec(func() {
		tasks = h.controller.TaskSnapshot()
	})

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// workerView is the JSON shape of one entry in the workers listing.
type workerView struct {
	WorkerID string `json:"worker_id"`
	ConnID   uint64 `json:"conn_id"`
}

// ListWorkers handles GET /admin/workers.
func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	var snapshot map[reactor.ConnID]string
	h.reactor.Exec(func() {
		snapshot = h.controller.WorkerSnapshot()
	})

	workers := make([]workerView, 0, len(snapshot))
	for id, workerID := range snapshot {
		workers = append(workers, workerView{WorkerID: workerID, ConnID: uint64(id)})
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// KickWorker handles POST /admin/workers/{worker_id}/kick, force-disconnecting
// a worker through the same disconnect procedure the liveness sweep uses.
func (h *AdminHandler) KickWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "worker_id")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	var kicked bool
	h.reactor.Exec(func() {
		kicked = h.controller.Kick(workerID)
	})

	if !kicked {
		h.respondError(w, http.StatusNotFound, "worker not connected")
		return
	}

	logger.Info().Str("worker_id", workerID).Msg("worker kicked via admin surface")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "worker kicked",
		"worker_id": workerID,
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
