// Package httpapi implements the minimal request-reply surface the spec
// pins as the engine's external contract (§6): POST /mock to submit a
// task, GET /status to read it back, and GET /export for the CSV dump.
// Everything else about the request-reply surface (the teacher's full
// gateway of task/session/schedule/approval endpoints) is an explicit
// non-goal (§1) — only the contract exposed to the engine is implemented.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/db"
	"github.com/geosentry/citation-engine/internal/engine"
)

// TaskHandler implements POST /mock per §6.
type TaskHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewTaskHandler constructs the task-submission handler.
func NewTaskHandler(eng *engine.Engine, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{engine: eng, logger: logger}
}

type submitSettings struct {
	Headless          *bool `json:"headless"`
	TimeoutMs         *int  `json:"timeout"`
	DelayBetweenTasks *int  `json:"delay_between_tasks"`
}

type submitRequest struct {
	Keywords   []string        `json:"keywords"`
	Platforms  []string        `json:"platforms"`
	QueryCount int             `json:"query_count"`
	Settings   *submitSettings `json:"settings"`
}

type submitResponse struct {
	TaskID int64 `json:"task_id"`
}

// Submit handles POST /mock: validates the request, persists the task,
// and schedules background execution, returning the task id immediately.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.QueryCount == 0 {
		req.QueryCount = 1
	}
	if len(req.Keywords) == 0 || len(req.Platforms) == 0 || req.QueryCount < 1 {
		http.Error(w, `{"error":"invalid_argument: keywords and platforms must be non-empty, query_count must be >= 1"}`, http.StatusBadRequest)
		return
	}

	settings := db.JSONB{}
	if req.Settings != nil {
		if req.Settings.Headless != nil {
			settings["headless"] = *req.Settings.Headless
		}
		if req.Settings.TimeoutMs != nil {
			settings["timeout_ms"] = *req.Settings.TimeoutMs
		}
		if req.Settings.DelayBetweenTasks != nil {
			settings["delay_between_tasks"] = *req.Settings.DelayBetweenTasks
		}
	}

	taskID, err := h.engine.Submit(r.Context(), req.Keywords, req.Platforms, req.QueryCount, settings)
	if err != nil {
		h.logger.Error("task submit failed", zap.Error(err))
		status := http.StatusInternalServerError
		if strings.HasPrefix(err.Error(), "invalid_argument") {
			status = http.StatusBadRequest
		}
		http.Error(w, `{"error":"`+sanitizeErr(err.Error())+`"}`, status)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{TaskID: taskID})
}
