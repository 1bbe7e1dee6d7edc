package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/metrics"
	"github.com/geosentry/citation-engine/internal/status"
)

// StatusHandler implements GET /status per §6 and §4.8.
type StatusHandler struct {
	projector *status.Projector
	logger    *zap.Logger
}

// NewStatusHandler constructs the status-read handler.
func NewStatusHandler(projector *status.Projector, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{projector: projector, logger: logger}
}

type statusResponse struct {
	Status string      `json:"status"` // none | pending | done | multiple | table_not_found
	Data   interface{} `json:"data,omitempty"`
}

// Get handles `GET /status?id=<int>` or `?ids=<comma-sep>`, per §6. A
// single id resolves to none/pending/done; multiple ids always resolve to
// "multiple" with a per-id map, per §9 Open Question 2's call for one
// unified path instead of the source's separate single/multi code paths.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	ids, err := parseIDs(r)
	if err != nil {
		http.Error(w, `{"error":"`+sanitizeErr(err.Error())+`"}`, http.StatusBadRequest)
		return
	}
	if len(ids) == 0 {
		http.Error(w, `{"error":"missing id or ids parameter"}`, http.StatusBadRequest)
		return
	}

	if len(ids) == 1 {
		proj, err := h.projector.Project(r.Context(), ids[0])
		if err != nil {
			h.respondProjectorErr(w, err)
			return
		}
		if proj == nil {
			metrics.StatusProjections.WithLabelValues("ok").Inc()
			writeJSON(w, http.StatusOK, statusResponse{Status: "none"})
			return
		}
		metrics.StatusProjections.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, statusResponse{Status: proj.Status, Data: proj})
		return
	}

	data := make(map[string]interface{}, len(ids))
	for _, id := range ids {
		proj, err := h.projector.Project(r.Context(), id)
		if err != nil {
			h.respondProjectorErr(w, err)
			return
		}
		key := strconv.FormatInt(id, 10)
		if proj == nil {
			data[key] = statusResponse{Status: "none"}
			continue
		}
		data[key] = statusResponse{Status: proj.Status, Data: proj}
	}
	metrics.StatusProjections.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, statusResponse{Status: "multiple", Data: data})
}

func (h *StatusHandler) respondProjectorErr(w http.ResponseWriter, err error) {
	if errors.Is(err, status.ErrTableNotFound) {
		metrics.StatusProjections.WithLabelValues("table_not_found").Inc()
		writeJSON(w, http.StatusOK, statusResponse{Status: "table_not_found"})
		return
	}
	h.logger.Error("status projection failed", zap.Error(err))
	http.Error(w, `{"error":"`+sanitizeErr(err.Error())+`"}`, http.StatusInternalServerError)
}

func parseIDs(r *http.Request) ([]int64, error) {
	q := r.URL.Query()
	if raw := q.Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("invalid id parameter")
		}
		return []int64{id}, nil
	}
	if raw := q.Get("ids"); raw != "" {
		parts := strings.Split(raw, ",")
		ids := make([]int64, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, errors.New("invalid ids parameter")
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	return nil, nil
}
