package httpapi

import (
	"database/sql"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/metrics"
)

// ExportHandler implements GET /export per §6: a UTF-8-with-BOM CSV of
// every ExecutorSubQueryLog row for the given task ids, ordered by
// (task_id, task_query_id, created_at).
type ExportHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExportHandler constructs the CSV export handler over the raw
// database connection (read-only, no transaction needed for an export).
func NewExportHandler(rawDB *sql.DB, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{db: rawDB, logger: logger}
}

var exportHeader = []string{
	"task_id", "query", "platforms", "sub_query", "url", "domain",
	"title", "snippet", "site_name", "cite_index", "created_at",
}

// Export handles GET /export?ids=<comma-sep>.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	ids, err := parseIDs(r)
	if err != nil || len(ids) == 0 {
		http.Error(w, `{"error":"missing or invalid ids parameter"}`, http.StatusBadRequest)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT task_id, task_query_id, keyword, platform, COALESCE(sub_query, ''), url, domain, title, snippet, site_name, cite_index, created_at
		FROM executor_sub_query_log
		WHERE task_id = ANY($1)
		ORDER BY task_id, task_query_id, created_at`, pq.Array(ids))
	if err != nil {
		h.logger.Error("export query failed", zap.Error(err))
		http.Error(w, `{"error":"export query failed"}`, http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=export.csv")
	w.WriteHeader(http.StatusOK)

	// UTF-8 BOM, per §6's "CSV (UTF-8 with BOM)".
	_, _ = w.Write([]byte{0xEF, 0xBB, 0xBF})

	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeader)

	for rows.Next() {
		var taskID, taskQueryID int64
		var keyword, platform, subQuery, url, domain, title, snippet, siteName string
		var citeIndex int
		var createdAt time.Time
		if err := rows.Scan(&taskID, &taskQueryID, &keyword, &platform, &subQuery, &url, &domain, &title, &snippet, &siteName, &citeIndex, &createdAt); err != nil {
			h.logger.Error("export scan failed", zap.Error(err))
			break
		}
		record := []string{
			strconv.FormatInt(taskID, 10), keyword, platform, subQuery, url, domain,
			title, snippet, siteName, strconv.Itoa(citeIndex), createdAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			h.logger.Error("export write failed", zap.Error(err))
			break
		}
		metrics.ExportRows.Inc()
	}
	cw.Flush()
}
