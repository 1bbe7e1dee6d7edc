package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB represents a PostgreSQL jsonb column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// StringList is a JSON-encoded ordered array of strings, used for the
// keyword and platform lists on a TaskJob.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal([]string(s))
}

func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	return json.Unmarshal(bytes, s)
}

// TaskJobStatus is the monotonic status of a TaskJob.
type TaskJobStatus string

const (
	TaskJobPending TaskJobStatus = "pending"
	TaskJobDone    TaskJobStatus = "done"
)

// DefaultPromptType tags every SearchRecord the engine inserts for a
// submitted task, distinguishing it from rows any other future caller of
// this schema might insert. The Status Projector's progress counts are
// scoped to this tag (§4.8).
const DefaultPromptType = "api_task"

// TaskJobSettings are the per-task execution settings, decoded from the
// opaque settings JSONB column.
type TaskJobSettings struct {
	Headless          bool `json:"headless"`
	TimeoutMs         int  `json:"timeout_ms"`
	DelayBetweenTasks int  `json:"delay_between_tasks"`
}

// TaskJob is the top-level submission: a batch of keywords crossed with a
// batch of platforms, repeated query_count times.
type TaskJob struct {
	ID         int64         `db:"id"`
	Keywords   StringList    `db:"keywords"`
	Platforms  StringList    `db:"platforms"`
	QueryCount int           `db:"query_count"`
	Status     TaskJobStatus `db:"status"`
	Settings   JSONB         `db:"settings"`
	ResultData JSONB         `db:"result_data"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

// DecodeSettings unmarshals the stored settings JSONB into a typed struct,
// falling back to defaults (the engine's live, hot-reloadable
// configuration defaults, per internal/config.DefaultsHolder) for anything
// the submitter's settings JSONB left absent.
func (t *TaskJob) DecodeSettings(defaults TaskJobSettings) TaskJobSettings {
	out := defaults
	if t.Settings == nil {
		return out
	}
	if v, ok := t.Settings["headless"].(bool); ok {
		out.Headless = v
	}
	if v, ok := t.Settings["timeout_ms"].(float64); ok {
		out.TimeoutMs = int(v)
	}
	if v, ok := t.Settings["delay_between_tasks"].(float64); ok {
		out.DelayBetweenTasks = int(v)
	}
	return out
}

// TaskQuery is one row per (task, keyword).
type TaskQuery struct {
	ID      int64  `db:"id"`
	TaskID  int64  `db:"task_id"`
	Keyword string `db:"keyword"`
	Ordinal int    `db:"ordinal"`
}

// SearchStatus is the completion status of a SearchRecord.
type SearchStatus string

const (
	SearchStatusCompleted SearchStatus = "completed"
	SearchStatusFailed    SearchStatus = "failed"
)

// SearchRecord is one row per executed unit of work (keyword x platform x round).
type SearchRecord struct {
	ID           int64        `db:"id"`
	TaskID       int64        `db:"task_id"`
	TaskQueryID  int64        `db:"task_query_id"`
	Keyword      string       `db:"keyword"`
	Platform     string       `db:"platform"`
	PromptType   string       `db:"prompt_type"`
	Prompt       string       `db:"prompt"`
	AnswerText   string       `db:"answer_text"`
	LatencyMs    int64        `db:"latency_ms"`
	SearchStatus SearchStatus `db:"search_status"`
	ErrorMessage *string      `db:"error_message"`
	CreatedAt    time.Time    `db:"created_at"`
}

// SearchQuery is a sub-query the platform issued while answering.
type SearchQuery struct {
	ID         int64  `db:"id"`
	RecordID   int64  `db:"record_id"`
	QueryText  string `db:"query_text"`
	QueryOrder int    `db:"query_order"`
}

// Citation is a web source the platform displayed as a reference.
type Citation struct {
	ID              int64  `db:"id"`
	RecordID        int64  `db:"record_id"`
	CiteIndex       int    `db:"cite_index"`
	URL             string `db:"url"`
	Domain          string `db:"domain"`
	Title           string `db:"title"`
	Snippet         string `db:"snippet"`
	SiteName        string `db:"site_name"`
	QueryIndexesRaw JSONB  `db:"query_indexes"`
}

// QueryIndexes decodes the platform-provided sub-query binding, if any.
func (c *Citation) QueryIndexes() []int {
	if c.QueryIndexesRaw == nil {
		return nil
	}
	raw, ok := c.QueryIndexesRaw["indexes"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

// SetQueryIndexes encodes the sub-query binding for persistence.
func (c *Citation) SetQueryIndexes(idx []int) {
	if len(idx) == 0 {
		c.QueryIndexesRaw = nil
		return
	}
	raw := make([]interface{}, len(idx))
	for i, v := range idx {
		raw[i] = v
	}
	c.QueryIndexesRaw = JSONB{"indexes": raw}
}

// ExecutorSubQueryLog is one row per (citation, sub-query that produced it),
// denormalized for cheap CSV export.
type ExecutorSubQueryLog struct {
	ID          int64     `db:"id"`
	TaskID      int64     `db:"task_id"`
	TaskQueryID int64     `db:"task_query_id"`
	Keyword     string    `db:"keyword"`
	Platform    string    `db:"platform"`
	SubQuery    *string   `db:"sub_query"`
	RecordID    int64     `db:"record_id"`
	CitationID  int64     `db:"citation_id"`
	URL         string    `db:"url"`
	Domain      string    `db:"domain"`
	Title       string    `db:"title"`
	Snippet     string    `db:"snippet"`
	SiteName    string    `db:"site_name"`
	CiteIndex   int       `db:"cite_index"`
	CreatedAt   time.Time `db:"created_at"`
}

// DomainStats is a rolling per-domain counter, keyed by the registrable domain.
type DomainStats struct {
	Domain          string    `db:"domain"`
	TotalCitations  int64     `db:"total_citations"`
	KeywordCoverage JSONB     `db:"keyword_coverage"`
	PlatformCounts  JSONB     `db:"platform_counts"`
	LastSeen        time.Time `db:"last_seen"`
}

// ProgressCounts summarizes completed/failed/pending units for a task.
type ProgressCounts struct {
	Expected  int `json:"expected"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}
