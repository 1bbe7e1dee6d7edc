// Package status implements the Status Projector (§4.8): given a task id,
// it composes the external status view without mutating any state —
// progress counts, round inference by created_at ordering, a per-platform
// view, a summary table, and a detail log.
//
// Grounded on original_source/geo_server/services/status_service.py for
// the exact round-inference and per-platform grouping semantics (the
// source's single-id/multi-id path duplication is intentionally NOT
// carried forward — §9 Open Question 2 calls for a single unified path,
// which this package is) and on the teacher's sqlx-based read-model
// composition idiom used elsewhere in this engine's db package.
package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/db"
)

// ErrTableNotFound is returned when a required table is missing, so the
// caller can surface §7's "table_not_found" status-only error kind instead
// of crashing.
var ErrTableNotFound = errors.New("table_not_found")

// Citation is the projected view of one citation row.
type Citation struct {
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	SiteName  string `json:"site_name"`
	CiteIndex int    `json:"cite_index"`
}

// SubQueryGroup is one sub-query the platform issued, with the citations
// it produced.
type SubQueryGroup struct {
	SubQuery  string     `json:"sub_query"`
	Citations []Citation `json:"citations"`
}

// PlatformView is one platform's slice of a task's progress, per §4.8
// "for each platform, the list of sub-query groups ... platform status
// ... last record id, cumulative citation count, last latency, last error".
type PlatformView struct {
	Platform      string          `json:"platform"`
	Status        string          `json:"status"` // completed | pending | failed
	Groups        []SubQueryGroup `json:"groups"`
	LastRecordID  int64           `json:"last_record_id"`
	CitationCount int             `json:"citation_count"`
	LastLatencyMs int64           `json:"last_latency_ms"`
	LastError     string          `json:"last_error,omitempty"`
}

// SummaryRow is one (keyword, platform, sub_query) aggregate.
type SummaryRow struct {
	Keyword       string `json:"keyword"`
	Platform      string `json:"platform"`
	SubQuery      string `json:"sub_query"`
	CitationCount int    `json:"citation_count"`
}

// DetailRow is one exported-log-style row.
type DetailRow struct {
	TaskID   int64  `json:"task_id"`
	Keyword  string `json:"keyword"`
	Round    int    `json:"round"`
	Platform string `json:"platform"`
	SubQuery string `json:"sub_query"`
	Time     string `json:"time"`
	Domain   string `json:"domain"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// Projection is the complete read model for one task.
type Projection struct {
	TaskID     int64    `json:"task_id"`
	Keywords   []string `json:"keywords"`
	Platforms  []string `json:"platforms"`
	QueryCount int      `json:"query_count"`
	Status     string   `json:"status"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
	ResultData db.JSONB `json:"result_data,omitempty"`

	Progress db.ProgressCounts `json:"progress"`

	PlatformViews []PlatformView `json:"platforms_detail"`
	Summary       []SummaryRow   `json:"summary"`
	Detail        []DetailRow    `json:"detail"`
}

// Projector composes Projections directly against the storage layer. It
// never writes.
type Projector struct {
	db     *sql.DB
	logger *zap.Logger
}

// New constructs a Projector over an already-connected database client.
func New(rawDB *sql.DB, logger *zap.Logger) *Projector {
	return &Projector{db: rawDB, logger: logger}
}

// Project builds the full status view for one task id. Returns (nil, nil)
// if the task does not exist (caller maps this to the external "none"
// status); returns ErrTableNotFound if the schema is absent.
func (p *Projector) Project(ctx context.Context, taskID int64) (*Projection, error) {
	job, err := p.loadJob(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	taskQueryIDs, keywordByID, err := p.loadTaskQueries(ctx, taskID)
	if err != nil {
		return nil, err
	}

	proj := &Projection{
		TaskID:     job.ID,
		Keywords:   []string(job.Keywords),
		Platforms:  []string(job.Platforms),
		QueryCount: job.QueryCount,
		Status:     string(job.Status),
		CreatedAt:  job.CreatedAt.Format(timeLayout),
		UpdatedAt:  job.UpdatedAt.Format(timeLayout),
		ResultData: job.ResultData,
	}

	expected := len(taskQueryIDs) * len(job.Platforms) * job.QueryCount
	proj.Progress, err = p.progressCounts(ctx, taskID, taskQueryIDs, job.Platforms, expected)
	if err != nil {
		return nil, err
	}

	records, err := p.loadRecords(ctx, taskID, taskQueryIDs, job.Platforms)
	if err != nil {
		return nil, err
	}
	roundOf := assignRounds(records)

	proj.PlatformViews, err = p.buildPlatformViews(ctx, taskID, taskQueryIDs, job.Platforms, records)
	if err != nil {
		return nil, err
	}

	proj.Summary, err = p.buildSummary(ctx, taskID)
	if err != nil {
		return nil, err
	}

	proj.Detail, err = p.buildDetail(ctx, taskID, records, roundOf, keywordByID)
	if err != nil {
		return nil, err
	}

	return proj, nil
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

type recordRow struct {
	ID          int64
	TaskQueryID int64
	Platform    string
	CreatedAt   time.Time
	Status      string
	ErrorMsg    sql.NullString
	LatencyMs   int64
}

func (p *Projector) loadJob(ctx context.Context, taskID int64) (*db.TaskJob, error) {
	var t db.TaskJob
	row := p.db.QueryRowContext(ctx, `
		SELECT id, keywords, platforms, query_count, status, settings, result_data, created_at, updated_at
		FROM task_jobs WHERE id = $1`, taskID)
	if err := row.Scan(&t.ID, &t.Keywords, &t.Platforms, &t.QueryCount, &t.Status, &t.Settings, &t.ResultData, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if isTableNotFound(err) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("status: load task_job: %w", err)
	}
	return &t, nil
}

func (p *Projector) loadTaskQueries(ctx context.Context, taskID int64) ([]int64, map[int64]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, keyword FROM task_queries WHERE task_id = $1 ORDER BY ordinal ASC`, taskID)
	if err != nil {
		if isTableNotFound(err) {
			return nil, nil, ErrTableNotFound
		}
		return nil, nil, fmt.Errorf("status: load task_queries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	byID := make(map[int64]string)
	for rows.Next() {
		var id int64
		var kw string
		if err := rows.Scan(&id, &kw); err != nil {
			return nil, nil, fmt.Errorf("status: scan task_query: %w", err)
		}
		ids = append(ids, id)
		byID[id] = kw
	}
	return ids, byID, rows.Err()
}

// progressCounts implements §4.8's "expected = |keywords| x |platforms| x
// query_count, partitioned into completed/failed/pending by counting
// SearchRecord rows with prompt_type tag for this task".
func (p *Projector) progressCounts(ctx context.Context, taskID int64, taskQueryIDs []int64, platforms []string, expected int) (db.ProgressCounts, error) {
	out := db.ProgressCounts{Expected: expected}
	if len(taskQueryIDs) == 0 || len(platforms) == 0 {
		return out, nil
	}

	lowered := make([]string, len(platforms))
	for i, pf := range platforms {
		lowered[i] = lowerASCII(pf)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT search_status, COUNT(*) FROM search_records
		WHERE task_id = $1 AND task_query_id = ANY($2) AND platform = ANY($3) AND prompt_type = $4
		GROUP BY search_status`,
		taskID, pq.Array(taskQueryIDs), pq.Array(lowered), db.DefaultPromptType,
	)
	if err != nil {
		if isTableNotFound(err) {
			return out, ErrTableNotFound
		}
		return out, fmt.Errorf("status: progress counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return out, fmt.Errorf("status: scan progress count: %w", err)
		}
		switch db.SearchStatus(status) {
		case db.SearchStatusCompleted:
			out.Completed = count
		case db.SearchStatusFailed:
			out.Failed = count
		}
	}
	out.Pending = expected - out.Completed - out.Failed
	if out.Pending < 0 {
		out.Pending = 0
	}
	return out, rows.Err()
}

func (p *Projector) loadRecords(ctx context.Context, taskID int64, taskQueryIDs []int64, platforms []string) ([]recordRow, error) {
	if len(taskQueryIDs) == 0 || len(platforms) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(platforms))
	for i, pf := range platforms {
		lowered[i] = lowerASCII(pf)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, task_query_id, platform, created_at, search_status, error_message, latency_ms
		FROM search_records
		WHERE task_id = $1 AND task_query_id = ANY($2) AND platform = ANY($3) AND prompt_type = $4
		ORDER BY task_query_id, platform, created_at ASC, id ASC`,
		taskID, pq.Array(taskQueryIDs), pq.Array(lowered), db.DefaultPromptType,
	)
	if err != nil {
		if isTableNotFound(err) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("status: load records: %w", err)
	}
	defer rows.Close()

	var out []recordRow
	for rows.Next() {
		var r recordRow
		if err := rows.Scan(&r.ID, &r.TaskQueryID, &r.Platform, &r.CreatedAt, &r.Status, &r.ErrorMsg, &r.LatencyMs); err != nil {
			return nil, fmt.Errorf("status: scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// assignRounds implements §4.8's round inference: within the set of rows
// sharing (task_query_id, platform), the k-th by created_at ascending
// (ties broken by insertion id — already the query's ORDER BY) is round k.
func assignRounds(records []recordRow) map[int64]int {
	out := make(map[int64]int, len(records))
	counters := make(map[[2]interface{}]int)
	for _, r := range records {
		key := [2]interface{}{r.TaskQueryID, r.Platform}
		counters[key]++
		out[r.ID] = counters[key]
	}
	return out
}

func (p *Projector) buildPlatformViews(ctx context.Context, taskID int64, taskQueryIDs []int64, platforms []string, records []recordRow) ([]PlatformView, error) {
	byPlatform := make(map[string][]recordRow)
	for _, r := range records {
		byPlatform[r.Platform] = append(byPlatform[r.Platform], r)
	}

	views := make([]PlatformView, 0, len(platforms))
	for _, platform := range platforms {
		lower := lowerASCII(platform)
		recs := byPlatform[lower]

		view := PlatformView{Platform: lower}
		if len(recs) == 0 {
			view.Status = "pending"
			views = append(views, view)
			continue
		}

		last := recs[len(recs)-1]
		view.LastRecordID = last.ID
		view.LastLatencyMs = last.LatencyMs
		if last.ErrorMsg.Valid {
			view.LastError = last.ErrorMsg.String
		}
		switch db.SearchStatus(last.Status) {
		case db.SearchStatusCompleted:
			view.Status = "completed"
		default:
			view.Status = "failed"
		}

		groups, citationCount, err := p.subQueryGroupsForPlatform(ctx, taskID, taskQueryIDs, lower)
		if err != nil {
			return nil, err
		}
		view.Groups = groups
		view.CitationCount = citationCount

		views = append(views, view)
	}
	return views, nil
}

func (p *Projector) subQueryGroupsForPlatform(ctx context.Context, taskID int64, taskQueryIDs []int64, platform string) ([]SubQueryGroup, int, error) {
	if len(taskQueryIDs) == 0 {
		return nil, 0, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT sq.query_text, sq.record_id
		FROM search_queries sq
		INNER JOIN search_records sr ON sq.record_id = sr.id
		WHERE sr.task_id = $1 AND sr.task_query_id = ANY($2) AND sr.platform = $3 AND sr.prompt_type = $4
		ORDER BY sq.query_order, sq.id`,
		taskID, pq.Array(taskQueryIDs), platform, db.DefaultPromptType,
	)
	if err != nil {
		if isTableNotFound(err) {
			return nil, 0, ErrTableNotFound
		}
		return nil, 0, fmt.Errorf("status: load sub_query groups: %w", err)
	}
	defer rows.Close()

	type seedGroup struct {
		subQuery string
		recordID int64
	}
	var seeds []seedGroup
	for rows.Next() {
		var g seedGroup
		if err := rows.Scan(&g.subQuery, &g.recordID); err != nil {
			return nil, 0, fmt.Errorf("status: scan sub_query group: %w", err)
		}
		seeds = append(seeds, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	total := 0
	groups := make([]SubQueryGroup, 0, len(seeds))
	for _, g := range seeds {
		citations, err := p.citationsForRecord(ctx, g.recordID)
		if err != nil {
			return nil, 0, err
		}
		total += len(citations)
		groups = append(groups, SubQueryGroup{SubQuery: g.subQuery, Citations: citations})
	}
	return groups, total, nil
}

func (p *Projector) citationsForRecord(ctx context.Context, recordID int64) ([]Citation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT url, title, snippet, site_name, cite_index, domain
		FROM citations WHERE record_id = $1 ORDER BY cite_index, id`, recordID)
	if err != nil {
		if isTableNotFound(err) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("status: load citations: %w", err)
	}
	defer rows.Close()

	var out []Citation
	for rows.Next() {
		var c Citation
		if err := rows.Scan(&c.URL, &c.Title, &c.Snippet, &c.SiteName, &c.CiteIndex, &c.Domain); err != nil {
			return nil, fmt.Errorf("status: scan citation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// buildSummary implements §4.8's "rows of (keyword, platform, sub_query,
// distinct-citation-count)", sourced from the citation-grounded
// executor_sub_query_log.
func (p *Projector) buildSummary(ctx context.Context, taskID int64) ([]SummaryRow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT keyword, platform, COALESCE(sub_query, ''), COUNT(DISTINCT citation_id)
		FROM executor_sub_query_log
		WHERE task_id = $1
		GROUP BY keyword, platform, sub_query
		ORDER BY keyword, platform, sub_query`, taskID)
	if err != nil {
		if isTableNotFound(err) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("status: build summary: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var s SummaryRow
		if err := rows.Scan(&s.Keyword, &s.Platform, &s.SubQuery, &s.CitationCount); err != nil {
			return nil, fmt.Errorf("status: scan summary row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// buildDetail implements §4.8's "rows of (task_id, keyword, round,
// platform, sub_query, time, domain, url, title, snippet)".
func (p *Projector) buildDetail(ctx context.Context, taskID int64, records []recordRow, roundOf map[int64]int, keywordByID map[int64]string) ([]DetailRow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT task_query_id, record_id, keyword, platform, COALESCE(sub_query, ''), created_at, domain, url, title, snippet
		FROM executor_sub_query_log
		WHERE task_id = $1
		ORDER BY task_query_id, created_at`, taskID)
	if err != nil {
		if isTableNotFound(err) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("status: build detail: %w", err)
	}
	defer rows.Close()

	var out []DetailRow
	for rows.Next() {
		var taskQueryID, recordID int64
		var d DetailRow
		var createdAt time.Time
		if err := rows.Scan(&taskQueryID, &recordID, &d.Keyword, &d.Platform, &d.SubQuery, &createdAt, &d.Domain, &d.URL, &d.Title, &d.Snippet); err != nil {
			return nil, fmt.Errorf("status: scan detail row: %w", err)
		}
		d.TaskID = taskID
		d.Time = createdAt.Format(timeLayout)
		d.Round = roundOf[recordID]
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, rows.Err()
}

func isTableNotFound(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	return false
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
