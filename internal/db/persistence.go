package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/circuitbreaker"
)

// CitationInput is a normalized citation ready for persistence. It carries
// the fields the Result Normalizer has already deduplicated and ordered.
type CitationInput struct {
	CiteIndex    int
	URL          string
	Domain       string
	Title        string
	Snippet      string
	SiteName     string
	QueryIndexes []int
}

// SubQueryInput is a normalized sub-query, already in first-seen order.
type SubQueryInput struct {
	Text string
}

// UnitResult is everything the engine learned about one (keyword, platform,
// round) unit of work, ready to be written in a single transaction.
type UnitResult struct {
	TaskID      int64
	TaskQueryID int64
	Keyword     string
	Platform    string
	PromptType  string
	Prompt      string
	AnswerText  string
	LatencyMs   int64
	ErrorKind   string // empty on success
	ErrorMsg    string
	SubQueries  []SubQueryInput
	Citations   []CitationInput
}

// CreateTaskJob persists a TaskJob and its owned TaskQuery rows in a single
// transaction, per §4.1 submit(). Returns the new task id.
func (c *Client) CreateTaskJob(ctx context.Context, keywords, platforms []string, queryCount int, settings JSONB) (int64, error) {
	if len(keywords) == 0 || len(platforms) == 0 || queryCount < 1 {
		return 0, fmt.Errorf("invalid_argument: keywords and platforms must be non-empty and query_count >= 1")
	}

	var taskID int64
	err := c.WithTransactionCB(ctx, func(tx *circuitbreaker.TxWrapper) error {
		now := time.Now()
		row, err := tx.QueryRowContext(ctx, `
			INSERT INTO task_jobs (keywords, platforms, query_count, status, settings, result_data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			StringList(keywords), StringList(platforms), queryCount, TaskJobPending, settings, JSONB{}, now, now,
		)
		if err != nil {
			return fmt.Errorf("persistence_error: insert task_job: %w", err)
		}
		if err := row.Scan(&taskID); err != nil {
			return fmt.Errorf("persistence_error: scan task_job id: %w", err)
		}

		for i, kw := range keywords {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO task_queries (task_id, keyword, ordinal) VALUES ($1, $2, $3)`,
				taskID, kw, i+1,
			); err != nil {
				return fmt.Errorf("persistence_error: insert task_query: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return taskID, nil
}

// ListTaskQueries returns the TaskQuery rows for a task in submission order.
func (c *Client) ListTaskQueries(ctx context.Context, taskID int64) ([]TaskQuery, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, task_id, keyword, ordinal FROM task_queries WHERE task_id = $1 ORDER BY ordinal ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("persistence_error: list task_queries: %w", err)
	}
	defer rows.Close()

	var out []TaskQuery
	for rows.Next() {
		var q TaskQuery
		if err := rows.Scan(&q.ID, &q.TaskID, &q.Keyword, &q.Ordinal); err != nil {
			return nil, fmt.Errorf("persistence_error: scan task_query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// GetTaskJob fetches a TaskJob by id.
func (c *Client) GetTaskJob(ctx context.Context, taskID int64) (*TaskJob, error) {
	row, err := c.db.QueryRowContextCB(ctx, `
		SELECT id, keywords, platforms, query_count, status, settings, result_data, created_at, updated_at
		FROM task_jobs WHERE id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("persistence_error: query task_job: %w", err)
	}

	var t TaskJob
	if err := row.Scan(&t.ID, &t.Keywords, &t.Platforms, &t.QueryCount, &t.Status, &t.Settings, &t.ResultData, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence_error: scan task_job: %w", err)
	}
	return &t, nil
}

// CompleteTaskJob transitions a TaskJob to done exactly once, stamping
// result_data (which may carry an error marker on a hard failure).
func (c *Client) CompleteTaskJob(ctx context.Context, taskID int64, resultData JSONB) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE task_jobs SET status = $1, result_data = $2, updated_at = $3 WHERE id = $4`,
		TaskJobDone, resultData, time.Now(), taskID,
	)
	if err != nil {
		return fmt.Errorf("persistence_error: complete task_job: %w", err)
	}
	return nil
}

// PersistUnit writes everything learned about one unit of work in a single
// transaction, per §4.7:
//  1. insert SearchRecord;
//  2. insert SearchQuery rows 1..N in order;
//  3. insert Citation rows in cite_index order, de-duping on (record_id, url),
//     upserting DomainStats only on a genuine insert;
//  4. resolve each citation's sub_query binding and insert one
//     ExecutorSubQueryLog row per citation.
func (c *Client) PersistUnit(ctx context.Context, u UnitResult, logger *zap.Logger) (recordID int64, err error) {
	err = c.WithTransactionCB(ctx, func(tx *circuitbreaker.TxWrapper) error {
		status := SearchStatusFailed
		var errMsg interface{}
		if u.AnswerText != "" && u.ErrorKind == "" {
			status = SearchStatusCompleted
		}
		if u.ErrorMsg != "" {
			errMsg = u.ErrorMsg
		}

		row, err := tx.QueryRowContext(ctx, `
			INSERT INTO search_records (task_id, task_query_id, keyword, platform, prompt_type, prompt, answer_text, latency_ms, search_status, error_message, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING id`,
			u.TaskID, u.TaskQueryID, u.Keyword, u.Platform, u.PromptType, u.Prompt, u.AnswerText, u.LatencyMs, status, errMsg, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("persistence_error: insert search_record: %w", err)
		}
		if err := row.Scan(&recordID); err != nil {
			return fmt.Errorf("persistence_error: scan search_record id: %w", err)
		}

		for i, sq := range u.SubQueries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO search_queries (record_id, query_text, query_order) VALUES ($1,$2,$3)`,
				recordID, sq.Text, i+1,
			); err != nil {
				return fmt.Errorf("persistence_error: insert search_query: %w", err)
			}
		}

		citations := append([]CitationInput(nil), u.Citations...)
		sort.SliceStable(citations, func(i, j int) bool {
			ci, cj := citations[i].CiteIndex, citations[j].CiteIndex
			if ci == 0 {
				return false
			}
			if cj == 0 {
				return true
			}
			return ci < cj
		})

		for _, cit := range citations {
			citationID, inserted, err := upsertCitation(ctx, tx, recordID, cit)
			if err != nil {
				return err
			}
			if inserted {
				if err := upsertDomainStats(ctx, tx, cit.Domain, u.Keyword, u.Platform); err != nil {
					return err
				}
			}

			subQuery := resolveSubQuery(cit.QueryIndexes, u.SubQueries)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO executor_sub_query_log (task_id, task_query_id, keyword, platform, sub_query, record_id, citation_id, url, domain, title, snippet, site_name, cite_index, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
				u.TaskID, u.TaskQueryID, u.Keyword, u.Platform, subQuery, recordID, citationID,
				cit.URL, cit.Domain, cit.Title, cit.Snippet, cit.SiteName, cit.CiteIndex, time.Now(),
			); err != nil {
				return fmt.Errorf("persistence_error: insert executor_sub_query_log: %w", err)
			}
		}

		return nil
	})
	return recordID, err
}

// upsertCitation inserts a Citation row, de-duplicating on (record_id, url).
// Returns the citation id and whether this call performed the insert (as
// opposed to finding an existing row).
func upsertCitation(ctx context.Context, tx *circuitbreaker.TxWrapper, recordID int64, cit CitationInput) (int64, bool, error) {
	c := Citation{}
	c.SetQueryIndexes(cit.QueryIndexes)

	row, err := tx.QueryRowContext(ctx, `
		INSERT INTO citations (record_id, cite_index, url, domain, title, snippet, site_name, query_indexes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (record_id, url) DO NOTHING
		RETURNING id`,
		recordID, cit.CiteIndex, cit.URL, cit.Domain, cit.Title, cit.Snippet, cit.SiteName, c.QueryIndexesRaw,
	)
	if err != nil {
		return 0, false, fmt.Errorf("persistence_error: insert citation: %w", err)
	}

	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			// Conflict: look up the existing row.
			existing, qErr := tx.QueryRowContext(ctx, `
				SELECT id FROM citations WHERE record_id = $1 AND url = $2`, recordID, cit.URL)
			if qErr != nil {
				return 0, false, fmt.Errorf("persistence_error: lookup existing citation: %w", qErr)
			}
			if sErr := existing.Scan(&id); sErr != nil {
				return 0, false, fmt.Errorf("persistence_error: scan existing citation id: %w", sErr)
			}
			return id, false, nil
		}
		return 0, false, fmt.Errorf("persistence_error: scan citation id: %w", err)
	}
	return id, true, nil
}

// upsertDomainStats increments the rolling per-domain counters. Called only
// when upsertCitation performed a genuine insert.
func upsertDomainStats(ctx context.Context, tx *circuitbreaker.TxWrapper, domain, keyword, platform string) error {
	if domain == "" {
		domain = "unknown"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO domain_stats (domain, total_citations, keyword_coverage, platform_counts, last_seen)
		VALUES ($1, 1, $2, $3, $4)
		ON CONFLICT (domain) DO UPDATE SET
			total_citations = domain_stats.total_citations + 1,
			keyword_coverage = jsonb_set(
				domain_stats.keyword_coverage,
				ARRAY[$5::text],
				(COALESCE((domain_stats.keyword_coverage->>$5)::int, 0) + 1)::text::jsonb,
				true
			),
			platform_counts = jsonb_set(
				domain_stats.platform_counts,
				ARRAY[$6::text],
				(COALESCE((domain_stats.platform_counts->>$6)::int, 0) + 1)::text::jsonb,
				true
			),
			last_seen = EXCLUDED.last_seen`,
		domain,
		JSONB{keyword: 1},
		JSONB{platform: 1},
		time.Now(),
		keyword,
		platform,
	)
	if err != nil {
		return fmt.Errorf("persistence_error: upsert domain_stats: %w", err)
	}
	return nil
}

// resolveSubQuery implements the binding rule from §4.3/§4.7: prefer the
// citation's own query_indexes, fall back to the sole sub-query when there
// is exactly one, else leave unbound.
func resolveSubQuery(indexes []int, subQueries []SubQueryInput) interface{} {
	if len(indexes) > 0 {
		i := indexes[0]
		if i >= 0 && i < len(subQueries) {
			return subQueries[i].Text
		}
	}
	if len(subQueries) == 1 {
		return subQueries[0].Text
	}
	return nil
}
