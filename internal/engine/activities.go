package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/db"
	"github.com/geosentry/citation-engine/internal/engineerr"
	"github.com/geosentry/citation-engine/internal/metrics"
	"github.com/geosentry/citation-engine/internal/normalizer"
	"github.com/geosentry/citation-engine/internal/provider"
)

// Activities groups every non-deterministic operation the workflow drives
// through workflow.ExecuteActivity. Grounded on
// original_source/llm_sentry_monitor/core/task_executor.py's
// execute_single_task for the prompt-construction and save/error shape
// (prompt_type="api_task", prompt = keyword verbatim), rewritten against
// this engine's Provider/Interceptor/Normalizer/Persistence pipeline and
// the §9 "explicit dependency container" re-architecture instead of the
// source's module-level provider dict and db connection.
type Activities struct {
	deps Dependencies
}

// LoadTaskOutput is everything the workflow needs to drive a task's
// cross-product of units, decoded once up front.
type LoadTaskOutput struct {
	Keywords     []string
	TaskQueryIDs []int64
	Platforms    []string
	QueryCount   int
	Settings     db.TaskJobSettings
}

// LoadTask fetches the TaskJob and its owned TaskQuery rows so the
// workflow can expand the unit-of-work cross-product in submission order
// (§4.1's outer/middle/inner loop ordering).
func (a *Activities) LoadTask(ctx context.Context, taskID int64) (LoadTaskOutput, error) {
	job, err := a.deps.DB.GetTaskJob(ctx, taskID)
	if err != nil {
		return LoadTaskOutput{}, fmt.Errorf("persistence_error: load task %d: %w", taskID, err)
	}
	if job == nil {
		return LoadTaskOutput{}, fmt.Errorf("persistence_error: task %d not found", taskID)
	}

	queries, err := a.deps.DB.ListTaskQueries(ctx, taskID)
	if err != nil {
		return LoadTaskOutput{}, err
	}

	out := LoadTaskOutput{
		Keywords:     make([]string, len(queries)),
		TaskQueryIDs: make([]int64, len(queries)),
		Platforms:    []string(job.Platforms),
		QueryCount:   job.QueryCount,
		Settings:     job.DecodeSettings(a.defaultSettings()),
	}
	for i, q := range queries {
		out.Keywords[i] = q.Keyword
		out.TaskQueryIDs[i] = q.ID
	}
	return out, nil
}

// defaultSettings reads the live hot-reloadable defaults if the engine was
// constructed with one, otherwise falls back to the values
// internal/config.setDefaults seeds at startup.
func (a *Activities) defaultSettings() db.TaskJobSettings {
	if a.deps.Defaults == nil {
		return db.TaskJobSettings{Headless: true, TimeoutMs: 30000, DelayBetweenTasks: 3}
	}
	d := a.deps.Defaults.Get()
	return db.TaskJobSettings{Headless: d.Headless, TimeoutMs: d.TimeoutMs, DelayBetweenTasks: d.DelayBetweenTasks}
}

// ExecuteUnitInput is one (keyword, platform, round) triple to drive.
type ExecuteUnitInput struct {
	TaskID      int64
	TaskQueryID int64
	Keyword     string
	Platform    string
	TimeoutMs   int
}

// ExecuteUnitOutput reports what happened, letting the workflow decide
// whether to continue the loop (§4.1 "fails-soft on per-unit errors").
type ExecuteUnitOutput struct {
	RecordID  int64
	Success   bool
	ErrorKind string // empty on success
}

// ExecuteUnit drives one unit of work end-to-end: resolve the provider,
// serialize on the platform's browser-profile lock, call Search, classify
// any error per §7's taxonomy, and persist exactly one transactional
// outcome via the Persistence Orchestrator (§4.7). A persistence failure
// is the one error class that propagates out of this activity and aborts
// the task (§7 "persistence_error ... fatal").
func (a *Activities) ExecuteUnit(ctx context.Context, in ExecuteUnitInput) (ExecuteUnitOutput, error) {
	start := time.Now()
	platform := in.Platform
	prompt := in.Keyword // the keyword doubles as the prompt verbatim, per the source task executor

	unit := db.UnitResult{
		TaskID:      in.TaskID,
		TaskQueryID: in.TaskQueryID,
		Keyword:     in.Keyword,
		Platform:    platform,
		PromptType:  db.DefaultPromptType,
		Prompt:      prompt,
	}

	if in.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(in.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	p, err := a.deps.Providers.Resolve(platform)
	if err != nil {
		unit.ErrorKind = string(engineerr.KindOf(err))
		unit.ErrorMsg = err.Error()
		return a.persist(ctx, unit, platform, start)
	}

	lockStart := time.Now()
	lease, lockErr := a.deps.Locks.Acquire(ctx, platform)
	if lockErr != nil {
		unit.ErrorKind = string(engineerr.KindOf(lockErr))
		if unit.ErrorKind == "" {
			unit.ErrorKind = string(engineerr.ProviderError)
		}
		unit.ErrorMsg = lockErr.Error()
		return a.persist(ctx, unit, platform, start)
	}
	metrics.PlatformLockWait.WithLabelValues(platform).Observe(time.Since(lockStart).Seconds())
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			a.deps.Logger.Warn("engine: failed to release platform lock", zap.String("platform", platform), zap.Error(err))
		}
	}()

	result, searchErr := p.Search(ctx, in.Keyword, prompt)
	if searchErr != nil {
		kind := engineerr.KindOf(searchErr)
		if kind == "" {
			kind = engineerr.ProviderError
		}
		unit.ErrorKind = string(kind)
		unit.ErrorMsg = searchErr.Error()
		return a.persist(ctx, unit, platform, start)
	}

	if len(result.Citations) == 0 {
		metrics.DOMFallbackInvocations.WithLabelValues(platform, "empty").Inc()
	}

	norm := normalizer.Normalize(result)
	unit.AnswerText = norm.AnswerText
	unit.SubQueries = norm.SubQueries
	unit.Citations = norm.Citations

	return a.persist(ctx, unit, platform, start)
}

func (a *Activities) persist(ctx context.Context, unit db.UnitResult, platform string, start time.Time) (ExecuteUnitOutput, error) {
	recordID, err := a.deps.DB.PersistUnit(ctx, unit, a.deps.Logger)
	if err != nil {
		metrics.PersistenceErrors.Inc()
		return ExecuteUnitOutput{}, fmt.Errorf("persistence_error: %w", err)
	}

	outcome := "completed"
	success := unit.AnswerText != "" && unit.ErrorKind == ""
	if !success {
		outcome = "failed"
	}
	metrics.RecordUnitOutcome(platform, outcome, unit.ErrorKind, time.Since(start).Seconds())

	return ExecuteUnitOutput{RecordID: recordID, Success: success, ErrorKind: unit.ErrorKind}, nil
}

// CompleteTaskInput finalizes a TaskJob.
type CompleteTaskInput struct {
	TaskID     int64
	ResultData db.JSONB
}

// CompleteTask transitions the TaskJob to done exactly once (§3
// "status monotonically transitions pending -> done exactly once").
func (a *Activities) CompleteTask(ctx context.Context, in CompleteTaskInput) error {
	if err := a.deps.DB.CompleteTaskJob(ctx, in.TaskID, in.ResultData); err != nil {
		return fmt.Errorf("persistence_error: complete task %d: %w", in.TaskID, err)
	}
	outcome := "ok"
	if _, hasErr := in.ResultData["error"]; hasErr {
		outcome = "persistence_error"
	}
	metrics.TasksCompleted.WithLabelValues(outcome).Inc()
	return nil
}
