// Package engine implements the Task Engine (§4.1): it expands a
// submitted TaskJob into its cross-product of units of work, drives each
// unit through the Provider Abstraction, Streaming Interceptor, Result
// Normalizer, and Persistence Orchestrator, and enforces the inter-unit
// spacing and fail-soft/fail-hard semantics of §5 and §7.
//
// Background execution is modeled as a Temporal workflow, per the
// teacher's own substrate for long-running, cancellable, background work
// — generalized here from multi-agent orchestration to a single
// sequential unit-of-work loop. Submit() starts the workflow and returns
// immediately; the workflow drives execute() to completion independent of
// the submitting request (§5 "a submitted task runs in a background
// worker").
package engine

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/config"
	"github.com/geosentry/citation-engine/internal/db"
	"github.com/geosentry/citation-engine/internal/platformlock"
	"github.com/geosentry/citation-engine/internal/provider"
)

// TaskQueueName is the Temporal task queue the engine's worker polls and
// Submit dispatches workflows to.
const TaskQueueName = "geo-citation-sentry-engine"

// Dependencies are the explicit, constructor-injected collaborators the
// engine's activities need — per §9's "global mutable singletons become
// explicit dependency containers" re-architecture guidance.
type Dependencies struct {
	DB        *db.Client
	Providers *provider.Registry
	Locks     *platformlock.Registry
	Logger    *zap.Logger

	// Defaults supplies the fallback TaskJobSettings for any field a
	// submitter's settings JSONB left unset. May be nil, in which case
	// LoadTask falls back to the engine's built-in defaults. Backed by
	// internal/config.ConfigManager so an operator can change it live.
	Defaults *config.DefaultsHolder
}

// Engine is the public entry point: Submit persists a TaskJob and
// schedules its background execution.
type Engine struct {
	deps       Dependencies
	temporal   client.Client
	activities *Activities
}

// New constructs an Engine over an already-connected Temporal client.
func New(deps Dependencies, temporalClient client.Client) *Engine {
	return &Engine{
		deps:       deps,
		temporal:   temporalClient,
		activities: &Activities{deps: deps},
	}
}

// Activities exposes this engine's Activities value so main.go can
// register it (and the TaskWorkflow function) on a worker.Worker.
func (e *Engine) Activities() *Activities {
	return e.activities
}

// Submit validates the request, persists the TaskJob and its TaskQuery
// rows in one transaction, and starts the background workflow that drains
// every unit of work. Returns the new task id immediately; the caller
// does not wait for execution to finish (§4.1 submit()).
func (e *Engine) Submit(ctx context.Context, keywords, platforms []string, queryCount int, settings db.JSONB) (int64, error) {
	if len(keywords) == 0 || len(platforms) == 0 || queryCount < 1 {
		return 0, fmt.Errorf("invalid_argument: keywords and platforms must be non-empty and query_count must be >= 1")
	}

	taskID, err := e.deps.DB.CreateTaskJob(ctx, keywords, platforms, queryCount, settings)
	if err != nil {
		return 0, err
	}

	_, err = e.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("task-job-%d", taskID),
		TaskQueue: TaskQueueName,
	}, TaskWorkflow, TaskWorkflowInput{TaskID: taskID})
	if err != nil {
		return 0, fmt.Errorf("persistence_error: failed to schedule task workflow: %w", err)
	}

	return taskID, nil
}
