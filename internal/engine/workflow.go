package engine

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/geosentry/citation-engine/internal/db"
	"github.com/geosentry/citation-engine/internal/engineerr"
)

// TaskWorkflowInput is the Temporal workflow's sole argument.
type TaskWorkflowInput struct {
	TaskID int64
}

// TaskWorkflow implements §4.1's execute(task_id): it expands the task
// into its cross-product of units (outer loop rounds, middle loop
// keywords, inner loop platforms, per §4.1's observable ordering), drives
// each unit through ExecuteUnit, enforces the inter-unit delay from
// settings, and transitions the TaskJob to done exactly once whether the
// task finished cleanly or was cut short by a persistence error or
// workflow cancellation.
//
// This is the background-worker substrate called for by §5: Submit starts
// this workflow and returns immediately, and the workflow drives the task
// to completion independent of the submitting request.
func TaskWorkflow(ctx workflow.Context, input TaskWorkflowInput) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1, // §4.1: "No retries are performed at the engine layer"
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var load LoadTaskOutput
	if err := workflow.ExecuteActivity(ctx, "LoadTask", input.TaskID).Get(ctx, &load); err != nil {
		return err
	}

	var hardErr error
	cancelledEarly := false

	type unit struct {
		round        int
		keywordIdx   int
		platformIdx  int
	}
	var units []unit
	for round := 1; round <= load.QueryCount; round++ {
		for ki := range load.Keywords {
			for pi := range load.Platforms {
				units = append(units, unit{round: round, keywordIdx: ki, platformIdx: pi})
			}
		}
	}

	completed, failed := 0, 0

	for idx, u := range units {
		if ctx.Err() != nil {
			cancelledEarly = true
			break
		}

		unitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: time.Duration(load.Settings.TimeoutMs)*time.Millisecond + 30*time.Second,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})

		var out ExecuteUnitOutput
		err := workflow.ExecuteActivity(unitCtx, "ExecuteUnit", ExecuteUnitInput{
			TaskID:      input.TaskID,
			TaskQueryID: load.TaskQueryIDs[u.keywordIdx],
			Keyword:     load.Keywords[u.keywordIdx],
			Platform:    load.Platforms[u.platformIdx],
			TimeoutMs:   load.Settings.TimeoutMs,
		}).Get(unitCtx, &out)

		if err != nil {
			// ExecuteUnit only returns an error for the persistence_error
			// class (§7); everything else is recorded as a failed
			// SearchRecord and reported via out.Success=false instead.
			hardErr = err
			break
		}

		if out.Success {
			completed++
		} else {
			failed++
			if out.ErrorKind == string(engineerr.Cancelled) {
				cancelledEarly = true
				break
			}
		}

		isLast := idx == len(units)-1
		if !isLast && load.Settings.DelayBetweenTasks > 0 {
			if err := workflow.Sleep(ctx, time.Duration(load.Settings.DelayBetweenTasks)*time.Second); err != nil {
				cancelledEarly = true
				break
			}
		}
	}

	resultData := db.JSONB{
		"completed":       completed,
		"failed":          failed,
		"total_units":     len(units),
		"cancelled_early": cancelledEarly,
	}
	if hardErr != nil {
		resultData["error"] = hardErr.Error()
	}

	// A disconnected context lets CompleteTask run even after the workflow
	// itself has been cancelled.
	completeCtx, _ := workflow.NewDisconnectedContext(ctx)
	completeCtx = workflow.WithActivityOptions(completeCtx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	if err := workflow.ExecuteActivity(completeCtx, "CompleteTask", CompleteTaskInput{
		TaskID:     input.TaskID,
		ResultData: resultData,
	}).Get(completeCtx, nil); err != nil {
		return err
	}

	return hardErr
}
