package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/geosentry/citation-engine/internal/db"
	"github.com/geosentry/citation-engine/internal/engineerr"
)

func TestTaskWorkflow_HappyPath(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterActivityWithOptions(
		func(ctx context.Context, taskID int64) (LoadTaskOutput, error) {
			return LoadTaskOutput{
				Keywords:     []string{"running shoes"},
				TaskQueryIDs: []int64{100},
				Platforms:    []string{"bocha", "deepseek"},
				QueryCount:   1,
				Settings:     db.TaskJobSettings{Headless: true, TimeoutMs: 5000, DelayBetweenTasks: 0},
			}, nil
		},
		activity.RegisterOptions{Name: "LoadTask"},
	)

	var executed []string
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in ExecuteUnitInput) (ExecuteUnitOutput, error) {
			executed = append(executed, in.Platform)
			return ExecuteUnitOutput{RecordID: int64(len(executed)), Success: true}, nil
		},
		activity.RegisterOptions{Name: "ExecuteUnit"},
	)

	var completeInput CompleteTaskInput
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in CompleteTaskInput) error {
			completeInput = in
			return nil
		},
		activity.RegisterOptions{Name: "CompleteTask"},
	)

	env.ExecuteWorkflow(TaskWorkflow, TaskWorkflowInput{TaskID: 1})

	assert.True(t, env.IsWorkflowCompleted())
	assert.NoError(t, env.GetWorkflowError())
	assert.Equal(t, []string{"bocha", "deepseek"}, executed)
	assert.Equal(t, float64(2), completeInput.ResultData["completed"])
	assert.Equal(t, float64(0), completeInput.ResultData["failed"])
}

func TestTaskWorkflow_AbortsOnPersistenceError(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterActivityWithOptions(
		func(ctx context.Context, taskID int64) (LoadTaskOutput, error) {
			return LoadTaskOutput{
				Keywords:     []string{"running shoes", "hiking boots"},
				TaskQueryIDs: []int64{100, 101},
				Platforms:    []string{"bocha"},
				QueryCount:   1,
				Settings:     db.TaskJobSettings{Headless: true, TimeoutMs: 5000},
			}, nil
		},
		activity.RegisterOptions{Name: "LoadTask"},
	)

	calls := 0
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in ExecuteUnitInput) (ExecuteUnitOutput, error) {
			calls++
			if calls == 1 {
				return ExecuteUnitOutput{}, errors.New("persistence_error: simulated write failure")
			}
			return ExecuteUnitOutput{Success: true}, nil
		},
		activity.RegisterOptions{Name: "ExecuteUnit"},
	)

	var completeInput CompleteTaskInput
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in CompleteTaskInput) error {
			completeInput = in
			return nil
		},
		activity.RegisterOptions{Name: "CompleteTask"},
	)

	env.ExecuteWorkflow(TaskWorkflow, TaskWorkflowInput{TaskID: 2})

	assert.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 1, calls, "the workflow must stop after the first hard activity error")
	assert.NotEmpty(t, completeInput.ResultData["error"])
}

func TestTaskWorkflow_ContinuesPastSoftFailure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterActivityWithOptions(
		func(ctx context.Context, taskID int64) (LoadTaskOutput, error) {
			return LoadTaskOutput{
				Keywords:     []string{"running shoes", "hiking boots"},
				TaskQueryIDs: []int64{100, 101},
				Platforms:    []string{"bocha"},
				QueryCount:   1,
				Settings:     db.TaskJobSettings{Headless: true, TimeoutMs: 5000},
			}, nil
		},
		activity.RegisterOptions{Name: "LoadTask"},
	)

	calls := 0
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in ExecuteUnitInput) (ExecuteUnitOutput, error) {
			calls++
			if calls == 1 {
				return ExecuteUnitOutput{Success: false, ErrorKind: string(engineerr.ProviderError)}, nil
			}
			return ExecuteUnitOutput{Success: true}, nil
		},
		activity.RegisterOptions{Name: "ExecuteUnit"},
	)

	var completeInput CompleteTaskInput
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in CompleteTaskInput) error {
			completeInput = in
			return nil
		},
		activity.RegisterOptions{Name: "CompleteTask"},
	)

	env.ExecuteWorkflow(TaskWorkflow, TaskWorkflowInput{TaskID: 3})

	assert.True(t, env.IsWorkflowCompleted())
	assert.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 2, calls, "a per-unit failure must not stop the loop")
	assert.Equal(t, float64(1), completeInput.ResultData["completed"])
	assert.Equal(t, float64(1), completeInput.ResultData["failed"])
}
