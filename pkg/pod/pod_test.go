package pod

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/bus"
	"github.com/tbwo/engine/pkg/contract"
	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/tbworder"
	"github.com/tbwo/engine/pkg/tooldispatch"
)

type stubClarifier struct{ answer string }

func (s stubClarifier) RequestClarification(ctx context.Context, workOrderID, reason, question, clarContext string, options []string) (string, error) {
	return s.answer, nil
}

func newTestPod(t *testing.T, scope tbworder.Scope, model modelclient.Client, tools tooldispatch.Dispatcher) (*Pod, *contract.Service, string) {
	t.Helper()
	contracts := contract.NewService()
	now := time.Now()
	c := contracts.CreateContract("wo-1", scope, 10000, now.Add(time.Hour), now)
	require.NoError(t, contracts.ActivateContract(c.ID))

	state := &tbworder.Pod{
		ID:     "pod-1",
		Role:   tbworder.PodRoleFrontend,
		Status: tbworder.PodStatusIdle,
		Health: tbworder.PodHealth{Status: tbworder.HealthHealthy},
	}
	b := bus.New()
	b.Subscribe(state.ID)

	p := New(state, NewFrontendBehavior(), Deps{
		Model:         model,
		Tools:         tools,
		Contracts:     contracts,
		Bus:           b,
		Clarification: stubClarifier{answer: "go ahead"},
	})
	return p, contracts, c.ID
}

func TestExecuteTaskWritesFileArtifact(t *testing.T) {
	model := modelclient.NewStub([]modelclient.Chunk{
		modelclient.TextChunk{Text: "Creating the page."},
		modelclient.ToolCallChunk{Call: modelclient.ToolCall{
			ID: "call-1", Name: string(tooldispatch.FileWrite),
			Input: map[string]any{"path": "index.html", "content": "<!doctype html>"},
		}},
	}, []modelclient.Chunk{
		modelclient.TextChunk{Text: "Done."},
	})
	tools := tooldispatch.NewStub()

	p, _, contractID := newTestPod(t, tbworder.Scope{}, model, tools)

	task := &tbworder.Task{ID: "t1", Name: "Write index.html", Description: "create the landing page"}
	result := p.ExecuteTask(context.Background(), TaskExecutionInput{
		WorkOrderID: "wo-1", ContractID: contractID, Task: task,
		Objective: "ship a site", QualityTarget: tbworder.QualityStandard, TimeRemainingMin: 30,
	})

	require.False(t, result.Failed)
	assert.Len(t, tools.CallsFor(tooldispatch.FileWrite), 1)
	assert.Equal(t, tbworder.PodStatusIdle, p.State.Status)
	assert.Contains(t, p.State.CompletedTasks, "t1")
}

func TestExecuteTaskContractViolationNeverReachesDispatcher(t *testing.T) {
	model := modelclient.NewStub([]modelclient.Chunk{
		modelclient.ToolCallChunk{Call: modelclient.ToolCall{
			ID: "call-1", Name: string(tooldispatch.FileWrite),
			Input: map[string]any{"path": "/etc/x", "content": "evil"},
		}},
	}, []modelclient.Chunk{
		modelclient.TextChunk{Text: "acknowledged"},
	})
	tools := tooldispatch.NewStub()

	p, _, contractID := newTestPod(t, tbworder.Scope{ForbiddenPaths: []string{"/etc"}}, model, tools)

	task := &tbworder.Task{ID: "t1", Name: "Write to etc"}
	result := p.ExecuteTask(context.Background(), TaskExecutionInput{
		WorkOrderID: "wo-1", ContractID: contractID, Task: task,
		Objective: "obj", QualityTarget: tbworder.QualityStandard, TimeRemainingMin: 30,
	})

	require.False(t, result.Failed)
	assert.Empty(t, tools.CallsFor(tooldispatch.FileWrite))
}

func TestExecuteTaskRewriteLoopGuard(t *testing.T) {
	model := modelclient.NewStub([]modelclient.Chunk{
		modelclient.ToolCallChunk{Call: modelclient.ToolCall{ID: "c1", Name: string(tooldispatch.FileWrite), Input: map[string]any{"path": "a.txt", "content": "1"}}},
		modelclient.ToolCallChunk{Call: modelclient.ToolCall{ID: "c2", Name: string(tooldispatch.FileWrite), Input: map[string]any{"path": "a.txt", "content": "2"}}},
	}, []modelclient.Chunk{
		modelclient.TextChunk{Text: "done"},
	})
	tools := tooldispatch.NewStub()

	p, _, contractID := newTestPod(t, tbworder.Scope{}, model, tools)
	task := &tbworder.Task{ID: "t1", Name: "rewrite"}
	result := p.ExecuteTask(context.Background(), TaskExecutionInput{
		WorkOrderID: "wo-1", ContractID: contractID, Task: task,
		Objective: "obj", QualityTarget: tbworder.QualityStandard, TimeRemainingMin: 30,
	})

	require.False(t, result.Failed)
	assert.Len(t, tools.CallsFor(tooldispatch.FileWrite), 1, "second write to the same path must not reach the dispatcher")
}

func TestExecuteTaskModelFailureRecoveredLocally(t *testing.T) {
	model := modelclient.NewStub([]modelclient.Chunk{
		modelclient.ErrorChunk{Err: assertErr{}},
	})
	tools := tooldispatch.NewStub()

	p, _, contractID := newTestPod(t, tbworder.Scope{}, model, tools)
	task := &tbworder.Task{ID: "t1", Name: "will fail"}
	result := p.ExecuteTask(context.Background(), TaskExecutionInput{
		WorkOrderID: "wo-1", ContractID: contractID, Task: task,
		Objective: "obj", QualityTarget: tbworder.QualityStandard, TimeRemainingMin: 30,
	})

	assert.True(t, result.Failed)
	assert.ErrorIs(t, result.FailureErr, tbworder.ErrModelFailure)
	assert.Equal(t, 1, p.State.Health.ConsecutiveFailures)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated model failure" }
