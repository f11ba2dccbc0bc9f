package receipt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/podpool"
	"github.com/tbwo/engine/pkg/tbworder"
)

func woWithOneCompleteOneFailed() *tbworder.WorkOrder {
	now := time.Now()
	wo := tbworder.NewWorkOrder("wo-1", "ship a landing page", 60, now)
	wo.Plan = &tbworder.Plan{Phases: []*tbworder.Phase{
		{
			ID:     "phase-1",
			Name:   "build",
			Status: tbworder.PhaseStatusComplete,
			Tasks: []*tbworder.Task{
				{ID: "t1", Name: "write index.html", Status: tbworder.TaskStatusComplete},
				{ID: "t2", Name: "write tests", Status: tbworder.TaskStatusFailed},
			},
		},
	}}
	wo.Artifacts = []*tbworder.Artifact{
		{ID: "a1", Path: "index.html", Type: tbworder.ArtifactFile, Content: "<html>\n<body></body>\n</html>", Version: 1},
	}
	wo.Pods = map[string]*tbworder.Pod{
		"pod-1": {
			ID:             "pod-1",
			Role:           tbworder.PodRoleFrontend,
			CompletedTasks: []string{"t1"},
			Health:         tbworder.PodHealth{ErrorCount: 1},
			ResourceUsage:  tbworder.ResourceUsage{TokensUsed: 500, ExecutionTime: 2 * time.Minute},
		},
	}
	return wo
}

func TestGenerateDeterministicFallback(t *testing.T) {
	gen := New(nil, podpool.New())
	wo := woWithOneCompleteOneFailed()

	r := gen.Generate(context.Background(), wo, true)
	require.NotNil(t, r)

	assert.Equal(t, 1, r.Executive.FilesCreated)
	assert.Equal(t, 3, r.Executive.TotalLines)
	assert.Equal(t, 500, r.Executive.TokenTotal)
	assert.Len(t, r.Executive.Accomplishments, 1)
	assert.Len(t, r.Executive.UnfinishedItems, 1)
	assert.NotEmpty(t, r.Executive.Summary)

	assert.Equal(t, "partial", r.Technical.BuildStatus) // 1/2 settled => 50 < threshold
	require.Len(t, r.Technical.PodReceipts, 1)
	assert.Equal(t, 1, r.Technical.PodReceipts[0].TasksCompleted)
	assert.Equal(t, 1, r.Technical.PodReceipts[0].TasksFailed)

	assert.True(t, r.Rollback.CanRollback)
	require.Len(t, r.Rollback.Entries, 1)
	assert.Equal(t, "delete", r.Rollback.Entries[0].Action)
}

func TestGenerateNoArtifactsCannotRollback(t *testing.T) {
	gen := New(nil, podpool.New())
	now := time.Now()
	wo := tbworder.NewWorkOrder("wo-2", "noop", 10, now)

	r := gen.Generate(context.Background(), wo, true)
	assert.False(t, r.Rollback.CanRollback)
	assert.Equal(t, float64(100), r.Executive.QualityScore)
	assert.Equal(t, "success", r.Technical.BuildStatus)
}

func TestGenerateRevertWhenPreviousVersionExists(t *testing.T) {
	gen := New(nil, podpool.New())
	wo := woWithOneCompleteOneFailed()
	prev := 1
	wo.Artifacts[0].Version = 2
	wo.Artifacts[0].PreviousVersion = &prev

	r := gen.Generate(context.Background(), wo, true)
	require.Len(t, r.Rollback.Entries, 1)
	assert.Equal(t, "revert", r.Rollback.Entries[0].Action)
}

func TestGeneratePauseEventSummaries(t *testing.T) {
	gen := New(nil, podpool.New())
	wo := woWithOneCompleteOneFailed()
	created := time.Now()
	resolved := created.Add(90 * time.Second)
	wo.PauseRequests = []*tbworder.PauseRequest{
		{ID: "p1", Question: "which framework?", UserResponse: "react", CreatedAt: created, ResolvedAt: &resolved},
		{ID: "p2", Question: "unresolved", CreatedAt: created}, // no ResolvedAt: excluded
	}

	r := gen.Generate(context.Background(), wo, true)
	require.Len(t, r.PauseEvents, 1)
	assert.Equal(t, "react", r.PauseEvents[0].Resolution)
	assert.Equal(t, 90*time.Second, r.PauseEvents[0].Duration)
}

// stubModel always returns a fixed answer, used to exercise the AI-drafted
// executive summary path.
type stubModel struct{ text string }

func (s stubModel) Generate(ctx context.Context, in modelclient.GenerateInput) (<-chan modelclient.Chunk, error) {
	ch := make(chan modelclient.Chunk, 2)
	ch <- modelclient.TextChunk{Text: s.text}
	close(ch)
	return ch, nil
}
func (s stubModel) Close() error { return nil }

func TestGenerateAIDraftedSummary(t *testing.T) {
	gen := New(stubModel{text: "Landing page shipped, tests still flaky."}, podpool.New())
	wo := woWithOneCompleteOneFailed()

	r := gen.Generate(context.Background(), wo, true)
	assert.Equal(t, "Landing page shipped, tests still flaky.", r.Executive.Summary)
}

// erroringModel always fails, exercising the fail-open fallback.
type erroringModel struct{}

func (erroringModel) Generate(ctx context.Context, in modelclient.GenerateInput) (<-chan modelclient.Chunk, error) {
	ch := make(chan modelclient.Chunk, 1)
	ch <- modelclient.ErrorChunk{Err: assertErr}
	close(ch)
	return ch, nil
}
func (erroringModel) Close() error { return nil }

var assertErr = assertError("model down")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestGenerateFallsBackWhenModelErrors(t *testing.T) {
	gen := New(erroringModel{}, podpool.New())
	wo := woWithOneCompleteOneFailed()

	r := gen.Generate(context.Background(), wo, true)
	assert.Contains(t, r.Executive.Summary, "ship a landing page")
}
