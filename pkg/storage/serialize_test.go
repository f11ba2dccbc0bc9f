package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/tbworder"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	attemptID := "attempt-123"
	approvedAt := time.Now().UTC()

	wo := &tbworder.WorkOrder{
		ID: "wo-1", Type: "generic", Status: tbworder.StatusExecuting, Objective: "ship it",
		Pods: map[string]*tbworder.Pod{
			"pod-1": {ID: "pod-1", Role: tbworder.PodRoleBackend},
			"pod-2": {ID: "pod-2", Role: tbworder.PodRoleQA},
		},
		ActivePods: map[string]struct{}{"pod-1": {}},
		Plan: &tbworder.Plan{
			PodStrategy: tbworder.PodStrategy{
				Mode:          tbworder.PodStrategyParallel,
				MaxConcurrent: 3,
				Dependencies: map[tbworder.PodRole][]tbworder.PodRole{
					tbworder.PodRoleQA: {tbworder.PodRoleBackend, tbworder.PodRoleFrontend},
				},
			},
			RequiresApproval: true,
			ApprovedAt:       &approvedAt,
		},
		Receipts: &tbworder.Receipts{
			Executive: tbworder.ExecutiveSection{Summary: "done", FilesCreated: 2},
			Technical: tbworder.TechnicalSection{
				BuildStatus: "success",
				PodReceipts: []tbworder.PodReceipt{
					{PodID: "pod-1", TasksCompleted: 2},
					{PodID: "pod-2", TasksCompleted: 1, TasksFailed: 1},
				},
			},
		},
		Progress:           80,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
		ExecutionAttemptID: &attemptID,
	}

	data, err := Marshal(wo)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, wo.ID, got.ID)
	assert.Equal(t, wo.Status, got.Status)
	assert.Len(t, got.Pods, 2)
	assert.Contains(t, got.ActivePods, "pod-1")
	assert.NotContains(t, got.ActivePods, "pod-2")

	require.NotNil(t, got.Plan)
	assert.Equal(t, []tbworder.PodRole{tbworder.PodRoleBackend, tbworder.PodRoleFrontend}, got.Plan.PodStrategy.Dependencies[tbworder.PodRoleQA])

	require.NotNil(t, got.Receipts)
	assert.Len(t, got.Receipts.Technical.PodReceipts, 2)

	// §8 round-trip law: per-execution in-memory state is dropped on load.
	assert.Nil(t, got.ExecutionAttemptID)
}

func TestMarshalUnmarshalEmptyWorkOrder(t *testing.T) {
	wo := &tbworder.WorkOrder{
		ID: "wo-empty", Status: tbworder.StatusDraft,
		Pods:       map[string]*tbworder.Pod{},
		ActivePods: map[string]struct{}{},
	}

	data, err := Marshal(wo)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "wo-empty", got.ID)
	assert.Empty(t, got.Pods)
	assert.Nil(t, got.Plan)
	assert.Nil(t, got.Receipts)
}
