package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/tbworder"
)

func TestContractLifecycle(t *testing.T) {
	svc := NewService()
	now := time.Now()
	c := svc.CreateContract("wo-1", tbworder.Scope{
		ForbiddenPaths: []string{"/etc"},
	}, 1000, now.Add(time.Hour), now)

	require.Equal(t, tbworder.ContractDraft, c.Status)
	require.NoError(t, svc.ActivateContract(c.ID))

	got, err := svc.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, tbworder.ContractActive, got.Status)
}

func TestValidateActionForbiddenPath(t *testing.T) {
	svc := NewService()
	now := time.Now()
	c := svc.CreateContract("wo-1", tbworder.Scope{ForbiddenPaths: []string{"/etc"}}, 1000, now.Add(time.Hour), now)
	require.NoError(t, svc.ActivateContract(c.ID))

	result, err := svc.ValidateAction(c.ID, Action{Tool: "file_write", Path: "/etc/x"})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	require.Len(t, result.Violations, 1)

	got, _ := svc.Get(c.ID)
	assert.Equal(t, tbworder.ContractViolated, got.Status)
}

func TestValidateActionOnceViolatedShortCircuits(t *testing.T) {
	svc := NewService()
	now := time.Now()
	c := svc.CreateContract("wo-1", tbworder.Scope{ForbiddenTools: []string{"run_command"}}, 1000, now.Add(time.Hour), now)
	require.NoError(t, svc.ActivateContract(c.ID))

	_, err := svc.ValidateAction(c.ID, Action{Tool: "run_command"})
	require.NoError(t, err)

	result, err := svc.ValidateAction(c.ID, Action{Tool: "file_read"})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestValidateActionAllowList(t *testing.T) {
	svc := NewService()
	now := time.Now()
	c := svc.CreateContract("wo-1", tbworder.Scope{AllowedTools: []string{"file_write", "file_read"}}, 1000, now.Add(time.Hour), now)
	require.NoError(t, svc.ActivateContract(c.ID))

	result, err := svc.ValidateAction(c.ID, Action{Tool: "run_command"})
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result2, err := svc.ValidateAction(c.ID, Action{Tool: "file_write"})
	require.NoError(t, err)
	assert.True(t, result2.Allowed)
}

func TestRecordUsageAndFulfill(t *testing.T) {
	svc := NewService()
	now := time.Now()
	c := svc.CreateContract("wo-1", tbworder.Scope{}, 1000, now.Add(time.Hour), now)
	require.NoError(t, svc.ActivateContract(c.ID))

	require.NoError(t, svc.RecordUsage(c.ID, 100, 0.02))
	require.NoError(t, svc.RecordUsage(c.ID, 50, 0.01))

	got, err := svc.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, got.Usage.TokensUsed)

	require.NoError(t, svc.FulfillContract(c.ID))
	got2, _ := svc.Get(c.ID)
	assert.Equal(t, tbworder.ContractFulfilled, got2.Status)
}

func TestCheckTimeBudget(t *testing.T) {
	svc := NewService()
	now := time.Now()
	c := svc.CreateContract("wo-1", tbworder.Scope{}, 1000, now.Add(time.Minute), now)

	ok, err := svc.CheckTimeBudget(c.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok2, err := svc.CheckTimeBudget(c.ID, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok2)
}
