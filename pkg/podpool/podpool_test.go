package podpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/tbworder"
)

func TestGetOrCreatePodCreatesFreshWhenNoneIdle(t *testing.T) {
	p := New()
	now := time.Now()
	pod := p.GetOrCreatePod(tbworder.PodRoleFrontend, "wo-1", tbworder.ModelConfig{}, now)
	require.NotNil(t, pod)
	assert.Equal(t, tbworder.PodRoleFrontend, pod.Role)
	assert.Equal(t, "wo-1", pod.WorkOrderID)
}

func TestReturnThenReuse(t *testing.T) {
	p := New()
	now := time.Now()
	pod := p.GetOrCreatePod(tbworder.PodRoleBackend, "wo-1", tbworder.ModelConfig{}, now)

	require.NoError(t, p.ReturnPodToPool(pod.ID, "built the API", 3, 500, []string{"api-design"}))

	reused := p.GetOrCreatePod(tbworder.PodRoleBackend, "wo-2", tbworder.ModelConfig{}, now)
	assert.Equal(t, pod.ID, reused.ID)
	assert.Equal(t, "wo-2", reused.WorkOrderID)

	assert.Contains(t, p.PromptContext(pod.ID), "built the API")

	stats, err := p.StatsFor(pod.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTasksCompleted)
	assert.Equal(t, 500, stats.TotalTokensUsed)
}

func TestReturnPodToPoolUnknownPod(t *testing.T) {
	p := New()
	err := p.ReturnPodToPool("nope", "summary", 0, 0, nil)
	require.Error(t, err)
}

func TestInferSpecializations(t *testing.T) {
	tags := InferSpecializations([]string{"Write unit tests for the login API", "Deploy to staging"})
	assert.Contains(t, tags, "testing")
	assert.Contains(t, tags, "api-design")
	assert.Contains(t, tags, "devops")
}

func TestRollingContextCapped(t *testing.T) {
	p := New()
	now := time.Now()
	pod := p.GetOrCreatePod(tbworder.PodRoleQA, "wo-1", tbworder.ModelConfig{}, now)

	long := make([]byte, RollingContextCap+500)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, p.ReturnPodToPool(pod.ID, string(long), 1, 10, nil))

	assert.LessOrEqual(t, len(p.PromptContext(pod.ID)), RollingContextCap)
}
