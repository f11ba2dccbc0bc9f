package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/tbworder"
)

func TestBuildTaskGroupsNoDependencies(t *testing.T) {
	tasks := []*tbworder.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	groups := BuildTaskGroups(tasks, nil)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 3)
}

func TestBuildTaskGroupsLinearChain(t *testing.T) {
	tasks := []*tbworder.Task{
		{ID: "a"},
		{ID: "b", DependsOn: map[string]struct{}{"a": {}}},
		{ID: "c", DependsOn: map[string]struct{}{"b": {}}},
	}
	groups := BuildTaskGroups(tasks, nil)
	require.Len(t, groups, 3)
	assert.Equal(t, "a", groups[0][0].ID)
	assert.Equal(t, "b", groups[1][0].ID)
	assert.Equal(t, "c", groups[2][0].ID)
}

func TestBuildTaskGroupsDiamond(t *testing.T) {
	tasks := []*tbworder.Task{
		{ID: "a"},
		{ID: "b", DependsOn: map[string]struct{}{"a": {}}},
		{ID: "c", DependsOn: map[string]struct{}{"a": {}}},
		{ID: "d", DependsOn: map[string]struct{}{"b": {}, "c": {}}},
	}
	groups := BuildTaskGroups(tasks, nil)
	require.Len(t, groups, 3)
	assert.Len(t, groups[1], 2)
}

func TestBuildTaskGroupsCycleCollapsesToFinalGroup(t *testing.T) {
	tasks := []*tbworder.Task{
		{ID: "a", DependsOn: map[string]struct{}{"b": {}}},
		{ID: "b", DependsOn: map[string]struct{}{"a": {}}},
	}
	groups := BuildTaskGroups(tasks, nil)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

func TestBuildTaskGroupsRespectsAlreadyCompleted(t *testing.T) {
	tasks := []*tbworder.Task{
		{ID: "a"},
		{ID: "b", DependsOn: map[string]struct{}{"a": {}}},
	}
	groups := BuildTaskGroups(tasks, map[string]struct{}{"a": {}})
	require.Len(t, groups, 1)
	assert.Equal(t, "b", groups[0][0].ID)
}

func TestSelectBestPodPrefersAssigned(t *testing.T) {
	pods := map[string]*tbworder.Pod{
		"p1": {ID: "p1", Status: tbworder.PodStatusWorking},
		"p2": {ID: "p2", Status: tbworder.PodStatusIdle},
	}
	task := &tbworder.Task{AssignedPod: "p1"}
	id, ok := SelectBestPod(task, pods, []string{"p1", "p2"})
	require.True(t, ok)
	assert.Equal(t, "p1", id)
}

func TestSelectBestPodFallsBackToIdle(t *testing.T) {
	pods := map[string]*tbworder.Pod{
		"p1": {ID: "p1", Status: tbworder.PodStatusWorking},
		"p2": {ID: "p2", Status: tbworder.PodStatusIdle},
	}
	task := &tbworder.Task{}
	id, ok := SelectBestPod(task, pods, []string{"p1", "p2"})
	require.True(t, ok)
	assert.Equal(t, "p2", id)
}

func TestSelectBestPodFallsBackToFirstActive(t *testing.T) {
	pods := map[string]*tbworder.Pod{
		"p1": {ID: "p1", Status: tbworder.PodStatusWorking},
	}
	task := &tbworder.Task{}
	id, ok := SelectBestPod(task, pods, []string{"p1"})
	require.True(t, ok)
	assert.Equal(t, "p1", id)
}

func TestSelectBestPodNoneActive(t *testing.T) {
	_, ok := SelectBestPod(&tbworder.Task{}, map[string]*tbworder.Pod{}, nil)
	assert.False(t, ok)
}
