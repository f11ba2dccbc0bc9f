// Package scheduler implements the Task Scheduler (C6, §4.2): builds
// dependency groups from a phase's tasks and picks the best pod per task.
// Grounded on the teacher's pkg/agent/orchestrator/runner.go concurrency-
// slot reservation pattern (adapted to group-building) and
// pkg/queue/executor.go's sequential-stage loop for the "serial across
// groups" half of the model.
package scheduler

import (
	"log/slog"

	"github.com/tbwo/engine/pkg/tbworder"
)

// BuildTaskGroups implements §4.2's grouping algorithm: repeatedly select
// tasks whose DependsOn is a subset of the resolved set, forming serial
// groups of tasks that can run in parallel within each group. If an
// iteration resolves nothing while tasks remain, the remainder collapses
// into one final group (explicit cycle tolerance, logged as a warning,
// never fatal) — this also covers the "no task carries dependsOn" case,
// which resolves everything in the first iteration.
func BuildTaskGroups(tasks []*tbworder.Task, alreadyCompleted map[string]struct{}) [][]*tbworder.Task {
	log := slog.With("component", "scheduler")

	resolved := map[string]struct{}{}
	for id := range alreadyCompleted {
		resolved[id] = struct{}{}
	}

	remaining := make([]*tbworder.Task, 0, len(tasks))
	for _, t := range tasks {
		if _, done := alreadyCompleted[t.ID]; !done {
			remaining = append(remaining, t)
		}
	}

	var groups [][]*tbworder.Task
	safetyCap := len(tasks) + 1

	for iteration := 0; len(remaining) > 0 && iteration < safetyCap; iteration++ {
		var group []*tbworder.Task
		var stillRemaining []*tbworder.Task

		for _, t := range remaining {
			if dependsResolved(t, resolved) {
				group = append(group, t)
			} else {
				stillRemaining = append(stillRemaining, t)
			}
		}

		if len(group) == 0 {
			log.Warn("cyclic or unresolved task dependency detected; collapsing remainder into one final group",
				"remaining_count", len(remaining))
			groups = append(groups, remaining)
			return groups
		}

		for _, t := range group {
			resolved[t.ID] = struct{}{}
		}
		groups = append(groups, group)
		remaining = stillRemaining
	}

	if len(remaining) > 0 {
		// Safety cap exhausted — treat as a cycle, per the same tolerance.
		log.Warn("safety cap exhausted while grouping tasks; collapsing remainder", "remaining_count", len(remaining))
		groups = append(groups, remaining)
	}

	return groups
}

func dependsResolved(t *tbworder.Task, resolved map[string]struct{}) bool {
	for dep := range t.DependsOn {
		if _, ok := resolved[dep]; !ok {
			return false
		}
	}
	return true
}

// SelectBestPod implements §4.2's best-pod selection for a task:
//  1. If the task carries AssignedPod and that pod is active, pick it.
//  2. Otherwise, pick any idle active pod (deterministic insertion order).
//  3. Otherwise, pick the first active pod regardless of status.
//
// activePodOrder is the deterministic insertion-order list of active pod
// ids (see DESIGN.md's Open Question decision on iteration order).
func SelectBestPod(task *tbworder.Task, pods map[string]*tbworder.Pod, activePodOrder []string) (string, bool) {
	if task.AssignedPod != "" {
		if pod, ok := pods[task.AssignedPod]; ok {
			if _, active := indexOf(activePodOrder, pod.ID); active {
				return pod.ID, true
			}
		}
	}

	for _, id := range activePodOrder {
		if pod, ok := pods[id]; ok && pod.Status == tbworder.PodStatusIdle {
			return id, true
		}
	}

	if len(activePodOrder) > 0 {
		return activePodOrder[0], true
	}

	return "", false
}

func indexOf(list []string, id string) (int, bool) {
	for i, v := range list {
		if v == id {
			return i, true
		}
	}
	return -1, false
}
