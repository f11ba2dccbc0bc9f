// Package podpool implements the Pod Pool (C4, §4.4): a long-lived
// registry of reusable Pods keyed by role, carrying accumulated context and
// metrics across work orders. Grounded on the teacher's pkg/queue/pool.go
// (WorkerPool's registry-of-reusable-workers shape) and
// pkg/session/manager.go's flat map-behind-a-mutex pattern.
package podpool

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbwo/engine/pkg/tbworder"
)

// RollingContextCap bounds the accumulated pool-context summary injected
// into a reactivated pod's system prompt (§4.4, §9 "design constants").
const RollingContextCap = 8000

// poolEntry is the pool's bookkeeping for one reusable Pod, kept apart from
// tbworder.Pod because pool metrics accumulate across the Pod's entire
// lifetime, not just one WorkOrder's worth of ResourceUsage.
type poolEntry struct {
	pod                 *tbworder.Pod
	rollingContext      string
	specializations     map[string]int // inferred tags -> occurrence count
	totalTBWOsServed    int
	totalTasksCompleted int
	totalTokensUsed     int
	idle                bool
}

// Pool is the cross-work-order repository of reusable Pods.
type Pool struct {
	mu     sync.Mutex
	byRole map[tbworder.PodRole][]*poolEntry
	byID   map[string]*poolEntry
}

// New constructs an empty Pool.
func New() *Pool {
	return &Pool{
		byRole: map[tbworder.PodRole][]*poolEntry{},
		byID:   map[string]*poolEntry{},
	}
}

// GetOrCreatePod returns an idle reusable Pod for the given role, updating
// its owning work order id, or creates a fresh one in PodStatusInitializing
// if none is idle.
func (p *Pool) GetOrCreatePod(role tbworder.PodRole, workOrderID string, cfg tbworder.ModelConfig, now time.Time) *tbworder.Pod {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.byRole[role] {
		if entry.idle {
			entry.idle = false
			entry.pod.WorkOrderID = workOrderID
			entry.pod.Status = tbworder.PodStatusIdle
			entry.pod.ModelConfig = cfg
			entry.pod.UpdatedAt = now
			entry.totalTBWOsServed++
			return entry.pod
		}
	}

	pod := &tbworder.Pod{
		ID:            uuid.NewString(),
		Role:          role,
		Name:          fmt.Sprintf("%s-%s", role, shortID()),
		Status:        tbworder.PodStatusInitializing,
		Health:        tbworder.PodHealth{Status: tbworder.HealthHealthy, LastHeartbeat: now},
		ModelConfig:   cfg,
		ToolWhitelist: map[string]struct{}{},
		WorkOrderID:   workOrderID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entry := &poolEntry{pod: pod, specializations: map[string]int{}, totalTBWOsServed: 1}
	p.byRole[role] = append(p.byRole[role], entry)
	p.byID[pod.ID] = entry
	return pod
}

func shortID() string {
	id := uuid.NewString()
	return id[:8]
}

// PromptContext returns the pool-accumulated rolling context summary for a
// pod, to be injected into its system prompt on (re)activation (§4.4).
func (p *Pool) PromptContext(podID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.byID[podID]
	if !ok {
		return ""
	}
	return entry.rollingContext
}

// ReturnPodToPool appends summary to the pod's rolling context (capped),
// accumulates completed-task and token metrics, and marks the pod idle and
// unowned so a future WorkOrder can reclaim it (§4.4).
func (p *Pool) ReturnPodToPool(podID, summary string, tasksCompleted, tokensUsed int, patterns []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.byID[podID]
	if !ok {
		return fmt.Errorf("%w: pod %q not in pool", tbworder.ErrNotFound, podID)
	}

	combined := entry.rollingContext
	if combined != "" {
		combined += "\n"
	}
	combined += summary
	if len(combined) > RollingContextCap {
		combined = combined[len(combined)-RollingContextCap:]
	}
	entry.rollingContext = combined

	entry.totalTasksCompleted += tasksCompleted
	entry.totalTokensUsed += tokensUsed
	for _, tag := range patterns {
		entry.specializations[tag]++
	}

	entry.idle = true
	entry.pod.WorkOrderID = ""
	entry.pod.Status = tbworder.PodStatusIdle
	entry.pod.CurrentTask = ""
	return nil
}

// Specializations returns the heuristic role tags inferred from a pod's
// completed-task history, most-frequent first.
func (p *Pool) Specializations(podID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.byID[podID]
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(entry.specializations))
	for t := range entry.specializations {
		tags = append(tags, t)
	}
	sortByCountDesc(tags, entry.specializations)
	return tags
}

func sortByCountDesc(tags []string, counts map[string]int) {
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && counts[tags[j]] > counts[tags[j-1]]; j-- {
			tags[j], tags[j-1] = tags[j-1], tags[j]
		}
	}
}

// InferSpecializations derives heuristic tags from completed task
// descriptions — a simple keyword heuristic, per §4.4 ("specializations
// are heuristics inferred from completed tasks' descriptions").
func InferSpecializations(taskDescriptions []string) []string {
	keywords := map[string]string{
		"test":      "testing",
		"api":       "api-design",
		"ui":        "ui-implementation",
		"database":  "data-modeling",
		"migration": "data-modeling",
		"auth":      "security",
		"deploy":    "devops",
	}
	seen := map[string]struct{}{}
	var tags []string
	for _, desc := range taskDescriptions {
		lower := strings.ToLower(desc)
		for kw, tag := range keywords {
			if strings.Contains(lower, kw) {
				if _, ok := seen[tag]; !ok {
					seen[tag] = struct{}{}
					tags = append(tags, tag)
				}
			}
		}
	}
	return tags
}

// Stats reports the pool's cross-work-order accumulated metrics for a pod.
type Stats struct {
	TotalTBWOsServed    int
	TotalTasksCompleted int
	TotalTokensUsed     int
}

// StatsFor returns a pod's accumulated pool metrics.
func (p *Pool) StatsFor(podID string) (Stats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.byID[podID]
	if !ok {
		return Stats{}, fmt.Errorf("%w: pod %q not in pool", tbworder.ErrNotFound, podID)
	}
	return Stats{
		TotalTBWOsServed:    entry.totalTBWOsServed,
		TotalTasksCompleted: entry.totalTasksCompleted,
		TotalTokensUsed:     entry.totalTokensUsed,
	}, nil
}
