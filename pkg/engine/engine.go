// Package engine implements the Execution Engine (E1, §4.1): the top-level
// state machine that drives a WorkOrder's plan to completion, wiring every
// other component together. Grounded on the teacher's pkg/queue/executor.go
// (RealSessionExecutor.Execute's sequential phase/stage loop, fail-fast vs
// fail-open split) and pkg/queue/worker.go (timeout synthesis, heartbeat
// wiring, graceful cleanup on cancellation).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbwo/engine/pkg/bus"
	"github.com/tbwo/engine/pkg/checkpoint"
	"github.com/tbwo/engine/pkg/clock"
	"github.com/tbwo/engine/pkg/contract"
	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/pause"
	"github.com/tbwo/engine/pkg/pod"
	"github.com/tbwo/engine/pkg/podpool"
	"github.com/tbwo/engine/pkg/receipt"
	"github.com/tbwo/engine/pkg/scheduler"
	"github.com/tbwo/engine/pkg/tbworder"
	"github.com/tbwo/engine/pkg/tooldispatch"
	"github.com/tbwo/engine/pkg/updatestream"
)

// PauseSuspendPollInterval is how often a suspended execution checks for an
// external Resume call (§5 suspension-point polling).
const PauseSuspendPollInterval = time.Second

// MaxPauseWindow is how long a cooperative pause may remain suspended
// before the engine auto-resumes (§5).
const MaxPauseWindow = time.Hour

// DefaultContractBudgetTokens is the generous per-run token ceiling a
// Contract is created with when a WorkOrder doesn't specify one — the
// spec's primary budget mechanism is wall-clock time, so this only bounds
// the secondary usage ledger against runaway consumption.
const DefaultContractBudgetTokens = 5_000_000

// Engine drives WorkOrder execution end to end, owning the per-execution
// in-memory state the spec keeps outside the persisted WorkOrder
// (contractId, startTime, pausedAt, activePodOrder, recent errors, ...).
type Engine struct {
	Store     *tbworder.Store
	Contracts *contract.Service
	Bus       *bus.Bus
	Updates   *updatestream.Stream
	Pool      *podpool.Pool
	Model     modelclient.Client
	Tools     tooldispatch.Dispatcher
	Clock     clock.Clock
	Receipts  *receipt.Generator

	mu   sync.Mutex
	runs map[string]*execState
	log  *slog.Logger
}

// execState is one in-flight execution attempt's private bookkeeping.
type execState struct {
	attemptID          string
	contractID         string
	cancel             context.CancelFunc
	pauseRequested     bool
	resumeCh           chan struct{}
	startTime          time.Time
	pausedAt           *time.Time
	totalPauseDuration time.Duration
	recentErrors       []string // bounded ring, most recent last
	activePodOrder     []string
	doneCh             chan struct{}
	runErr             error

	// stateMu serializes every mutation of collections shared across a
	// phase's parallel sibling-task goroutines: wo.Pods, wo.ActivePods,
	// wo.Artifacts, phase.AssignedPods, plus recentErrors/activePodOrder
	// above (§5: "implementations must serialize mutations per-collection").
	stateMu sync.Mutex
}

const recentErrorsCap = 10

func (r *execState) recordError(err error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.recordErrorLocked(err)
}

func (r *execState) recordErrorLocked(err error) {
	r.recentErrors = append(r.recentErrors, err.Error())
	if len(r.recentErrors) > recentErrorsCap {
		r.recentErrors = r.recentErrors[len(r.recentErrors)-recentErrorsCap:]
	}
}

func (r *execState) addActivePodLocked(id string) {
	for _, existing := range r.activePodOrder {
		if existing == id {
			return
		}
	}
	r.activePodOrder = append(r.activePodOrder, id)
}

// New builds an Engine from its collaborators. clk defaults to clock.Real{}
// if nil.
func New(store *tbworder.Store, contracts *contract.Service, b *bus.Bus, updates *updatestream.Stream, pool *podpool.Pool, model modelclient.Client, tools tooldispatch.Dispatcher, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{
		Store: store, Contracts: contracts, Bus: b, Updates: updates, Pool: pool,
		Model: model, Tools: tools, Clock: clk,
		Receipts: receipt.New(model, pool),
		runs:     map[string]*execState{},
		log:      slog.With("component", "engine"),
	}
}

// IsRunning reports whether a WorkOrder currently has a live execution
// attempt (invariant: single writer per WorkOrder, §5).
func (e *Engine) IsRunning(workOrderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runs[workOrderID]
	return ok
}

// GetState returns a shallow snapshot of a WorkOrder's current state.
func (e *Engine) GetState(workOrderID string) (*tbworder.WorkOrder, error) {
	wo, err := e.Store.Get(workOrderID)
	if err != nil {
		return nil, err
	}
	snapshot := *wo
	return &snapshot, nil
}

// Execute starts (or idempotently no-ops on) a WorkOrder's execution.
// resume=true additionally permits restarting from a paused or
// stale-executing state. Execute returns once the attempt has been
// registered; the plan runs asynchronously — poll GetState or subscribe to
// the Update Stream for progress, or call Wait for a blocking join.
func (e *Engine) Execute(ctx context.Context, workOrderID string, resume bool) error {
	wo, err := e.Store.Get(workOrderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if _, already := e.runs[workOrderID]; already {
		e.mu.Unlock()
		return nil // idempotent: an attempt is already in flight
	}

	switch {
	case wo.Status.IsTerminal():
		e.mu.Unlock()
		return fmt.Errorf("%w: work order %q is in terminal status %q", tbworder.ErrPreconditionFailed, workOrderID, wo.Status)
	case wo.Status == tbworder.StatusExecuting:
		// Stale-executing recovery (Open Question 3, DESIGN.md): the prior
		// attempt's goroutine is gone (process restart) but status was never
		// finalized. Mint a fresh attempt id and continue rather than refuse.
		e.log.Warn("recovering stale executing work order with a fresh execution attempt", "work_order_id", workOrderID)
	case wo.Status == tbworder.StatusPaused, wo.Status == tbworder.StatusCheckpoint:
		if !resume {
			e.mu.Unlock()
			return fmt.Errorf("%w: work order %q is %q; call Execute with resume=true", tbworder.ErrPreconditionFailed, workOrderID, wo.Status)
		}
	case wo.Status == tbworder.StatusDraft, wo.Status == tbworder.StatusPlanning:
		e.mu.Unlock()
		return fmt.Errorf("%w: work order %q has no approved plan yet", tbworder.ErrPreconditionFailed, workOrderID)
	case wo.Status == tbworder.StatusAwaitingApproval:
		if wo.Plan == nil || !wo.Plan.ReadyForExecution() {
			e.mu.Unlock()
			return fmt.Errorf("%w: work order %q plan is not approved", tbworder.ErrPreconditionFailed, workOrderID)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &execState{
		attemptID: uuid.NewString(),
		cancel:    cancel,
		resumeCh:  make(chan struct{}, 1),
		startTime: e.Clock.Now(),
		doneCh:    make(chan struct{}),
	}
	e.runs[workOrderID] = run
	e.mu.Unlock()

	go e.runExecution(runCtx, wo, run)
	return nil
}

// Pause requests cooperative suspension of a live execution. The engine
// honors it at the next suspension point (§5): before the next task group
// or phase starts, so tasks already running in the current group finish
// first. PauseSuspendPollInterval is the tick of the wait once suspended.
func (e *Engine) Pause(workOrderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[workOrderID]
	if !ok {
		return fmt.Errorf("%w: work order %q has no live execution", tbworder.ErrPreconditionFailed, workOrderID)
	}
	run.pauseRequested = true
	return nil
}

// Resume signals a paused execution to continue.
func (e *Engine) Resume(workOrderID string) error {
	e.mu.Lock()
	run, ok := e.runs[workOrderID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: work order %q has no live execution", tbworder.ErrPreconditionFailed, workOrderID)
	}
	select {
	case run.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// Cancel requests the live execution stop; the WorkOrder transitions to
// StatusCancelled once the goroutine observes context cancellation.
func (e *Engine) Cancel(workOrderID string) error {
	e.mu.Lock()
	run, ok := e.runs[workOrderID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: work order %q has no live execution", tbworder.ErrPreconditionFailed, workOrderID)
	}
	run.cancel()
	return nil
}

// Wait blocks until workOrderID's in-flight execution attempt finishes.
// Primarily for tests and synchronous callers; production callers should
// prefer the Update Stream.
func (e *Engine) Wait(workOrderID string) error {
	e.mu.Lock()
	run, ok := e.runs[workOrderID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	<-run.doneCh
	return run.runErr
}

func (e *Engine) unregister(workOrderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.runs, workOrderID)
}

// runExecution is the engine's 8-step happy-path algorithm (§4.1): mark
// executing, create+activate a contract, run phases serially (tasks within
// a dependency group in parallel), checkpoint between phases, then
// complete, fail, pause, or cancel.
func (e *Engine) runExecution(ctx context.Context, wo *tbworder.WorkOrder, run *execState) {
	defer close(run.doneCh)
	defer e.unregister(wo.ID)
	// Anything uncaught in the top-level loop transitions the WorkOrder to
	// failed rather than crashing the process (§7 propagation policy).
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic recovered in execution loop; failing work order", "work_order_id", wo.ID, "panic", r)
			e.failWorkOrder(wo, run, fmt.Errorf("%w: %v", tbworder.ErrInternal, r))
		}
	}()

	now := e.Clock.Now()
	wo.Status = tbworder.StatusExecuting
	attemptID := run.attemptID
	wo.ExecutionAttemptID = &attemptID
	wo.UpdatedAt = now

	deadline := now.Add(time.Duration(wo.TimeBudget.RemainingMinutes * float64(time.Minute)))
	c := e.Contracts.CreateContract(wo.ID, wo.Scope, DefaultContractBudgetTokens, deadline, now)
	_ = e.Contracts.ActivateContract(c.ID)
	run.contractID = c.ID

	e.Updates.EmitEvent(wo.ID, tbworder.EventProgressUpdate, map[string]any{"status": string(tbworder.StatusExecuting)}, now)

	if wo.Plan == nil || len(wo.Plan.Phases) == 0 {
		e.completeWorkOrder(wo, run, "empty plan")
		return
	}

	e.spawnInitialPods(wo, run)

	lastTick := now
	budgetExhausted := false

phaseLoop:
	for pi, phase := range wo.Plan.Phases {
		if err := e.suspendPoint(ctx, wo, run); err != nil {
			e.finalizeCancelled(wo, run)
			return
		}

		var previousPhase *tbworder.Phase
		if pi > 0 {
			previousPhase = wo.Plan.Phases[pi-1]
		}

		phase.Status = tbworder.PhaseStatusInProgress
		e.Updates.EmitEvent(wo.ID, tbworder.EventPhaseStart, map[string]any{"phase_id": phase.ID}, e.Clock.Now())

		completed := map[string]struct{}{}
		for _, t := range phase.Tasks {
			if t.Status == tbworder.TaskStatusComplete {
				completed[t.ID] = struct{}{}
			}
		}
		groups := scheduler.BuildTaskGroups(phase.Tasks, completed)

		for _, group := range groups {
			if err := e.suspendPoint(ctx, wo, run); err != nil {
				e.finalizeCancelled(wo, run)
				return
			}

			var wg sync.WaitGroup
			for _, task := range group {
				wg.Add(1)
				go func(task *tbworder.Task) {
					defer wg.Done()
					e.runTask(ctx, wo, run, phase, previousPhase, task)
				}(task)
			}
			wg.Wait()

			elapsed := e.Clock.Now().Sub(lastTick)
			lastTick = e.Clock.Now()
			consumeBudget(wo, phase, elapsed)
			recalcProgress(wo)

			withinDeadline, _ := e.Contracts.CheckTimeBudget(run.contractID, e.Clock.Now())
			if !withinDeadline || wo.TimeBudget.RemainingMinutes <= 0 {
				budgetExhausted = true
				break phaseLoop
			}
		}

		tasksCompleted, tasksFailed := 0, 0
		for _, t := range phase.Tasks {
			switch t.Status {
			case tbworder.TaskStatusComplete:
				tasksCompleted++
			case tbworder.TaskStatusFailed:
				tasksFailed++
			}
		}

		// Phase quality gate (§4.1 step (e)): a phase "succeeds" iff
		// tasksCompleted > tasksFailed. A phase with ≥1 task that completed
		// none of them is logged as wholly failed (§7), but the engine still
		// advances to the next phase rather than aborting the work order.
		switch {
		case len(phase.Tasks) == 0:
			phase.Status = tbworder.PhaseStatusComplete
		case tasksCompleted == 0:
			e.log.Warn("phase wholly failed: no tasks completed", "work_order_id", wo.ID, "phase_id", phase.ID, "tasks_failed", tasksFailed)
			phase.Status = tbworder.PhaseStatusFailed
		case tasksCompleted > tasksFailed:
			phase.Status = tbworder.PhaseStatusComplete
		default:
			e.log.Warn("phase failed quality gate", "work_order_id", wo.ID, "phase_id", phase.ID, "tasks_completed", tasksCompleted, "tasks_failed", tasksFailed)
			phase.Status = tbworder.PhaseStatusFailed
		}

		completedAt := e.Clock.Now()
		phase.CompletedAt = &completedAt
		recalcProgress(wo)
		e.Updates.EmitEvent(wo.ID, tbworder.EventPhaseComplete, map[string]any{"phase_id": phase.ID, "status": string(phase.Status)}, completedAt)

		if pi < len(wo.Plan.Phases)-1 {
			cp := &tbworder.Checkpoint{
				ID:               uuid.NewString(),
				Name:             fmt.Sprintf("after-%s", phase.Name),
				TriggerCondition: tbworder.TriggerPhaseComplete,
				Status:           tbworder.CheckpointPending,
			}
			wo.Checkpoints = append(wo.Checkpoints, cp)
			wo.Status = tbworder.StatusCheckpoint
			e.Updates.EmitEvent(wo.ID, tbworder.EventCheckpointReached, map[string]any{"checkpoint_id": cp.ID}, e.Clock.Now())

			ctrl := checkpoint.New(wo, e.Clock)
			outcome := ctrl.Resolve(ctx, cp)

			switch outcome.NewStatus {
			case tbworder.StatusCancelled:
				e.finalizeCancelled(wo, run)
				return
			case tbworder.StatusPaused:
				run.pauseRequested = true
				if err := e.suspendPoint(ctx, wo, run); err != nil {
					e.finalizeCancelled(wo, run)
					return
				}
				wo.Status = tbworder.StatusExecuting
			default:
				wo.Status = tbworder.StatusExecuting
			}
		}
	}

	if ctx.Err() != nil {
		e.finalizeCancelled(wo, run)
		return
	}
	if budgetExhausted {
		e.completeWorkOrder(wo, run, "time budget exhausted")
		return
	}
	e.completeWorkOrder(wo, run, "all phases complete")
}

// suspendPoint is called between phases and between task groups — the
// spec's enumerated suspension points (§5). It honors cancellation first,
// then a pending Pause.
func (e *Engine) suspendPoint(ctx context.Context, wo *tbworder.WorkOrder, run *execState) error {
	if ctx.Err() != nil {
		return tbworder.ErrCancelled
	}
	if !run.pauseRequested {
		return nil
	}
	return e.waitWhilePaused(ctx, wo, run)
}

// waitWhilePaused blocks the execution goroutine until Resume is called,
// ctx is cancelled, or MaxPauseWindow elapses (at which point the engine
// auto-resumes with a logged warning, per §5).
func (e *Engine) waitWhilePaused(ctx context.Context, wo *tbworder.WorkOrder, run *execState) error {
	pausedAt := e.Clock.Now()
	wo.Status = tbworder.StatusPaused
	run.pausedAt = &pausedAt
	wo.UpdatedAt = pausedAt

	deadline := pausedAt.Add(MaxPauseWindow)
	ticker := e.Clock.NewTicker(PauseSuspendPollInterval)
	defer ticker.Stop()

	resumeAt := func(t time.Time) {
		run.pauseRequested = false
		run.totalPauseDuration += t.Sub(*run.pausedAt)
		run.pausedAt = nil
		wo.Status = tbworder.StatusExecuting
		wo.UpdatedAt = t
	}

	for {
		select {
		case <-ctx.Done():
			return tbworder.ErrCancelled
		case <-run.resumeCh:
			resumeAt(e.Clock.Now())
			return nil
		case t := <-ticker.C():
			if !t.Before(deadline) {
				e.log.Warn("pause window exceeded; auto-resuming", "work_order_id", wo.ID)
				resumeAt(t)
				return nil
			}
		}
	}
}

// spawnInitialPods implements §4.1 step 5's pre-spawn: for each role in
// plan.podStrategy.priorityOrder, capped at maxConcurrent (the plan's own
// PodStrategy.MaxConcurrent, further capped by the scope's
// MaxConcurrentPods when set), obtain a pooled pod and register it as
// active before phase execution begins. Per-task pod selection in runTask
// still falls back to creating one lazily for any role the priority order
// didn't cover.
func (e *Engine) spawnInitialPods(wo *tbworder.WorkOrder, run *execState) {
	if wo.Plan == nil {
		return
	}
	priorityOrder := wo.Plan.PodStrategy.PriorityOrder
	if len(priorityOrder) == 0 {
		return
	}

	maxConcurrent := wo.Plan.PodStrategy.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = len(priorityOrder)
	}
	if wo.Scope.MaxConcurrentPods > 0 && wo.Scope.MaxConcurrentPods < maxConcurrent {
		maxConcurrent = wo.Scope.MaxConcurrentPods
	}
	if maxConcurrent > len(priorityOrder) {
		maxConcurrent = len(priorityOrder)
	}

	run.stateMu.Lock()
	defer run.stateMu.Unlock()

	for _, role := range priorityOrder[:maxConcurrent] {
		podState := e.Pool.GetOrCreatePod(role, wo.ID, tbworder.ModelConfig{Model: "default"}, e.Clock.Now())
		wo.Pods[podState.ID] = podState
		wo.ActivePods[podState.ID] = struct{}{}
		e.Bus.Subscribe(podState.ID)
		run.addActivePodLocked(podState.ID)
	}
}

// runTask implements the per-task side of §4.2/§4.3: select or activate a
// pod, run it, and recover task-level failure locally without propagating
// it to the phase loop (§7). previousPhase is nil for the plan's first
// phase. All mutation of WorkOrder-wide collections shared with sibling
// tasks running in the same group goroutine fan-out is serialized through
// run.stateMu (§5).
func (e *Engine) runTask(ctx context.Context, wo *tbworder.WorkOrder, run *execState, phase, previousPhase *tbworder.Phase, task *tbworder.Task) {
	task.Status = tbworder.TaskStatusInProgress
	e.Updates.EmitEvent(wo.ID, tbworder.EventTaskStart, map[string]any{"task_id": task.ID}, e.Clock.Now())

	run.stateMu.Lock()
	podID, ok := scheduler.SelectBestPod(task, wo.Pods, run.activePodOrder)
	if !ok {
		role := inferRoleForTask(task)
		podState := e.Pool.GetOrCreatePod(role, wo.ID, tbworder.ModelConfig{Model: "default"}, e.Clock.Now())
		wo.Pods[podState.ID] = podState
		wo.ActivePods[podState.ID] = struct{}{}
		e.Bus.Subscribe(podState.ID)
		run.addActivePodLocked(podState.ID)
		podID = podState.ID
	}
	podState := wo.Pods[podID]

	if phase.AssignedPods == nil {
		phase.AssignedPods = map[string]struct{}{}
	}
	phase.AssignedPods[podID] = struct{}{}

	var previousPhasePodIDs map[string]struct{}
	if previousPhase != nil {
		previousPhasePodIDs = previousPhase.AssignedPods
	}
	artifactCtx := pod.VisibleArtifacts(wo.Artifacts, podState.Role, phase.AssignedPods, previousPhasePodIDs, e.orchestratorPodIDsLocked(wo))
	recentErrors := append([]string(nil), run.recentErrors...)
	run.stateMu.Unlock()

	task.AssignedPod = podID

	behavior := pod.BehaviorForRole(podState.Role)
	poolContext := e.Pool.PromptContext(podID)
	p := pod.New(podState, behavior, pod.Deps{
		Model:         e.Model,
		Tools:         e.Tools,
		Contracts:     e.Contracts,
		Bus:           e.Bus,
		Updates:       e.Updates,
		Clarification: pause.New(wo, e.Model, e.Clock),
	})

	result := p.ExecuteTask(ctx, pod.TaskExecutionInput{
		WorkOrderID:      wo.ID,
		ContractID:       run.contractID,
		Task:             task,
		Objective:        wo.Objective,
		QualityTarget:    wo.QualityTarget,
		TimeRemainingMin: wo.TimeBudget.RemainingMinutes,
		ArtifactContext:  artifactCtx,
		RecentErrors:     recentErrors,
		PoolContext:      poolContext,
	})

	if result.Failed {
		task.Status = tbworder.TaskStatusFailed
		run.recordError(result.FailureErr)
		e.Updates.EmitEvent(wo.ID, tbworder.EventTaskFailed, map[string]any{"task_id": task.ID, "error": result.FailureErr.Error()}, e.Clock.Now())
		return
	}

	task.Status = tbworder.TaskStatusComplete
	task.Output = result.Output

	run.stateMu.Lock()
	for _, draft := range result.Artifacts {
		e.commitArtifactLocked(wo, podID, draft)
	}
	run.stateMu.Unlock()

	e.Updates.EmitEvent(wo.ID, tbworder.EventTaskComplete, map[string]any{"task_id": task.ID, "phase_id": phase.ID}, e.Clock.Now())
}

// orchestratorPodIDsLocked returns the set of pod ids on this WorkOrder
// currently playing the Orchestrator role (§4.3.1: orchestrator artifacts
// are visible across all phases). Caller must hold run.stateMu.
func (e *Engine) orchestratorPodIDsLocked(wo *tbworder.WorkOrder) map[string]struct{} {
	out := map[string]struct{}{}
	for id, p := range wo.Pods {
		if p.Role == tbworder.PodRoleOrchestrator {
			out[id] = struct{}{}
		}
	}
	return out
}

// commitArtifactLocked records a draft as a new artifact. When earlier
// artifacts carry exactly the same path string, the new record's version is
// one past the highest of theirs and PreviousVersion names the version
// before it; the earlier records stay in wo.Artifacts (they are not merged),
// and paths are compared as given, without normalization.
// Caller must hold run.stateMu, since wo.Artifacts is shared across a
// group's parallel sibling-task goroutines.
func (e *Engine) commitArtifactLocked(wo *tbworder.WorkOrder, podID string, draft pod.ArtifactDraft) {
	path := draft.Path
	version := 1
	var previous *int
	for _, existing := range wo.Artifacts {
		if existing.Path != "" && existing.Path == path {
			if existing.Version >= version {
				version = existing.Version + 1
			}
		}
	}
	if version > 1 {
		prev := version - 1
		previous = &prev
	}

	now := e.Clock.Now()
	a := &tbworder.Artifact{
		ID:              uuid.NewString(),
		WorkOrderID:     wo.ID,
		Name:            draft.Name,
		Type:            draft.Type,
		Description:     draft.Description,
		Content:         draft.Content,
		Path:            path,
		CreatedBy:       podID,
		CreatedAt:       now,
		Version:         version,
		Status:          tbworder.ArtifactDraft,
		PreviousVersion: previous,
	}
	wo.Artifacts = append(wo.Artifacts, a)
	e.Updates.EmitEvent(wo.ID, tbworder.EventArtifactCreated, map[string]any{"artifact_id": a.ID, "path": a.Path}, now)
}

// completeWorkOrder implements the completion path (§4.1.1): fulfill the
// contract, return active pods to the pool, and mark the WorkOrder
// terminal.
func (e *Engine) completeWorkOrder(wo *tbworder.WorkOrder, run *execState, reason string) {
	now := e.Clock.Now()
	wo.Status = tbworder.StatusCompleting
	e.Updates.EmitEvent(wo.ID, tbworder.EventProgressUpdate, map[string]any{"status": string(tbworder.StatusCompleting), "reason": reason}, now)

	_ = e.Contracts.FulfillContract(run.contractID)
	e.returnActivePods(wo, run)

	if wo.Plan != nil && len(wo.Plan.Phases) > 0 {
		recalcProgress(wo)
	} else {
		wo.Progress = 100
	}

	if e.Receipts != nil {
		wo.Receipts = e.Receipts.Generate(context.Background(), wo, true)
	}

	wo.Status = tbworder.StatusCompleted
	wo.UpdatedAt = e.Clock.Now()
	e.Updates.EmitEvent(wo.ID, tbworder.EventExecutionComplete, map[string]any{"reason": reason, "success": true}, wo.UpdatedAt)
}

// finalizeCancelled marks the WorkOrder cancelled (terminal, invariant 7)
// and releases its pods and contract. No deliverables are generated on
// cancel (§7 "On cancel, the chat receives a cancellation acknowledgment
// and no deliverables").
func (e *Engine) finalizeCancelled(wo *tbworder.WorkOrder, run *execState) {
	_ = e.Contracts.FulfillContract(run.contractID)
	e.returnActivePods(wo, run)
	wo.Status = tbworder.StatusCancelled
	wo.UpdatedAt = e.Clock.Now()
	e.Updates.EmitEvent(wo.ID, tbworder.EventExecutionComplete, map[string]any{"reason": "cancelled", "success": false}, wo.UpdatedAt)
}

// failWorkOrder implements the failure path (§4.1, §7): fulfill the
// contract (so timers stop), return pods, partially deliver artifacts
// created pre-failure via a best-effort receipt, and transition to failed.
func (e *Engine) failWorkOrder(wo *tbworder.WorkOrder, run *execState, cause error) {
	if run.contractID != "" {
		_ = e.Contracts.FulfillContract(run.contractID)
	}
	e.returnActivePods(wo, run)
	run.recordError(cause)

	if e.Receipts != nil {
		wo.Receipts = e.Receipts.Generate(context.Background(), wo, false)
	}

	wo.Status = tbworder.StatusFailed
	wo.UpdatedAt = e.Clock.Now()
	e.Updates.EmitEvent(wo.ID, tbworder.EventError, map[string]any{"error": cause.Error(), "recent_errors": run.recentErrors}, wo.UpdatedAt)
	e.Updates.EmitEvent(wo.ID, tbworder.EventExecutionComplete, map[string]any{"reason": cause.Error(), "success": false}, wo.UpdatedAt)
	run.runErr = cause
}

func (e *Engine) returnActivePods(wo *tbworder.WorkOrder, run *execState) {
	for podID := range wo.ActivePods {
		podState, ok := wo.Pods[podID]
		if !ok {
			continue
		}
		summary := fmt.Sprintf("completed %d task(s) on work order %s", len(podState.CompletedTasks), wo.ID)
		tags := podpool.InferSpecializations(taskDescriptionsFor(wo, podState.CompletedTasks))
		_ = e.Pool.ReturnPodToPool(podID, summary, len(podState.CompletedTasks), podState.ResourceUsage.TokensUsed, tags)
	}
	wo.ActivePods = map[string]struct{}{}
}

func taskDescriptionsFor(wo *tbworder.WorkOrder, taskIDs []string) []string {
	ids := map[string]struct{}{}
	for _, id := range taskIDs {
		ids[id] = struct{}{}
	}
	var out []string
	if wo.Plan == nil {
		return out
	}
	for _, phase := range wo.Plan.Phases {
		for _, t := range phase.Tasks {
			if _, ok := ids[t.ID]; ok {
				out = append(out, t.Description)
			}
		}
	}
	return out
}

// inferRoleForTask picks a default pod role for a task with no assignment
// yet. Role inference beyond this heuristic (e.g. from phase metadata) is
// left to the caller of Execute via pre-assigning Task.AssignedPod.
func inferRoleForTask(task *tbworder.Task) tbworder.PodRole {
	tags := podpool.InferSpecializations([]string{task.Description, task.Name})
	for _, tag := range tags {
		switch tag {
		case "ui-implementation":
			return tbworder.PodRoleFrontend
		case "api-design", "data-modeling", "security":
			return tbworder.PodRoleBackend
		case "testing":
			return tbworder.PodRoleQA
		}
	}
	return tbworder.PodRoleGeneralist
}

// consumeBudget debits elapsed wall-clock time from the WorkOrder's total
// and per-phase budgets, keeping invariant 2 (Elapsed+Remaining==Total)
// exact rather than clipping Remaining independently.
func consumeBudget(wo *tbworder.WorkOrder, phase *tbworder.Phase, elapsed time.Duration) {
	minutes := elapsed.Minutes()
	tb := &wo.TimeBudget
	tb.ElapsedMinutes += minutes
	if tb.ElapsedMinutes > tb.TotalMinutes {
		tb.ElapsedMinutes = tb.TotalMinutes
	}
	tb.RemainingMinutes = tb.TotalMinutes - tb.ElapsedMinutes
	if tb.PerPhase == nil {
		tb.PerPhase = map[string]float64{}
	}
	tb.PerPhase[phase.ID] += minutes
}

// recalcProgress derives WorkOrder.Progress and each Phase.Progress from
// completed/failed task counts.
func recalcProgress(wo *tbworder.WorkOrder) {
	if wo.Plan == nil {
		return
	}
	totalAll, doneAll := 0, 0
	for _, phase := range wo.Plan.Phases {
		total, done := 0, 0
		for _, t := range phase.Tasks {
			total++
			if t.Status == tbworder.TaskStatusComplete || t.Status == tbworder.TaskStatusFailed {
				done++
			}
		}
		if total > 0 {
			phase.Progress = done * 100 / total
		} else {
			phase.Progress = 100
		}
		totalAll += total
		doneAll += done
	}
	if totalAll > 0 {
		wo.Progress = doneAll * 100 / totalAll
	} else {
		wo.Progress = 100
	}
}
