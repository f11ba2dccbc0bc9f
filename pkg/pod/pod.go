// Package pod implements the Pod (C5, §4.3): a role-specialized execution
// unit that wraps a Model Client session, a tool whitelist, and a pluggable
// output extractor, and executes one task at a time. Grounded on the
// teacher's pkg/agent/agent.go + pkg/agent/base_agent.go (the Agent/
// Controller strategy split: a BaseAgent delegates to a role-specific
// Controller) and pkg/agent/context.go (ExecutionContext).
package pod

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbwo/engine/pkg/bus"
	"github.com/tbwo/engine/pkg/contract"
	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/tbworder"
	"github.com/tbwo/engine/pkg/tooldispatch"
	"github.com/tbwo/engine/pkg/updatestream"
)

// MaxToolLoopIterations bounds the per-task tool-call loop (§4.3 step 5).
const MaxToolLoopIterations = 10

// MaxArtifactContextBytes bounds the total injected artifact context slice
// (§4.3.1).
const MaxArtifactContextBytes = 50 * 1024

// MaxInboxMessagesInjected bounds how many drained inbox messages are
// rendered into the task prompt (§4.3 step 3).
const MaxInboxMessagesInjected = 20

// MaxRecentErrorsInjected bounds the recent-error-summary section of the
// task prompt (§4.3 step 3).
const MaxRecentErrorsInjected = 3

// SystemPromptContext carries the per-work-order dynamic pieces that get
// composed onto a pod's base role prompt at spawn/activation time (§4.1
// step 5: "base role prompt + pool context summary + dynamic objective
// context + quality-tier rules").
type SystemPromptContext struct {
	// PoolContext is the pod pool's accumulated rolling-context summary for
	// this specific pod (podpool.Pool.PromptContext), empty for a freshly
	// created pod with no history.
	PoolContext   string
	Objective     string
	QualityTarget tbworder.QualityTarget
}

// RoleBehavior confines role-specific behavior to three hooks, so Pod
// itself has no per-role branching — mirrors the spec's §9 polymorphism
// design note ("model a Pod as a single structure plus three role
// behaviors... No deep inheritance").
type RoleBehavior interface {
	// SystemPrompt composes the base role prompt for this pod's role with
	// spc's pool-context/objective/quality-tier pieces (§4.1 step 5). Prompt
	// *wording* is out of scope (§1); this returns a composition contract
	// placeholder a real deployment fills in.
	SystemPrompt(spc SystemPromptContext) string
	// SpecializedTools returns the tool schemas this role is allowed or
	// encouraged to use.
	SpecializedTools() []modelclient.ToolDefinition
	// ProcessTaskOutput parses the pod's final text output into zero or
	// more typed artifacts.
	ProcessTaskOutput(task *tbworder.Task, text string) []ArtifactDraft
}

// ArtifactDraft is an unpersisted Artifact a role behavior extracted from a
// task's output text; the engine assigns id/version/timestamps.
type ArtifactDraft struct {
	Name        string
	Type        tbworder.ArtifactType
	Description string
	Content     string
	Path        string
}

// ClarificationRequester is the narrow interface Pod needs from the
// Pause/Clarification Broker (C8) — defined here, at point of use, so this
// package never imports pkg/pause directly and stays free of any cycle risk
// as the broker grows (mirrors the teacher's pattern of interfaces declared
// beside their consumer in pkg/agent/context.go).
type ClarificationRequester interface {
	RequestClarification(ctx context.Context, workOrderID, reason, question, clarContext string, options []string) (string, error)
}

// Deps bundles a Pod's collaborators, mirroring the teacher's
// agent.ServiceBundle.
type Deps struct {
	Model         modelclient.Client
	Tools         tooldispatch.Dispatcher
	Contracts     *contract.Service
	Bus           *bus.Bus
	Updates       *updatestream.Stream
	Clarification ClarificationRequester
}

// TaskExecutionInput is everything ExecuteTask needs beyond the pod's own
// persisted state.
type TaskExecutionInput struct {
	WorkOrderID        string
	ContractID         string
	Task               *tbworder.Task
	Objective          string
	QualityTarget      tbworder.QualityTarget
	TimeRemainingMin   float64
	ArtifactContext    []tbworder.Artifact // candidate context-slice source, newest-first input order
	RecentErrors       []string
	// PoolContext is threaded straight into SystemPromptContext.PoolContext.
	PoolContext string
}

// TaskExecutionResult is ExecuteTask's outcome (§4.3 steps 6-7).
type TaskExecutionResult struct {
	Output          string
	Artifacts       []ArtifactDraft
	TokensUsed      modelclient.UsageChunk
	ToolCallLog     []tooldispatch.Request
	Failed          bool
	FailureErr      error
}

// Pod executes tasks on behalf of a tbworder.Pod, delegating role-specific
// behavior to a RoleBehavior — the BaseAgent/Controller split from the
// teacher, renamed to this domain's vocabulary.
type Pod struct {
	State    *tbworder.Pod
	Behavior RoleBehavior
	Deps     Deps
	log      *slog.Logger
}

// New builds a Pod wrapping the given persisted state and role behavior.
func New(state *tbworder.Pod, behavior RoleBehavior, deps Deps) *Pod {
	return &Pod{
		State:    state,
		Behavior: behavior,
		Deps:     deps,
		log:      slog.With("pod_id", state.ID, "role", state.Role),
	}
}

// ExecuteTask runs the per-task algorithm of §4.3 steps 1-7. It never
// panics on task-level failure: ToolFailure/ModelFailure are recovered
// locally into TaskExecutionResult.Failed, per §7's propagation policy —
// the caller (pkg/engine) tolerates it and continues sibling tasks.
func (p *Pod) ExecuteTask(ctx context.Context, in TaskExecutionInput) TaskExecutionResult {
	now := time.Now()

	p.State.Status = tbworder.PodStatusWorking
	p.State.CurrentTask = in.Task.ID
	p.State.UpdatedAt = now

	validation, err := p.Deps.Contracts.ValidateAction(in.ContractID, contract.Action{Operation: "execute_task"})
	if err != nil || !validation.Allowed {
		return p.recoverFailure(in, fmt.Errorf("%w: %v", tbworder.ErrContractViolation, validation.Violations))
	}

	prompt := p.buildTaskPrompt(in)

	systemPrompt := p.Behavior.SystemPrompt(SystemPromptContext{
		PoolContext:   in.PoolContext,
		Objective:     in.Objective,
		QualityTarget: in.QualityTarget,
	})
	messages := []modelclient.ConversationMessage{
		{Role: modelclient.RoleSystem, Content: systemPrompt},
		{Role: modelclient.RoleUser, Content: prompt},
	}

	result, err := p.runToolLoop(ctx, in, messages)
	if err != nil {
		return p.recoverFailure(in, err)
	}

	artifacts := p.Behavior.ProcessTaskOutput(in.Task, result.Output)
	result.Artifacts = artifacts

	p.State.Health.RecordSuccess()
	p.State.CompletedTasks = append(p.State.CompletedTasks, in.Task.ID)
	p.State.CurrentTask = ""
	p.State.Status = tbworder.PodStatusIdle
	p.State.ResourceUsage.TokensUsed += result.TokensUsed.TotalTokens
	p.State.ResourceUsage.APICalls++
	p.State.UpdatedAt = time.Now()

	if p.Deps.Contracts != nil {
		_ = p.Deps.Contracts.RecordUsage(in.ContractID, result.TokensUsed.TotalTokens, 0)
	}
	if p.Deps.Bus != nil {
		p.Deps.Bus.Send(tbworder.BusMessage{From: p.State.ID, To: "*", Type: tbworder.MsgResult, Priority: tbworder.PriorityNormal, Timestamp: time.Now()})
	}

	return result
}

// recoverFailure implements §7's task-level recovery: mark the task
// failed, update pod health, and return a Failed result rather than
// propagating the error to the caller.
func (p *Pod) recoverFailure(in TaskExecutionInput, cause error) TaskExecutionResult {
	p.log.Warn("task failed, recovering locally", "task_id", in.Task.ID, "error", cause)
	p.State.Health.RecordFailure(cause.Error())
	p.State.CurrentTask = ""
	p.State.Status = tbworder.PodStatusIdle
	p.State.UpdatedAt = time.Now()
	if p.Deps.Bus != nil {
		p.Deps.Bus.Send(tbworder.BusMessage{From: p.State.ID, To: "*", Type: tbworder.MsgError, Priority: tbworder.PriorityHigh, Timestamp: time.Now()})
	}
	return TaskExecutionResult{Failed: true, FailureErr: cause}
}
