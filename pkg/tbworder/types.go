// Package tbworder holds the core data model (§3 of the specification):
// WorkOrder and everything it owns by id. Entities are stored in flat,
// id-keyed tables rather than as an owning object graph — back-references
// are ids, never pointers — the way the teacher's pkg/session keeps a flat
// map of Sessions instead of a tree of owning structs.
package tbworder

import "time"

// WorkOrderStatus is the top-level state-machine status (§4.1).
type WorkOrderStatus string

const (
	StatusDraft                 WorkOrderStatus = "draft"
	StatusPlanning              WorkOrderStatus = "planning"
	StatusAwaitingApproval      WorkOrderStatus = "awaiting_approval"
	StatusExecuting             WorkOrderStatus = "executing"
	StatusPaused                WorkOrderStatus = "paused"
	StatusPausedWaitingForUser  WorkOrderStatus = "paused_waiting_for_user"
	StatusCheckpoint            WorkOrderStatus = "checkpoint"
	StatusCompleting            WorkOrderStatus = "completing"
	StatusCompleted             WorkOrderStatus = "completed"
	StatusFailed                WorkOrderStatus = "failed"
	StatusCancelled             WorkOrderStatus = "cancelled"
)

// IsTerminal reports whether a status may never change again (invariant 7).
func (s WorkOrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// QualityTarget is the requested work quality tier.
type QualityTarget string

const (
	QualityDraft      QualityTarget = "draft"
	QualityStandard   QualityTarget = "standard"
	QualityPremium    QualityTarget = "premium"
	QualityAppleLevel QualityTarget = "apple_level"
)

// Authority is the work order's delegation level.
type Authority string

const (
	AuthorityNoAutonomy Authority = "no_autonomy"
	AuthorityGuided     Authority = "guided"
	AuthoritySupervised Authority = "supervised"
	AuthorityAutonomous Authority = "autonomous"
)

// TimeBudget tracks the wall-clock allowance in minutes. Invariant 2:
// Elapsed + Remaining == Total, both >= 0.
type TimeBudget struct {
	TotalMinutes     float64
	ElapsedMinutes   float64
	RemainingMinutes float64
	// PerPhase sub-ledgers elapsed minutes consumed, keyed by phase id.
	PerPhase map[string]float64
}

// Scope is the contract-governing tool/path allow-list snapshot (§4.7).
type Scope struct {
	AllowedTools   []string
	ForbiddenTools []string
	AllowedPaths   []string
	ForbiddenPaths []string
	MaxFileSizeKB  int
	MaxConcurrentPods int
}

// PodStrategyMode is an Open-Question field: retained for forward
// compatibility per spec §9, but not read by the scheduler — grouping is
// always per-group regardless of mode.
type PodStrategyMode string

const (
	PodStrategySequential PodStrategyMode = "sequential"
	PodStrategyParallel   PodStrategyMode = "parallel"
)

// PodStrategy describes how the plan wants pods activated and ordered.
type PodStrategy struct {
	Mode          PodStrategyMode // reserved, unused — see Open Questions in DESIGN.md
	MaxConcurrent int
	PriorityOrder []PodRole
	// Dependencies maps a role to the roles it depends on, serialized as a
	// list of pairs per §6.6 on persistence.
	Dependencies map[PodRole][]PodRole
}

// Plan is the DAG of phases plus the pod strategy that governs a WorkOrder.
type Plan struct {
	Phases           []*Phase
	PodStrategy      PodStrategy
	RequiresApproval bool
	ApprovedAt       *time.Time
}

// ReadyForExecution reports whether approval preconditions are satisfied.
func (p *Plan) ReadyForExecution() bool {
	if p == nil {
		return false
	}
	if p.RequiresApproval && p.ApprovedAt == nil {
		return false
	}
	return true
}

// PhaseStatus is a Phase's lifecycle status.
type PhaseStatus string

const (
	PhaseStatusPending    PhaseStatus = "pending"
	PhaseStatusInProgress PhaseStatus = "in_progress"
	PhaseStatusComplete   PhaseStatus = "complete"
	PhaseStatusFailed     PhaseStatus = "failed"
)

// Phase is a stage of a plan containing tasks that may share dependencies.
type Phase struct {
	ID                  string
	Name                string
	Order               int
	Description         string
	Tasks               []*Task
	DependsOn           map[string]struct{} // phase ids, all with smaller Order
	AssignedPods        map[string]struct{} // pod ids
	Status              PhaseStatus
	Progress            int
	EstimatedDurationMin float64
	CompletedAt         *time.Time
}

// TaskStatus is a Task's lifecycle status.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusComplete   TaskStatus = "complete"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is a single unit of pod work within a Phase.
type Task struct {
	ID                   string
	Name                 string
	Description          string
	Status               TaskStatus
	EstimatedDurationMin float64
	ActualDurationMin    float64
	AssignedPod          string          // pod id, optional
	DependsOn            map[string]struct{} // task ids within the same phase
	Output               string
}

// PodRole enumerates the specialized agent roles.
type PodRole string

const (
	PodRoleFrontend     PodRole = "frontend"
	PodRoleBackend      PodRole = "backend"
	PodRoleQA           PodRole = "qa"
	PodRoleOrchestrator PodRole = "orchestrator"
	PodRoleDesign       PodRole = "design"
	PodRoleGeneralist   PodRole = "generalist"
)

// PodStatus is a Pod's activation status.
type PodStatus string

const (
	PodStatusInitializing PodStatus = "initializing"
	PodStatusIdle         PodStatus = "idle"
	PodStatusWorking      PodStatus = "working"
	PodStatusTerminated   PodStatus = "terminated"
)

// HealthStatus is a Pod's health classification (§4.3).
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthDead     HealthStatus = "dead"
)

// Default consecutive-failure thresholds for health classification.
const (
	HealthWarningThreshold  = 3
	HealthCriticalThreshold = 5
)

// PodHealth tracks a pod's operational health.
type PodHealth struct {
	Status              HealthStatus
	LastHeartbeat       time.Time
	ErrorCount          int
	ConsecutiveFailures int
	Warnings            []string
}

// RecordFailure increments failure counters and reclassifies status.
func (h *PodHealth) RecordFailure(warning string) {
	h.ErrorCount++
	h.ConsecutiveFailures++
	if warning != "" {
		h.Warnings = append(h.Warnings, warning)
	}
	switch {
	case h.ConsecutiveFailures >= HealthCriticalThreshold:
		h.Status = HealthCritical
	case h.ConsecutiveFailures >= HealthWarningThreshold:
		h.Status = HealthWarning
	}
}

// RecordSuccess resets the consecutive-failure streak.
func (h *PodHealth) RecordSuccess() {
	h.ConsecutiveFailures = 0
	if h.Status != HealthDead {
		h.Status = HealthHealthy
	}
}

// ModelConfig is the model session configuration a Pod was built with.
type ModelConfig struct {
	Provider     string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// PodOutput is one recorded output chunk produced by a Pod during a task.
type PodOutput struct {
	TaskID    string
	Text      string
	CreatedAt time.Time
}

// ResourceUsage aggregates a Pod's resource consumption.
type ResourceUsage struct {
	CPUPercent    float64
	MemoryMB      float64
	TokensUsed    int
	APICalls      int
	ExecutionTime time.Duration
}

// BusMessagePriority governs inbox eviction order (§5 back-pressure).
type BusMessagePriority string

const (
	PriorityLow    BusMessagePriority = "low"
	PriorityNormal BusMessagePriority = "normal"
	PriorityHigh   BusMessagePriority = "high"
)

// BusMessage is one message carried on the Message Bus (C2).
type BusMessage struct {
	ID        string
	From      string // pod id or "engine"
	To        string // pod id or "*" for broadcast
	Type      BusMessageType
	Payload   map[string]any
	Priority  BusMessagePriority
	Timestamp time.Time
}

// BusMessageType is the closed set of message kinds pods exchange.
type BusMessageType string

const (
	MsgTaskAssignment      BusMessageType = "task_assignment"
	MsgStatusUpdate        BusMessageType = "status_update"
	MsgQuestion            BusMessageType = "question"
	MsgResult              BusMessageType = "result"
	MsgError               BusMessageType = "error"
	MsgArtifactReady       BusMessageType = "artifact_ready"
	MsgClarificationRequest BusMessageType = "clarification_request"
)

// InboxCap is the default bounded per-pod inbox capacity (§5).
const InboxCap = 200

// Pod is a role-specialized long-lived agent. See pkg/pod for its
// execution behavior; this type is the persisted/shared-state shape.
type Pod struct {
	ID              string
	Role            PodRole
	Name            string
	Status          PodStatus
	Health          PodHealth
	ModelConfig     ModelConfig
	ToolWhitelist   map[string]struct{} // empty == all tools permitted
	MemoryScope     string
	CurrentTask     string // task id, optional
	TaskQueue       []string // task ids, FIFO
	CompletedTasks  []string
	Outputs         []PodOutput
	ResourceUsage   ResourceUsage
	MessageLog      []BusMessage // bounded, most recent InboxCap
	CreatedAt       time.Time
	UpdatedAt       time.Time
	WorkOrderID     string // owning work order while active; empty when pooled
}

// ArtifactType is the closed set of artifact kinds.
type ArtifactType string

const (
	ArtifactCode     ArtifactType = "code"
	ArtifactDocument ArtifactType = "document"
	ArtifactDesign   ArtifactType = "design"
	ArtifactFile     ArtifactType = "file"
	ArtifactData     ArtifactType = "data"
	ArtifactConfig   ArtifactType = "config"
)

// ArtifactStatus is an Artifact's review status.
type ArtifactStatus string

const (
	ArtifactDraft    ArtifactStatus = "draft"
	ArtifactFinal    ArtifactStatus = "final"
	ArtifactReview   ArtifactStatus = "review"
	ArtifactApproved ArtifactStatus = "approved"
	ArtifactRejected ArtifactStatus = "rejected"
)

// Artifact is a produced output attributed to a pod. Several artifacts of
// one WorkOrder may share a path; their versions then increase in the order
// they were recorded (checked by CheckInvariants).
type Artifact struct {
	ID              string
	WorkOrderID     string
	Name            string
	Type            ArtifactType
	Description     string
	Content         string
	Path            string // as given by the draft; empty for non-file artifacts
	CreatedBy       string // pod id
	CreatedAt       time.Time
	Version         int
	Status          ArtifactStatus
	PreviousVersion *int
}

// CheckpointTrigger is the closed set of conditions that create a checkpoint.
type CheckpointTrigger string

const (
	TriggerPhaseComplete CheckpointTrigger = "phase_complete"
)

// CheckpointStatus is a Checkpoint's resolution status.
type CheckpointStatus string

const (
	CheckpointPending  CheckpointStatus = "pending"
	CheckpointReached  CheckpointStatus = "reached"
	CheckpointApproved CheckpointStatus = "approved"
	CheckpointRejected CheckpointStatus = "rejected"
	CheckpointSkipped  CheckpointStatus = "skipped"
)

// CheckpointAction is the decision an authority source can apply.
type CheckpointAction string

const (
	ActionContinue             CheckpointAction = "continue"
	ActionContinueWithChanges  CheckpointAction = "continue_with_changes"
	ActionPause                CheckpointAction = "pause"
	ActionCancel               CheckpointAction = "cancel"
)

// CheckpointDecision records how a Checkpoint was resolved.
type CheckpointDecision struct {
	Action    CheckpointAction
	Feedback  string
	DecidedBy string
	Timestamp time.Time
}

// Checkpoint is a phase-boundary hold awaiting approval (C7).
type Checkpoint struct {
	ID              string
	Name            string
	TriggerCondition CheckpointTrigger
	Status          CheckpointStatus
	ReachedAt       *time.Time
	DecidedAt       *time.Time
	Decision        *CheckpointDecision
}

// PauseRequestStatus is a PauseRequest's resolution status.
type PauseRequestStatus string

const (
	PauseStatusPending  PauseRequestStatus = "pending"
	PauseStatusAnswered PauseRequestStatus = "answered"
	PauseStatusInferred PauseRequestStatus = "inferred"
	PauseStatusSkipped  PauseRequestStatus = "skipped"
)

// PauseRequest is a single-pod suspension awaiting an answer (C8).
type PauseRequest struct {
	ID             string
	Reason         string
	Question       string
	Options        []string // 0-4 entries
	Context        string
	Status         PauseRequestStatus
	UserResponse   string
	InferredValues string
	ContentTag     string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// UpdateEventType is the closed set of Update Stream event kinds (§6.3).
type UpdateEventType string

const (
	EventPhaseStart        UpdateEventType = "phase_start"
	EventPhaseComplete     UpdateEventType = "phase_complete"
	EventTaskStart         UpdateEventType = "task_start"
	EventTaskComplete      UpdateEventType = "task_complete"
	EventTaskFailed        UpdateEventType = "task_failed"
	EventPodMessage        UpdateEventType = "pod_message"
	EventArtifactCreated   UpdateEventType = "artifact_created"
	EventCheckpointReached UpdateEventType = "checkpoint_reached"
	EventProgressUpdate    UpdateEventType = "progress_update"
	EventError             UpdateEventType = "error"
	EventExecutionComplete UpdateEventType = "execution_complete"
)

// UpdateEvent is one entry in the Update Stream's append-only log.
type UpdateEvent struct {
	ID          string
	WorkOrderID string
	Type        UpdateEventType
	Data        map[string]any
	Timestamp   time.Time
}

// ContractStatus is a Contract's lifecycle status.
type ContractStatus string

const (
	ContractDraft     ContractStatus = "draft"
	ContractActive    ContractStatus = "active"
	ContractFulfilled ContractStatus = "fulfilled"
	ContractViolated  ContractStatus = "violated"
)

// UsageLedger accumulates billed consumption against a Contract.
type UsageLedger struct {
	TokensUsed     int
	EstimatedCost  float64
}

// Contract is the immutable scope+budget snapshot governing a WorkOrder.
type Contract struct {
	ID          string
	WorkOrderID string
	CreatedAt   time.Time
	Scope       Scope
	BudgetTokens int
	Deadline    time.Time
	Status      ContractStatus
	Usage       UsageLedger
}

// Receipts is the optional final summary attached to a completed WorkOrder.
// Populated by pkg/receipt; see that package for the section types.
type Receipts struct {
	Executive  ExecutiveSection
	Technical  TechnicalSection
	PauseEvents []PauseEventSummary
	Rollback   RollbackSection
}

// ExecutiveSection is the Receipt's human-facing summary (§4.8).
type ExecutiveSection struct {
	Summary          string
	Accomplishments  []string
	UnfinishedItems  []string
	FilesCreated     int
	TotalLines       int
	TokenTotal       int
	QualityScore     float64
}

// PodReceipt is one pod's contribution summary within a Receipt.
type PodReceipt struct {
	PodID            string
	Role             PodRole
	TasksCompleted   int
	TasksFailed      int
	Tokens           int
	TimeAllocatedMin float64
	TimeUsedMin      float64
	SuccessRate      float64
	Warnings         []string
}

// TechnicalSection is the Receipt's per-pod breakdown (§4.8).
type TechnicalSection struct {
	BuildStatus string // "success" | "partial"
	PodReceipts []PodReceipt
	PerformanceTotals ResourceUsage
}

// PauseEventSummary records one resolved PauseRequest's duration.
type PauseEventSummary struct {
	PauseRequestID string
	Question       string
	Resolution     string
	Duration       time.Duration
}

// RollbackEntry describes how to undo one artifact, in creation order.
type RollbackEntry struct {
	Order    int
	Path     string
	Action   string // "revert" | "delete"
}

// RollbackSection is the Receipt's undo map (§4.8).
type RollbackSection struct {
	Entries      []RollbackEntry
	CanRollback  bool
	Limitations  []string
}

// WorkOrder is the root entity (§3).
type WorkOrder struct {
	ID        string
	Type      string
	Status    WorkOrderStatus
	Objective string

	TimeBudget    TimeBudget
	QualityTarget QualityTarget
	Scope         Scope
	Authority     Authority

	Plan *Plan

	Pods      map[string]*Pod
	ActivePods map[string]struct{} // pod ids

	Artifacts   []*Artifact
	Checkpoints []*Checkpoint
	PauseRequests []*PauseRequest
	ActivePauseID *string

	Progress int

	Receipts *Receipts

	CreatedAt time.Time
	UpdatedAt time.Time

	ExecutionAttemptID *string
}

// NewWorkOrder builds a WorkOrder in its initial draft state.
func NewWorkOrder(id, objective string, totalBudgetMinutes float64, now time.Time) *WorkOrder {
	return &WorkOrder{
		ID:        id,
		Status:    StatusDraft,
		Objective: objective,
		TimeBudget: TimeBudget{
			TotalMinutes:     totalBudgetMinutes,
			RemainingMinutes: totalBudgetMinutes,
			PerPhase:         map[string]float64{},
		},
		QualityTarget: QualityStandard,
		Authority:     AuthorityGuided,
		Pods:          map[string]*Pod{},
		ActivePods:    map[string]struct{}{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CheckInvariants validates the universally-quantified invariants that are
// cheap to check synchronously (§8). Returns the first violation found.
func (w *WorkOrder) CheckInvariants() error {
	tb := w.TimeBudget
	if tb.ElapsedMinutes < 0 || tb.RemainingMinutes < 0 {
		return ErrInternal
	}
	// allow floating point slack
	const eps = 1e-6
	sum := tb.ElapsedMinutes + tb.RemainingMinutes
	if sum < tb.TotalMinutes-eps || sum > tb.TotalMinutes+eps {
		return ErrInternal
	}
	if w.Status == StatusExecuting && w.ExecutionAttemptID == nil {
		return ErrInternal
	}
	if w.Progress < 0 || w.Progress > 100 {
		return ErrInternal
	}
	seen := map[string]int{}
	for _, a := range w.Artifacts {
		if prev, ok := seen[a.Path]; ok && a.Path != "" && prev >= a.Version {
			return ErrInternal
		}
		if a.Path != "" {
			seen[a.Path] = a.Version
		}
	}
	return nil
}
