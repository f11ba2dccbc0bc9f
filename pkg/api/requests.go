package api

import "github.com/tbwo/engine/pkg/tbworder"

// CreateWorkOrderRequest is the HTTP request body for POST /api/v1/workorders.
type CreateWorkOrderRequest struct {
	Objective          string                 `json:"objective" binding:"required"`
	TotalBudgetMinutes float64                `json:"totalBudgetMinutes" binding:"required,gt=0"`
	Authority          tbworder.Authority     `json:"authority,omitempty"`
	QualityTarget      tbworder.QualityTarget `json:"qualityTarget,omitempty"`
	Scope              tbworder.Scope         `json:"scope,omitempty"`
	Plan               *PlanRequest           `json:"plan,omitempty"`
}

// PlanRequest is the execution plan supplied at creation time (§1:
// planning itself is out of this core's scope). A plan with
// requiresApproval=false can be executed directly; with
// requiresApproval=true no approval time is recorded here, so Execute
// refuses it as not approved.
type PlanRequest struct {
	Phases           []PhaseRequest `json:"phases"`
	RequiresApproval bool           `json:"requiresApproval"`
}

// PhaseRequest is one phase in a PlanRequest.
type PhaseRequest struct {
	ID          string        `json:"id" binding:"required"`
	Name        string        `json:"name" binding:"required"`
	Order       int           `json:"order"`
	Description string        `json:"description,omitempty"`
	Tasks       []TaskRequest `json:"tasks"`
}

// TaskRequest is one task in a PhaseRequest.
type TaskRequest struct {
	ID                   string  `json:"id" binding:"required"`
	Name                 string  `json:"name" binding:"required"`
	Description          string  `json:"description,omitempty"`
	EstimatedDurationMin float64 `json:"estimatedDurationMin,omitempty"`
}

// ExecuteRequest is the HTTP request body for POST
// /api/v1/workorders/:id/execute.
type ExecuteRequest struct {
	Resume bool `json:"resume"`
}

// CheckpointDecisionRequest is the HTTP request body for POST
// /api/v1/workorders/:id/checkpoints/:checkpointId/decision.
type CheckpointDecisionRequest struct {
	Action   tbworder.CheckpointAction `json:"action" binding:"required"`
	Feedback string                    `json:"feedback,omitempty"`
	By       string                    `json:"by,omitempty"`
}

// PauseAnswerRequest is the HTTP request body for POST
// /api/v1/workorders/:id/pauses/:pauseId/answer.
type PauseAnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}
