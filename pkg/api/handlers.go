package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbwo/engine/pkg/tbworder"
)

// CreateWorkOrder handles POST /api/v1/workorders. Grounded on the
// teacher's handlers.go CreateAlert (ShouldBindJSON + sessionMgr.Create).
func (s *Server) CreateWorkOrder(c *gin.Context) {
	var req CreateWorkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	wo := tbworder.NewWorkOrder(uuid.NewString(), req.Objective, req.TotalBudgetMinutes, now)
	if req.Authority != "" {
		wo.Authority = req.Authority
	}
	if req.QualityTarget != "" {
		wo.QualityTarget = req.QualityTarget
	}
	wo.Scope = req.Scope

	if req.Plan != nil {
		wo.Plan = planFromRequest(req.Plan)
		wo.Status = tbworder.StatusAwaitingApproval
	}

	if err := s.store.Create(wo); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateWorkOrderResponse{ID: wo.ID, Status: string(wo.Status)})
}

func planFromRequest(p *PlanRequest) *tbworder.Plan {
	plan := &tbworder.Plan{RequiresApproval: p.RequiresApproval}
	for _, ph := range p.Phases {
		phase := &tbworder.Phase{ID: ph.ID, Name: ph.Name, Order: ph.Order, Description: ph.Description}
		for _, t := range ph.Tasks {
			phase.Tasks = append(phase.Tasks, &tbworder.Task{
				ID: t.ID, Name: t.Name, Description: t.Description, EstimatedDurationMin: t.EstimatedDurationMin,
			})
		}
		plan.Phases = append(plan.Phases, phase)
	}
	return plan
}

// ListWorkOrders handles GET /api/v1/workorders.
func (s *Server) ListWorkOrders(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.List())
}

// GetState handles GET /api/v1/workorders/:id (§6.1 getState).
func (s *Server) GetState(c *gin.Context) {
	wo, err := s.store.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wo)
}

// IsRunning handles GET /api/v1/workorders/:id/running (§6.1 isRunning).
func (s *Server) IsRunning(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.Get(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RunningResponse{Running: s.engine.IsRunning(id)})
}

// Execute handles POST /api/v1/workorders/:id/execute (§6.1 execute). It
// starts execution and returns immediately; pair with GET .../running or
// the update stream to observe completion. engine.Execute itself only
// registers the attempt and runs the plan on its own goroutine, so the
// HTTP request stays short-lived. The run's context is detached from the
// request's cancellation so the execution outlives this handler.
func (s *Server) Execute(c *gin.Context) {
	id := c.Param("id")
	var req ExecuteRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.engine.Execute(context.WithoutCancel(c.Request.Context()), id, req.Resume); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{ID: id, Message: "execution started"})
}

// Pause handles POST /api/v1/workorders/:id/pause (§6.1 pause).
func (s *Server) Pause(c *gin.Context) {
	id := c.Param("id")
	if err := s.engine.Pause(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AcceptedResponse{ID: id, Message: "pause requested"})
}

// Resume handles POST /api/v1/workorders/:id/resume (§6.1 resume).
func (s *Server) Resume(c *gin.Context) {
	id := c.Param("id")
	if err := s.engine.Resume(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AcceptedResponse{ID: id, Message: "resume requested"})
}

// Cancel handles POST /api/v1/workorders/:id/cancel (§6.1 cancel).
func (s *Server) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := s.engine.Cancel(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AcceptedResponse{ID: id, Message: "cancel requested"})
}

// DecideCheckpoint handles POST
// /api/v1/workorders/:id/checkpoints/:checkpointId/decision (§6.4): writes
// a CheckpointDecision onto the matching Checkpoint; the Checkpoint
// Controller polling it picks it up within PollInterval.
func (s *Server) DecideCheckpoint(c *gin.Context) {
	wo, err := s.store.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req CheckpointDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	checkpointID := c.Param("checkpointId")
	var cp *tbworder.Checkpoint
	for _, candidate := range wo.Checkpoints {
		if candidate.ID == checkpointID {
			cp = candidate
			break
		}
	}
	if cp == nil {
		writeError(c, fmt.Errorf("%w: checkpoint %q", tbworder.ErrNotFound, checkpointID))
		return
	}
	if cp.Decision != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "checkpoint already decided"})
		return
	}

	by := req.By
	if by == "" {
		by = "user"
	}
	now := time.Now().UTC()
	cp.Decision = &tbworder.CheckpointDecision{Action: req.Action, Feedback: req.Feedback, DecidedBy: by, Timestamp: now}

	c.JSON(http.StatusOK, AcceptedResponse{ID: checkpointID, Message: "decision recorded"})
}

// AnswerPause handles POST
// /api/v1/workorders/:id/pauses/:pauseId/answer (§6.4): writes a user
// reply onto the matching PauseRequest; the Pause/Clarification Broker's
// poll loop picks it up within PollInterval.
func (s *Server) AnswerPause(c *gin.Context) {
	wo, err := s.store.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req PauseAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pauseID := c.Param("pauseId")
	var pr *tbworder.PauseRequest
	for _, candidate := range wo.PauseRequests {
		if candidate.ID == pauseID {
			pr = candidate
			break
		}
	}
	if pr == nil {
		writeError(c, fmt.Errorf("%w: pause request %q", tbworder.ErrNotFound, pauseID))
		return
	}
	if pr.Status != tbworder.PauseStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "pause request already resolved"})
		return
	}

	pr.UserResponse = req.Answer

	c.JSON(http.StatusOK, AcceptedResponse{ID: pauseID, Message: "answer recorded"})
}
