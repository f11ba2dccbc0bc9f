// Package checkpoint implements the Checkpoint Controller (C7, §4.5): it
// blocks phase transitions between phases when authority is below
// autonomous, auto-resolving on a 30-minute timeout. Grounded on the
// teacher's pkg/queue/worker.go poll-based session-claiming loop —
// adapted from "poll the DB for a claimable row" to "poll a Checkpoint's
// Decision field for an externally-written value", per the spec's note
// that polls may be implemented with channels/condvars as long as the
// wake-within-2s contract holds.
package checkpoint

import (
	"context"
	"log/slog"
	"time"

	"github.com/tbwo/engine/pkg/clock"
	"github.com/tbwo/engine/pkg/tbworder"
)

// PollInterval is how often the controller checks for an external decision
// (§4.5, §9: "wake within ≤2s of the external mutation").
const PollInterval = 2 * time.Second

// Timeout is how long the controller waits before auto-continuing (§4.5).
const Timeout = 30 * time.Minute

// Outcome is the transition the Execution Engine should apply after a
// checkpoint resolves.
type Outcome struct {
	NewStatus tbworder.WorkOrderStatus // StatusExecuting, StatusPaused, or StatusCancelled
	Decision  tbworder.CheckpointDecision
}

// Controller resolves one Checkpoint for a given WorkOrder.
type Controller struct {
	WorkOrder *tbworder.WorkOrder
	Clock     clock.Clock
	log       *slog.Logger
}

// New builds a Controller bound to a single WorkOrder and clock.
func New(wo *tbworder.WorkOrder, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Controller{WorkOrder: wo, Clock: clk, log: slog.With("component", "checkpoint", "work_order_id", wo.ID)}
}

// Resolve implements §4.5: auto-continue under autonomous authority;
// otherwise mark the checkpoint reached and poll its Decision field every
// PollInterval, honoring ctx cancellation, until a decision is written or
// Timeout elapses (at which point it auto-continues with
// decidedBy="system-timeout").
func (c *Controller) Resolve(ctx context.Context, cp *tbworder.Checkpoint) Outcome {
	now := c.Clock.Now()

	if c.WorkOrder.Authority == tbworder.AuthorityAutonomous {
		decision := tbworder.CheckpointDecision{Action: tbworder.ActionContinue, DecidedBy: "autonomous-authority", Timestamp: now}
		cp.Status = tbworder.CheckpointApproved
		cp.DecidedAt = &now
		cp.Decision = &decision
		return Outcome{NewStatus: tbworder.StatusExecuting, Decision: decision}
	}

	cp.Status = tbworder.CheckpointReached
	cp.ReachedAt = &now

	deadline := c.Clock.Now().Add(Timeout)
	ticker := c.Clock.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if cp.Decision != nil {
			return c.applyDecision(cp)
		}

		select {
		case <-ctx.Done():
			decision := tbworder.CheckpointDecision{Action: tbworder.ActionPause, DecidedBy: "cancelled", Timestamp: c.Clock.Now()}
			return Outcome{NewStatus: tbworder.StatusCancelled, Decision: decision}
		case t := <-ticker.C():
			if cp.Decision != nil {
				return c.applyDecision(cp)
			}
			if !t.Before(deadline) {
				c.log.Warn("checkpoint timed out; auto-continuing")
				decision := tbworder.CheckpointDecision{Action: tbworder.ActionContinue, DecidedBy: "system-timeout", Timestamp: t}
				cp.Status = tbworder.CheckpointApproved
				cp.DecidedAt = &t
				cp.Decision = &decision
				return Outcome{NewStatus: tbworder.StatusExecuting, Decision: decision}
			}
		}
	}
}

func (c *Controller) applyDecision(cp *tbworder.Checkpoint) Outcome {
	now := c.Clock.Now()
	cp.DecidedAt = &now

	switch cp.Decision.Action {
	case tbworder.ActionContinue, tbworder.ActionContinueWithChanges:
		cp.Status = tbworder.CheckpointApproved
		return Outcome{NewStatus: tbworder.StatusExecuting, Decision: *cp.Decision}
	case tbworder.ActionPause:
		cp.Status = tbworder.CheckpointApproved
		return Outcome{NewStatus: tbworder.StatusPaused, Decision: *cp.Decision}
	case tbworder.ActionCancel:
		cp.Status = tbworder.CheckpointRejected
		return Outcome{NewStatus: tbworder.StatusCancelled, Decision: *cp.Decision}
	default:
		cp.Status = tbworder.CheckpointApproved
		return Outcome{NewStatus: tbworder.StatusExecuting, Decision: *cp.Decision}
	}
}
