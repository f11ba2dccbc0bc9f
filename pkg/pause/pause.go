// Package pause implements the Pause/Clarification Broker (C8, §4.6): a
// single-task suspension triggered by the request_clarification tool,
// auto-resolved under high authority or else answered by a polled human
// reply. Grounded on the same poll-with-cancellation idiom as
// pkg/checkpoint (itself grounded on the teacher's pkg/queue/worker.go),
// plus pkg/agent/llm_client.go's Generate contract for the auxiliary
// decisive-answer model session.
package pause

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tbwo/engine/pkg/clock"
	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/tbworder"
)

// PollInterval is how often the broker checks for a user's reply (§4.6).
const PollInterval = 2 * time.Second

// Timeout is how long the broker waits for a human reply before falling
// back to the auto-answer path (§4.6).
const Timeout = 30 * time.Minute

// Broker resolves clarification requests for one WorkOrder, implementing
// pod.ClarificationRequester.
type Broker struct {
	WorkOrder *tbworder.WorkOrder
	Model     modelclient.Client
	Clock     clock.Clock
	log       *slog.Logger
}

// New builds a Broker bound to a single WorkOrder.
func New(wo *tbworder.WorkOrder, model modelclient.Client, clk clock.Clock) *Broker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Broker{WorkOrder: wo, Model: model, Clock: clk, log: slog.With("component", "pause", "work_order_id", wo.ID)}
}

// RequestClarification implements pod.ClarificationRequester. It records a
// PauseRequest on the WorkOrder, then branches on authority per §4.6.
func (b *Broker) RequestClarification(ctx context.Context, workOrderID, reason, question, clarContext string, options []string) (string, error) {
	now := b.Clock.Now()
	pr := &tbworder.PauseRequest{
		ID:        uuid.NewString(),
		Reason:    reason,
		Question:  question,
		Options:   options,
		Context:   clarContext,
		Status:    tbworder.PauseStatusPending,
		CreatedAt: now,
	}
	b.WorkOrder.PauseRequests = append(b.WorkOrder.PauseRequests, pr)
	activePauseID := pr.ID
	b.WorkOrder.ActivePauseID = &activePauseID

	var answer string
	var err error
	switch b.WorkOrder.Authority {
	case tbworder.AuthorityAutonomous, tbworder.AuthoritySupervised:
		answer, err = b.autoResolve(ctx, pr)
	default:
		answer, err = b.waitForUserReply(ctx, pr)
	}

	resolvedAt := b.Clock.Now()
	pr.ResolvedAt = &resolvedAt
	b.WorkOrder.ActivePauseID = nil

	return answer, err
}

// autoResolve invokes a short, low-temperature auxiliary model session and
// returns its 1-3 sentence answer, tagging the request auto_resolved.
func (b *Broker) autoResolve(ctx context.Context, pr *tbworder.PauseRequest) (string, error) {
	ch, err := b.Model.Generate(ctx, modelclient.GenerateInput{
		SessionID: "clarification-" + pr.ID,
		Messages: []modelclient.ConversationMessage{
			{Role: modelclient.RoleSystem, Content: "Answer decisively in 1-3 sentences."},
			{Role: modelclient.RoleUser, Content: pr.Question},
		},
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		return "", fmt.Errorf("%w: auxiliary clarification session: %v", tbworder.ErrModelFailure, err)
	}

	var answer string
	for chunk := range ch {
		switch c := chunk.(type) {
		case modelclient.TextChunk:
			answer += c.Text
		case modelclient.ErrorChunk:
			return "", fmt.Errorf("%w: %v", tbworder.ErrModelFailure, c.Err)
		}
	}

	pr.Status = tbworder.PauseStatusInferred
	pr.InferredValues = answer
	pr.ContentTag = "auto_resolved"
	return answer, nil
}

// waitForUserReply implements the guided/no_autonomy branch of §4.6. It
// does not post the question anywhere itself; it polls pr.UserResponse every
// PollInterval, honoring cancellation, until an answer appears or Timeout
// elapses — at which point it falls back to the auto-answer path.
func (b *Broker) waitForUserReply(ctx context.Context, pr *tbworder.PauseRequest) (string, error) {
	deadline := b.Clock.Now().Add(Timeout)
	ticker := b.Clock.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if pr.UserResponse != "" {
			pr.Status = tbworder.PauseStatusAnswered
			return pr.UserResponse, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: clarification wait cancelled", tbworder.ErrCancelled)
		case t := <-ticker.C():
			if pr.UserResponse != "" {
				pr.Status = tbworder.PauseStatusAnswered
				return pr.UserResponse, nil
			}
			if !t.Before(deadline) {
				b.log.Warn("clarification timed out; falling back to auto-answer")
				return b.autoResolve(ctx, pr)
			}
		}
	}
}
