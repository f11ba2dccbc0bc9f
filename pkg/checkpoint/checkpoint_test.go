package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tbwo/engine/pkg/clock"
	"github.com/tbwo/engine/pkg/tbworder"
)

func TestResolveAutonomousAutoContinues(t *testing.T) {
	wo := &tbworder.WorkOrder{Authority: tbworder.AuthorityAutonomous}
	ctrl := New(wo, clock.NewFake(time.Now()))
	cp := &tbworder.Checkpoint{Status: tbworder.CheckpointPending}

	outcome := ctrl.Resolve(context.Background(), cp)
	assert.Equal(t, tbworder.StatusExecuting, outcome.NewStatus)
	assert.Equal(t, tbworder.CheckpointApproved, cp.Status)
	assert.Equal(t, "autonomous-authority", outcome.Decision.DecidedBy)
}

func TestResolveSupervisedWaitsForExternalDecision(t *testing.T) {
	wo := &tbworder.WorkOrder{Authority: tbworder.AuthoritySupervised}
	fake := clock.NewFake(time.Now())
	ctrl := New(wo, fake)
	cp := &tbworder.Checkpoint{Status: tbworder.CheckpointPending}

	var outcome Outcome
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome = ctrl.Resolve(context.Background(), cp)
	}()

	// give the goroutine a moment to reach the poll loop, then advance past
	// one poll tick before any decision is written.
	time.Sleep(10 * time.Millisecond)
	fake.Advance(PollInterval)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, tbworder.CheckpointReached, cp.Status)

	cp.Decision = &tbworder.CheckpointDecision{Action: tbworder.ActionPause, DecidedBy: "user-1"}
	fake.Advance(PollInterval)

	wg.Wait()
	assert.Equal(t, tbworder.StatusPaused, outcome.NewStatus)
}

func TestResolveTimesOutAndAutoContinues(t *testing.T) {
	wo := &tbworder.WorkOrder{Authority: tbworder.AuthorityGuided}
	fake := clock.NewFake(time.Now())
	ctrl := New(wo, fake)
	cp := &tbworder.Checkpoint{Status: tbworder.CheckpointPending}

	var outcome Outcome
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome = ctrl.Resolve(context.Background(), cp)
	}()

	time.Sleep(10 * time.Millisecond)
	fake.Advance(Timeout + PollInterval)

	wg.Wait()
	assert.Equal(t, tbworder.StatusExecuting, outcome.NewStatus)
	assert.Equal(t, "system-timeout", outcome.Decision.DecidedBy)
}

func TestResolveCancelledContextStopsWaiting(t *testing.T) {
	wo := &tbworder.WorkOrder{Authority: tbworder.AuthorityGuided}
	fake := clock.NewFake(time.Now())
	ctrl := New(wo, fake)
	cp := &tbworder.Checkpoint{Status: tbworder.CheckpointPending}

	ctx, cancel := context.WithCancel(context.Background())
	var outcome Outcome
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome = ctrl.Resolve(ctx, cp)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, tbworder.StatusCancelled, outcome.NewStatus)
}
