package updatestream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/tbworder"
)

func TestSubscribeReceivesInEmissionOrder(t *testing.T) {
	s := New()
	ch, unsub := s.Subscribe("wo-1")
	defer unsub()

	now := time.Now()
	s.EmitEvent("wo-1", tbworder.EventPhaseStart, nil, now)
	s.EmitEvent("wo-1", tbworder.EventTaskStart, nil, now)

	first := <-ch
	second := <-ch
	assert.Equal(t, tbworder.EventPhaseStart, first.Type)
	assert.Equal(t, tbworder.EventTaskStart, second.Type)
}

func TestLateSubscriberMissesPriorEvents(t *testing.T) {
	s := New()
	s.EmitEvent("wo-1", tbworder.EventPhaseStart, nil, time.Now())

	ch, unsub := s.Subscribe("wo-1")
	defer unsub()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event delivered to late subscriber: %+v", ev)
	default:
	}

	// but bounded history still records it for anyone who asks explicitly.
	require.Len(t, s.History("wo-1"), 1)
}

func TestGlobalSubscriberReceivesAllWorkOrders(t *testing.T) {
	s := New()
	ch, unsub := s.Subscribe("*")
	defer unsub()

	s.EmitEvent("wo-1", tbworder.EventPhaseStart, nil, time.Now())
	s.EmitEvent("wo-2", tbworder.EventPhaseStart, nil, time.Now())

	first := <-ch
	second := <-ch
	assert.ElementsMatch(t, []string{"wo-1", "wo-2"}, []string{first.WorkOrderID, second.WorkOrderID})
}

func TestHistoryBoundedAtCap(t *testing.T) {
	s := New()
	for i := 0; i < HistoryCap+10; i++ {
		s.EmitEvent("wo-1", tbworder.EventProgressUpdate, nil, time.Now())
	}
	assert.Len(t, s.History("wo-1"), HistoryCap)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := New()
	ch, unsub := s.Subscribe("wo-1")
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
}
