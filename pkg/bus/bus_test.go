package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/tbworder"
)

func TestSendAndDrainFIFO(t *testing.T) {
	b := New()
	b.Subscribe("pod-1")

	b.Send(tbworder.BusMessage{From: "engine", To: "pod-1", Type: tbworder.MsgTaskAssignment})
	b.Send(tbworder.BusMessage{From: "engine", To: "pod-1", Type: tbworder.MsgStatusUpdate})

	msgs := b.Drain("pod-1", 0)
	require.Len(t, msgs, 2)
	assert.Equal(t, tbworder.MsgTaskAssignment, msgs[0].Type)
	assert.Equal(t, tbworder.MsgStatusUpdate, msgs[1].Type)

	assert.Empty(t, b.Peek("pod-1"))
}

func TestBroadcastReachesCurrentSubscribersOnly(t *testing.T) {
	b := New()
	b.Subscribe("pod-1")

	b.Send(tbworder.BusMessage{From: "engine", To: "*", Type: tbworder.MsgStatusUpdate})

	b.Subscribe("pod-2") // late subscriber

	assert.Len(t, b.Peek("pod-1"), 1)
	assert.Empty(t, b.Peek("pod-2"))
}

func TestInboxOverflowDropsOldestLowPriorityFirst(t *testing.T) {
	b := NewWithCapacity(3)
	b.Subscribe("pod-1")

	b.Send(tbworder.BusMessage{To: "pod-1", Type: tbworder.MsgStatusUpdate, Priority: tbworder.PriorityHigh})
	b.Send(tbworder.BusMessage{To: "pod-1", Type: tbworder.MsgStatusUpdate, Priority: tbworder.PriorityNormal})
	b.Send(tbworder.BusMessage{To: "pod-1", Type: tbworder.MsgStatusUpdate, Priority: tbworder.PriorityLow})
	b.Send(tbworder.BusMessage{To: "pod-1", Type: tbworder.MsgQuestion, Priority: tbworder.PriorityNormal})

	msgs := b.Peek("pod-1")
	require.Len(t, msgs, 3)
	// the oldest non-high-priority message (the first normal one) should
	// have been evicted; the high-priority one is kept
	assert.Equal(t, tbworder.PriorityHigh, msgs[0].Priority)
	assert.Equal(t, tbworder.PriorityLow, msgs[1].Priority)
	assert.Equal(t, tbworder.MsgQuestion, msgs[2].Type)
}

func TestDrainRespectsMax(t *testing.T) {
	b := New()
	b.Subscribe("pod-1")
	b.Send(tbworder.BusMessage{To: "pod-1", Type: tbworder.MsgResult})
	b.Send(tbworder.BusMessage{To: "pod-1", Type: tbworder.MsgError})

	first := b.Drain("pod-1", 1)
	require.Len(t, first, 1)
	assert.Equal(t, tbworder.MsgResult, first[0].Type)

	rest := b.Drain("pod-1", 0)
	require.Len(t, rest, 1)
	assert.Equal(t, tbworder.MsgError, rest[0].Type)
}
