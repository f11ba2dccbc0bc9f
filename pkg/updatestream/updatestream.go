// Package updatestream implements the Update Stream (C3, §2, §6.3): an
// append-only event log per work order with per-work-order and global
// subscribers, bounded history with FIFO eviction. Grounded directly on
// the teacher's pkg/events/manager.go ConnectionManager — channel
// subscriber sets behind a mutex, snapshot-then-send broadcast to avoid
// holding locks during delivery, late subscribers miss prior history.
package updatestream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tbwo/engine/pkg/tbworder"
)

// HistoryCap is the bounded per-work-order event history (§6.3).
const HistoryCap = 200

// Stream is the append-only, bounded, fan-out event log.
type Stream struct {
	mu sync.Mutex

	history map[string][]tbworder.UpdateEvent // workOrderId -> bounded FIFO

	// subscribers keyed by workOrderId; the special key "*" holds global
	// subscribers that receive every work order's events.
	subscribers map[string]map[string]chan tbworder.UpdateEvent
}

// New constructs an empty Stream.
func New() *Stream {
	return &Stream{
		history:     map[string][]tbworder.UpdateEvent{},
		subscribers: map[string]map[string]chan tbworder.UpdateEvent{},
	}
}

// Subscribe attaches a new listener to a work order's events (or to every
// work order's events, when workOrderID is "*"). The returned channel is
// buffered so a slow consumer cannot block emission; it does not replay
// pre-existing history (§5 ordering guarantee).
func (s *Stream) Subscribe(workOrderID string) (ch <-chan tbworder.UpdateEvent, unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	c := make(chan tbworder.UpdateEvent, HistoryCap)
	if s.subscribers[workOrderID] == nil {
		s.subscribers[workOrderID] = map[string]chan tbworder.UpdateEvent{}
	}
	s.subscribers[workOrderID][token] = c

	return c, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.subscribers[workOrderID]; ok {
			if existing, ok := subs[token]; ok {
				close(existing)
				delete(subs, token)
			}
		}
	}
}

// Emit appends an event to the work order's bounded history and fans it
// out, in emission order, to every subscriber of that work order and to
// every global ("*") subscriber.
func (s *Stream) Emit(event tbworder.UpdateEvent) tbworder.UpdateEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	s.mu.Lock()
	h := append(s.history[event.WorkOrderID], event)
	if len(h) > HistoryCap {
		h = h[len(h)-HistoryCap:]
	}
	s.history[event.WorkOrderID] = h

	// Snapshot subscriber channels before sending so delivery never holds
	// the lock — mirrors the teacher's Broadcast comment on avoiding I/O
	// under lock.
	var targets []chan tbworder.UpdateEvent
	for _, c := range s.subscribers[event.WorkOrderID] {
		targets = append(targets, c)
	}
	for _, c := range s.subscribers["*"] {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		select {
		case c <- event:
		default:
			// Slow consumer: drop rather than block emission (the stream is
			// observability, not a delivery guarantee beyond bounded history).
		}
	}
	return event
}

// History returns a copy of the bounded event history for a work order, in
// emission order.
func (s *Stream) History(workOrderID string) []tbworder.UpdateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tbworder.UpdateEvent(nil), s.history[workOrderID]...)
}
