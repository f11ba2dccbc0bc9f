// Package bus implements the Message Bus (C2, §2, §5): in-process typed
// pub/sub between pods with per-recipient bounded inboxes and broadcast.
// Grounded on the teacher's pkg/agent/orchestrator/runner.go (bounded
// buffered-channel delivery to a single consumer) and pkg/events/manager.go
// (a map of per-channel subscriber sets protected by a mutex).
package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tbwo/engine/pkg/tbworder"
)

// Bus delivers BusMessages FIFO per recipient, with bounded inboxes
// (default cap tbworder.InboxCap) that drop the oldest non-high-priority
// message on overflow while preserving high-priority messages (§5).
type Bus struct {
	mu      sync.Mutex
	inboxes map[string][]tbworder.BusMessage // pod id -> FIFO inbox
	cap     int
}

// New constructs a Bus with the default inbox capacity.
func New() *Bus {
	return &Bus{inboxes: map[string][]tbworder.BusMessage{}, cap: tbworder.InboxCap}
}

// NewWithCapacity constructs a Bus with a custom per-recipient inbox cap,
// primarily for tests exercising the overflow/eviction policy.
func NewWithCapacity(cap int) *Bus {
	return &Bus{inboxes: map[string][]tbworder.BusMessage{}, cap: cap}
}

// Subscribe ensures a pod has an (initially empty) inbox, so it can
// receive broadcasts even before its first directed message.
func (b *Bus) Subscribe(podID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inboxes[podID]; !ok {
		b.inboxes[podID] = nil
	}
}

// Send delivers msg to msg.To (a pod id), or to every currently subscribed
// pod if msg.To is "*". Late subscribers miss earlier broadcasts (§5).
// The message id and timestamp are stamped here if unset.
func (b *Bus) Send(msg tbworder.BusMessage) tbworder.BusMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.To == "*" {
		for podID := range b.inboxes {
			b.deliverLocked(podID, msg)
		}
		return msg
	}
	b.deliverLocked(msg.To, msg)
	return msg
}

func (b *Bus) deliverLocked(podID string, msg tbworder.BusMessage) {
	inbox := b.inboxes[podID]
	inbox = append(inbox, msg)
	if len(inbox) > b.cap {
		inbox = evictOldestLowPriority(inbox, b.cap)
	}
	b.inboxes[podID] = inbox
}

// evictOldestLowPriority drops the oldest non-high-priority messages until
// the inbox is back at cap, preserving high-priority messages (§5). If
// every excess message is high-priority, the oldest high-priority ones are
// dropped as a last resort to enforce the cap.
func evictOldestLowPriority(inbox []tbworder.BusMessage, cap int) []tbworder.BusMessage {
	for len(inbox) > cap {
		dropAt := -1
		for i, m := range inbox {
			if m.Priority != tbworder.PriorityHigh {
				dropAt = i
				break
			}
		}
		if dropAt == -1 {
			dropAt = 0
		}
		inbox = append(inbox[:dropAt], inbox[dropAt+1:]...)
	}
	return inbox
}

// Drain removes and returns up to max messages from podID's inbox, FIFO,
// oldest first. max <= 0 drains the entire inbox.
func (b *Bus) Drain(podID string, max int) []tbworder.BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	inbox := b.inboxes[podID]
	if len(inbox) == 0 {
		return nil
	}
	if max <= 0 || max >= len(inbox) {
		b.inboxes[podID] = nil
		return inbox
	}
	out := append([]tbworder.BusMessage(nil), inbox[:max]...)
	b.inboxes[podID] = inbox[max:]
	return out
}

// Peek returns a copy of podID's current inbox without draining it.
func (b *Bus) Peek(podID string) []tbworder.BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tbworder.BusMessage(nil), b.inboxes[podID]...)
}
