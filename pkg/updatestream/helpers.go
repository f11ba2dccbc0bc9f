package updatestream

import (
	"time"

	"github.com/tbwo/engine/pkg/tbworder"
)

// EmitEvent is a convenience wrapper for the common case of emitting a
// freshly-timestamped event without constructing tbworder.UpdateEvent by
// hand at every call site in pkg/engine.
func (s *Stream) EmitEvent(workOrderID string, eventType tbworder.UpdateEventType, data map[string]any, now time.Time) tbworder.UpdateEvent {
	return s.Emit(tbworder.UpdateEvent{
		WorkOrderID: workOrderID,
		Type:        eventType,
		Data:        data,
		Timestamp:   now,
	})
}
