package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/tbwo/engine/pkg/tbworder"
)

// writeTimeout bounds how long a single event send may block before the
// connection is considered dead.
const writeTimeout = 5 * time.Second

// Subscribe handles GET /api/v1/workorders/:id/updates (§6.1 subscribe,
// §6.3): upgrades to a WebSocket, replays bounded history, then streams
// live UpdateEvents until the client disconnects. workOrderID "*"
// subscribes to every work order. Grounded on the teacher's
// pkg/api/handler_ws.go (coder/websocket.Accept) and pkg/api/websocket.go's
// hub broadcast-to-connection pattern, adapted from a fan-out hub to a
// direct per-connection subscription since pkg/updatestream already does
// the fan-out bookkeeping in-process.
func (s *Server) Subscribe(c *gin.Context) {
	workOrderID := c.Param("id")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer conn.CloseNow()

	ctx := c.Request.Context()

	for _, event := range s.updates.History(workOrderID) {
		if !s.sendEvent(ctx, conn, event) {
			return
		}
	}

	ch, unsubscribe := s.updates.Subscribe(workOrderID)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "context cancelled")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if !s.sendEvent(ctx, conn, event) {
				return
			}
		}
	}
}

func (s *Server) sendEvent(ctx context.Context, conn *websocket.Conn, event tbworder.UpdateEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error("failed to marshal update event", "error", err)
		return true
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return false
	}
	return true
}
