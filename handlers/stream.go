package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"pillar-api/events"
	"pillar-api/types"

	"github.com/gin-gonic/gin"
)

// StreamHandler serves the long-lived SSE push channel. One connection per
// open tab; the tab identifies itself with a sessionId query parameter so
// its own writes can be suppressed.
type StreamHandler struct {
	bus *events.Bus
}

func NewStreamHandler(bus *events.Bus) *StreamHandler {
	return &StreamHandler{bus: bus}
}

// Events handles GET /api/events?sessionId=<id>. AuthMiddleware runs first,
// so an unauthenticated request is rejected with 401 before any channel is
// opened. The connection lives until the client drops it; there is no
// server-side timeout. Cleanup is driven entirely by the request context.
func (h *StreamHandler) Events(c *gin.Context) {
	userID := c.GetInt("userId")
	if userID == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(types.ErrorCodeUnauthorized, "Authorization required"))
		return
	}
	sessionID := c.Query("sessionId")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, "streaming unsupported"))
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	// Comment frame first, so clients can tell the stream is live before
	// any real event arrives.
	fmt.Fprint(c.Writer, ": connected\n\n")
	flusher.Flush()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			// Client went away. Deregistering here is what keeps the
			// listener count from leaking.
			return
		case ev := <-sub.Events():
			if !events.ShouldDeliver(ev, userID, sessionID) {
				continue
			}
			b, err := json.Marshal(ev)
			if err != nil {
				slog.Error("sse marshal failed", "entity", ev.Entity, "err", err)
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "event: sync\ndata: %s\n\n", b); err != nil {
				// Disconnected mid-write: a normal close, not an error.
				return
			}
			flusher.Flush()
		}
	}
}
