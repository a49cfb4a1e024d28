package sse

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoshino/questlog/server/cache"
	"go.uber.org/zap"
)

// Handler streams quest lifecycle events over server-sent events so that
// clients (web frontends, dashboards) can follow assignments and
// completions without polling.
type Handler struct {
	pubsub  cache.PubSub
	channel string
	logger  *zap.Logger
}

// NewHandler creates a new SSE Handler subscribed to the given pub/sub channel.
func NewHandler(pubsub cache.PubSub, channel string, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, channel: channel, logger: logger}
}

// ServeSSE handles GET /events.
func (h *Handler) ServeSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	msgCh, unsub, err := h.pubsub.Subscribe(c.Request.Context(), h.channel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(500)
		return
	}
	defer unsub()

	// Send initial connected event.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: quest\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
