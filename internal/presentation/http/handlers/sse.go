// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"fmt"
	"io"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

const sseHeartbeat = 25 * time.Second

// streamTopic relays a broadcaster topic to the client until it disconnects.
// replay, when set, is called once the client is registered and its events
// are written first.
func streamTopic(c *gin.Context, broadcaster messaging.Broadcaster, topic string, logger *logging.ChanneledLogger, replay func() []string) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	ch := broadcaster.AddClient(topic)
	defer broadcaster.RemoveClient(ch, topic)

	logger.SSE().Debug("SSE client connected", "topic", topic, "clients", broadcaster.ConnectionCount(topic))

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	if replay != nil {
		for _, message := range replay() {
			fmt.Fprint(c.Writer, message)
		}
	}
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-ch:
			if !ok {
				return false
			}
			fmt.Fprint(w, message)
			return true
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	logger.SSE().Debug("SSE client disconnected", "topic", topic)
}
