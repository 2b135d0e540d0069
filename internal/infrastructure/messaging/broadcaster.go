// Package messaging provides the concrete implementation of the SSE broadcaster.
package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// Topic prefixes used by the application.
const (
	TopicPagePrefix    = "page:"
	TopicNotifications = "notifications"
)

// PageTopic is the stream for one open page.
func PageTopic(pageID string) string { return TopicPagePrefix + pageID }

// SSEBroadcaster fans server-sent events out to the clients of a topic.
type SSEBroadcaster struct {
	topics map[string][]chan string
	mu     sync.Mutex
	logger *logging.ChanneledLogger
}

// NewSSEBroadcaster creates an empty broadcaster.
func NewSSEBroadcaster(logger *logging.ChanneledLogger) *SSEBroadcaster {
	return &SSEBroadcaster{
		topics: make(map[string][]chan string),
		logger: logger,
	}
}

// AddClient registers a new SSE client on topic.
func (b *SSEBroadcaster) AddClient(topic string) chan string {
	ch := make(chan string, 10)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.topics[topic] = append(b.topics[topic], ch)

	b.logger.SSE().Debug("SSE client registered", "topic", topic)
	return ch
}

// RemoveClient removes an SSE client from topic.
func (b *SSEBroadcaster) RemoveClient(ch chan string, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, exists := b.topics[topic]; exists {
		remaining := make([]chan string, 0, len(clients))
		for _, client := range clients {
			if client != ch {
				remaining = append(remaining, client)
			}
		}
		if len(remaining) == 0 {
			delete(b.topics, topic)
		} else {
			b.topics[topic] = remaining
		}
	}
	b.logger.SSE().Debug("SSE client unregistered", "topic", topic)
}

// ConnectionCount returns the number of clients listening on topic.
func (b *SSEBroadcaster) ConnectionCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Broadcast sends one event to every client of topic. Slow clients drop
// the message rather than block the sender.
func (b *SSEBroadcaster) Broadcast(topic, event string, payload any) int {
	defer func() {
		if r := recover(); r != nil {
			b.logger.SSE().Error("Panic recovered in Broadcast", "error", r, "topic", topic)
		}
	}()

	message, err := FormatEvent(event, payload)
	if err != nil {
		b.logger.SSE().Error("Failed to encode SSE payload", "error", err.Error(), "topic", topic, "event", event)
		return 0
	}

	b.logger.SSE().Debug("Broadcasting to topic", "message", strings.ReplaceAll(message, "\n", "\\n"), "topic", topic)

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.topics[topic] {
		select {
		case ch <- message:
			delivered++
		default:
			b.logger.SSE().Warn("SSE channel full, message dropped", "topic", topic)
		}
	}
	return delivered
}

// FormatEvent renders one server-sent event with a JSON data line.
func FormatEvent(event string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data), nil
}
