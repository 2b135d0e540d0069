// Package messaging defines interfaces for real-time communication.
package messaging

// Broadcaster defines the interface for managing SSE client connections and broadcasting messages.
type Broadcaster interface {
	AddClient(topic string) chan string
	RemoveClient(ch chan string, topic string)
	ConnectionCount(topic string) int
	Broadcast(topic, event string, payload any) int
}

var _ Broadcaster = (*SSEBroadcaster)(nil)
