// Package notify delivers user notifications over SSE and e-mail.
package notify

import (
	"context"
	"errors"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// EventNotification is the SSE event name for notifications.
const EventNotification = "notification"

// SSENotifier pushes notifications to every client on the notifications
// stream.
type SSENotifier struct {
	broadcaster messaging.Broadcaster
}

func NewSSENotifier(b messaging.Broadcaster) *SSENotifier {
	return &SSENotifier{broadcaster: b}
}

func (n *SSENotifier) Notify(_ context.Context, note ports.Notification) error {
	n.broadcaster.Broadcast(messaging.TopicNotifications, EventNotification, note)
	return nil
}

// EmailNotifier mails notifications that carry a recipient and ignores
// the rest.
type EmailNotifier struct {
	service email.Service
	logger  *logging.ChanneledLogger
}

func NewEmailNotifier(service email.Service, logger *logging.ChanneledLogger) *EmailNotifier {
	return &EmailNotifier{service: service, logger: logger}
}

func (n *EmailNotifier) Notify(_ context.Context, note ports.Notification) error {
	if note.Recipient == "" {
		n.logger.Forms().Debug("Notification has no recipient, skipping email", "tag", note.Tag)
		return nil
	}
	return n.service.SendNotification(note.Recipient, note.Title, note.Body)
}

// Multi fans a notification out to several notifiers and joins their errors.
type Multi []ports.Notifier

func (m Multi) Notify(ctx context.Context, note ports.Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
