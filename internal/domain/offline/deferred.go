package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// DeferredKeyPrefix namespaces deferred submissions in the key/value store.
var DeferredKeyPrefix = []string{"tinysteps", "deferred"}

// EndpointFunc returns the absolute URL a form kind is posted to.
type EndpointFunc func(kind FormKind) string

// SubmitResult reports what happened to a submission.
type SubmitResult struct {
	// Status is the endpoint's response status, zero when the network failed.
	Status   int
	Deferred bool
	Body     []byte
}

// DeferredQueue holds at most one pending submission per form kind and
// replays it when the matching sync tag fires.
type DeferredQueue struct {
	store    ports.KeyValueStore
	client   ports.HTTPClient
	notifier ports.Notifier
	endpoint EndpointFunc
	logger   *logging.ChanneledLogger
}

// NewDeferredQueue wraps store in the deferred-submission namespace.
func NewDeferredQueue(store ports.KeyValueStore, client ports.HTTPClient, notifier ports.Notifier, endpoint EndpointFunc, logger *logging.ChanneledLogger) *DeferredQueue {
	if client == nil {
		client = http.DefaultClient
	}
	if notifier == nil {
		notifier = ports.NopNotifier{}
	}
	return &DeferredQueue{
		store:    ports.NewNamespaced(store, DeferredKeyPrefix...),
		client:   client,
		notifier: notifier,
		endpoint: endpoint,
		logger:   logger,
	}
}

// Submit posts the payload. A network failure or server error stores the
// payload for a later sync instead; client errors are returned as-is.
func (q *DeferredQueue) Submit(ctx context.Context, kind FormKind, payload map[string]string) (SubmitResult, error) {
	if _, err := ParseFormKind(string(kind)); err != nil {
		return SubmitResult{}, err
	}

	status, body, err := q.post(ctx, kind, payload)
	if err == nil && status < http.StatusInternalServerError {
		return SubmitResult{Status: status, Body: body}, nil
	}
	if err == nil {
		err = fmt.Errorf("endpoint returned %d", status)
	}

	q.logger.Gateway().Info("Submission failed, deferring", "formKind", kind, "error", err.Error())
	if derr := q.Defer(ctx, kind, payload); derr != nil {
		return SubmitResult{Status: status}, errors.Join(err, derr)
	}
	return SubmitResult{Status: status, Deferred: true}, nil
}

// Defer stores the payload under its form kind, replacing any earlier one.
func (q *DeferredQueue) Defer(ctx context.Context, kind FormKind, payload map[string]string) error {
	if _, err := ParseFormKind(string(kind)); err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]string{}
	}
	raw, err := json.Marshal(DeferredSubmission{FormKind: kind, Payload: payload})
	if err != nil {
		return err
	}
	if err := q.store.Set(ctx, string(kind), raw); err != nil {
		q.logger.LogError(logging.ChannelGateway, "defer", err, map[string]any{"formKind": kind})
		return err
	}
	q.logger.Gateway().Info("Submission deferred", "formKind", kind, "syncTag", kind.SyncTag())
	return nil
}

// Pending returns the stored submission for kind, or nil.
func (q *DeferredQueue) Pending(ctx context.Context, kind FormKind) (*DeferredSubmission, error) {
	raw, ok, err := q.store.Get(ctx, string(kind))
	if err != nil || !ok {
		return nil, err
	}
	return decodeSubmission(kind, raw)
}

// Sync replays the submission registered under tag. The record is removed
// only after the endpoint accepts it, and a notification is raised then.
// A record that cannot be decoded is left in place.
func (q *DeferredQueue) Sync(ctx context.Context, tag string) error {
	kind, err := FormKindForTag(tag)
	if err != nil {
		return err
	}

	raw, ok, err := q.store.Get(ctx, string(kind))
	if err != nil {
		return fmt.Errorf("load deferred %s: %w", kind, err)
	}
	if !ok {
		q.logger.Gateway().Debug("Nothing to sync", "syncTag", tag)
		return nil
	}

	sub, err := decodeSubmission(kind, raw)
	if err != nil {
		q.logger.LogError(logging.ChannelGateway, "sync", err, map[string]any{"syncTag": tag})
		return err
	}

	start := time.Now()
	status, _, err := q.post(ctx, kind, sub.Payload)
	if err != nil {
		return fmt.Errorf("resend %s: %w", kind, err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("resend %s: endpoint returned %d", kind, status)
	}

	if err := q.store.Delete(ctx, string(kind)); err != nil {
		q.logger.Gateway().Warn("Failed to clear deferred submission", "formKind", kind, "error", err.Error())
	}
	q.logger.Gateway().Info("Deferred submission delivered", "formKind", kind, "duration", time.Since(start))

	if err := q.notifier.Notify(ctx, ConfirmationFor(kind, sub.Payload)); err != nil {
		q.logger.Gateway().Warn("Confirmation notification failed", "formKind", kind, "error", err.Error())
	}
	return nil
}

// ConfirmationFor builds the notification shown after a deferred
// submission is delivered.
func ConfirmationFor(kind FormKind, payload map[string]string) ports.Notification {
	n := ports.Notification{Tag: kind.SyncTag(), Recipient: payload["email"]}
	switch kind {
	case FormTourRequest:
		n.Title = "Tour request sent"
		n.Body = fmt.Sprintf("Your tour request for %s has been received. We'll confirm your visit shortly.", payload["preferredDate"])
	default:
		n.Title = "Message sent"
		n.Body = fmt.Sprintf("Thanks %s, your message has been delivered. We'll be in touch soon.", payload["name"])
	}
	return n
}

func decodeSubmission(kind FormKind, raw []byte) (*DeferredSubmission, error) {
	var sub DeferredSubmission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if sub.FormKind != kind || sub.Payload == nil {
		return nil, fmt.Errorf("%w: record for %q holds %q", ErrMalformedRecord, kind, sub.FormKind)
	}
	return &sub, nil
}

func (q *DeferredQueue) post(ctx context.Context, kind FormKind, payload map[string]string) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint(kind), bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, body, nil
}
