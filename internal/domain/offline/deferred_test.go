package offline

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func endpoint(kind FormKind) string {
	return origin + "/api/v1/forms/" + string(kind)
}

type queueHarness struct {
	kv       *memKV
	net      *fakeNet
	notifier *recordingNotifier
	queue    *DeferredQueue
}

func newQueueHarness() *queueHarness {
	h := &queueHarness{
		kv:       &memKV{data: map[string][]byte{}},
		net:      newFakeNet(),
		notifier: &recordingNotifier{},
	}
	h.queue = NewDeferredQueue(h.kv, h.net, h.notifier, endpoint, logging.NewDiscardLogger())
	return h
}

func TestSubmitOnlineIsNotDeferred(t *testing.T) {
	h := newQueueHarness()

	res, err := h.queue.Submit(context.Background(), FormContact, map[string]string{"name": "Ada"})
	require.NoError(t, err)

	assert.False(t, res.Deferred)
	assert.Equal(t, http.StatusOK, res.Status)
	pending, err := h.queue.Pending(context.Background(), FormContact)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestSubmitClientErrorIsNotDeferred(t *testing.T) {
	h := newQueueHarness()
	h.net.status[endpoint(FormContact)] = http.StatusBadRequest

	res, err := h.queue.Submit(context.Background(), FormContact, map[string]string{})
	require.NoError(t, err)

	assert.False(t, res.Deferred)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Empty(t, h.kv.data)
}

func TestSubmitServerErrorIsDeferred(t *testing.T) {
	h := newQueueHarness()
	h.net.status[endpoint(FormContact)] = http.StatusBadGateway

	res, err := h.queue.Submit(context.Background(), FormContact, map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.Contains(t, h.kv.data, "tinysteps:deferred:contact")
}

func TestDeferredTourRequestIsResentOnSync(t *testing.T) {
	h := newQueueHarness()
	ctx := context.Background()
	h.net.setOffline(true)

	res, err := h.queue.Submit(ctx, FormTourRequest, map[string]string{"preferredDate": "2024-06-01"})
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	res, err = h.queue.Submit(ctx, FormTourRequest, map[string]string{"preferredDate": "2024-06-08"})
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	pending, err := h.queue.Pending(ctx, FormTourRequest)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "2024-06-08", pending.Payload["preferredDate"])

	require.Error(t, h.queue.Sync(ctx, "tour-request"))
	assert.Contains(t, h.kv.data, "tinysteps:deferred:tour-request")
	assert.Empty(t, h.notifier.sent)

	h.net.setOffline(false)
	require.NoError(t, h.queue.Sync(ctx, "tour-request"))

	posts := h.net.postBodies()
	require.Len(t, posts, 1)
	assert.JSONEq(t, `{"preferredDate":"2024-06-08"}`, posts[0])
	assert.NotContains(t, h.kv.data, "tinysteps:deferred:tour-request")

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "Tour request sent", h.notifier.sent[0].Title)
	assert.Equal(t, "Your tour request for 2024-06-08 has been received. We'll confirm your visit shortly.", h.notifier.sent[0].Body)

	require.NoError(t, h.queue.Sync(ctx, "tour-request"))
	assert.Len(t, h.net.postBodies(), 1)
}

func TestSyncRejectedByEndpointKeepsRecord(t *testing.T) {
	h := newQueueHarness()
	ctx := context.Background()
	require.NoError(t, h.queue.Defer(ctx, FormContact, map[string]string{"name": "Ada"}))
	h.net.status[endpoint(FormContact)] = http.StatusInternalServerError

	require.Error(t, h.queue.Sync(ctx, "contact-form"))
	assert.Contains(t, h.kv.data, "tinysteps:deferred:contact")
}

func TestContactConfirmation(t *testing.T) {
	h := newQueueHarness()
	ctx := context.Background()
	require.NoError(t, h.queue.Defer(ctx, FormContact, map[string]string{"name": "Ada", "email": "ada@example.com"}))

	require.NoError(t, h.queue.Sync(ctx, "contact-form"))

	require.Len(t, h.notifier.sent, 1)
	n := h.notifier.sent[0]
	assert.Equal(t, "Message sent", n.Title)
	assert.Equal(t, "Thanks Ada, your message has been delivered. We'll be in touch soon.", n.Body)
	assert.Equal(t, "ada@example.com", n.Recipient)
	assert.Equal(t, "contact-form", n.Tag)
}

func TestSyncMalformedRecordIsRetained(t *testing.T) {
	h := newQueueHarness()
	h.kv.data["tinysteps:deferred:contact"] = []byte("{not json")

	err := h.queue.Sync(context.Background(), "contact-form")
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.Contains(t, h.kv.data, "tinysteps:deferred:contact")
	assert.Empty(t, h.net.postBodies())
}

func TestSyncUnknownTag(t *testing.T) {
	h := newQueueHarness()
	assert.ErrorIs(t, h.queue.Sync(context.Background(), "newsletter"), ErrUnknownTag)
}

func TestSyncWithNothingPending(t *testing.T) {
	h := newQueueHarness()
	require.NoError(t, h.queue.Sync(context.Background(), "contact-form"))
	assert.Zero(t, h.net.callCount())
}
