package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/engagement"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/forms"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/caching/responsecache"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/clock"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/kvstore"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newEngagement(t *testing.T) (*EngagementService, *clock.FakeClock, *messaging.SSEBroadcaster) {
	t.Helper()
	clk := clock.Fake(epoch)
	b := messaging.NewSSEBroadcaster(logging.NewDiscardLogger())
	svc := NewEngagementService(kvstore.NewMemoryStore(), clk, engagement.DefaultConfig(), b, 30*time.Minute, logging.NewDiscardLogger())
	t.Cleanup(svc.Close)
	return svc, clk, b
}

func TestEngagementPushesPromptOnTimer(t *testing.T) {
	svc, clk, b := newEngagement(t)

	info, err := svc.OpenPage(context.Background(), "visitor-1", "/")
	require.NoError(t, err)
	assert.Equal(t, "home", info.Category)

	stream := b.AddClient(messaging.PageTopic(info.PageID))
	clk.Advance(15 * time.Second)

	select {
	case msg := <-stream:
		assert.Contains(t, msg, "event: prompt\n")
		assert.Contains(t, msg, `"source":"time"`)
	default:
		t.Fatal("expected a prompt event")
	}

	_, open, err := svc.Status(info.PageID)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestOpenPageReportsPromptOpenedDuringLoad(t *testing.T) {
	svc, _, _ := newEngagement(t)

	for i := 0; i < 2; i++ {
		info, err := svc.OpenPage(context.Background(), "v", "/contact")
		require.NoError(t, err)
		assert.False(t, info.Open)
		assert.Empty(t, info.Source)
		prompt, err := svc.OpenPrompt(info.PageID)
		require.NoError(t, err)
		assert.Nil(t, prompt)
	}

	third, err := svc.OpenPage(context.Background(), "v", "/contact")
	require.NoError(t, err)
	assert.True(t, third.Open)
	assert.Equal(t, "page-visit", third.Source)

	prompt, err := svc.OpenPrompt(third.PageID)
	require.NoError(t, err)
	require.NotNil(t, prompt)
	assert.Equal(t, PromptMessage{PageID: third.PageID, Source: engagement.TriggerPageVisit}, *prompt)

	_, err = svc.HandleEvent(context.Background(), third.PageID, PageEvent{Type: EventDismiss})
	require.NoError(t, err)
	prompt, err = svc.OpenPrompt(third.PageID)
	require.NoError(t, err)
	assert.Nil(t, prompt)

	_, err = svc.OpenPrompt("missing")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestEngagementEvents(t *testing.T) {
	svc, clk, _ := newEngagement(t)
	info, err := svc.OpenPage(context.Background(), "", "/programs")
	require.NoError(t, err)
	assert.NotEmpty(t, info.VisitorID)

	clk.Advance(2 * time.Second)
	res, err := svc.HandleEvent(context.Background(), info.PageID, PageEvent{Type: EventScroll, Position: 600, Height: 1000})
	require.NoError(t, err)
	assert.Equal(t, "fires", res.Decision)
	assert.True(t, res.Open)

	res, err = svc.HandleEvent(context.Background(), info.PageID, PageEvent{Type: EventDismiss})
	require.NoError(t, err)
	assert.False(t, res.Open)

	res, err = svc.HandleEvent(context.Background(), info.PageID, PageEvent{Type: EventManual, Kind: "exit-intent"})
	require.NoError(t, err)
	assert.Equal(t, "suppressed", res.Decision)

	watchers, _, err := svc.Status(info.PageID)
	require.NoError(t, err)
	assert.Equal(t, "fired", watchers["scroll"])
}

func TestEngagementRejectsBadInput(t *testing.T) {
	svc, _, _ := newEngagement(t)

	_, err := svc.HandleEvent(context.Background(), "missing", PageEvent{Type: EventScroll})
	assert.ErrorIs(t, err, ErrPageNotFound)

	info, err := svc.OpenPage(context.Background(), "v", "/")
	require.NoError(t, err)
	_, err = svc.HandleEvent(context.Background(), info.PageID, PageEvent{Type: "wiggle"})
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = svc.OpenPage(context.Background(), "v", "")
	assert.Error(t, err)
}

func TestSweepIdleClosesStalePages(t *testing.T) {
	svc, clk, _ := newEngagement(t)
	stale, err := svc.OpenPage(context.Background(), "v", "/contact")
	require.NoError(t, err)

	clk.Advance(20 * time.Minute)
	fresh, err := svc.OpenPage(context.Background(), "v", "/contact")
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	assert.Equal(t, 1, svc.SweepIdle())
	assert.Equal(t, 1, svc.PageCount())

	assert.ErrorIs(t, svc.ClosePage(stale.PageID), ErrPageNotFound)
	assert.NoError(t, svc.ClosePage(fresh.PageID))
}

type memSubmissions struct {
	stored []*forms.Submission
	err    error
}

func (m *memSubmissions) Store(s *forms.Submission) error {
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, s)
	return nil
}

func (m *memSubmissions) List(kind offline.FormKind, limit int) ([]*forms.Submission, error) {
	return m.stored, nil
}

type fakeMailer struct {
	alerts []string
	err    error
}

func (f *fakeMailer) SendNotification(toEmail, title, body string) error { return f.err }

func (f *fakeMailer) SendSubmissionAlert(toEmail, formKind string, fields map[string]string) error {
	f.alerts = append(f.alerts, toEmail+":"+formKind)
	return f.err
}

func TestFormServiceStoresAndAlerts(t *testing.T) {
	repo := &memSubmissions{}
	mailer := &fakeMailer{err: errors.New("resend down")}
	svc := NewFormService(repo, mailer, "staff@tinysteps.test", logging.NewDiscardLogger())

	sub, err := svc.Submit(offline.FormContact, map[string]string{"name": "Ada", "email": "ada@example.com", "message": "Hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, sub.ID)
	assert.Len(t, repo.stored, 1)
	assert.Equal(t, []string{"staff@tinysteps.test:contact"}, mailer.alerts)
}

func TestFormServiceRejectsInvalid(t *testing.T) {
	repo := &memSubmissions{}
	svc := NewFormService(repo, nil, "", logging.NewDiscardLogger())

	_, err := svc.Submit(offline.FormTourRequest, nil)
	assert.ErrorIs(t, err, forms.ErrValidation)
	assert.Empty(t, repo.stored)
}

func TestAuthService(t *testing.T) {
	hash, err := security.HashPassword("correct horse")
	require.NoError(t, err)
	svc := NewAuthService(hash, "secret", time.Hour, logging.NewDiscardLogger())

	_, err = svc.AuthenticateAdmin("wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := svc.AuthenticateAdmin("correct horse")
	require.NoError(t, err)

	role, err := svc.ValidateAdminToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	_, err = svc.ValidateAdminToken("garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthServiceUnconfigured(t *testing.T) {
	svc := NewAuthService("", "", time.Hour, logging.NewDiscardLogger())
	_, err := svc.AuthenticateAdmin("")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// originNet serves a tiny site and records form posts.
type originNet struct {
	mu      sync.Mutex
	offline bool
	posts   int
}

func (n *originNet) Do(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline {
		return nil, errors.New("dial tcp: connection refused")
	}
	if req.Method == http.MethodPost {
		n.posts++
		return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader("{}")), Header: http.Header{}, Request: req}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("page " + req.URL.Path)), Header: http.Header{}, Request: req}, nil
}

func (n *originNet) setOffline(v bool) {
	n.mu.Lock()
	n.offline = v
	n.mu.Unlock()
}

func newGatewayService(t *testing.T) (*GatewayService, *originNet) {
	t.Helper()
	net := &originNet{}
	origin, _ := url.Parse("https://tinysteps.test")
	logger := logging.NewDiscardLogger()
	host := offline.NewHost(responsecache.NewMemoryStorage(), net, logger)
	queue := offline.NewDeferredQueue(kvstore.NewMemoryStore(), net, nil, func(kind offline.FormKind) string {
		return "https://tinysteps.test/api/v1/forms/" + string(kind)
	}, logger)
	svc := NewGatewayService(host, queue, origin, logger)

	m := offline.Manifest{
		Version:           "tinysteps-v1",
		Origin:            "https://tinysteps.test",
		OfflinePage:       "/offline",
		URLs:              []string{"/", "/offline"},
		CacheablePatterns: offline.DefaultCacheablePatterns,
	}
	require.NoError(t, svc.Deploy(context.Background(), m))
	return svc, net
}

func TestGatewayServiceMapsRequestsToOrigin(t *testing.T) {
	svc, net := newGatewayService(t)
	net.setOffline(true)

	req, err := http.NewRequest(http.MethodGet, "/offline", nil)
	require.NoError(t, err)
	resp, err := svc.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, offline.SourceCache, resp.Source)
	assert.Equal(t, "page /offline", string(resp.Body))
}

func TestGatewayServiceStatusAndSync(t *testing.T) {
	svc, net := newGatewayService(t)
	ctx := context.Background()

	net.setOffline(true)
	res, err := svc.Submit(ctx, offline.FormContact, map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	status := svc.Status(ctx)
	assert.Equal(t, "tinysteps-v1", status.Version)
	assert.Equal(t, "active", status.State)
	assert.Equal(t, []string{"contact-form"}, status.Pending)

	assert.Error(t, svc.SyncAll(ctx))

	net.setOffline(false)
	NewSyncWorker(svc, time.Minute, logging.NewDiscardLogger()).RunOnce(ctx)
	assert.Empty(t, svc.Status(ctx).Pending)
	assert.Equal(t, 1, net.posts)
}
