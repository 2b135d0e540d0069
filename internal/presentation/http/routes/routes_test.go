package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/application/container"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/clock"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/tinysteps-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://tinysteps.test"

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeOrigin plays the site and its form endpoint.
type fakeOrigin struct {
	mu      sync.Mutex
	offline bool
	posts   []string
}

func (o *fakeOrigin) Do(req *http.Request) (*http.Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.offline {
		return nil, errors.New("dial tcp: network is unreachable")
	}
	if req.Method == http.MethodPost {
		body, _ := io.ReadAll(req.Body)
		o.posts = append(o.posts, req.URL.Path+" "+string(body))
		return respond(req, http.StatusCreated, `{"id":"upstream"}`), nil
	}
	return respond(req, http.StatusOK, "page "+req.URL.Path), nil
}

func (o *fakeOrigin) setOffline(v bool) {
	o.mu.Lock()
	o.offline = v
	o.mu.Unlock()
}

func (o *fakeOrigin) postCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.posts)
}

func respond(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

type fakeMailer struct {
	mu            sync.Mutex
	notifications []string
}

func (m *fakeMailer) SendNotification(toEmail, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, toEmail+"|"+title+"|"+body)
	return nil
}

func (m *fakeMailer) SendSubmissionAlert(toEmail, formKind string, fields map[string]string) error {
	return nil
}

type harness struct {
	router    *gin.Engine
	container *container.Container
	clock     *clock.FakeClock
	origin    *fakeOrigin
	mailer    *fakeMailer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hash, err := security.HashPassword("let-me-in")
	require.NoError(t, err)

	t.Cleanup(config.Load)
	config.OriginURL = testOrigin
	config.FormEndpointURL = testOrigin + "/api/v1/forms"
	config.AdminPasswordHash = hash
	config.JWTSecret = "test-secret"
	config.StaffEmail = ""

	h := &harness{clock: clock.Fake(epoch), origin: &fakeOrigin{}, mailer: &fakeMailer{}}
	h.container, err = container.NewContainer(db, logging.NewDiscardLogger(), container.Options{
		Clock:      h.clock,
		HTTPClient: h.origin,
		Mailer:     h.mailer,
	})
	require.NoError(t, err)
	t.Cleanup(h.container.EngagementService.Close)

	h.router = SetupRoutes(h.container)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range header {
		req.Header[key] = values
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) deploy(t *testing.T) {
	t.Helper()
	m := offline.Manifest{
		Version:           "tinysteps-test",
		Origin:            testOrigin,
		OfflinePage:       "/offline",
		URLs:              []string{"/", "/offline", "/_build/app.css"},
		CacheablePatterns: offline.DefaultCacheablePatterns,
	}
	require.NoError(t, h.container.GatewayService.Deploy(context.Background(), m))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestFormSubmission(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/forms/contact", map[string]string{
		"name": "Ada", "email": "ada@example.com", "message": "Do you have spaces in May?",
	}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, decode(t, w)["id"])

	w = h.do(t, http.MethodPost, "/api/v1/forms/tour-request", map[string]string{"name": "Ada"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "preferredDate")

	w = h.do(t, http.MethodPost, "/api/v1/forms/newsletter", map[string]string{}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFormSubmissionURLEncoded(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/tour-request",
		strings.NewReader("name=Ada&email=ada%40example.com&preferredDate=2026-04-01"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestEngagementPageLifecycle(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/engagement/pages", map[string]string{"visitorId": "v-1", "path": "/programs"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	pageID := decode(t, w)["pageId"].(string)
	base := "/api/v1/engagement/pages/" + pageID

	scroll := map[string]any{"type": "scroll", "position": 800, "height": 1000}
	w = h.do(t, http.MethodPost, base+"/events", scroll, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "suppressed", decode(t, w)["decision"])

	h.clock.Advance(2 * time.Second)
	w = h.do(t, http.MethodPost, base+"/events", scroll, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"decision": "fires", "open": true}, decode(t, w))

	w = h.do(t, http.MethodGet, base, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	watchers := decode(t, w)["watchers"].(map[string]any)
	assert.Equal(t, "fired", watchers["scroll"])
	assert.Equal(t, "armed", watchers["time"])

	w = h.do(t, http.MethodPost, base+"/events", map[string]string{"type": "wiggle"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, base, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, base, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, base+"/events", scroll, nil).Code)
}

func TestEngagementPageRequiresPath(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/v1/engagement/pages", map[string]string{"visitorId": "v-1"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromptStream(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	w := h.do(t, http.MethodPost, "/api/v1/engagement/pages", map[string]string{"visitorId": "v-2", "path": "/"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	pageID := decode(t, w)["pageId"].(string)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/engagement/pages/"+pageID+"/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connection established\n", line)
	_, _ = reader.ReadString('\n')

	h.clock.Advance(15 * time.Second)

	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: prompt\n", event)
	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, data, `"source":"time"`)
	assert.Contains(t, data, pageID)
}

func TestPromptOpenedOnLoadReachesLateStream(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	open := func() map[string]any {
		w := h.do(t, http.MethodPost, "/api/v1/engagement/pages", map[string]string{"visitorId": "v-3", "path": "/contact"}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
		return decode(t, w)
	}
	open()
	assert.Equal(t, false, open()["open"])

	third := open()
	assert.Equal(t, true, third["open"])
	assert.Equal(t, "page-visit", third["source"])
	pageID := third["pageId"].(string)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/engagement/pages/"+pageID+"/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connection established\n", line)
	_, _ = reader.ReadString('\n')

	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: prompt\n", event)
	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, data, `"source":"page-visit"`)
	assert.Contains(t, data, pageID)
}

func TestStreamUnknownPage(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/api/v1/engagement/pages/nope/stream", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminSubmissions(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/forms/contact", map[string]string{
		"name": "Ada", "email": "ada@example.com", "message": "Hello",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/v1/admin/submissions", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/v1/admin/submissions", nil,
		http.Header{"Authorization": []string{"Bearer not-a-token"}}).Code)

	w = h.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": "let-me-in"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["token"].(string)

	w = h.do(t, http.MethodGet, "/api/v1/admin/submissions?kind=contact", nil,
		http.Header{"Authorization": []string{"Bearer " + token}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = h.do(t, http.MethodGet, "/api/v1/admin/submissions?kind=bogus", nil,
		http.Header{"Authorization": []string{"Bearer " + token}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/admin/metrics", nil,
		http.Header{"Authorization": []string{"Bearer " + token}})
	require.Equal(t, http.StatusOK, w.Code)
	ops := decode(t, w)["snapshot"].(map[string]any)["operations"].(map[string]any)
	assert.Contains(t, ops, "forms:submit")
	assert.Contains(t, ops, "auth:login")
}

func TestGatewayServesCacheFirstAndFallsBack(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/gateway/status", nil, nil)
	assert.Equal(t, "idle", decode(t, w)["state"])

	h.deploy(t)
	w = h.do(t, http.MethodGet, "/api/v1/gateway/status", nil, nil)
	status := decode(t, w)
	assert.Equal(t, "active", status["state"])
	assert.Equal(t, "tinysteps-test", status["version"])

	h.origin.setOffline(true)

	w = h.do(t, http.MethodGet, "/_build/app.css", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cache", w.Header().Get("X-Gateway-Source"))

	w = h.do(t, http.MethodGet, "/programs", nil, http.Header{"Sec-Fetch-Mode": []string{"navigate"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "page /offline", w.Body.String())
	assert.Equal(t, "offline-fallback", w.Header().Get("X-Gateway-Source"))

	w = h.do(t, http.MethodGet, "/icons/missing.png", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestGatewayDeferredTourRequest(t *testing.T) {
	h := newHarness(t)
	h.deploy(t)
	h.origin.setOffline(true)

	tour := map[string]string{"name": "Ada", "email": "ada@example.com", "preferredDate": "2026-04-01"}
	w := h.do(t, http.MethodPost, "/gateway/forms/tour-request", tour, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, map[string]any{"deferred": true, "syncTag": "tour-request"}, decode(t, w))

	w = h.do(t, http.MethodGet, "/api/v1/gateway/status", nil, nil)
	assert.Equal(t, []any{"tour-request"}, decode(t, w)["pendingSyncTags"])

	w = h.do(t, http.MethodPost, "/api/v1/gateway/sync/tour-request", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, true, decode(t, w)["retry"])

	h.origin.setOffline(false)
	w = h.do(t, http.MethodPost, "/api/v1/gateway/sync/tour-request", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.origin.postCount())

	require.Len(t, h.mailer.notifications, 1)
	assert.Contains(t, h.mailer.notifications[0], "ada@example.com|")
	assert.Contains(t, h.mailer.notifications[0], "2026-04-01")

	w = h.do(t, http.MethodGet, "/api/v1/gateway/status", nil, nil)
	assert.Empty(t, decode(t, w)["pendingSyncTags"])

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/api/v1/gateway/sync/newsletter", nil, nil).Code)
}

func TestGatewayFormForwardedWhenOnline(t *testing.T) {
	h := newHarness(t)
	h.deploy(t)

	w := h.do(t, http.MethodPost, "/gateway/forms/contact", map[string]string{"name": "Ada"}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"upstream"}`, w.Body.String())
	assert.Equal(t, 1, h.origin.postCount())
}

func TestUninterceptedRequestsAreProxied(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, r.Method+" "+r.URL.Path)
	}))
	defer origin.Close()

	h := newHarness(t)
	config.OriginURL = origin.URL
	c, err := container.NewContainer(h.container.DB, logging.NewDiscardLogger(), container.Options{Clock: h.clock, Mailer: h.mailer})
	require.NoError(t, err)
	defer c.EngagementService.Close()
	router := SetupRoutes(c)

	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GET /about", w.Body.String())

	req = httptest.NewRequest(http.MethodPut, "/anything", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "PUT /anything", w.Body.String())
}
