package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"golang.org/x/sync/errgroup"
)

const (
	installConcurrency = 4
	backgroundPutLimit = 10 * time.Second
	maxBufferedBody    = 32 << 20
)

// Gateway is one installed version of the offline cache.
type Gateway struct {
	manifest  Manifest
	origin    *url.URL
	offline   string
	cacheable matcher
	storage   CacheStorage
	client    ports.HTTPClient
	logger    *logging.ChanneledLogger

	mu    sync.RWMutex
	state State

	pending sync.WaitGroup
}

// NewGateway validates the manifest and returns an idle gateway.
func NewGateway(m Manifest, storage CacheStorage, client ports.HTTPClient, logger *logging.ChanneledLogger) (*Gateway, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	origin, _ := parseOrigin(m.Origin)
	offline, err := m.Resolve(m.OfflinePage)
	if err != nil {
		return nil, err
	}
	cacheable, err := compilePatterns(m.CacheablePatterns)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		manifest:  m,
		origin:    origin,
		offline:   offline,
		cacheable: cacheable,
		storage:   storage,
		client:    client,
		logger:    logger,
	}, nil
}

func (g *Gateway) Version() string { return g.manifest.Version }
func (g *Gateway) Manifest() Manifest { return g.manifest }

func (g *Gateway) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Install fetches every manifest URL and stores the responses in the cache
// named after the version. Either every entry is stored or the gateway
// fails and the version cache is removed.
func (g *Gateway) Install(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StateIdle && g.state != StateFailed {
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("cannot install gateway in state %s", state)
	}
	g.state = StateInstalling
	g.mu.Unlock()

	start := time.Now()
	g.logger.Gateway().Info("Installing gateway", "version", g.manifest.Version, "urls", len(g.manifest.URLs))

	responses := make([]*Response, len(g.manifest.URLs))
	keys := make([]string, len(g.manifest.URLs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(installConcurrency)
	for i, ref := range g.manifest.URLs {
		eg.Go(func() error {
			target, err := g.manifest.Resolve(ref)
			if err != nil {
				return err
			}
			resp, err := g.precache(egCtx, target)
			if err != nil {
				return err
			}
			keys[i] = target
			responses[i] = resp
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		g.fail("fetch", err)
		return err
	}

	cache, err := g.storage.Open(ctx, g.manifest.Version)
	if err != nil {
		g.fail("open cache", err)
		return err
	}
	for i, key := range keys {
		if err := cache.Put(ctx, key, responses[i]); err != nil {
			if _, derr := g.storage.Delete(context.WithoutCancel(ctx), g.manifest.Version); derr != nil {
				g.logger.Gateway().Warn("Failed to remove partial cache", "version", g.manifest.Version, "error", derr.Error())
			}
			g.fail("store", err)
			return err
		}
	}

	g.setState(StateInstalled)
	g.logger.Gateway().Info("Gateway installed", "version", g.manifest.Version, "duration", time.Since(start))
	return nil
}

func (g *Gateway) fail(step string, err error) {
	g.setState(StateFailed)
	g.logger.LogError(logging.ChannelGateway, "install", err, map[string]any{
		"version": g.manifest.Version,
		"step":    step,
	})
}

func (g *Gateway) precache(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.roundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("precache %s: %w", target, err)
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("precache %s: unexpected status %d", target, resp.Status)
	}
	return resp, nil
}

// Activate deletes every cache other than the current version and takes
// control of request handling.
func (g *Gateway) Activate(ctx context.Context) error {
	if state := g.State(); state != StateInstalled {
		return fmt.Errorf("%w: state is %s", ErrNotInstalled, state)
	}

	names, err := g.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if name == g.manifest.Version {
			continue
		}
		if _, err := g.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
		g.logger.Gateway().Info("Deleted stale cache", "cache", name, "version", g.manifest.Version)
	}

	g.setState(StateActive)
	g.logger.Gateway().Info("Gateway activated", "version", g.manifest.Version)
	return nil
}

// Supersede marks the gateway as replaced by a newer version. It stops
// intercepting and starts no further cache writes; Wait drains the ones in
// flight.
func (g *Gateway) Supersede() {
	g.setState(StateSuperseded)
}

// resume puts a superseded gateway back into service after its successor
// failed to activate.
func (g *Gateway) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateSuperseded {
		g.state = StateActive
	}
}

// Intercepts reports whether Fetch handles req. Only GET requests with an
// http or https URL are intercepted, and only while the gateway is active.
func (g *Gateway) Intercepts(req *http.Request) bool {
	if g.State() != StateActive {
		return false
	}
	if req.Method != http.MethodGet {
		return false
	}
	return req.URL.Scheme == "http" || req.URL.Scheme == "https"
}

// Fetch serves req cache-first. On a miss the network is tried, and a
// successful same-origin response whose path matches a cacheable pattern is
// stored in the background. If the network fails, navigations get the
// cached offline page and everything else gets an empty 503.
func (g *Gateway) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	if !g.Intercepts(req) {
		return nil, ErrNotIntercepted
	}
	key := req.URL.String()

	cache, err := g.storage.Open(ctx, g.manifest.Version)
	if err != nil {
		g.logger.Cache().Warn("Cache unavailable, using network", "error", err.Error())
		cache = nil
	}

	if cache != nil {
		cached, ok, err := cache.Match(ctx, key)
		if err != nil {
			g.logger.Cache().Warn("Cache lookup failed", "url", key, "error", err.Error())
		} else if ok {
			cached.Source = SourceCache
			g.logger.Cache().Debug("Cache hit", "url", key)
			return cached, nil
		}
	}

	outbound, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	outbound.Header = req.Header.Clone()

	resp, err := g.roundTrip(outbound)
	if err != nil {
		g.logger.Gateway().Info("Network unavailable", "url", key, "error", err.Error())
		return g.fallback(ctx, cache, req), nil
	}
	resp.Source = SourceNetwork

	if cache != nil && g.shouldStore(req.URL, resp) {
		g.storeInBackground(ctx, cache, key, resp.Clone())
	}
	return resp, nil
}

// shouldStore matches the request path, the same URL the entry is keyed
// by, and requires a same-origin 200.
func (g *Gateway) shouldStore(target *url.URL, resp *Response) bool {
	if resp.Status != http.StatusOK || resp.Type != TypeBasic {
		return false
	}
	return g.cacheable.match(target.Path)
}

// storeInBackground is a no-op once the gateway is no longer active, so a
// superseded version cannot write its cache back after it was deleted.
func (g *Gateway) storeInBackground(ctx context.Context, cache Cache, key string, resp *Response) {
	g.mu.RLock()
	if g.state != StateActive {
		g.mu.RUnlock()
		g.logger.Cache().Debug("Skipped cache write on inactive gateway", "url", key, "version", g.manifest.Version)
		return
	}
	g.pending.Add(1)
	g.mu.RUnlock()

	go func() {
		defer g.pending.Done()
		putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundPutLimit)
		defer cancel()
		if err := cache.Put(putCtx, key, resp); err != nil {
			g.logger.Cache().Warn("Background cache write failed", "url", key, "error", err.Error())
			return
		}
		g.logger.Cache().Debug("Cached response", "url", key)
	}()
}

// Wait blocks until every background cache write has finished.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

func (g *Gateway) fallback(ctx context.Context, cache Cache, req *http.Request) *Response {
	if IsNavigation(req) && cache != nil {
		page, ok, err := cache.Match(ctx, g.offline)
		if err != nil {
			g.logger.Cache().Warn("Offline page lookup failed", "error", err.Error())
		}
		if ok {
			page.Source = SourceFallback
			return page
		}
	}
	return Placeholder(req.URL.String())
}

// Placeholder is the synthetic response returned when nothing else is
// available.
func Placeholder(target string) *Response {
	return &Response{
		URL:    target,
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte{},
		Type:   TypeSynthetic,
		Source: SourcePlaceholder,
	}
}

// IsNavigation reports whether req is a top-level document load.
func IsNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	if dest := req.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest == "document"
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func (g *Gateway) roundTrip(req *http.Request) (*Response, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBufferedBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBufferedBody {
		return nil, errors.New("response body too large")
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	typ := TypeCORS
	if final.Scheme == g.origin.Scheme && final.Host == g.origin.Host {
		typ = TypeBasic
	}

	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		URL:      final.String(),
		Status:   resp.StatusCode,
		Header:   header,
		Body:     bytes.Clone(body),
		Type:     typ,
		StoredAt: time.Now().UTC(),
	}, nil
}
