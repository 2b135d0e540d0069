package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// GatewayStatus reports the serving gateway.
type GatewayStatus struct {
	Version string   `json:"version"`
	State   string   `json:"state"`
	Pending []string `json:"pendingSyncTags"`
}

// GatewayService ties the gateway host to the deferred-submission queue.
type GatewayService struct {
	host   *offline.Host
	queue  *offline.DeferredQueue
	origin *url.URL
	logger *logging.ChanneledLogger
}

func NewGatewayService(host *offline.Host, queue *offline.DeferredQueue, origin *url.URL, logger *logging.ChanneledLogger) *GatewayService {
	return &GatewayService{host: host, queue: queue, origin: origin, logger: logger}
}

func (g *GatewayService) Host() *offline.Host { return g.host }
func (g *GatewayService) Origin() *url.URL { return g.origin }

// Deploy installs m and swaps it in as the serving gateway.
func (g *GatewayService) Deploy(ctx context.Context, m offline.Manifest) error {
	return g.host.Deploy(ctx, m)
}

// Fetch runs an incoming request through the serving gateway. It returns
// offline.ErrNotIntercepted when the caller should forward the request
// itself.
func (g *GatewayService) Fetch(ctx context.Context, r *http.Request) (*offline.Response, error) {
	gw := g.host.Current()
	if gw == nil {
		return nil, offline.ErrNotIntercepted
	}
	return gw.Fetch(ctx, g.originRequest(r))
}

// originRequest maps an incoming server request onto the origin URL so the
// cache keys match the manifest.
func (g *GatewayService) originRequest(r *http.Request) *http.Request {
	out := r.Clone(r.Context())
	target := *g.origin
	target.Path = r.URL.Path
	target.RawPath = r.URL.RawPath
	target.RawQuery = r.URL.RawQuery
	out.URL = &target
	out.Host = target.Host
	out.RequestURI = ""
	return out
}

// Submit sends a form through the deferred queue.
func (g *GatewayService) Submit(ctx context.Context, kind offline.FormKind, payload map[string]string) (offline.SubmitResult, error) {
	return g.queue.Submit(ctx, kind, payload)
}

// Sync handles a background-sync signal for tag.
func (g *GatewayService) Sync(ctx context.Context, tag string) error {
	start := time.Now()
	err := g.queue.Sync(ctx, tag)
	if err != nil && !errors.Is(err, offline.ErrUnknownTag) {
		g.logger.Gateway().Info("Sync attempt failed, will retry", "syncTag", tag, "error", err.Error(), "duration", time.Since(start))
	}
	return err
}

// SyncAll signals every known tag and joins the failures.
func (g *GatewayService) SyncAll(ctx context.Context) error {
	var errs []error
	for _, kind := range offline.FormKinds {
		if err := g.Sync(ctx, kind.SyncTag()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind.SyncTag(), err))
		}
	}
	return errors.Join(errs...)
}

// Status reports the serving version and the tags with pending records.
func (g *GatewayService) Status(ctx context.Context) GatewayStatus {
	status := GatewayStatus{State: offline.StateIdle.String(), Pending: []string{}}
	if gw := g.host.Current(); gw != nil {
		status.Version = gw.Version()
		status.State = gw.State().String()
	}
	for _, kind := range offline.FormKinds {
		sub, err := g.queue.Pending(ctx, kind)
		if err != nil && !errors.Is(err, offline.ErrMalformedRecord) {
			g.logger.Gateway().Warn("Failed to read deferred submission", "formKind", kind, "error", err.Error())
			continue
		}
		if sub != nil || errors.Is(err, offline.ErrMalformedRecord) {
			status.Pending = append(status.Pending, kind.SyncTag())
		}
	}
	return status
}
