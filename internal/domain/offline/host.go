package offline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// Host owns the serving gateway and swaps in new versions.
type Host struct {
	storage CacheStorage
	client  ports.HTTPClient
	logger  *logging.ChanneledLogger

	deployMu sync.Mutex
	current  atomic.Pointer[Gateway]
}

func NewHost(storage CacheStorage, client ports.HTTPClient, logger *logging.ChanneledLogger) *Host {
	return &Host{storage: storage, client: client, logger: logger}
}

// Current returns the serving gateway, or nil before the first deploy.
func (h *Host) Current() *Gateway {
	return h.current.Load()
}

// Deploy installs and activates m. On failure the previous gateway keeps
// serving. Deploying the active version again is a no-op.
func (h *Host) Deploy(ctx context.Context, m Manifest) error {
	h.deployMu.Lock()
	defer h.deployMu.Unlock()

	old := h.current.Load()
	if old != nil && old.Version() == m.Version && old.State() == StateActive {
		h.logger.Gateway().Debug("Version already active", "version", m.Version)
		return nil
	}

	next, err := NewGateway(m, h.storage, h.client, h.logger)
	if err != nil {
		return err
	}
	if err := next.Install(ctx); err != nil {
		return err
	}

	// The old version must be drained before Activate deletes its cache,
	// or a late background write re-creates it.
	if old != nil {
		old.Supersede()
		old.Wait()
	}
	if err := next.Activate(ctx); err != nil {
		if old != nil {
			old.resume()
			h.logger.Gateway().Warn("Activation failed, previous gateway resumed", "version", old.Version(), "error", err.Error())
		}
		return err
	}

	h.current.Store(next)
	if old != nil {
		h.logger.Gateway().Info("Gateway superseded", "old", old.Version(), "new", next.Version())
	}
	return nil
}

// Wait drains background cache writes on the serving gateway.
func (h *Host) Wait() {
	if g := h.current.Load(); g != nil {
		g.Wait()
	}
}
