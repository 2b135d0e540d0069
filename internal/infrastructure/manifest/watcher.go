package manifest

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/fsnotify/fsnotify"
)

// DeployFunc installs a manifest, normally offline.Host.Deploy.
type DeployFunc func(ctx context.Context, m offline.Manifest) error

// Watcher redeploys the gateway when the manifest file changes version.
// The parent directory is watched so editors that replace the file on save
// are still seen.
type Watcher struct {
	path     string
	base     offline.Manifest
	deploy   DeployFunc
	logger   *logging.ChanneledLogger
	debounce time.Duration

	mu      sync.Mutex
	version string
}

func NewWatcher(path string, base offline.Manifest, current string, deploy DeployFunc, logger *logging.ChanneledLogger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		base:     base,
		deploy:   deploy,
		logger:   logger,
		debounce: 250 * time.Millisecond,
		version:  current,
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Gateway().Info("Watching manifest", "path", w.path)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Gateway().Info("Manifest watcher stopping")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Gateway().Warn("Manifest watcher error", "error", err.Error())

		case <-pending:
			pending = nil
			w.Reload(ctx)
		}
	}
}

// Reload reads the manifest and deploys it when its version differs from
// the last deployed one.
func (w *Watcher) Reload(ctx context.Context) {
	m, err := Load(w.path, w.base)
	if err != nil {
		w.logger.Gateway().Warn("Ignoring invalid manifest", "path", w.path, "error", err.Error())
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if m.Version == w.version {
		w.logger.Gateway().Debug("Manifest version unchanged", "version", m.Version)
		return
	}
	if err := w.deploy(ctx, m); err != nil {
		w.logger.LogError(logging.ChannelGateway, "redeploy", err, map[string]any{"version": m.Version})
		return
	}
	w.version = m.Version
}

// Version returns the last deployed version.
func (w *Watcher) Version() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}
