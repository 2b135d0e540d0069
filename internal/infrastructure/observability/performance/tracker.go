package performance

import (
	"sync"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	// SlowThreshold marks an operation as slow and logs it.
	SlowThreshold time.Duration
	// DegradedFailureRatio is the failure share above which the snapshot
	// reports degraded health.
	DegradedFailureRatio float64
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		SlowThreshold:        500 * time.Millisecond,
		DegradedFailureRatio: 0.25,
	}
}

// Tracker aggregates completed markers per operation. Individual markers
// are not retained.
type Tracker struct {
	config  *TrackerConfig
	logger  *logging.ChanneledLogger
	now     func() time.Time
	started time.Time

	mu    sync.Mutex
	stats map[string]*OperationStats
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig, logger *logging.ChanneledLogger) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		config:  config,
		logger:  logger,
		now:     time.Now,
		started: time.Now(),
		stats:   make(map[string]*OperationStats),
	}
}

// StartOperation creates a marker; call Complete when the operation ends.
func (t *Tracker) StartOperation(operation string) *Marker {
	return &Marker{
		Operation: operation,
		StartTime: t.now(),
		Success:   true,
		tracker:   t,
	}
}

func (t *Tracker) record(m *Marker) {
	slow := m.Duration > t.config.SlowThreshold

	t.mu.Lock()
	s, ok := t.stats[m.Operation]
	if !ok {
		s = &OperationStats{}
		t.stats[m.Operation] = s
	}
	s.Count++
	s.TotalTime += m.Duration
	if m.Duration > s.MaxDuration {
		s.MaxDuration = m.Duration
	}
	if !m.Success {
		s.Failures++
	}
	if slow {
		s.SlowCount++
	}
	if m.CacheHit != nil {
		if *m.CacheHit {
			s.CacheHits++
		} else {
			s.CacheMisses++
		}
	}
	t.mu.Unlock()

	if slow && t.logger != nil {
		t.logger.System().Warn("Slow operation", "operation", m.Operation, "duration", m.Duration, "metadata", m.Metadata)
	}
}

// Snapshot copies the current aggregates.
func (t *Tracker) Snapshot() Snapshot {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Since:      t.started,
		Uptime:     now.Sub(t.started),
		Operations: make(map[string]OperationStats, len(t.stats)),
		Health:     HealthUnknown,
	}
	var count, failures int64
	for op, s := range t.stats {
		snap.Operations[op] = *s
		count += s.Count
		failures += s.Failures
	}
	if count > 0 {
		snap.Health = HealthHealthy
		if float64(failures)/float64(count) > t.config.DegradedFailureRatio {
			snap.Health = HealthDegraded
		}
	}
	return snap
}
