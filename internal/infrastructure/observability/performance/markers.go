// Package performance tracks operation timings and gateway cache
// effectiveness.
package performance

import (
	"time"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation string         `json:"operation"` // e.g. "gateway:fetch", "forms:submit"
	StartTime time.Time      `json:"startTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CacheHit  *bool          `json:"cacheHit,omitempty"`
	Completed bool           `json:"completed"`

	tracker *Tracker
}

// Complete marks the operation as finished and records it with the tracker
func (m *Marker) Complete() {
	if m == nil || m.Completed {
		return
	}
	m.Duration = m.tracker.now().Sub(m.StartTime)
	m.Completed = true
	m.tracker.record(m)
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// SetCacheHit records whether the operation was served from cache.
func (m *Marker) SetCacheHit(hit bool) {
	m.CacheHit = &hit
}

// OperationStats aggregates completed markers for one operation.
type OperationStats struct {
	Count       int64         `json:"count"`
	Failures    int64         `json:"failures"`
	TotalTime   time.Duration `json:"totalTime"`
	MaxDuration time.Duration `json:"maxDuration"`
	SlowCount   int64         `json:"slowCount"`
	CacheHits   int64         `json:"cacheHits"`
	CacheMisses int64         `json:"cacheMisses"`
}

// AverageDuration returns the mean duration.
func (s OperationStats) AverageDuration() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Count)
}

// CacheHitRatio returns the cache hit ratio (0.0 to 1.0)
func (s OperationStats) CacheHitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// HealthStatus represents the overall health of a system component
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthUnknown  HealthStatus = "unknown"
)

// Snapshot is a point-in-time view of every tracked operation.
type Snapshot struct {
	Since      time.Time                 `json:"since"`
	Uptime     time.Duration             `json:"uptime"`
	Operations map[string]OperationStats `json:"operations"`
	Health     HealthStatus              `json:"health"`
}
