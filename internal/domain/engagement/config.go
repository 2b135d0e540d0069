package engagement

import (
	"strings"
	"time"
)

// Config holds the watcher thresholds and suppression policy.
type Config struct {
	HomeDelay              time.Duration
	ContentDelay           time.Duration
	ScrollThresholdPercent float64
	ScrollGrace            time.Duration
	ExitIntentDwell        time.Duration
	ReturningVisitorDelay  time.Duration
	PageVisitThreshold     int
	CooldownWindow         time.Duration
	SessionTimeout         time.Duration

	// DebugReset enables Reset and the automatic re-arm after a fire.
	// Never set it in production.
	DebugReset      bool
	DebugResetDelay time.Duration

	HomePath    string
	ContactPath string
}

// DefaultConfig mirrors the pkg/config defaults.
func DefaultConfig() Config {
	return Config{
		HomeDelay:              15 * time.Second,
		ContentDelay:           30 * time.Second,
		ScrollThresholdPercent: 50,
		ScrollGrace:            2 * time.Second,
		ExitIntentDwell:        5 * time.Second,
		ReturningVisitorDelay:  3 * time.Second,
		PageVisitThreshold:     3,
		CooldownWindow:         7 * 24 * time.Hour,
		SessionTimeout:         30 * time.Minute,
		DebugResetDelay:        5 * time.Second,
		HomePath:               "/",
		ContactPath:            "/contact",
	}
}

// Classify maps a request path onto a page category.
func (c Config) Classify(path string) PageCategory {
	clean := normalizePath(path)
	switch {
	case clean == normalizePath(c.HomePath):
		return PageHome
	case clean == normalizePath(c.ContactPath):
		return PageContact
	default:
		return PageContent
	}
}

// timeDelay returns the time watcher delay and whether it arms at all.
func (c Config) timeDelay(category PageCategory) (time.Duration, bool) {
	switch category {
	case PageHome:
		return c.HomeDelay, true
	case PageContact:
		return 0, false
	default:
		return c.ContentDelay, true
	}
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "/"
	}
	return path
}
