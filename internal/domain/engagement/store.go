package engagement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

const keyNamespace = "tinysteps"

// PromptStateKey is the persistence key for a visitor's prompt state.
func PromptStateKey(visitorID string) string {
	return keyNamespace + ":prompt-state:" + visitorID
}

// VisitorSessionKey is the persistence key for a visitor's session.
func VisitorSessionKey(visitorID string) string {
	return keyNamespace + ":visitor-session:" + visitorID
}

// PromptStore reads and writes PromptState. It never returns errors: an
// unreadable, corrupt or unwritable record degrades to the zero state.
type PromptStore struct {
	kv     ports.KeyValueStore
	key    string
	logger *logging.ChanneledLogger
}

// NewPromptStore binds a store to one visitor identity.
func NewPromptStore(kv ports.KeyValueStore, visitorID string, logger *logging.ChanneledLogger) *PromptStore {
	return &PromptStore{kv: kv, key: PromptStateKey(visitorID), logger: logger}
}

// Load returns the persisted state and whether a valid record was found.
func (s *PromptStore) Load(ctx context.Context) (PromptState, bool) {
	var state PromptState
	if !readJSON(ctx, s.kv, s.key, &state, s.logger) || !state.valid() {
		return PromptState{}, false
	}
	return state, true
}

// Save persists state, logging and discarding any failure.
func (s *PromptStore) Save(ctx context.Context, state PromptState) {
	writeJSON(ctx, s.kv, s.key, state, s.logger)
}

// SessionStore tracks the visitor's browsing session.
type SessionStore struct {
	kv      ports.KeyValueStore
	key     string
	timeout time.Duration
	logger  *logging.ChanneledLogger
}

// NewSessionStore binds a session store to one visitor identity.
func NewSessionStore(kv ports.KeyValueStore, visitorID string, timeout time.Duration, logger *logging.ChanneledLogger) *SessionStore {
	return &SessionStore{kv: kv, key: VisitorSessionKey(visitorID), timeout: timeout, logger: logger}
}

// Touch records a page view: it starts a new session when none exists, the
// record is unreadable or the old one has expired, and otherwise increments
// the page-view count.
func (s *SessionStore) Touch(ctx context.Context, now time.Time) VisitorSession {
	session, ok := s.Load(ctx)
	if !ok || session.Expired(now, s.timeout) {
		session = VisitorSession{PageViewCount: 1, SessionStartedAt: now}
	} else {
		session.PageViewCount++
	}
	s.Save(ctx, session)
	return session
}

// Load returns the stored session and whether a valid record was found.
func (s *SessionStore) Load(ctx context.Context) (VisitorSession, bool) {
	var session VisitorSession
	if !readJSON(ctx, s.kv, s.key, &session, s.logger) || !session.valid() {
		return VisitorSession{}, false
	}
	return session, true
}

// MarkPromptShown flags the current session as having shown the prompt.
func (s *SessionStore) MarkPromptShown(ctx context.Context, now time.Time) {
	session, ok := s.Load(ctx)
	if !ok || session.Expired(now, s.timeout) {
		session = VisitorSession{PageViewCount: 1, SessionStartedAt: now}
	}
	session.PromptShown = true
	s.Save(ctx, session)
}

// Save persists the session, logging and discarding any failure.
func (s *SessionStore) Save(ctx context.Context, session VisitorSession) {
	writeJSON(ctx, s.kv, s.key, session, s.logger)
}

func readJSON(ctx context.Context, kv ports.KeyValueStore, key string, into any, logger *logging.ChanneledLogger) bool {
	raw, found, err := kv.Get(ctx, key)
	if err != nil {
		logger.Cache().Debug("Persisted state unreadable, using defaults", "key", key, "error", err.Error())
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, into); err != nil {
		logger.Cache().Debug("Persisted state malformed, using defaults", "key", key, "error", err.Error())
		return false
	}
	return true
}

func writeJSON(ctx context.Context, kv ports.KeyValueStore, key string, value any, logger *logging.ChanneledLogger) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Cache().Debug("Failed to encode persisted state", "key", key, "error", err.Error())
		return
	}
	if err := kv.Set(ctx, key, raw); err != nil {
		logger.Cache().Debug("Failed to persist state", "key", key, "error", err.Error())
	}
}
