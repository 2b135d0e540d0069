// Package services provides application-level orchestration services
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/engagement"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/clock"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/security"
)

var (
	ErrPageNotFound     = errors.New("page not found")
	ErrUnknownEventType = errors.New("unknown event type")
)

// EventPrompt is the SSE event raised when a page should open its prompt.
const EventPrompt = "prompt"

// Page event types accepted by HandleEvent.
const (
	EventScroll     = "scroll"
	EventMouseLeave = "mouseleave"
	EventManual     = "manual"
	EventDismiss    = "dismiss"
	EventSubmit     = "submit"
	EventReset      = "reset"
)

// PageEvent is one input from the browser.
type PageEvent struct {
	Type     string  `json:"type" binding:"required"`
	Position float64 `json:"position"`
	Height   float64 `json:"height"`
	ClientY  float64 `json:"clientY"`
	Kind     string  `json:"kind"`
}

// EventResult is the outcome of a page event.
type EventResult struct {
	Decision string `json:"decision"`
	Open     bool   `json:"open"`
}

// PageInfo describes an opened page. Open is set when a watcher fired
// during the load itself, before any stream could be attached.
type PageInfo struct {
	PageID    string `json:"pageId"`
	VisitorID string `json:"visitorId"`
	Category  string `json:"category"`
	Open      bool   `json:"open"`
	Source    string `json:"source,omitempty"`
}

// PromptMessage is the payload of the prompt SSE event.
type PromptMessage struct {
	PageID string                 `json:"pageId"`
	Source engagement.TriggerKind `json:"source"`
}

type trackedPage struct {
	controller *engagement.Controller
	lastSeen   time.Time
}

// EngagementService owns one controller per open page.
type EngagementService struct {
	kv          ports.KeyValueStore
	clock       clock.Clock
	cfg         engagement.Config
	broadcaster messaging.Broadcaster
	idleTimeout time.Duration
	logger      *logging.ChanneledLogger

	mu    sync.Mutex
	pages map[string]*trackedPage
}

// NewEngagementService creates a new engagement service
func NewEngagementService(kv ports.KeyValueStore, clk clock.Clock, cfg engagement.Config, broadcaster messaging.Broadcaster, idleTimeout time.Duration, logger *logging.ChanneledLogger) *EngagementService {
	return &EngagementService{
		kv:          kv,
		clock:       clk,
		cfg:         cfg,
		broadcaster: broadcaster,
		idleTimeout: idleTimeout,
		logger:      logger,
		pages:       make(map[string]*trackedPage),
	}
}

// Open implements engagement.Presenter by pushing a prompt event to the
// page's stream.
func (s *EngagementService) Open(pageID string, source engagement.TriggerKind) {
	delivered := s.broadcaster.Broadcast(messaging.PageTopic(pageID), EventPrompt, PromptMessage{PageID: pageID, Source: source})
	s.logger.Engagement().Debug("Prompt event pushed", "pageId", pageID, "source", source.String(), "clients", delivered)
}

// OpenPage starts the watchers for a page load. A missing visitor ID is
// replaced by a new one.
func (s *EngagementService) OpenPage(ctx context.Context, visitorID, path string) (*PageInfo, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if visitorID == "" {
		visitorID = security.GenerateULID()
	}

	page := engagement.Page{
		ID:        security.GenerateULID(),
		VisitorID: visitorID,
		Path:      path,
		Category:  s.cfg.Classify(path),
	}
	controller := engagement.NewController(page, s.kv, s, s.clock, s.cfg, s.logger)

	s.mu.Lock()
	s.pages[page.ID] = &trackedPage{controller: controller, lastSeen: s.clock.Now()}
	s.mu.Unlock()

	// Timer callbacks outlive the request.
	controller.Start(context.WithoutCancel(ctx))

	info := &PageInfo{PageID: page.ID, VisitorID: visitorID, Category: page.Category.String()}
	if source, open := controller.OpenSource(); open {
		info.Open = true
		info.Source = source.String()
	}

	s.logger.Engagement().Info("Page opened", "pageId", page.ID, "visitorId", visitorID, "path", path, "category", info.Category, "open", info.Open)
	return info, nil
}

// OpenPrompt returns the prompt currently open on a page, or nil. A stream
// attached after the prompt opened replays it.
func (s *EngagementService) OpenPrompt(pageID string) (*PromptMessage, error) {
	controller, err := s.touch(pageID)
	if err != nil {
		return nil, err
	}
	source, open := controller.OpenSource()
	if !open {
		return nil, nil
	}
	return &PromptMessage{PageID: pageID, Source: source}, nil
}

// HandleEvent routes a browser event to the page's controller.
func (s *EngagementService) HandleEvent(ctx context.Context, pageID string, ev PageEvent) (*EventResult, error) {
	controller, err := s.touch(pageID)
	if err != nil {
		return nil, err
	}

	decision := engagement.Suppressed
	switch ev.Type {
	case EventScroll:
		decision = controller.Scroll(ctx, ev.Position, ev.Height)
	case EventMouseLeave:
		decision = controller.MouseLeave(ctx, ev.ClientY)
	case EventManual:
		kind := engagement.TriggerKind(0)
		if ev.Kind != "" {
			if kind, err = engagement.ParseTriggerKind(ev.Kind); err != nil {
				return nil, err
			}
		}
		decision = controller.ManualTrigger(ctx, kind)
	case EventDismiss:
		controller.Dismiss(ctx)
	case EventSubmit:
		controller.Submit(ctx)
	case EventReset:
		if !controller.Reset() {
			s.logger.Engagement().Debug("Reset ignored: debug reset disabled", "pageId", pageID)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}

	return &EventResult{Decision: decision.String(), Open: controller.IsOpen()}, nil
}

// Status returns the watcher states for a page keyed by kind name.
func (s *EngagementService) Status(pageID string) (map[string]string, bool, error) {
	controller, err := s.touch(pageID)
	if err != nil {
		return nil, false, err
	}
	out := make(map[string]string, len(engagement.WatcherKinds))
	for _, kind := range engagement.WatcherKinds {
		out[kind.String()] = controller.Status(kind).String()
	}
	return out, controller.IsOpen(), nil
}

// ClosePage tears down a page's watchers.
func (s *EngagementService) ClosePage(pageID string) error {
	s.mu.Lock()
	tracked, ok := s.pages[pageID]
	delete(s.pages, pageID)
	s.mu.Unlock()
	if !ok {
		return ErrPageNotFound
	}
	tracked.controller.Close()
	s.logger.Engagement().Debug("Page closed", "pageId", pageID)
	return nil
}

// PageCount returns the number of open pages.
func (s *EngagementService) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// SweepIdle closes pages that have not been seen within the idle timeout.
func (s *EngagementService) SweepIdle() int {
	now := s.clock.Now()

	s.mu.Lock()
	var idle []*trackedPage
	var ids []string
	for id, tracked := range s.pages {
		if now.Sub(tracked.lastSeen) >= s.idleTimeout {
			idle = append(idle, tracked)
			ids = append(ids, id)
			delete(s.pages, id)
		}
	}
	s.mu.Unlock()

	for _, tracked := range idle {
		tracked.controller.Close()
	}
	if len(ids) > 0 {
		sort.Strings(ids)
		s.logger.Engagement().Info("Closed idle pages", "count", len(ids), "pageIds", ids)
	}
	return len(ids)
}

// RunSweeper closes idle pages on every tick until ctx is cancelled.
func (s *EngagementService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Engagement().Info("Idle page sweeper started", "interval", interval, "idleTimeout", s.idleTimeout)
	for {
		select {
		case <-ctx.Done():
			s.logger.Engagement().Info("Idle page sweeper stopping")
			return
		case <-ticker.C:
			s.SweepIdle()
		}
	}
}

// Close tears down every page.
func (s *EngagementService) Close() {
	s.mu.Lock()
	pages := s.pages
	s.pages = make(map[string]*trackedPage)
	s.mu.Unlock()

	for _, tracked := range pages {
		tracked.controller.Close()
	}
}

func (s *EngagementService) touch(pageID string) (*engagement.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracked, ok := s.pages[pageID]
	if !ok {
		return nil, ErrPageNotFound
	}
	tracked.lastSeen = s.clock.Now()
	return tracked.controller, nil
}
