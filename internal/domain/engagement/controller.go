package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/clock"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// Presenter is told when the prompt should open on a page.
type Presenter interface {
	Open(pageID string, source TriggerKind)
}

// Page identifies one page instance and the visitor viewing it.
type Page struct {
	ID        string
	VisitorID string
	Path      string
	Category  PageCategory
}

// Controller owns the watchers for a single page instance. It is created
// when the page loads and closed at teardown.
type Controller struct {
	page      Page
	cfg       Config
	clock     clock.Clock
	prompts   *PromptStore
	sessions  *SessionStore
	presenter Presenter
	logger    *logging.ChanneledLogger

	mu              sync.Mutex
	ctx             context.Context
	started         bool
	closed          bool
	loadedAt        time.Time
	watchers        map[TriggerKind]WatcherStatus
	scrollListening bool
	open            bool
	source          TriggerKind
	shownByWatcher  bool
	timers          []clock.Timer
}

// NewController builds a controller; call Start to arm its watchers.
func NewController(page Page, kv ports.KeyValueStore, presenter Presenter, clk clock.Clock, cfg Config, logger *logging.ChanneledLogger) *Controller {
	watchers := make(map[TriggerKind]WatcherStatus, len(WatcherKinds))
	for _, kind := range WatcherKinds {
		watchers[kind] = StatusDisarmed
	}
	return &Controller{
		page:      page,
		cfg:       cfg,
		clock:     clk,
		prompts:   NewPromptStore(kv, page.VisitorID, logger),
		sessions:  NewSessionStore(kv, page.VisitorID, cfg.SessionTimeout, logger),
		presenter: presenter,
		logger:    logger,
		watchers:  watchers,
	}
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

// Start records the page view and arms the watchers. ctx is used for
// persistence calls made from timer callbacks.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx = ctx
	c.loadedAt = c.clock.Now()

	var pending []scheduled

	if delay, ok := c.cfg.timeDelay(c.page.Category); ok {
		c.watchers[TriggerTime] = StatusArmed
		pending = append(pending, scheduled{delay, func() { c.Evaluate(c.ctx, TriggerTime) }})
	}

	c.watchers[TriggerScroll] = StatusArmed
	pending = append(pending, scheduled{c.cfg.ScrollGrace, c.listenForScroll})

	c.watchers[TriggerExitIntent] = StatusArmed
	c.watchers[TriggerPageVisit] = StatusArmed

	_, returning := c.prompts.Load(ctx)
	session := c.sessions.Touch(ctx, c.loadedAt)
	visit, visitNow := c.pageVisitPlan(returning, session)
	pending = append(pending, visit...)
	c.mu.Unlock()

	c.logger.Engagement().Debug("Engagement watchers armed",
		"pageId", c.page.ID,
		"category", c.page.Category.String(),
		"pageViews", session.PageViewCount,
		"returning", returning)

	c.schedule(pending...)
	if visitNow {
		c.Evaluate(ctx, TriggerPageVisit)
	}
}

// pageVisitPlan decides how the page-visit watcher fires: after the
// returning-visitor delay, immediately once the view threshold is reached,
// or not at all.
func (c *Controller) pageVisitPlan(returning bool, session VisitorSession) ([]scheduled, bool) {
	switch {
	case returning && !session.PromptShown:
		return []scheduled{{c.cfg.ReturningVisitorDelay, func() { c.Evaluate(c.ctx, TriggerPageVisit) }}}, false
	case session.PageViewCount >= c.cfg.PageVisitThreshold:
		return nil, true
	}
	return nil, false
}

// schedule registers timers outside the lock; a zero delay may run the
// callback synchronously.
func (c *Controller) schedule(items ...scheduled) {
	for _, item := range items {
		timer := c.clock.AfterFunc(item.delay, item.fn)
		c.mu.Lock()
		if c.closed {
			timer.Stop()
		} else {
			c.timers = append(c.timers, timer)
		}
		c.mu.Unlock()
	}
}

func (c *Controller) listenForScroll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchers[TriggerScroll] == StatusArmed {
		c.scrollListening = true
	}
}

// Evaluate handles a watcher's fire signal. Only the first call per kind
// reaches the gate; later calls are no-ops. A gate rejection still consumes
// the watcher.
func (c *Controller) Evaluate(ctx context.Context, kind TriggerKind) Decision {
	if kind == TriggerManual {
		return c.ManualTrigger(ctx, kind)
	}

	c.mu.Lock()
	if c.closed || c.watchers[kind] != StatusArmed {
		c.mu.Unlock()
		return Suppressed
	}
	c.watchers[kind] = StatusFired
	if kind == TriggerScroll {
		c.scrollListening = false
	}
	decision := c.gate(ctx, kind, true)
	c.mu.Unlock()

	c.finish(kind, decision)
	return decision
}

// ManualTrigger asks for the prompt regardless of watcher status. The
// suppression rules still apply.
func (c *Controller) ManualTrigger(ctx context.Context, kind TriggerKind) Decision {
	if kind == 0 {
		kind = TriggerTime
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Suppressed
	}
	decision := c.gate(ctx, kind, false)
	c.mu.Unlock()

	c.finish(kind, decision)
	return decision
}

// gate must be called with c.mu held.
func (c *Controller) gate(ctx context.Context, kind TriggerKind, fromWatcher bool) Decision {
	log := c.logger.Engagement().With("pageId", c.page.ID, "source", kind.String())

	if c.open {
		log.Debug("Prompt request dropped: already open")
		return Suppressed
	}
	if fromWatcher && c.shownByWatcher {
		log.Debug("Prompt request dropped: already shown on this page")
		return Suppressed
	}

	now := c.clock.Now()
	state, _ := c.prompts.Load(ctx)
	if state.Submitted() {
		log.Debug("Prompt request dropped: visitor already submitted")
		return Suppressed
	}
	if state.InCooldown(now, c.cfg.CooldownWindow) {
		log.Debug("Prompt request dropped: dismissal cooldown", "lastDismissedAt", *state.LastDismissedAt)
		return Suppressed
	}

	state.HasBeenShown = true
	source := kind
	state.LastTriggerSource = &source
	c.prompts.Save(ctx, state)
	c.sessions.MarkPromptShown(ctx, now)

	c.open = true
	c.source = kind
	if fromWatcher {
		c.shownByWatcher = true
	}
	return Fired
}

func (c *Controller) finish(kind TriggerKind, decision Decision) {
	if decision != Fired {
		return
	}
	c.logger.Engagement().Info("Engagement prompt opened", "pageId", c.page.ID, "visitorId", c.page.VisitorID, "source", kind.String())
	if c.presenter != nil {
		c.presenter.Open(c.page.ID, kind)
	}
	if c.cfg.DebugReset {
		c.schedule(scheduled{c.cfg.DebugResetDelay, func() { c.Reset() }})
	}
}

// Scroll feeds the scroll watcher. position and scrollableHeight are in
// the same unit; scrollableHeight excludes the viewport.
func (c *Controller) Scroll(ctx context.Context, position, scrollableHeight float64) Decision {
	c.mu.Lock()
	ready := c.watchers[TriggerScroll] == StatusArmed && c.scrollListening && scrollableHeight > 0
	c.mu.Unlock()
	if !ready || position/scrollableHeight*100 < c.cfg.ScrollThresholdPercent {
		return Suppressed
	}
	return c.Evaluate(ctx, TriggerScroll)
}

// MouseLeave feeds the exit-intent watcher. Events before the dwell delay
// or below the top edge are ignored without consuming the watcher.
func (c *Controller) MouseLeave(ctx context.Context, clientY float64) Decision {
	c.mu.Lock()
	ready := c.watchers[TriggerExitIntent] == StatusArmed &&
		c.started &&
		c.clock.Now().Sub(c.loadedAt) >= c.cfg.ExitIntentDwell
	c.mu.Unlock()
	if !ready || clientY > 0 {
		return Suppressed
	}
	return c.Evaluate(ctx, TriggerExitIntent)
}

// Dismiss records that the visitor closed the prompt.
func (c *Controller) Dismiss(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = false
	now := c.clock.Now()
	state, _ := c.prompts.Load(ctx)
	state.LastDismissedAt = &now
	c.prompts.Save(ctx, state)
	c.logger.Engagement().Info("Engagement prompt dismissed", "pageId", c.page.ID, "visitorId", c.page.VisitorID)
}

// Submit records a prompt submission. It permanently disables the prompt
// for this visitor.
func (c *Controller) Submit(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = false
	state, _ := c.prompts.Load(ctx)
	state.SubmissionCount++
	c.prompts.Save(ctx, state)
	c.logger.Engagement().Info("Engagement prompt submitted", "pageId", c.page.ID, "visitorId", c.page.VisitorID, "submissions", state.SubmissionCount)
}

// Reset re-arms every watcher that has fired and runs the load-time checks
// for the re-armed time and page-visit watchers again. The page view is not
// counted twice. It only works when DebugReset is configured and reports
// whether it did anything.
func (c *Controller) Reset() bool {
	if !c.cfg.DebugReset {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	rearmed := make(map[TriggerKind]bool, len(c.watchers))
	for kind, status := range c.watchers {
		if status == StatusFired {
			c.watchers[kind] = StatusArmed
			rearmed[kind] = true
		}
	}
	c.open = false
	c.shownByWatcher = false
	c.scrollListening = true

	var pending []scheduled
	if delay, ok := c.cfg.timeDelay(c.page.Category); ok && rearmed[TriggerTime] {
		pending = append(pending, scheduled{delay, func() { c.Evaluate(c.ctx, TriggerTime) }})
	}
	visitNow := false
	if rearmed[TriggerPageVisit] {
		_, returning := c.prompts.Load(c.ctx)
		session, _ := c.sessions.Load(c.ctx)
		var visit []scheduled
		visit, visitNow = c.pageVisitPlan(returning, session)
		pending = append(pending, visit...)
	}
	c.mu.Unlock()

	c.logger.Engagement().Debug("Engagement watchers reset", "pageId", c.page.ID, "rearmed", len(rearmed))
	c.schedule(pending...)
	if visitNow {
		c.Evaluate(c.ctx, TriggerPageVisit)
	}
	return true
}

// Close stops pending timers. Further input is ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, timer := range c.timers {
		timer.Stop()
	}
	c.timers = nil
}

// Status returns the watcher status for kind.
func (c *Controller) Status(kind TriggerKind) WatcherStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchers[kind]
}

// IsOpen reports whether the prompt is currently open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// OpenSource reports the trigger that opened the prompt, if it is open.
func (c *Controller) OpenSource() (TriggerKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source, c.open
}

// Page returns the page this controller was built for.
func (c *Controller) Page() Page {
	return c.page
}
