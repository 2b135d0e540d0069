// Package container provides dependency injection for all singleton services
package container

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/AtRiskMedia/tinysteps-go/internal/application/services"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/engagement"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/caching/responsecache"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/clock"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/notify"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/database"
	formstore "github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/forms"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/kvstore"
	"github.com/AtRiskMedia/tinysteps-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application Services
	EngagementService *services.EngagementService
	FormService       *services.FormService
	AuthService       *services.AuthService
	GatewayService    *services.GatewayService
	SyncWorker        *services.SyncWorker

	// Infrastructure Dependencies
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
	DB          *database.DB
	Broadcaster *messaging.SSEBroadcaster
	Mailer      email.Service
	Clock       clock.Clock
	Origin      *url.URL
}

// Options overrides the parts of the container tests need to control.
type Options struct {
	Clock      clock.Clock
	HTTPClient ports.HTTPClient
	Mailer     email.Service
}

// NewContainer creates and wires all singleton services on top of an open
// database.
func NewContainer(db *database.DB, logger *logging.ChanneledLogger, opts Options) (*Container, error) {
	origin, err := url.Parse(config.OriginURL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid ORIGIN_URL %q", config.OriginURL)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.UpstreamTimeout}
	}
	mailer := opts.Mailer
	if mailer == nil {
		mailer, err = email.NewService()
		if errors.Is(err, email.ErrNotConfigured) {
			logger.Startup().Warn("Email disabled: RESEND_API_KEY is not set")
		}
	}

	broadcaster := messaging.NewSSEBroadcaster(logger)
	kv := kvstore.NewSQLStore(db, logger)

	notifiers := notify.Multi{notify.NewSSENotifier(broadcaster)}
	if mailer != nil {
		notifiers = append(notifiers, notify.NewEmailNotifier(mailer, logger))
	}

	host := offline.NewHost(responsecache.NewSQLStorage(db, logger), client, logger)
	queue := offline.NewDeferredQueue(kv, client, notifiers, FormEndpoint(config.FormEndpointURL), logger)
	gatewayService := services.NewGatewayService(host, queue, origin, logger)

	return &Container{
		EngagementService: services.NewEngagementService(kv, clk, EngagementConfig(), broadcaster, config.PageIdleTimeout, logger),
		FormService:       services.NewFormService(formstore.NewSQLSubmissionRepository(db, logger), mailer, config.StaffEmail, logger),
		AuthService:       services.NewAuthService(config.AdminPasswordHash, config.JWTSecret, config.AdminTokenTTL, logger),
		GatewayService:    gatewayService,
		SyncWorker:        services.NewSyncWorker(gatewayService, config.SyncInterval, logger),

		Logger:      logger,
		PerfTracker: performance.NewTracker(performance.DefaultTrackerConfig(), logger),
		DB:          db,
		Broadcaster: broadcaster,
		Mailer:      mailer,
		Clock:       clk,
		Origin:      origin,
	}, nil
}

// EngagementConfig builds the watcher configuration from pkg/config.
func EngagementConfig() engagement.Config {
	return engagement.Config{
		HomeDelay:              config.PromptHomeDelay,
		ContentDelay:           config.PromptContentDelay,
		ScrollThresholdPercent: config.PromptScrollThreshold,
		ScrollGrace:            config.PromptScrollGrace,
		ExitIntentDwell:        config.PromptExitIntentDwell,
		ReturningVisitorDelay:  config.PromptReturningDelay,
		PageVisitThreshold:     config.PromptPageVisitThreshold,
		CooldownWindow:         config.PromptCooldown,
		SessionTimeout:         config.VisitorSessionTimeout,
		DebugReset:             config.PromptDebugReset,
		DebugResetDelay:        config.PromptDebugResetDelay,
		HomePath:               config.HomePath,
		ContactPath:            config.ContactPath,
	}
}

// FormEndpoint posts each form kind to base/<kind>.
func FormEndpoint(base string) offline.EndpointFunc {
	base = strings.TrimRight(base, "/")
	return func(kind offline.FormKind) string {
		return base + "/" + string(kind)
	}
}
