// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/kadunajudiciary/courtsync-go/internal/application/mutation"
	"github.com/kadunajudiciary/courtsync-go/internal/application/polling"
	"github.com/kadunajudiciary/courtsync-go/internal/application/reconcile"
	"github.com/kadunajudiciary/courtsync-go/internal/application/services"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/session"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/persistence"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
	"github.com/kadunajudiciary/courtsync-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies.
type Container struct {
	// Infrastructure
	Logger      *logging.ChanneledLogger
	Session     *session.Session
	Mirror      *persistence.Mirror
	Credentials *services.CredentialStore
	Client      *transport.Client
	Store       *caching.Store
	Channel     *realtime.Channel
	Policy      *reconcile.Policy
	Coordinator *mutation.Coordinator

	// Resource services (stateless singletons)
	SessionService      *services.SessionService
	CaseService         *services.CaseService
	MotionService       *services.MotionService
	OrderService        *services.OrderService
	DocumentService     *services.DocumentService
	NotificationService *services.NotificationService
	ChatService         *services.ChatService
	StaffService        *services.StaffService
	SyncService         *services.SyncService

	Dispatcher *services.EventDispatcher
	Scheduler  *polling.Scheduler
}

// NewContainer creates and wires all singleton services in dependency order.
func NewContainer(logger *logging.ChanneledLogger) (*Container, error) {
	c := &Container{Logger: logger}

	c.Session = session.New()

	mirror, err := persistence.NewMirror(config.MirrorPath, config.AESKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open persistence mirror: %w", err)
	}
	c.Mirror = mirror

	c.Credentials = services.NewCredentialStore(c.Session, c.Mirror, logger)
	c.Client = transport.NewClient(config.APIBaseURL, config.RequestTimeout, c.Credentials, logger)
	c.Store = caching.NewStore(caching.Options{}, logger)
	c.Channel = realtime.NewChannel(config.SocketURL, c.Session.AccessToken, logger)
	c.Policy = reconcile.NewPolicy(logger)
	c.Coordinator = mutation.NewCoordinator(c.Store, logger)

	c.SessionService = services.NewSessionService(c.Session, c.Mirror, c.Client, c.Channel, logger)
	c.CaseService = services.NewCaseService(c.Store, c.Client, c.Mirror, c.Coordinator, c.Policy, c.Channel, logger)
	c.MotionService = services.NewMotionService(c.Store, c.Client, c.Coordinator, c.Policy, c.Session, logger)
	c.OrderService = services.NewOrderService(c.Store, c.Client, c.Coordinator, c.Policy, c.Session, logger)
	c.DocumentService = services.NewDocumentService(c.Store, c.Client, c.Coordinator, c.Policy, c.Session, logger)
	c.NotificationService = services.NewNotificationService(c.Store, c.Client, c.Coordinator, c.Policy, c.Channel, logger)
	c.ChatService = services.NewChatService(c.Store, c.Client, c.Coordinator, c.Policy, c.Channel, c.Session, logger)
	c.StaffService = services.NewStaffService(c.Store, c.Client)
	c.SyncService = services.NewSyncService(c.CaseService, c.MotionService, c.OrderService, logger)

	c.Dispatcher = services.NewEventDispatcher(c.Store, c.Policy, c.ChatService, c.NotificationService, logger)
	c.Scheduler = polling.NewScheduler(config.PollInterval, c.SyncService,
		c.Session.Active,
		func() bool { return c.Channel.State() == realtime.StateConnected },
		logger)

	return c, nil
}

// Close releases everything the container owns.
func (c *Container) Close() error {
	c.Channel.Close()
	return c.Mirror.Close()
}
