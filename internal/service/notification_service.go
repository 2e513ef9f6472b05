package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/config"
	"github.com/spec-kit/ticket-scheduler/internal/events"
)

const (
	webhookQueueSize = 256
	webhookTimeout   = 5 * time.Second
)

// NotificationService logs lifecycle events and forwards them to an
// optional webhook so a presentation layer can render them.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	queue      chan events.Event
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("notifications"),
		cfg:        cfg,
		queue:      make(chan events.Event, webhookQueueSize),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handleEvent)
	}
}

func (n *NotificationService) handleEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.Int64("guild_id", event.GuildID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))

	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	select {
	case n.queue <- event:
		return nil
	default:
		return errors.New("webhook queue full")
	}
}

// Run delivers queued events to the webhook until ctx is cancelled, then
// flushes what is already queued.
func (n *NotificationService) Run(ctx context.Context) {
	for {
		select {
		case event := <-n.queue:
			n.deliver(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-n.queue:
					n.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (n *NotificationService) deliver(event events.Event) {
	if err := n.postWebhook(event); err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (n *NotificationService) postWebhook(event events.Event) error {
	agent := fiber.Post(n.cfg.WebhookURL).Timeout(webhookTimeout).JSON(event)
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code >= fiber.StatusBadRequest {
		return fmt.Errorf("webhook responded %d", code)
	}
	return nil
}
