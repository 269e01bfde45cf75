// Package whatsapp notifies sales staff about sale lifecycle events through the
// WhatsApp Cloud API and consumes the delivery receipts Meta posts back.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/config"
	"github.com/mamadbah2/shellsale/internal/domain/models"
	client "github.com/mamadbah2/shellsale/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// MessagingService describes the operations the HTTP layer and the scheduler use.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
	Broadcast(ctx context.Context, body string) error
}

// Notifier is the production implementation backed by the WhatsApp Cloud API. It is
// also an event sink: lifecycle events are rendered and sent to every recipient.
type Notifier struct {
	cfg    config.WhatsAppConfig
	client client.Client
	logger *zap.Logger
}

// NewNotifier wires a new notifier instance.
func NewNotifier(cfg config.WhatsAppConfig, client client.Client, logger *zap.Logger) *Notifier {
	n := &Notifier{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	return n
}

// templates renders the events worth a message. Others are skipped.
var templates = map[models.EventType]func(models.Event) models.NotificationTemplate{
	models.EventSaleCreated: func(e models.Event) models.NotificationTemplate {
		return models.NotificationTemplate{
			Title: "New sale " + e.SaleNumber,
			Message: fmt.Sprintf("Draft opened for %s on %s: %d animals, %.2f kg claimed.",
				customerOrDash(e.CustomerName), e.SaleDate, e.Totals.TotalAnimals, e.Totals.TotalWeight),
		}
	},
	models.EventStatusChanged: func(e models.Event) models.NotificationTemplate {
		return models.NotificationTemplate{
			Title: fmt.Sprintf("Sale %s %s", e.SaleNumber, e.Status),
			Message: fmt.Sprintf("%s → %s for %s: %d bags, %d animals, %.2f kg.",
				e.PreviousStatus, e.Status, customerOrDash(e.CustomerName),
				e.Totals.TotalBags, e.Totals.TotalAnimals, e.Totals.TotalWeight),
		}
	},
	models.EventDocumentStored: func(e models.Event) models.NotificationTemplate {
		return models.NotificationTemplate{
			Title:   "Delivery document ready",
			Message: fmt.Sprintf("The delivery document of %s for %s has been archived.", e.SaleNumber, customerOrDash(e.CustomerName)),
		}
	},
}

// Render returns the message for an event and whether the event is notified at all.
func Render(event models.Event) (string, bool) {
	render, ok := templates[event.Type]
	if !ok {
		return "", false
	}
	tpl := render(event)
	return fmt.Sprintf("%s\n%s", tpl.Title, tpl.Message), true
}

func (n *Notifier) Name() string { return "whatsapp" }

// Handle sends the rendered event to every configured recipient.
func (n *Notifier) Handle(ctx context.Context, event models.Event) error {
	body, ok := Render(event)
	if !ok {
		return nil
	}
	return n.Broadcast(ctx, body)
}

// Broadcast sends body to all configured recipients, continuing past failures.
func (n *Notifier) Broadcast(ctx context.Context, body string) error {
	var errs []error
	for _, to := range n.cfg.Recipients {
		if err := n.SendOutbound(ctx, models.OutboundMessageRequest{To: to, Message: body}); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

// SendOutbound lets internal operators push quick notifications via HTTP.
func (n *Notifier) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message body is empty")
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := n.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:         req.To,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	if err != nil {
		return err
	}
	n.logger.Debug("notification sent", zap.String("to", req.To), zap.String("message_id", resp.MessageID()))
	return nil
}

// VerifyWebhookToken validates the callback verification token.
func (n *Notifier) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", errors.New("missing mode or verify token")
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("unsupported hub.mode %s", mode)
	}

	if n.cfg.VerifyToken == "" || verifyToken != n.cfg.VerifyToken {
		return "", errors.New("invalid verify token")
	}

	return challenge, nil
}

// HandleWebhook logs delivery receipts. Failed deliveries are reported at warn level so
// that unreachable recipients show up in the logs.
func (n *Notifier) HandleWebhook(_ context.Context, payload models.WebhookPayload) error {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				if status.Status == "failed" {
					n.logger.Warn("notification delivery failed",
						zap.String("message_id", status.ID),
						zap.String("recipient", status.RecipientID),
						zap.Any("errors", status.Errors))
					continue
				}
				n.logger.Debug("notification status",
					zap.String("message_id", status.ID),
					zap.String("recipient", status.RecipientID),
					zap.String("status", status.Status))
			}
			for _, werr := range change.Value.Errors {
				n.logger.Warn("whatsapp account error", zap.Int("code", werr.Code), zap.String("title", werr.Title))
			}
		}
	}
	return nil
}

func customerOrDash(name string) string {
	if name == "" {
		return "-"
	}
	return name
}
