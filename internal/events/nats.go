package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
)

// DefaultSubjectPrefix is prepended to the event type to form the NATS subject.
const DefaultSubjectPrefix = "shellsale"

// MsgPublisher is the subset of *nats.Conn used by NATSSink.
type MsgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSSink publishes events as JSON on <prefix>.<event type>, e.g. shellsale.sale.created.
type NATSSink struct {
	conn   MsgPublisher
	prefix string
}

// NewNATSSink creates a sink publishing through conn.
func NewNATSSink(conn MsgPublisher, prefix string) *NATSSink {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject an event is published on.
func (s *NATSSink) Subject(event models.Event) string {
	return s.prefix + "." + string(event.Type)
}

// Handle publishes the event. NATS Publish does not take a context, so it is checked
// before publishing.
func (s *NATSSink) Handle(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(s.Subject(event))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set("Sale-Number", event.SaleNumber)
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Connect opens a NATS connection that keeps reconnecting and logs its state changes.
func Connect(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("nats")
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}
