package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/config"
	"github.com/mamadbah2/shellsale/internal/events"
	"github.com/mamadbah2/shellsale/internal/repository/sheets"
	whatsappsvc "github.com/mamadbah2/shellsale/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/shellsale/pkg/clients/whatsapp"
)

// Integrations are the event sinks built from configuration. Sinks whose credentials
// are missing are left out with a warning.
type Integrations struct {
	Sinks []events.Sink
	// Notifier is nil when WhatsApp is not configured.
	Notifier *whatsappsvc.Notifier

	closers []func()
	logger  *zap.Logger
}

// OpenIntegrations connects the log, NATS, Sheets ledger and WhatsApp sinks.
func OpenIntegrations(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Integrations, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Integrations{
		Sinks:  []events.Sink{events.NewLogSink(logger.Named("events.log"))},
		logger: logger,
	}

	if cfg.Events.NATSURL != "" {
		conn, err := events.Connect(cfg.Events.NATSURL, "shellsale", logger)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		in.closers = append(in.closers, func() {
			if err := conn.Drain(); err != nil {
				logger.Error("failed to drain nats connection", zap.Error(err))
			}
		})
		in.Sinks = append(in.Sinks, events.NewNATSSink(conn, cfg.Events.SubjectPrefix))
	} else {
		logger.Warn("NATS_URL missing, event publishing disabled")
	}

	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, logger.Named("repo.sheets"))
		if err != nil {
			in.Close()
			return nil, err
		}
		ledger, err := sheets.NewLedger(repo, cfg.Sheets.LedgerRange, logger.Named("sheets.ledger"))
		if err != nil {
			in.Close()
			return nil, err
		}
		in.Sinks = append(in.Sinks, ledger)
	} else {
		logger.Warn("google sheets credentials missing, sales ledger disabled")
	}

	if cfg.WhatsApp.Enabled() {
		in.Notifier = whatsappsvc.NewNotifier(cfg.WhatsApp, whatsappclient.NewClient(cfg.WhatsApp), logger.Named("svc.whatsapp"))
		in.Sinks = append(in.Sinks, in.Notifier)
	} else {
		logger.Warn("whatsapp credentials or recipients missing, notifications disabled")
	}

	return in, nil
}

// Dispatcher fans events out to every open sink.
func (in *Integrations) Dispatcher(cfg config.EventsConfig) *events.Dispatcher {
	return events.NewDispatcher(in.logger, in.Sinks...).WithTimeout(cfg.Timeout)
}

// Close releases connections in reverse order of opening.
func (in *Integrations) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}
