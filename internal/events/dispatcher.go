// Package events fans committed sale events out to collaborators such as the message
// bus, the ledger and WhatsApp notifications.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/shellsale/internal/domain/models"
)

const defaultSinkTimeout = 10 * time.Second

// Sink consumes sale events.
type Sink interface {
	Name() string
	Handle(ctx context.Context, event models.Event) error
}

// Dispatcher delivers events to every sink concurrently. Events are dispatched after
// the transaction committed, so a failing sink never undoes the change.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: defaultSinkTimeout,
		logger:  logger.Named("events"),
	}
}

// WithTimeout bounds the time a single sink may spend on one event.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// Dispatch hands each event to every sink. All sinks run even when some fail; the
// failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...models.Event) error {
	if len(d.sinks) == 0 || len(events) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var eg errgroup.Group
	for _, event := range events {
		for _, sink := range d.sinks {
			eg.Go(func() error {
				sinkCtx, cancel := context.WithTimeout(ctx, d.timeout)
				defer cancel()

				if err := sink.Handle(sinkCtx, event); err != nil {
					d.logger.Warn("event delivery failed",
						zap.String("sink", sink.Name()),
						zap.String("event", string(event.Type)),
						zap.String("sale_number", event.SaleNumber),
						zap.Error(err))
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

// LogSink records every event in the application log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Handle(_ context.Context, event models.Event) error {
	s.logger.Info("sale event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("sale_number", event.SaleNumber),
		zap.String("status", string(event.Status)),
		zap.Int64("version", event.Version))
	return nil
}

// SinkFunc adapts a function to a Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, event models.Event) error
}

func (s SinkFunc) Name() string { return s.SinkName }

func (s SinkFunc) Handle(ctx context.Context, event models.Event) error { return s.Fn(ctx, event) }
