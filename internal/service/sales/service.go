// Package sales implements the sale allocation and bag-packing engine: claiming harvest
// operations into sales, packing weight-loss adjusted bags with provenance, and the
// draft → confirmed → completed lifecycle.
package sales

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

// Recorder observes engine outcomes for metrics.
type Recorder interface {
	ObserveOperation(operation string, err error, elapsed time.Duration)
	ObserveClamp(kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error, time.Duration) {}
func (nopRecorder) ObserveClamp(string)                           {}

// Service is the entry point of the engine. It keeps no state between calls; every
// operation runs as one store transaction.
type Service struct {
	store   repository.Store
	metrics Recorder
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewService wires a sales engine over the given store.
func NewService(store repository.Store, recorder Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:   store,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// MutationResult is returned by single-sale mutations.
type MutationResult struct {
	Sale   models.Sale    `json:"sale"`
	Events []models.Event `json:"-"`
}

func (s *Service) observe(operation string, err error, start time.Time) {
	s.metrics.ObserveOperation(operation, err, s.now().Sub(start))
}

// fail classifies err and logs unexpected failures. Business rejections are returned
// unchanged.
func (s *Service) fail(operation string, err error) error {
	if kind := models.KindOf(err); kind != models.ErrInternal {
		s.logger.Debug("request rejected", zap.String("operation", operation), zap.Error(err))
		return err
	}
	s.logger.Error("operation failed", zap.String("operation", operation), zap.Error(err))
	if errors.Is(err, models.ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", models.ErrInternal, operation, err)
}

func (s *Service) newEvent(eventType models.EventType, sale models.Sale, previous models.SaleStatus) models.Event {
	return models.Event{
		ID:             s.newID(),
		Type:           eventType,
		SaleID:         sale.ID,
		SaleNumber:     sale.SaleNumber,
		Status:         sale.Status,
		PreviousStatus: previous,
		Totals: models.SaleTotals{
			TotalAnimals: sale.TotalAnimals,
			TotalWeight:  sale.TotalWeight,
			TotalBags:    sale.TotalBags,
		},
		CustomerName: sale.CustomerName,
		SaleDate:     sale.SaleDate,
		Version:      sale.Version,
		OccurredAt:   s.now().UTC(),
	}
}

func validateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(models.DateLayout, value); err != nil {
		return fmt.Errorf("%w: %s must use the YYYY-MM-DD format, got %q", models.ErrValidation, field, value)
	}
	return nil
}
