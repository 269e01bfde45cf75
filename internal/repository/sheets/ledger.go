package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
)

// DefaultLedgerRange is the append target when none is configured. Columns A to J hold
// one row per ledger entry, see LedgerRow.
const DefaultLedgerRange = "Sales!A:J"

const ledgerColumns = 10

// Ledger is an event sink that appends confirmed and completed sales to a spreadsheet.
// The event id in column A makes redelivered events idempotent.
type Ledger struct {
	repo   Repository
	rng    SheetRange
	logger *zap.Logger
}

// NewLedger creates a ledger over repo writing into ledgerRange. The range must span
// at least the ten ledger columns.
func NewLedger(repo Repository, ledgerRange string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledgerRange == "" {
		ledgerRange = DefaultLedgerRange
	}
	rng, err := ParseSheetRange(ledgerRange)
	if err != nil {
		return nil, fmt.Errorf("ledger range: %w", err)
	}
	if rng.Width() < ledgerColumns {
		return nil, fmt.Errorf("ledger range %s spans %d columns, %d needed", rng, rng.Width(), ledgerColumns)
	}
	return &Ledger{repo: repo, rng: rng, logger: logger}, nil
}

func (l *Ledger) Name() string { return "sheets-ledger" }

// Records reports whether an event ends up in the ledger.
func Records(event models.Event) bool {
	return event.Type == models.EventStatusChanged &&
		(event.Status == models.SaleStatusConfirmed || event.Status == models.SaleStatusCompleted)
}

// LedgerRow renders the spreadsheet row for an event.
func LedgerRow(event models.Event) []interface{} {
	return []interface{}{
		event.ID,
		event.OccurredAt.UTC().Format(time.RFC3339),
		event.SaleNumber,
		event.SaleDate,
		event.CustomerName,
		string(event.PreviousStatus),
		string(event.Status),
		event.Totals.TotalBags,
		event.Totals.TotalAnimals,
		fmt.Sprintf("%.3f", event.Totals.TotalWeight),
	}
}

// Handle appends the event unless it is already present.
func (l *Ledger) Handle(ctx context.Context, event models.Event) error {
	if !Records(event) {
		return nil
	}

	ids, err := l.repo.ReadRange(ctx, l.rng.KeyColumn())
	if err != nil {
		return fmt.Errorf("read ledger ids: %w", err)
	}
	for _, row := range ids {
		if len(row) > 0 && fmt.Sprint(row[0]) == event.ID {
			l.logger.Debug("ledger entry already present", zap.String("event_id", event.ID))
			return nil
		}
	}

	if err := l.repo.WriteRow(ctx, l.rng.String(), LedgerRow(event)); err != nil {
		return err
	}
	l.logger.Info("sale recorded in ledger",
		zap.String("sale_number", event.SaleNumber),
		zap.String("status", string(event.Status)))
	return nil
}
