package sales

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

// transitions lists the only forward moves of the lifecycle.
var transitions = map[models.SaleStatus]models.SaleStatus{
	models.SaleStatusDraft:     models.SaleStatusConfirmed,
	models.SaleStatusConfirmed: models.SaleStatusCompleted,
}

// CanTransition reports whether a sale may move from one status to another.
func CanTransition(from, to models.SaleStatus) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// mutateDraft is the single gate for edits that are only legal while a sale is draft.
// It locks the sale, checks the optional expected version, runs fn, then stores the
// sale with a bumped version.
func (s *Service) mutateDraft(ctx context.Context, saleID int64, expectedVersion *int64, fn func(ctx context.Context, tx repository.Tx, sale *models.Sale) error) (models.Sale, error) {
	var updated models.Sale
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != sale.Version {
			return fmt.Errorf("%w: sale %s was modified concurrently (version %d, expected %d)", models.ErrConflict, sale.SaleNumber, sale.Version, *expectedVersion)
		}
		if !sale.IsDraft() {
			return fmt.Errorf("%w: sale %s is %s; only draft sales can be modified", models.ErrConflict, sale.SaleNumber, sale.Status)
		}

		previous := sale.Version
		if err := fn(ctx, tx, &sale); err != nil {
			return err
		}
		sale.Version = previous + 1
		sale.UpdatedAt = s.now().UTC()
		if err := tx.UpdateSale(ctx, sale, previous); err != nil {
			return err
		}
		updated = sale
		return nil
	})
	return updated, err
}

// UpdateStatus advances a sale along draft → confirmed → completed. Setting the current
// status again is a no-op without events.
func (s *Service) UpdateStatus(ctx context.Context, saleID int64, rawStatus string) (res MutationResult, err error) {
	start := s.now()
	defer func() { s.observe("update_status", err, start) }()

	target, err := models.ParseSaleStatus(rawStatus)
	if err != nil {
		return MutationResult{}, s.fail("update_status", err)
	}

	var previous models.SaleStatus
	var changed bool
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		previous, changed = sale.Status, false
		if sale.Status == target {
			res = MutationResult{Sale: sale}
			return nil
		}
		if !CanTransition(sale.Status, target) {
			return fmt.Errorf("%w: sale %s cannot move from %s to %s", models.ErrConflict, sale.SaleNumber, sale.Status, target)
		}
		if sale.IsDraft() && sale.TotalBags == 0 {
			return fmt.Errorf("%w: sale %s has no bags; configure bags before confirming", models.ErrConflict, sale.SaleNumber)
		}

		version := sale.Version
		sale.Status = target
		sale.Version = version + 1
		sale.UpdatedAt = s.now().UTC()
		if err := tx.UpdateSale(ctx, sale, version); err != nil {
			return err
		}
		res = MutationResult{Sale: sale}
		changed = true
		return nil
	})
	if err != nil {
		return MutationResult{}, s.fail("update_status", err)
	}

	if changed {
		res.Events = []models.Event{s.newEvent(models.EventStatusChanged, res.Sale, previous)}
		s.logger.Info("sale status changed",
			zap.String("sale_number", res.Sale.SaleNumber),
			zap.String("from", string(previous)),
			zap.String("to", string(res.Sale.Status)))
	}
	return res, nil
}

// UpdateDraft edits the header fields of a draft sale.
func (s *Service) UpdateDraft(ctx context.Context, req models.UpdateDraftRequest) (res MutationResult, err error) {
	start := s.now()
	defer func() { s.observe("update_draft", err, start) }()

	if req.SaleDate != nil {
		if *req.SaleDate == "" {
			return MutationResult{}, s.fail("update_draft", fmt.Errorf("%w: saleDate must not be empty", models.ErrValidation))
		}
		if err := validateDate("saleDate", *req.SaleDate); err != nil {
			return MutationResult{}, s.fail("update_draft", err)
		}
	}
	if req.Customer != nil && strings.TrimSpace(req.Customer.Name) == "" {
		return MutationResult{}, s.fail("update_draft", fmt.Errorf("%w: customer name must not be empty", models.ErrValidation))
	}

	sale, err := s.mutateDraft(ctx, req.SaleID, req.ExpectedVersion, func(_ context.Context, _ repository.Tx, sale *models.Sale) error {
		if req.Notes != nil {
			sale.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.SaleDate != nil {
			sale.SaleDate = *req.SaleDate
		}
		applyCustomer(sale, req.Customer)
		return nil
	})
	if err != nil {
		return MutationResult{}, s.fail("update_draft", err)
	}

	return MutationResult{
		Sale:   sale,
		Events: []models.Event{s.newEvent(models.EventDraftUpdated, sale, "")},
	}, nil
}

// AttachDocument records the storage path of the delivery document generated for a
// confirmed or completed sale.
func (s *Service) AttachDocument(ctx context.Context, saleID int64, path string) (res MutationResult, err error) {
	start := s.now()
	defer func() { s.observe("attach_document", err, start) }()

	if strings.TrimSpace(path) == "" {
		return MutationResult{}, s.fail("attach_document", fmt.Errorf("%w: document path must not be empty", models.ErrValidation))
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.IsDraft() {
			return fmt.Errorf("%w: sale %s is still draft; confirm it before issuing documents", models.ErrConflict, sale.SaleNumber)
		}
		version := sale.Version
		sale.DocumentPath = path
		sale.Version = version + 1
		sale.UpdatedAt = s.now().UTC()
		if err := tx.UpdateSale(ctx, sale, version); err != nil {
			return err
		}
		res = MutationResult{Sale: sale}
		return nil
	})
	if err != nil {
		return MutationResult{}, s.fail("attach_document", err)
	}

	res.Events = []models.Event{s.newEvent(models.EventDocumentStored, res.Sale, "")}
	return res, nil
}
