package sales

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

// CreateSaleResult is the outcome of CreateSale.
type CreateSaleResult struct {
	Sale       models.Sale             `json:"sale"`
	Operations []models.OperationClaim `json:"operations"`
	Totals     models.SaleTotals       `json:"totals"`
	Events     []models.Event          `json:"-"`
}

// CreateSale opens a draft sale claiming the given harvest operations. Either every
// operation is claimed and the totals are stored, or nothing is written.
func (s *Service) CreateSale(ctx context.Context, req models.CreateSaleRequest) (res CreateSaleResult, err error) {
	start := s.now()
	defer func() { s.observe("create_sale", err, start) }()

	ids, err := normalizeOperationIDs(req.OperationIDs)
	if err != nil {
		return CreateSaleResult{}, s.fail("create_sale", err)
	}
	if err := validateDate("saleDate", req.SaleDate); err != nil {
		return CreateSaleResult{}, s.fail("create_sale", err)
	}
	if req.Customer != nil && strings.TrimSpace(req.Customer.Name) == "" {
		return CreateSaleResult{}, s.fail("create_sale", fmt.Errorf("%w: customer name must not be empty", models.ErrValidation))
	}

	now := s.now().UTC()
	saleDate := req.SaleDate
	if saleDate == "" {
		saleDate = now.Format(models.DateLayout)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		claimed, err := tx.ClaimedOperationIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(claimed) > 0 {
			return fmt.Errorf("%w: operations already assigned to a sale: %s", models.ErrConflict, joinIDs(claimed))
		}

		ops, err := tx.FindOperations(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[int64]models.Operation, len(ops))
		for _, op := range ops {
			byID[op.ID] = op
		}

		claims := make([]models.OperationClaim, 0, len(ids))
		for _, id := range ids {
			op, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: operation %d", models.ErrNotFound, id)
			}
			if !op.Sellable() {
				return fmt.Errorf("%w: operation %d is not a weighed harvest operation", models.ErrValidation, id)
			}
			claims = append(claims, models.OperationClaim{
				OperationID:          op.ID,
				BasketID:             op.BasketID,
				OriginalAnimals:      *op.AnimalCount,
				OriginalWeight:       *op.TotalWeight,
				OriginalAnimalsPerKg: *op.AnimalsPerKg,
				IncludedInSale:       true,
			})
		}
		totals := claimTotals(claims)

		seq, err := tx.NextSaleSequence(ctx)
		if err != nil {
			return err
		}

		sale := models.Sale{
			SaleNumber:   models.FormatSaleNumber(seq),
			SaleDate:     saleDate,
			Status:       models.SaleStatusDraft,
			TotalAnimals: totals.TotalAnimals,
			TotalWeight:  totals.TotalWeight,
			Notes:        strings.TrimSpace(req.Notes),
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		applyCustomer(&sale, req.Customer)

		if err := tx.InsertSale(ctx, &sale); err != nil {
			return err
		}
		for i := range claims {
			claims[i].SaleID = sale.ID
		}
		if err := tx.InsertClaims(ctx, claims); err != nil {
			return err
		}

		res = CreateSaleResult{Sale: sale, Operations: claims, Totals: totals}
		return nil
	})
	if err != nil {
		return CreateSaleResult{}, s.fail("create_sale", err)
	}

	res.Events = []models.Event{s.newEvent(models.EventSaleCreated, res.Sale, "")}
	s.logger.Info("sale created",
		zap.String("sale_number", res.Sale.SaleNumber),
		zap.Int64("sale_id", res.Sale.ID),
		zap.Int("operations", len(res.Operations)),
		zap.Int64("total_animals", res.Totals.TotalAnimals),
		zap.Float64("total_weight", res.Totals.TotalWeight))
	return res, nil
}

func normalizeOperationIDs(raw []int64) ([]int64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one harvest operation must be selected", models.ErrValidation)
	}
	seen := make(map[int64]struct{}, len(raw))
	ids := make([]int64, 0, len(raw))
	for _, id := range raw {
		if id <= 0 {
			return nil, fmt.Errorf("%w: invalid operation id %d", models.ErrValidation, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func claimTotals(claims []models.OperationClaim) models.SaleTotals {
	var totals models.SaleTotals
	for _, c := range claims {
		totals.TotalAnimals += c.OriginalAnimals
		totals.TotalWeight += c.OriginalWeight
	}
	return totals
}

func applyCustomer(sale *models.Sale, customer *models.CustomerSnapshot) {
	if customer == nil {
		return
	}
	snapshot := *customer
	snapshot.Name = strings.TrimSpace(snapshot.Name)
	sale.CustomerID = snapshot.ID
	sale.CustomerName = snapshot.Name
	sale.CustomerDetails = &snapshot
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
