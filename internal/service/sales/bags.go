package sales

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

const (
	// MaxWeightLossKg caps the declared weight loss of a bag.
	MaxWeightLossKg = 1.5
	// DensityDriftBand is the fraction of the reference density a bag may drift by.
	DensityDriftBand = 0.05
	// AllocationWeightTolerance is the accepted gap, in kg, between the allocated
	// weight of a bag and its final weight.
	AllocationWeightTolerance = 0.01
)

// Packing is the computed outcome of one packing instruction.
type Packing struct {
	WeightLoss     float64
	FinalWeight    float64
	AnimalsPerKg   float64
	LossCapped     bool
	DensityClamped bool
}

// PackBag applies the weight-loss cap and the density drift band to a packing
// instruction. Out-of-range values are clamped, never rejected; only inputs that
// cannot describe a physical bag fail validation.
func PackBag(in models.BagInput) (Packing, error) {
	switch {
	case in.AnimalCount <= 0:
		return Packing{}, fmt.Errorf("%w: animal count must be positive", models.ErrValidation)
	case in.OriginalWeight <= 0 || math.IsNaN(in.OriginalWeight) || math.IsInf(in.OriginalWeight, 0):
		return Packing{}, fmt.Errorf("%w: original weight must be positive", models.ErrValidation)
	case in.ReferenceDensity <= 0 || math.IsNaN(in.ReferenceDensity) || math.IsInf(in.ReferenceDensity, 0):
		return Packing{}, fmt.Errorf("%w: reference density must be positive", models.ErrValidation)
	case math.IsNaN(in.WeightLoss):
		return Packing{}, fmt.Errorf("%w: weight loss is not a number", models.ErrValidation)
	}

	var p Packing
	p.WeightLoss = in.WeightLoss
	if p.WeightLoss > MaxWeightLossKg {
		p.WeightLoss = MaxWeightLossKg
		p.LossCapped = true
	}
	if p.WeightLoss < 0 {
		p.WeightLoss = 0
		p.LossCapped = true
	}

	p.FinalWeight = in.OriginalWeight - p.WeightLoss
	if p.FinalWeight <= 0 {
		return Packing{}, fmt.Errorf("%w: final weight %.3f kg is not positive", models.ErrValidation, p.FinalWeight)
	}

	density := float64(in.AnimalCount) / p.FinalWeight
	band := in.ReferenceDensity * DensityDriftBand
	if math.Abs(density-in.ReferenceDensity) > band {
		if density > in.ReferenceDensity {
			density = in.ReferenceDensity + band
		} else {
			density = in.ReferenceDensity - band
		}
		p.DensityClamped = true
	}
	p.AnimalsPerKg = density
	return p, nil
}

// ConfigureBagsResult is the outcome of ConfigureBags.
type ConfigureBagsResult struct {
	Sale   models.Sale    `json:"sale"`
	Bags   []models.Bag   `json:"bags"`
	Events []models.Event `json:"-"`
}

// ConfigureBags replaces the whole bag set of a draft sale. The previous bags and
// allocations are deleted and the new ones inserted in one transaction, so a failure
// at any point leaves the previous set untouched.
func (s *Service) ConfigureBags(ctx context.Context, req models.ConfigureBagsRequest) (res ConfigureBagsResult, err error) {
	start := s.now()
	defer func() { s.observe("configure_bags", err, start) }()

	if len(req.Bags) == 0 {
		return ConfigureBagsResult{}, s.fail("configure_bags", fmt.Errorf("%w: at least one bag must be configured", models.ErrValidation))
	}

	packings := make([]Packing, len(req.Bags))
	for i, in := range req.Bags {
		p, err := PackBag(in)
		if err != nil {
			return ConfigureBagsResult{}, s.fail("configure_bags", fmt.Errorf("bag %d: %w", i+1, err))
		}
		if err := checkAllocationSums(in, p); err != nil {
			return ConfigureBagsResult{}, s.fail("configure_bags", fmt.Errorf("bag %d: %w", i+1, err))
		}
		packings[i] = p
	}

	var bags []models.Bag
	sale, err := s.mutateDraft(ctx, req.SaleID, req.ExpectedVersion, func(ctx context.Context, tx repository.Tx, sale *models.Sale) error {
		claims, err := tx.ListClaims(ctx, sale.ID)
		if err != nil {
			return err
		}
		if err := checkProvenance(sale.SaleNumber, req.Bags, claims); err != nil {
			return err
		}
		sizes, err := tx.ListSizes(ctx)
		if err != nil {
			return err
		}

		if err := tx.DeleteBags(ctx, sale.ID); err != nil {
			return err
		}

		bags = make([]models.Bag, 0, len(req.Bags))
		for i, in := range req.Bags {
			bag := buildBag(sale.ID, i+1, in, packings[i], sizes, claims)
			if err := tx.InsertBag(ctx, &bag); err != nil {
				return fmt.Errorf("insert bag %d: %w", bag.BagNumber, err)
			}
			bags = append(bags, bag)
		}

		totals := bagTotals(bags)
		sale.TotalBags = totals.TotalBags
		sale.TotalAnimals = totals.TotalAnimals
		sale.TotalWeight = totals.TotalWeight
		return nil
	})
	if err != nil {
		return ConfigureBagsResult{}, s.fail("configure_bags", err)
	}

	for _, p := range packings {
		if p.LossCapped {
			s.metrics.ObserveClamp("weight_loss")
		}
		if p.DensityClamped {
			s.metrics.ObserveClamp("density")
		}
	}

	res = ConfigureBagsResult{
		Sale:   sale,
		Bags:   bags,
		Events: []models.Event{s.newEvent(models.EventBagsConfigured, sale, "")},
	}
	s.logger.Info("bags configured",
		zap.String("sale_number", sale.SaleNumber),
		zap.Int("bags", sale.TotalBags),
		zap.Int64("total_animals", sale.TotalAnimals),
		zap.Float64("total_weight", sale.TotalWeight),
		zap.Int64("version", sale.Version))
	return res, nil
}

// checkAllocationSums enforces that the allocations of a bag account for exactly its
// animals and, within AllocationWeightTolerance, its final weight.
func checkAllocationSums(in models.BagInput, p Packing) error {
	if len(in.Allocations) == 0 {
		return fmt.Errorf("%w: at least one source allocation is required", models.ErrValidation)
	}
	var animals int64
	var weight float64
	for j, a := range in.Allocations {
		if a.SourceOperationID <= 0 {
			return fmt.Errorf("%w: allocation %d has no source operation", models.ErrValidation, j+1)
		}
		if a.AllocatedAnimals < 0 || a.AllocatedWeight < 0 {
			return fmt.Errorf("%w: allocation %d has negative quantities", models.ErrValidation, j+1)
		}
		animals += a.AllocatedAnimals
		weight += a.AllocatedWeight
	}
	if animals != in.AnimalCount {
		return fmt.Errorf("%w: allocations account for %d animals, bag holds %d", models.ErrValidation, animals, in.AnimalCount)
	}
	if math.Abs(weight-p.FinalWeight) > AllocationWeightTolerance {
		return fmt.Errorf("%w: allocations account for %.3f kg, bag final weight is %.3f kg", models.ErrValidation, weight, p.FinalWeight)
	}
	return nil
}

// checkProvenance verifies every allocation points at an operation claimed by the sale
// and that no operation gives away more animals than were claimed from it.
func checkProvenance(saleNumber string, bags []models.BagInput, claims []models.OperationClaim) error {
	byOp := make(map[int64]models.OperationClaim, len(claims))
	for _, c := range claims {
		byOp[c.OperationID] = c
	}

	used := make(map[int64]int64)
	for i, bag := range bags {
		for _, a := range bag.Allocations {
			claim, ok := byOp[a.SourceOperationID]
			if !ok {
				return fmt.Errorf("%w: bag %d: operation %d is not claimed by sale %s", models.ErrValidation, i+1, a.SourceOperationID, saleNumber)
			}
			if a.SourceBasketID != 0 && a.SourceBasketID != claim.BasketID {
				return fmt.Errorf("%w: bag %d: operation %d was weighed on basket %d, not %d", models.ErrValidation, i+1, a.SourceOperationID, claim.BasketID, a.SourceBasketID)
			}
			used[a.SourceOperationID] += a.AllocatedAnimals
		}
	}
	for opID, animals := range used {
		if claimed := byOp[opID].OriginalAnimals; animals > claimed {
			return fmt.Errorf("%w: %d animals allocated from operation %d, only %d were claimed", models.ErrValidation, animals, opID, claimed)
		}
	}
	return nil
}

func buildBag(saleID int64, number int, in models.BagInput, p Packing, sizes []models.Size, claims []models.OperationClaim) models.Bag {
	basketByOp := make(map[int64]int64, len(claims))
	for _, c := range claims {
		basketByOp[c.OperationID] = c.BasketID
	}

	bag := models.Bag{
		SaleID:               saleID,
		BagNumber:            number,
		SizeCode:             classifySize(sizes, p.AnimalsPerKg, in.SizeCode),
		TotalWeight:          p.FinalWeight,
		OriginalWeight:       in.OriginalWeight,
		WeightLoss:           p.WeightLoss,
		AnimalCount:          in.AnimalCount,
		AnimalsPerKg:         p.AnimalsPerKg,
		OriginalAnimalsPerKg: in.ReferenceDensity,
		WastePercentage:      in.WastePercentage,
		Notes:                strings.TrimSpace(in.Notes),
		Allocations:          make([]models.Allocation, 0, len(in.Allocations)),
	}
	for _, a := range in.Allocations {
		basketID := a.SourceBasketID
		if basketID == 0 {
			basketID = basketByOp[a.SourceOperationID]
		}
		bag.Allocations = append(bag.Allocations, models.Allocation{
			SourceOperationID:  a.SourceOperationID,
			SourceBasketID:     basketID,
			AllocatedAnimals:   a.AllocatedAnimals,
			AllocatedWeight:    a.AllocatedWeight,
			SourceAnimalsPerKg: a.SourceDensity,
			SourceSizeCode:     a.SourceSizeCode,
		})
	}
	return bag
}

// classifySize picks the size class whose density range contains the rounded density,
// falling back to the caller's code when none matches.
func classifySize(sizes []models.Size, animalsPerKg float64, fallback string) string {
	rounded := int64(math.Round(animalsPerKg))
	for _, size := range sizes {
		if size.Contains(rounded) {
			return size.Code
		}
	}
	return fallback
}

func bagTotals(bags []models.Bag) models.SaleTotals {
	totals := models.SaleTotals{TotalBags: len(bags)}
	for _, b := range bags {
		totals.TotalAnimals += b.AnimalCount
		totals.TotalWeight += b.TotalWeight
	}
	return totals
}
