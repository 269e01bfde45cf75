// Package reporting builds the periodic sales digest sent to staff over WhatsApp.
package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
)

const digestPageSize = 200

// SaleLister pages through sales. The sales engine satisfies it.
type SaleLister interface {
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, models.Pagination, error)
}

// Service exposes lightweight analytics for WhatsApp summaries.
type Service struct {
	sales    SaleLister
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a new reporting service instance. Report windows are computed in
// loc; nil means UTC.
func NewService(sales SaleLister, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{sales: sales, location: loc, logger: logger, now: time.Now}
}

// BuildDigest aggregates every sale whose sale date falls in [from, to], both inclusive
// calendar days.
func (s *Service) BuildDigest(ctx context.Context, from, to time.Time) (models.SalesDigest, error) {
	digest := models.SalesDigest{
		From:          from,
		To:            to,
		SalesByStatus: map[models.SaleStatus]int{},
		GeneratedAt:   s.now().UTC(),
	}

	customers := map[string]struct{}{}
	filter := models.SaleFilter{
		DateFrom: from.In(s.location).Format(models.DateLayout),
		DateTo:   to.In(s.location).Format(models.DateLayout),
		Page:     1,
		PageSize: digestPageSize,
	}
	for {
		sales, page, err := s.sales.ListSales(ctx, filter)
		if err != nil {
			return models.SalesDigest{}, fmt.Errorf("list sales page %d: %w", filter.Page, err)
		}
		for _, sale := range sales {
			digest.SalesByStatus[sale.Status]++
			if sale.IsDraft() {
				digest.OpenDrafts = append(digest.OpenDrafts, sale.SaleNumber)
				continue
			}
			digest.TotalAnimals += sale.TotalAnimals
			digest.TotalWeight += sale.TotalWeight
			digest.TotalBags += sale.TotalBags
			if name := strings.TrimSpace(sale.CustomerName); name != "" {
				customers[name] = struct{}{}
			}
		}
		if filter.Page >= page.TotalPages {
			break
		}
		filter.Page++
	}

	for name := range customers {
		digest.Customers = append(digest.Customers, name)
	}
	sort.Strings(digest.Customers)
	sort.Strings(digest.OpenDrafts)
	digest.TotalWeight = math.Round(digest.TotalWeight*1000) / 1000

	s.logger.Debug("sales digest built",
		zap.String("from", filter.DateFrom),
		zap.String("to", filter.DateTo),
		zap.Int("customers", len(digest.Customers)))
	return digest, nil
}

// GenerateWeeklyReport renders the digest of the seven days ending at now.
func (s *Service) GenerateWeeklyReport(ctx context.Context, now time.Time) (string, error) {
	to := now.In(s.location)
	from := to.AddDate(0, 0, -6)
	digest, err := s.BuildDigest(ctx, from, to)
	if err != nil {
		return "", err
	}
	return FormatDigest(digest, s.location), nil
}

// FormatDigest renders a digest as a WhatsApp text message.
func FormatDigest(d models.SalesDigest, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Sales digest %s to %s\n",
		d.From.In(loc).Format(models.DateLayout), d.To.In(loc).Format(models.DateLayout))

	shipped := d.SalesByStatus[models.SaleStatusConfirmed] + d.SalesByStatus[models.SaleStatusCompleted]
	if shipped == 0 && len(d.OpenDrafts) == 0 {
		b.WriteString("No sales in this period.")
		return b.String()
	}

	fmt.Fprintf(&b, "Confirmed: %d, completed: %d, drafts: %d\n",
		d.SalesByStatus[models.SaleStatusConfirmed],
		d.SalesByStatus[models.SaleStatusCompleted],
		d.SalesByStatus[models.SaleStatusDraft])
	fmt.Fprintf(&b, "Packed: %d bags, %d animals, %.2f kg\n", d.TotalBags, d.TotalAnimals, d.TotalWeight)
	if len(d.Customers) > 0 {
		fmt.Fprintf(&b, "Customers: %s\n", strings.Join(d.Customers, ", "))
	}
	if len(d.OpenDrafts) > 0 {
		fmt.Fprintf(&b, "Open drafts: %s\n", strings.Join(d.OpenDrafts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
