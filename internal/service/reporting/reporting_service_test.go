package reporting

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/shellsale/internal/domain/models"
)

type fakeLister struct {
	sales   []models.Sale
	filters []models.SaleFilter
	err     error
}

func (f *fakeLister) ListSales(_ context.Context, filter models.SaleFilter) ([]models.Sale, models.Pagination, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, models.Pagination{}, f.err
	}
	start := (filter.Page - 1) * filter.PageSize
	end := min(start+filter.PageSize, len(f.sales))
	if start > end {
		start = end
	}
	total := len(f.sales)
	return f.sales[start:end], models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	}, nil
}

func sale(n int, status models.SaleStatus, customer string, animals int64, weight float64, bags int) models.Sale {
	return models.Sale{
		SaleNumber:   models.FormatSaleNumber(int64(n)),
		Status:       status,
		CustomerName: customer,
		TotalAnimals: animals,
		TotalWeight:  weight,
		TotalBags:    bags,
	}
}

func TestBuildDigest(t *testing.T) {
	lister := &fakeLister{sales: []models.Sale{
		sale(4, models.SaleStatusDraft, "Mercato Ittico", 900, 2, 0),
		sale(3, models.SaleStatusCompleted, "Pescheria Adriatica", 2000, 4.25, 1),
		sale(2, models.SaleStatusConfirmed, "Bar Laguna", 4000, 8.5, 2),
		sale(1, models.SaleStatusConfirmed, "Pescheria Adriatica", 1000, 2.125, 1),
	}}
	svc := NewService(lister, time.UTC, zaptest.NewLogger(t))

	from := time.Date(2024, 4, 27, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 3, 20, 0, 0, 0, time.UTC)
	digest, err := svc.BuildDigest(context.Background(), from, to)
	require.NoError(t, err)

	assert.Equal(t, 2, digest.SalesByStatus[models.SaleStatusConfirmed])
	assert.Equal(t, 1, digest.SalesByStatus[models.SaleStatusCompleted])
	assert.Equal(t, 1, digest.SalesByStatus[models.SaleStatusDraft])
	assert.EqualValues(t, 7000, digest.TotalAnimals)
	assert.InDelta(t, 14.875, digest.TotalWeight, 1e-9)
	assert.Equal(t, 4, digest.TotalBags)
	assert.Equal(t, []string{"Bar Laguna", "Pescheria Adriatica"}, digest.Customers)
	assert.Equal(t, []string{"VAV-000004"}, digest.OpenDrafts)

	require.Len(t, lister.filters, 1)
	assert.Equal(t, "2024-04-27", lister.filters[0].DateFrom)
	assert.Equal(t, "2024-05-03", lister.filters[0].DateTo)
}

func TestBuildDigestPagesThroughAllSales(t *testing.T) {
	lister := &fakeLister{}
	for i := 1; i <= digestPageSize+5; i++ {
		lister.sales = append(lister.sales, sale(i, models.SaleStatusConfirmed, fmt.Sprintf("c%03d", i), 10, 1, 1))
	}
	svc := NewService(lister, nil, nil)

	digest, err := svc.BuildDigest(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, lister.filters, 2)
	assert.Equal(t, digestPageSize+5, digest.TotalBags)
	assert.Len(t, digest.Customers, digestPageSize+5)
}

func TestBuildDigestError(t *testing.T) {
	svc := NewService(&fakeLister{err: errors.New("store down")}, nil, nil)
	_, err := svc.BuildDigest(context.Background(), time.Now(), time.Now())
	require.ErrorContains(t, err, "store down")
}

func TestGenerateWeeklyReport(t *testing.T) {
	lister := &fakeLister{sales: []models.Sale{
		sale(2, models.SaleStatusConfirmed, "Bar Laguna", 4000, 8.5, 2),
		sale(3, models.SaleStatusDraft, "", 0, 0, 0),
	}}
	svc := NewService(lister, time.UTC, nil)

	report, err := svc.GenerateWeeklyReport(context.Background(), time.Date(2024, 5, 3, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "Sales digest 2024-04-27 to 2024-05-03\n"+
		"Confirmed: 1, completed: 0, drafts: 1\n"+
		"Packed: 2 bags, 4000 animals, 8.50 kg\n"+
		"Customers: Bar Laguna\n"+
		"Open drafts: VAV-000003", report)
}

func TestFormatDigestEmpty(t *testing.T) {
	day := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	out := FormatDigest(models.SalesDigest{From: day, To: day, SalesByStatus: map[models.SaleStatus]int{}}, nil)
	assert.Equal(t, "Sales digest 2024-05-03 to 2024-05-03\nNo sales in this period.", out)
}
