package sales

import (
	"context"
	"fmt"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxPage         = 1_000_000
)

// GetSale assembles a sale with its bags, allocations and claimed operations. No
// numbers are recomputed here.
func (s *Service) GetSale(ctx context.Context, saleID int64) (detail models.SaleDetail, err error) {
	start := s.now()
	defer func() { s.observe("get_sale", err, start) }()

	err = s.store.View(ctx, func(ctx context.Context, r repository.Reader) error {
		sale, err := r.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		bags, err := r.ListBags(ctx, saleID)
		if err != nil {
			return err
		}
		claims, err := r.ListClaims(ctx, saleID)
		if err != nil {
			return err
		}
		detail = models.SaleDetail{Sale: sale, Bags: bags, OperationClaims: claims}
		return nil
	})
	if err != nil {
		return models.SaleDetail{}, s.fail("get_sale", err)
	}
	return detail, nil
}

// ListSales returns one page of sales, newest first.
func (s *Service) ListSales(ctx context.Context, filter models.SaleFilter) (sales []models.Sale, page models.Pagination, err error) {
	start := s.now()
	defer func() { s.observe("list_sales", err, start) }()

	if err := validateDate("dateFrom", filter.DateFrom); err != nil {
		return nil, models.Pagination{}, s.fail("list_sales", err)
	}
	if err := validateDate("dateTo", filter.DateTo); err != nil {
		return nil, models.Pagination{}, s.fail("list_sales", err)
	}
	switch {
	case filter.Page < 1:
		filter.Page = 1
	case filter.Page > maxPage:
		return nil, models.Pagination{}, s.fail("list_sales", fmt.Errorf("%w: page may not exceed %d", models.ErrValidation, maxPage))
	}
	switch {
	case filter.PageSize <= 0:
		filter.PageSize = defaultPageSize
	case filter.PageSize > maxPageSize:
		return nil, models.Pagination{}, s.fail("list_sales", fmt.Errorf("%w: pageSize may not exceed %d", models.ErrValidation, maxPageSize))
	}

	var total int
	err = s.store.View(ctx, func(ctx context.Context, r repository.Reader) error {
		var err error
		sales, total, err = r.ListSales(ctx, filter)
		return err
	})
	if err != nil {
		return nil, models.Pagination{}, s.fail("list_sales", err)
	}

	page = models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	}
	return sales, page, nil
}

// ListAvailableOperations lists weighed harvest operations, either still unclaimed or
// already processed into a sale.
func (s *Service) ListAvailableOperations(ctx context.Context, filter models.OperationFilter) (ops []models.AvailableOperation, err error) {
	start := s.now()
	defer func() { s.observe("list_operations", err, start) }()

	if err := validateDate("dateFrom", filter.DateFrom); err != nil {
		return nil, s.fail("list_operations", err)
	}
	if err := validateDate("dateTo", filter.DateTo); err != nil {
		return nil, s.fail("list_operations", err)
	}

	err = s.store.View(ctx, func(ctx context.Context, r repository.Reader) error {
		var err error
		ops, err = r.ListAvailableOperations(ctx, filter)
		return err
	})
	if err != nil {
		return nil, s.fail("list_operations", err)
	}
	return ops, nil
}

// ListSizes returns the size catalog.
func (s *Service) ListSizes(ctx context.Context) (sizes []models.Size, err error) {
	err = s.store.View(ctx, func(ctx context.Context, r repository.Reader) error {
		var err error
		sizes, err = r.ListSizes(ctx)
		return err
	})
	if err != nil {
		return nil, s.fail("list_sizes", err)
	}
	return sizes, nil
}
