// Package repository declares the persistence port shared by every storage backend of
// the sales engine.
package repository

import (
	"context"

	"github.com/mamadbah2/shellsale/internal/domain/models"
)

// Store is a transactional sale store.
type Store interface {
	// WithinTx runs fn in one transaction. Any error returned by fn rolls back every
	// write made through tx. Backends may invoke fn more than once on transient
	// conflicts, so fn must not leak side effects outside tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn against a consistent read-only view.
	View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
	// SeedCatalog upserts sizes, baskets and operations owned by collaborators.
	SeedCatalog(ctx context.Context, catalog models.Catalog) error
	Close(ctx context.Context) error
}

// Reader exposes the read-side queries.
type Reader interface {
	GetSale(ctx context.Context, id int64) (models.Sale, error)
	// ListBags returns the bags of a sale ordered by bag number, allocations included
	// and decorated with basket physical numbers.
	ListBags(ctx context.Context, saleID int64) ([]models.Bag, error)
	// ListClaims returns the claims of a sale decorated with basket number and operation date.
	ListClaims(ctx context.Context, saleID int64) ([]models.OperationClaim, error)
	// ListSales returns one page of sales, newest first, plus the total match count.
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, int, error)
	ListAvailableOperations(ctx context.Context, filter models.OperationFilter) ([]models.AvailableOperation, error)
	ListSizes(ctx context.Context) ([]models.Size, error)
	FindOperations(ctx context.Context, ids []int64) ([]models.Operation, error)
	// ClaimedOperationIDs returns the subset of ids that already carry a claim.
	ClaimedOperationIDs(ctx context.Context, ids []int64) ([]int64, error)
}

// Tx is the write side available inside WithinTx.
type Tx interface {
	Reader
	// NextSaleSequence atomically allocates the next display-code sequence value.
	NextSaleSequence(ctx context.Context) (int64, error)
	// InsertSale persists a new sale and assigns its ID.
	InsertSale(ctx context.Context, sale *models.Sale) error
	// InsertClaims persists claims and assigns their IDs. A claim on an operation that
	// is already claimed fails with models.ErrConflict.
	InsertClaims(ctx context.Context, claims []models.OperationClaim) error
	// LockSale loads a sale and holds it exclusively until the transaction ends.
	LockSale(ctx context.Context, id int64) (models.Sale, error)
	// UpdateSale overwrites a sale when its stored version equals expectedVersion,
	// otherwise fails with models.ErrConflict.
	UpdateSale(ctx context.Context, sale models.Sale, expectedVersion int64) error
	// DeleteBags removes every bag of a sale together with its allocations.
	DeleteBags(ctx context.Context, saleID int64) error
	// InsertBag persists a bag with its allocations and assigns their IDs.
	InsertBag(ctx context.Context, bag *models.Bag) error
}
