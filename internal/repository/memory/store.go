// Package memory provides an in-memory transactional sale store used by tests, local
// runs and the SQLite snapshot backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// CommitHook receives the state a transaction is about to commit. Returning an error
// aborts the commit and leaves the previous state in place.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option customises a Store.
type Option func(*Store)

// WithCommitHook installs a hook that runs before every commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// Store serialises transactions behind a single lock. Each transaction works on a
// private copy of the state which replaces the shared state only on success.
type Store struct {
	mu    sync.RWMutex
	state state
	hook  CommitHook
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{state: newState()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx implements repository.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{view: view{st: s.state.clone()}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if s.hook != nil {
		if err := s.hook(ctx, tx.st.snapshot()); err != nil {
			return fmt.Errorf("%w: commit: %v", models.ErrInternal, err)
		}
	}
	s.state = tx.st
	return nil
}

// View implements repository.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r repository.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, view{st: s.state})
}

// SeedCatalog implements repository.Store.
func (s *Store) SeedCatalog(ctx context.Context, catalog models.Catalog) error {
	return s.WithinTx(ctx, func(_ context.Context, tx repository.Tx) error {
		st := tx.(*transaction).st
		for _, size := range catalog.Sizes {
			st.sizes[size.ID] = size
		}
		for _, basket := range catalog.Baskets {
			st.baskets[basket.ID] = basket
		}
		for _, op := range catalog.Operations {
			st.operations[op.ID] = op
		}
		return nil
	})
}

// ExportState clones the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// ImportState replaces the committed state with the snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snapshot)
}

// Close implements repository.Store.
func (s *Store) Close(context.Context) error { return nil }

type view struct {
	st state
}

func (v view) GetSale(_ context.Context, id int64) (models.Sale, error) {
	sale, ok := v.st.sales[id]
	if !ok {
		return models.Sale{}, fmt.Errorf("%w: sale %d", models.ErrNotFound, id)
	}
	return cloneSale(sale), nil
}

func (v view) ListBags(_ context.Context, saleID int64) ([]models.Bag, error) {
	bags := make([]models.Bag, 0)
	for _, bag := range v.st.bags {
		if bag.SaleID != saleID {
			continue
		}
		bag = cloneBag(bag)
		for i := range bag.Allocations {
			bag.Allocations[i].BasketPhysicalNumber = v.basketNumber(bag.Allocations[i].SourceBasketID)
		}
		bags = append(bags, bag)
	}
	sort.Slice(bags, func(i, j int) bool { return bags[i].BagNumber < bags[j].BagNumber })
	return bags, nil
}

func (v view) ListClaims(_ context.Context, saleID int64) ([]models.OperationClaim, error) {
	claims := make([]models.OperationClaim, 0)
	for _, claim := range v.st.claims {
		if claim.SaleID != saleID {
			continue
		}
		claim.BasketPhysicalNumber = v.basketNumber(claim.BasketID)
		if op, ok := v.st.operations[claim.OperationID]; ok {
			claim.Date = op.Date
		}
		claims = append(claims, claim)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].ID < claims[j].ID })
	return claims, nil
}

func (v view) ListSales(_ context.Context, filter models.SaleFilter) ([]models.Sale, int, error) {
	matched := make([]models.Sale, 0)
	for _, sale := range v.st.sales {
		if filter.Status != nil && sale.Status != *filter.Status {
			continue
		}
		if filter.DateFrom != "" && sale.SaleDate < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && sale.SaleDate > filter.DateTo {
			continue
		}
		matched = append(matched, cloneSale(sale))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start < 0 || start >= total {
		return []models.Sale{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (v view) ListAvailableOperations(_ context.Context, filter models.OperationFilter) ([]models.AvailableOperation, error) {
	out := make([]models.AvailableOperation, 0)
	for _, op := range v.st.operations {
		if !op.Sellable() {
			continue
		}
		if filter.DateFrom != "" && op.Date < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && op.Date > filter.DateTo {
			continue
		}
		_, processed := v.st.claimByOp[op.ID]
		if processed != filter.Processed {
			continue
		}
		item := models.AvailableOperation{
			OperationID:          op.ID,
			BasketID:             op.BasketID,
			Date:                 op.Date,
			AnimalCount:          *op.AnimalCount,
			TotalWeight:          *op.TotalWeight,
			AnimalsPerKg:         *op.AnimalsPerKg,
			SizeID:               op.SizeID,
			BasketPhysicalNumber: v.basketNumber(op.BasketID),
			Processed:            processed,
		}
		if op.SizeID != nil {
			if size, ok := v.st.sizes[*op.SizeID]; ok {
				item.SizeCode = size.Code
				item.SizeName = size.Name
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].OperationID > out[j].OperationID
	})
	return out, nil
}

func (v view) ListSizes(context.Context) ([]models.Size, error) {
	sizes := make([]models.Size, 0, len(v.st.sizes))
	for _, size := range v.st.sizes {
		sizes = append(sizes, size)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Code < sizes[j].Code })
	return sizes, nil
}

func (v view) FindOperations(_ context.Context, ids []int64) ([]models.Operation, error) {
	ops := make([]models.Operation, 0, len(ids))
	for _, id := range ids {
		if op, ok := v.st.operations[id]; ok {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func (v view) ClaimedOperationIDs(_ context.Context, ids []int64) ([]int64, error) {
	claimed := make([]int64, 0)
	for _, id := range ids {
		if _, ok := v.st.claimByOp[id]; ok {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

func (v view) basketNumber(id int64) *int {
	basket, ok := v.st.baskets[id]
	if !ok {
		return nil
	}
	n := basket.PhysicalNumber
	return &n
}

type transaction struct {
	view
}

func (tx *transaction) NextSaleSequence(context.Context) (int64, error) {
	tx.st.counters.SaleNumber++
	return tx.st.counters.SaleNumber, nil
}

func (tx *transaction) InsertSale(_ context.Context, sale *models.Sale) error {
	for _, existing := range tx.st.sales {
		if existing.SaleNumber == sale.SaleNumber {
			return fmt.Errorf("%w: sale number %s already assigned", models.ErrConflict, sale.SaleNumber)
		}
	}
	tx.st.counters.Sale++
	sale.ID = tx.st.counters.Sale
	tx.st.sales[sale.ID] = cloneSale(*sale)
	return nil
}

func (tx *transaction) InsertClaims(_ context.Context, claims []models.OperationClaim) error {
	for i := range claims {
		if _, taken := tx.st.claimByOp[claims[i].OperationID]; taken {
			return fmt.Errorf("%w: operation %d already claimed", models.ErrConflict, claims[i].OperationID)
		}
		tx.st.counters.Claim++
		claims[i].ID = tx.st.counters.Claim
		stored := claims[i]
		stored.BasketPhysicalNumber = nil
		stored.Date = ""
		tx.st.claims[stored.ID] = stored
		tx.st.claimByOp[stored.OperationID] = stored.ID
	}
	return nil
}

func (tx *transaction) LockSale(ctx context.Context, id int64) (models.Sale, error) {
	return tx.GetSale(ctx, id)
}

func (tx *transaction) UpdateSale(_ context.Context, sale models.Sale, expectedVersion int64) error {
	current, ok := tx.st.sales[sale.ID]
	if !ok {
		return fmt.Errorf("%w: sale %d", models.ErrNotFound, sale.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: sale %d is at version %d, expected %d", models.ErrConflict, sale.ID, current.Version, expectedVersion)
	}
	tx.st.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (tx *transaction) DeleteBags(_ context.Context, saleID int64) error {
	for id, bag := range tx.st.bags {
		if bag.SaleID == saleID {
			delete(tx.st.bags, id)
		}
	}
	return nil
}

func (tx *transaction) InsertBag(_ context.Context, bag *models.Bag) error {
	if _, ok := tx.st.sales[bag.SaleID]; !ok {
		return fmt.Errorf("%w: sale %d", models.ErrNotFound, bag.SaleID)
	}
	for _, existing := range tx.st.bags {
		if existing.SaleID == bag.SaleID && existing.BagNumber == bag.BagNumber {
			return fmt.Errorf("%w: bag number %d already used in sale %d", models.ErrConflict, bag.BagNumber, bag.SaleID)
		}
	}
	tx.st.counters.Bag++
	bag.ID = tx.st.counters.Bag
	for i := range bag.Allocations {
		tx.st.counters.Allocation++
		bag.Allocations[i].ID = tx.st.counters.Allocation
		bag.Allocations[i].BagID = bag.ID
	}
	stored := cloneBag(*bag)
	for i := range stored.Allocations {
		stored.Allocations[i].BasketPhysicalNumber = nil
	}
	tx.st.bags[bag.ID] = stored
	return nil
}
