package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements("CREATE TABLE a (id INT);\n\n  ;CREATE INDEX b ON a (id);\n")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX b ON a (id)"}, stmts)

	for _, stmt := range SplitStatements(schema) {
		assert.NotContains(t, stmt, ";")
	}
}

func TestSaleFilterClause(t *testing.T) {
	confirmed := models.SaleStatusConfirmed

	where, args, err := saleFilterClause(models.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args, err = saleFilterClause(models.SaleFilter{Status: &confirmed, DateFrom: "2024-05-01", DateTo: "2024-05-31"})
	require.NoError(t, err)
	assert.Equal(t, " WHERE status = $1 AND sale_date >= $2 AND sale_date <= $3", where)
	require.Len(t, args, 3)
	assert.Equal(t, "confirmed", args[0])

	_, _, err = saleFilterClause(models.SaleFilter{DateTo: "31/05/2024"})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: models.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: uniqueViolation, ConstraintName: "sale_operations_ref_operation_id_key"}, want: models.ErrConflict},
		{name: "check violation", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: checkViolation}), want: models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err, "op"), tt.want)
		})
	}

	plain := errors.New("connection reset")
	got := mapError(plain, "op")
	assert.ErrorIs(t, got, plain)
	assert.Equal(t, models.ErrInternal, models.KindOf(got))
}

// openTestStore connects to SHELLSALE_TEST_POSTGRES_DSN; the database is reset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SHELLSALE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SHELLSALE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	_, err = store.Pool().Exec(ctx, `DROP TABLE IF EXISTS bag_allocations, sale_bags, sale_operations_ref,
		advanced_sales, sale_counters, operations, baskets, sizes CASCADE`)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations are idempotent")

	require.NoError(t, store.SeedCatalog(ctx, models.Catalog{
		Sizes:   []models.Size{{ID: 1, Code: "T3", Name: "Taglia 3", MinAnimalsPerKg: ptr[int64](400), MaxAnimalsPerKg: ptr[int64](600)}},
		Baskets: []models.Basket{{ID: 10, PhysicalNumber: 7}},
		Operations: []models.Operation{
			{ID: 101, Type: models.OperationTypeSaleHarvest, BasketID: 10, Date: "2024-05-02", AnimalCount: ptr[int64](5000), TotalWeight: ptr(10.0), AnimalsPerKg: ptr(500.0), SizeID: ptr[int64](1)},
		},
	}))
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var saleID int64
	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		seq, err := tx.NextSaleSequence(ctx)
		if err != nil {
			return err
		}
		sale := &models.Sale{
			SaleNumber: models.FormatSaleNumber(seq), SaleDate: "2024-05-03", Status: models.SaleStatusDraft, Version: 1,
			CustomerName: "Mercato", CustomerDetails: &models.CustomerSnapshot{Name: "Mercato", City: "Chioggia"},
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		saleID = sale.ID
		if err := tx.InsertClaims(ctx, []models.OperationClaim{{SaleID: sale.ID, OperationID: 101, BasketID: 10, OriginalAnimals: 5000, OriginalWeight: 10, OriginalAnimalsPerKg: 500, IncludedInSale: true}}); err != nil {
			return err
		}
		bag := &models.Bag{SaleID: sale.ID, BagNumber: 1, SizeCode: "T3", TotalWeight: 8.5, OriginalWeight: 10, WeightLoss: 1.5,
			AnimalCount: 4000, AnimalsPerKg: 475, OriginalAnimalsPerKg: 500,
			Allocations: []models.Allocation{{SourceOperationID: 101, SourceBasketID: 10, AllocatedAnimals: 4000, AllocatedWeight: 8.5}}}
		if err := tx.InsertBag(ctx, bag); err != nil {
			return err
		}
		assert.NotZero(t, bag.Allocations[0].ID)
		return nil
	})
	require.NoError(t, err)

	err = store.View(ctx, func(ctx context.Context, r repository.Reader) error {
		sale, err := r.GetSale(ctx, saleID)
		require.NoError(t, err)
		assert.Equal(t, "VAV-000001", sale.SaleNumber)
		assert.Equal(t, "2024-05-03", sale.SaleDate)
		require.NotNil(t, sale.CustomerDetails)
		assert.Equal(t, "Chioggia", sale.CustomerDetails.City)

		bags, err := r.ListBags(ctx, saleID)
		require.NoError(t, err)
		require.Len(t, bags, 1)
		require.Len(t, bags[0].Allocations, 1)
		require.NotNil(t, bags[0].Allocations[0].BasketPhysicalNumber)
		assert.Equal(t, 7, *bags[0].Allocations[0].BasketPhysicalNumber)

		claims, err := r.ListClaims(ctx, saleID)
		require.NoError(t, err)
		require.Len(t, claims, 1)
		assert.Equal(t, "2024-05-02", claims[0].Date)

		processed, err := r.ListAvailableOperations(ctx, models.OperationFilter{Processed: true})
		require.NoError(t, err)
		require.Len(t, processed, 1)
		assert.Equal(t, "T3", processed[0].SizeCode)
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertClaims(ctx, []models.OperationClaim{{SaleID: saleID, OperationID: 101, BasketID: 10}})
	})
	require.ErrorIs(t, err, models.ErrConflict)

	err = store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		sale.Version = 3
		return tx.UpdateSale(ctx, sale, 2)
	})
	require.ErrorIs(t, err, models.ErrConflict)

	err = store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertBag(ctx, &models.Bag{SaleID: saleID, BagNumber: 2, WeightLoss: 2})
	})
	require.ErrorIs(t, err, models.ErrValidation)
}
