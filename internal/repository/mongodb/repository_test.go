package mongodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(mongo.ErrNoDocuments, "sale 1"), models.ErrNotFound)

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, mapError(dup, "claim"), models.ErrConflict)

	other := errors.New("socket closed")
	got := mapError(other, "insert")
	assert.ErrorIs(t, got, other)
	assert.Equal(t, models.ErrInternal, models.KindOf(got))
}

// openTestRepository needs SHELLSALE_TEST_MONGO_URI pointing at a replica set.
func openTestRepository(t *testing.T) *MongoDBRepository {
	t.Helper()
	uri := os.Getenv("SHELLSALE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SHELLSALE_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := fmt.Sprintf("shellsale_test_%d", time.Now().UnixNano())
	repo, err := NewMongoDBRepository(ctx, uri, dbName, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Database().Drop(context.Background())
		_ = repo.Close(context.Background())
	})

	require.NoError(t, repo.EnsureIndexes(ctx))
	require.NoError(t, repo.SeedCatalog(ctx, models.Catalog{
		Baskets: []models.Basket{{ID: 10, PhysicalNumber: 7}},
		Operations: []models.Operation{
			{ID: 101, Type: models.OperationTypeSaleHarvest, BasketID: 10, Date: "2024-05-02", AnimalCount: ptr[int64](5000), TotalWeight: ptr(10.0), AnimalsPerKg: ptr(500.0)},
		},
	}))
	return repo
}

func TestRepositoryTransactions(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	var saleID int64
	err := repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		seq, err := tx.NextSaleSequence(ctx)
		if err != nil {
			return err
		}
		sale := &models.Sale{SaleNumber: models.FormatSaleNumber(seq), SaleDate: "2024-05-03", Status: models.SaleStatusDraft, Version: 1}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		saleID = sale.ID
		return tx.InsertClaims(ctx, []models.OperationClaim{{SaleID: sale.ID, OperationID: 101, BasketID: 10, OriginalAnimals: 5000}})
	})
	require.NoError(t, err)

	err = repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		bag := &models.Bag{SaleID: saleID, BagNumber: 1, Allocations: []models.Allocation{{SourceOperationID: 101, SourceBasketID: 10, AllocatedAnimals: 10}}}
		if err := tx.InsertBag(ctx, bag); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	err = repo.View(ctx, func(ctx context.Context, r repository.Reader) error {
		bags, err := r.ListBags(ctx, saleID)
		require.NoError(t, err)
		assert.Empty(t, bags, "aborted transaction leaves no bags")

		claims, err := r.ListClaims(ctx, saleID)
		require.NoError(t, err)
		require.Len(t, claims, 1)
		require.NotNil(t, claims[0].BasketPhysicalNumber)
		assert.Equal(t, 7, *claims[0].BasketPhysicalNumber)
		assert.Equal(t, "2024-05-02", claims[0].Date)
		return nil
	})
	require.NoError(t, err)

	err = repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertClaims(ctx, []models.OperationClaim{{SaleID: saleID, OperationID: 101}})
	})
	require.ErrorIs(t, err, models.ErrConflict)

	err = repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		return tx.UpdateSale(ctx, sale, sale.Version+1)
	})
	require.ErrorIs(t, err, models.ErrConflict)
}
