// Package mongodb implements the sale store on MongoDB. Mutations run inside
// multi-document transactions, so the server must be a replica set.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

var _ repository.Store = (*MongoDBRepository)(nil)

const (
	collSales      = "advanced_sales"
	collClaims     = "sale_operations_ref"
	collBags       = "sale_bags"
	collOperations = "operations"
	collBaskets    = "baskets"
	collSizes      = "sizes"
	collCounters   = "counters"

	seqSaleNumber = "sale_number"
	seqSale       = "sale"
	seqClaim      = "claim"
	seqBag        = "bag"
	seqAllocation = "allocation"
)

// MongoDBRepository is a MongoDB-backed sale store.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoDBRepository connects to uri and verifies the connection.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger.Named("mongodb"),
	}, nil
}

// EnsureIndexes creates the unique indexes the store relies on.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collSales: {
			{Keys: bson.D{{Key: "sale_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		},
		collClaims: {
			{Keys: bson.D{{Key: "operation_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "sale_id", Value: 1}}},
		},
		collBags: {
			{Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "bag_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collOperations: {
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "date", Value: -1}}},
		},
	}
	for coll, specs := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	r.logger.Info("indexes ensured")
	return nil
}

// WithinTx implements repository.Store. The driver retries fn on transient
// transaction errors.
func (r *MongoDBRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &transaction{reader: reader{db: r.db}})
	}, txOpts)
	return err
}

// View implements repository.Store.
func (r *MongoDBRepository) View(ctx context.Context, fn func(ctx context.Context, rd repository.Reader) error) error {
	return fn(ctx, reader{db: r.db})
}

// SeedCatalog implements repository.Store.
func (r *MongoDBRepository) SeedCatalog(ctx context.Context, catalog models.Catalog) error {
	upsert := func(coll string, id int64, doc interface{}) error {
		_, err := r.db.Collection(coll).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to seed %s %d: %w", coll, id, err)
		}
		return nil
	}
	for _, s := range catalog.Sizes {
		if err := upsert(collSizes, s.ID, s); err != nil {
			return err
		}
	}
	for _, b := range catalog.Baskets {
		if err := upsert(collBaskets, b.ID, b); err != nil {
			return err
		}
	}
	for _, op := range catalog.Operations {
		if err := upsert(collOperations, op.ID, op); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Database exposes the database handle for tests.
func (r *MongoDBRepository) Database() *mongo.Database { return r.db }

type reader struct {
	db *mongo.Database
}

func (r reader) GetSale(ctx context.Context, id int64) (models.Sale, error) {
	var sale models.Sale
	err := r.db.Collection(collSales).FindOne(ctx, bson.M{"_id": id}).Decode(&sale)
	if err != nil {
		return models.Sale{}, mapError(err, fmt.Sprintf("sale %d", id))
	}
	return sale, nil
}

func (r reader) ListBags(ctx context.Context, saleID int64) ([]models.Bag, error) {
	bags := []models.Bag{}
	if err := r.findAll(ctx, collBags, bson.M{"sale_id": saleID}, options.Find().SetSort(bson.D{{Key: "bag_number", Value: 1}}), &bags); err != nil {
		return nil, err
	}

	var basketIDs []int64
	for _, b := range bags {
		for _, a := range b.Allocations {
			basketIDs = append(basketIDs, a.SourceBasketID)
		}
	}
	numbers, err := r.basketNumbers(ctx, basketIDs)
	if err != nil {
		return nil, err
	}
	for i := range bags {
		if bags[i].Allocations == nil {
			bags[i].Allocations = []models.Allocation{}
		}
		for j := range bags[i].Allocations {
			bags[i].Allocations[j].BasketPhysicalNumber = numbers[bags[i].Allocations[j].SourceBasketID]
		}
	}
	return bags, nil
}

func (r reader) ListClaims(ctx context.Context, saleID int64) ([]models.OperationClaim, error) {
	claims := []models.OperationClaim{}
	if err := r.findAll(ctx, collClaims, bson.M{"sale_id": saleID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}), &claims); err != nil {
		return nil, err
	}

	basketIDs := make([]int64, 0, len(claims))
	opIDs := make([]int64, 0, len(claims))
	for _, c := range claims {
		basketIDs = append(basketIDs, c.BasketID)
		opIDs = append(opIDs, c.OperationID)
	}
	numbers, err := r.basketNumbers(ctx, basketIDs)
	if err != nil {
		return nil, err
	}
	ops, err := r.FindOperations(ctx, opIDs)
	if err != nil {
		return nil, err
	}
	dates := make(map[int64]string, len(ops))
	for _, op := range ops {
		dates[op.ID] = op.Date
	}
	for i := range claims {
		claims[i].BasketPhysicalNumber = numbers[claims[i].BasketID]
		claims[i].Date = dates[claims[i].OperationID]
	}
	return claims, nil
}

func (r reader) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, int, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	dateRange := bson.M{}
	if filter.DateFrom != "" {
		dateRange["$gte"] = filter.DateFrom
	}
	if filter.DateTo != "" {
		dateRange["$lte"] = filter.DateTo
	}
	if len(dateRange) > 0 {
		query["sale_date"] = dateRange
	}

	total, err := r.db.Collection(collSales).CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sales: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((filter.Page - 1) * filter.PageSize)).
		SetLimit(int64(filter.PageSize))
	sales := []models.Sale{}
	if err := r.findAll(ctx, collSales, query, opts, &sales); err != nil {
		return nil, 0, err
	}
	return sales, int(total), nil
}

func (r reader) ListAvailableOperations(ctx context.Context, filter models.OperationFilter) ([]models.AvailableOperation, error) {
	query := bson.M{
		"type":           models.OperationTypeSaleHarvest,
		"animal_count":   bson.M{"$ne": nil},
		"total_weight":   bson.M{"$ne": nil},
		"animals_per_kg": bson.M{"$ne": nil},
	}
	dateRange := bson.M{}
	if filter.DateFrom != "" {
		dateRange["$gte"] = filter.DateFrom
	}
	if filter.DateTo != "" {
		dateRange["$lte"] = filter.DateTo
	}
	if len(dateRange) > 0 {
		query["date"] = dateRange
	}

	var ops []models.Operation
	if err := r.findAll(ctx, collOperations, query, nil, &ops); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(ops))
	basketIDs := make([]int64, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.ID)
		basketIDs = append(basketIDs, op.BasketID)
	}
	claimed, err := r.ClaimedOperationIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	claimedSet := make(map[int64]bool, len(claimed))
	for _, id := range claimed {
		claimedSet[id] = true
	}
	numbers, err := r.basketNumbers(ctx, basketIDs)
	if err != nil {
		return nil, err
	}
	sizes, err := r.ListSizes(ctx)
	if err != nil {
		return nil, err
	}
	sizeByID := make(map[int64]models.Size, len(sizes))
	for _, s := range sizes {
		sizeByID[s.ID] = s
	}

	out := make([]models.AvailableOperation, 0, len(ops))
	for _, op := range ops {
		if !op.Sellable() || claimedSet[op.ID] != filter.Processed {
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
			BasketPhysicalNumber: numbers[op.BasketID],
			Processed:            claimedSet[op.ID],
		}
		if op.SizeID != nil {
			if size, ok := sizeByID[*op.SizeID]; ok {
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

func (r reader) ListSizes(ctx context.Context) ([]models.Size, error) {
	sizes := []models.Size{}
	if err := r.findAll(ctx, collSizes, bson.M{}, options.Find().SetSort(bson.D{{Key: "code", Value: 1}}), &sizes); err != nil {
		return nil, err
	}
	return sizes, nil
}

func (r reader) FindOperations(ctx context.Context, ids []int64) ([]models.Operation, error) {
	ops := []models.Operation{}
	if len(ids) == 0 {
		return ops, nil
	}
	if err := r.findAll(ctx, collOperations, bson.M{"_id": bson.M{"$in": ids}}, nil, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func (r reader) ClaimedOperationIDs(ctx context.Context, ids []int64) ([]int64, error) {
	claimed := []int64{}
	if len(ids) == 0 {
		return claimed, nil
	}
	var claims []models.OperationClaim
	opts := options.Find().SetSort(bson.D{{Key: "operation_id", Value: 1}})
	if err := r.findAll(ctx, collClaims, bson.M{"operation_id": bson.M{"$in": ids}}, opts, &claims); err != nil {
		return nil, err
	}
	for _, c := range claims {
		claimed = append(claimed, c.OperationID)
	}
	return claimed, nil
}

func (r reader) basketNumbers(ctx context.Context, ids []int64) (map[int64]*int, error) {
	out := make(map[int64]*int)
	if len(ids) == 0 {
		return out, nil
	}
	var baskets []models.Basket
	if err := r.findAll(ctx, collBaskets, bson.M{"_id": bson.M{"$in": ids}}, nil, &baskets); err != nil {
		return nil, err
	}
	for _, b := range baskets {
		n := b.PhysicalNumber
		out[b.ID] = &n
	}
	return out, nil
}

func (r reader) findAll(ctx context.Context, coll string, filter interface{}, opts *options.FindOptions, out interface{}) error {
	if opts == nil {
		opts = options.Find()
	}
	cursor, err := r.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", coll, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", coll, err)
	}
	return nil
}

type transaction struct {
	reader
}

// next increments a named counter and returns its new value.
func (t *transaction) next(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := t.db.Collection(collCounters).
		FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"value": int64(1)}}, opts).
		Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %w", name, err)
	}
	return counter.Value, nil
}

func (t *transaction) NextSaleSequence(ctx context.Context) (int64, error) {
	return t.next(ctx, seqSaleNumber)
}

func (t *transaction) InsertSale(ctx context.Context, sale *models.Sale) error {
	id, err := t.next(ctx, seqSale)
	if err != nil {
		return err
	}
	sale.ID = id
	if _, err := t.db.Collection(collSales).InsertOne(ctx, sale); err != nil {
		return mapError(err, "insert sale "+sale.SaleNumber)
	}
	return nil
}

func (t *transaction) InsertClaims(ctx context.Context, claims []models.OperationClaim) error {
	for i := range claims {
		id, err := t.next(ctx, seqClaim)
		if err != nil {
			return err
		}
		claims[i].ID = id
		if _, err := t.db.Collection(collClaims).InsertOne(ctx, claims[i]); err != nil {
			return mapError(err, fmt.Sprintf("claim operation %d", claims[i].OperationID))
		}
	}
	return nil
}

// LockSale reads the sale inside the transaction. Concurrent writers to the same
// sale surface as write conflicts when UpdateSale runs.
func (t *transaction) LockSale(ctx context.Context, id int64) (models.Sale, error) {
	return t.GetSale(ctx, id)
}

func (t *transaction) UpdateSale(ctx context.Context, sale models.Sale, expectedVersion int64) error {
	res, err := t.db.Collection(collSales).ReplaceOne(ctx, bson.M{"_id": sale.ID, "version": expectedVersion}, sale)
	if err != nil {
		return mapError(err, "update sale "+sale.SaleNumber)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: sale %d is no longer at version %d", models.ErrConflict, sale.ID, expectedVersion)
	}
	return nil
}

func (t *transaction) DeleteBags(ctx context.Context, saleID int64) error {
	if _, err := t.db.Collection(collBags).DeleteMany(ctx, bson.M{"sale_id": saleID}); err != nil {
		return fmt.Errorf("failed to delete bags: %w", err)
	}
	return nil
}

func (t *transaction) InsertBag(ctx context.Context, bag *models.Bag) error {
	id, err := t.next(ctx, seqBag)
	if err != nil {
		return err
	}
	bag.ID = id
	for i := range bag.Allocations {
		allocID, err := t.next(ctx, seqAllocation)
		if err != nil {
			return err
		}
		bag.Allocations[i].ID = allocID
		bag.Allocations[i].BagID = bag.ID
	}
	if _, err := t.db.Collection(collBags).InsertOne(ctx, bag); err != nil {
		return mapError(err, fmt.Sprintf("insert bag %d", bag.BagNumber))
	}
	return nil
}

func mapError(err error, what string) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s: duplicate key", models.ErrConflict, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
