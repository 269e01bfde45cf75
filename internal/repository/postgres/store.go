// Package postgres implements the sale store on PostgreSQL with pgx. Sale rows are
// locked with SELECT ... FOR UPDATE, display codes come from an atomic counter row and
// the one-claim-per-operation rule is a unique index.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

var _ repository.Store = (*Store)(nil)

//go:embed schema.sql
var schema string

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"

	saleNumberCounter = "sale_number"
)

// Store is a pgx-backed sale store.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore connects to dsn and verifies the connection.
func NewStore(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger.Named("postgres")}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range SplitStatements(schema) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	s.logger.Info("schema applied")
	return nil
}

// SplitStatements breaks a DDL script on semicolons, dropping empty statements.
func SplitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// WithinTx implements repository.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &transaction{reader: reader{q: tx}, tx: tx})
	})
}

// View implements repository.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r repository.Reader) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, reader{q: tx})
	})
}

// SeedCatalog implements repository.Store.
func (s *Store) SeedCatalog(ctx context.Context, catalog models.Catalog) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, size := range catalog.Sizes {
			batch.Queue(`INSERT INTO sizes (id, code, name, min_animals_per_kg, max_animals_per_kg)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name,
					min_animals_per_kg = EXCLUDED.min_animals_per_kg, max_animals_per_kg = EXCLUDED.max_animals_per_kg`,
				size.ID, size.Code, size.Name, size.MinAnimalsPerKg, size.MaxAnimalsPerKg)
		}
		for _, b := range catalog.Baskets {
			batch.Queue(`INSERT INTO baskets (id, physical_number, flupsy_id, cycle_code)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET physical_number = EXCLUDED.physical_number,
					flupsy_id = EXCLUDED.flupsy_id, cycle_code = EXCLUDED.cycle_code`,
				b.ID, b.PhysicalNumber, b.FlupsyID, b.CycleCode)
		}
		for _, op := range catalog.Operations {
			date, err := parseDate(op.Date)
			if err != nil {
				return fmt.Errorf("%w: operation %d: %v", models.ErrValidation, op.ID, err)
			}
			batch.Queue(`INSERT INTO operations (id, type, basket_id, date, animal_count, total_weight, animals_per_kg, size_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, basket_id = EXCLUDED.basket_id, date = EXCLUDED.date,
					animal_count = EXCLUDED.animal_count, total_weight = EXCLUDED.total_weight,
					animals_per_kg = EXCLUDED.animals_per_kg, size_id = EXCLUDED.size_id`,
				op.ID, op.Type, op.BasketID, date, op.AnimalCount, op.TotalWeight, op.AnimalsPerKg, op.SizeID)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		return nil
	})
}

// Close releases the pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// Pool exposes the pool for tests and tooling.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type reader struct {
	q querier
}

const saleColumns = `id, sale_number, customer_id, customer_name, customer_details,
	to_char(sale_date, 'YYYY-MM-DD'), status, total_animals, total_weight, total_bags,
	notes, pdf_path, version, created_at, updated_at`

func scanSale(row pgx.Row) (models.Sale, error) {
	var sale models.Sale
	var details []byte
	var status string
	err := row.Scan(&sale.ID, &sale.SaleNumber, &sale.CustomerID, &sale.CustomerName, &details,
		&sale.SaleDate, &status, &sale.TotalAnimals, &sale.TotalWeight, &sale.TotalBags,
		&sale.Notes, &sale.DocumentPath, &sale.Version, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return models.Sale{}, err
	}
	sale.Status = models.SaleStatus(status)
	if len(details) > 0 {
		var snapshot models.CustomerSnapshot
		if err := json.Unmarshal(details, &snapshot); err != nil {
			return models.Sale{}, fmt.Errorf("decode customer details: %w", err)
		}
		sale.CustomerDetails = &snapshot
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

func (r reader) GetSale(ctx context.Context, id int64) (models.Sale, error) {
	sale, err := scanSale(r.q.QueryRow(ctx, `SELECT `+saleColumns+` FROM advanced_sales WHERE id = $1`, id))
	if err != nil {
		return models.Sale{}, mapError(err, fmt.Sprintf("sale %d", id))
	}
	return sale, nil
}

func (r reader) ListBags(ctx context.Context, saleID int64) ([]models.Bag, error) {
	rows, err := r.q.Query(ctx, `SELECT id, advanced_sale_id, bag_number, size_code, total_weight, original_weight,
			weight_loss, animal_count, animals_per_kg, original_animals_per_kg, waste_percentage, notes
		FROM sale_bags WHERE advanced_sale_id = $1 ORDER BY bag_number`, saleID)
	if err != nil {
		return nil, mapError(err, "list bags")
	}
	bags, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Bag, error) {
		var b models.Bag
		err := row.Scan(&b.ID, &b.SaleID, &b.BagNumber, &b.SizeCode, &b.TotalWeight, &b.OriginalWeight,
			&b.WeightLoss, &b.AnimalCount, &b.AnimalsPerKg, &b.OriginalAnimalsPerKg, &b.WastePercentage, &b.Notes)
		b.Allocations = []models.Allocation{}
		return b, err
	})
	if err != nil {
		return nil, mapError(err, "scan bags")
	}
	if len(bags) == 0 {
		return bags, nil
	}

	index := make(map[int64]int, len(bags))
	ids := make([]int64, len(bags))
	for i, b := range bags {
		index[b.ID] = i
		ids[i] = b.ID
	}

	rows, err = r.q.Query(ctx, `SELECT a.id, a.sale_bag_id, a.source_operation_id, a.source_basket_id,
			a.allocated_animals, a.allocated_weight, a.source_animals_per_kg, a.source_size_code, b.physical_number
		FROM bag_allocations a
		LEFT JOIN baskets b ON b.id = a.source_basket_id
		WHERE a.sale_bag_id = ANY($1)
		ORDER BY a.id`, ids)
	if err != nil {
		return nil, mapError(err, "list allocations")
	}
	allocs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Allocation, error) {
		var a models.Allocation
		err := row.Scan(&a.ID, &a.BagID, &a.SourceOperationID, &a.SourceBasketID,
			&a.AllocatedAnimals, &a.AllocatedWeight, &a.SourceAnimalsPerKg, &a.SourceSizeCode, &a.BasketPhysicalNumber)
		return a, err
	})
	if err != nil {
		return nil, mapError(err, "scan allocations")
	}
	for _, a := range allocs {
		i := index[a.BagID]
		bags[i].Allocations = append(bags[i].Allocations, a)
	}
	return bags, nil
}

func (r reader) ListClaims(ctx context.Context, saleID int64) ([]models.OperationClaim, error) {
	rows, err := r.q.Query(ctx, `SELECT c.id, c.advanced_sale_id, c.operation_id, c.basket_id, c.original_animals,
			c.original_weight, c.original_animals_per_kg, c.included_in_sale, b.physical_number,
			COALESCE(to_char(o.date, 'YYYY-MM-DD'), '')
		FROM sale_operations_ref c
		LEFT JOIN baskets b ON b.id = c.basket_id
		LEFT JOIN operations o ON o.id = c.operation_id
		WHERE c.advanced_sale_id = $1
		ORDER BY c.id`, saleID)
	if err != nil {
		return nil, mapError(err, "list claims")
	}
	claims, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OperationClaim, error) {
		var c models.OperationClaim
		err := row.Scan(&c.ID, &c.SaleID, &c.OperationID, &c.BasketID, &c.OriginalAnimals,
			&c.OriginalWeight, &c.OriginalAnimalsPerKg, &c.IncludedInSale, &c.BasketPhysicalNumber, &c.Date)
		return c, err
	})
	if err != nil {
		return nil, mapError(err, "scan claims")
	}
	return claims, nil
}

func (r reader) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, int, error) {
	where, args, err := saleFilterClause(filter)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM advanced_sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err, "count sales")
	}

	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM advanced_sales%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		saleColumns, where, len(args)-1, len(args))
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err, "list sales")
	}
	sales, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Sale, error) {
		return scanSale(row)
	})
	if err != nil {
		return nil, 0, mapError(err, "scan sales")
	}
	return sales, total, nil
}

// saleFilterClause renders the WHERE clause of ListSales with positional arguments.
func saleFilterClause(filter models.SaleFilter) (string, []any, error) {
	var conds []string
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.DateFrom != "" {
		from, err := parseDate(filter.DateFrom)
		if err != nil {
			return "", nil, fmt.Errorf("%w: dateFrom: %v", models.ErrValidation, err)
		}
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("sale_date >= $%d", len(args)))
	}
	if filter.DateTo != "" {
		to, err := parseDate(filter.DateTo)
		if err != nil {
			return "", nil, fmt.Errorf("%w: dateTo: %v", models.ErrValidation, err)
		}
		args = append(args, to)
		conds = append(conds, fmt.Sprintf("sale_date <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (r reader) ListAvailableOperations(ctx context.Context, filter models.OperationFilter) ([]models.AvailableOperation, error) {
	args := []any{models.OperationTypeSaleHarvest, filter.Processed}
	query := `SELECT o.id, o.basket_id, to_char(o.date, 'YYYY-MM-DD'), o.animal_count, o.total_weight,
			o.animals_per_kg, o.size_id, b.physical_number, COALESCE(s.code, ''), COALESCE(s.name, ''), c.id IS NOT NULL
		FROM operations o
		LEFT JOIN baskets b ON b.id = o.basket_id
		LEFT JOIN sizes s ON s.id = o.size_id
		LEFT JOIN sale_operations_ref c ON c.operation_id = o.id
		WHERE o.type = $1
			AND o.animal_count IS NOT NULL AND o.total_weight IS NOT NULL AND o.animals_per_kg IS NOT NULL
			AND (c.id IS NOT NULL) = $2`
	if filter.DateFrom != "" {
		from, err := parseDate(filter.DateFrom)
		if err != nil {
			return nil, fmt.Errorf("%w: dateFrom: %v", models.ErrValidation, err)
		}
		args = append(args, from)
		query += fmt.Sprintf(" AND o.date >= $%d", len(args))
	}
	if filter.DateTo != "" {
		to, err := parseDate(filter.DateTo)
		if err != nil {
			return nil, fmt.Errorf("%w: dateTo: %v", models.ErrValidation, err)
		}
		args = append(args, to)
		query += fmt.Sprintf(" AND o.date <= $%d", len(args))
	}
	query += " ORDER BY o.date DESC, o.id DESC"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list operations")
	}
	ops, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AvailableOperation, error) {
		var op models.AvailableOperation
		err := row.Scan(&op.OperationID, &op.BasketID, &op.Date, &op.AnimalCount, &op.TotalWeight,
			&op.AnimalsPerKg, &op.SizeID, &op.BasketPhysicalNumber, &op.SizeCode, &op.SizeName, &op.Processed)
		return op, err
	})
	if err != nil {
		return nil, mapError(err, "scan operations")
	}
	return ops, nil
}

func (r reader) ListSizes(ctx context.Context) ([]models.Size, error) {
	rows, err := r.q.Query(ctx, `SELECT id, code, name, min_animals_per_kg, max_animals_per_kg FROM sizes ORDER BY code`)
	if err != nil {
		return nil, mapError(err, "list sizes")
	}
	sizes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Size, error) {
		var s models.Size
		err := row.Scan(&s.ID, &s.Code, &s.Name, &s.MinAnimalsPerKg, &s.MaxAnimalsPerKg)
		return s, err
	})
	if err != nil {
		return nil, mapError(err, "scan sizes")
	}
	return sizes, nil
}

func (r reader) FindOperations(ctx context.Context, ids []int64) ([]models.Operation, error) {
	rows, err := r.q.Query(ctx, `SELECT id, type, basket_id, to_char(date, 'YYYY-MM-DD'), animal_count,
			total_weight, animals_per_kg, size_id
		FROM operations WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapError(err, "find operations")
	}
	ops, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Operation, error) {
		var op models.Operation
		err := row.Scan(&op.ID, &op.Type, &op.BasketID, &op.Date, &op.AnimalCount,
			&op.TotalWeight, &op.AnimalsPerKg, &op.SizeID)
		return op, err
	})
	if err != nil {
		return nil, mapError(err, "scan operations")
	}
	return ops, nil
}

func (r reader) ClaimedOperationIDs(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT operation_id FROM sale_operations_ref WHERE operation_id = ANY($1) ORDER BY operation_id`, ids)
	if err != nil {
		return nil, mapError(err, "claimed operations")
	}
	claimed, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, mapError(err, "scan claimed operations")
	}
	return claimed, nil
}

type transaction struct {
	reader
	tx pgx.Tx
}

func (t *transaction) NextSaleSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sale_counters.value + 1
		RETURNING value`, saleNumberCounter).Scan(&seq)
	if err != nil {
		return 0, mapError(err, "next sale number")
	}
	return seq, nil
}

func (t *transaction) InsertSale(ctx context.Context, sale *models.Sale) error {
	date, err := parseDate(sale.SaleDate)
	if err != nil {
		return fmt.Errorf("%w: saleDate: %v", models.ErrValidation, err)
	}
	details, err := customerJSON(sale.CustomerDetails)
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, `INSERT INTO advanced_sales (sale_number, customer_id, customer_name, customer_details,
			sale_date, status, total_animals, total_weight, total_bags, notes, pdf_path, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		sale.SaleNumber, sale.CustomerID, sale.CustomerName, details, date, string(sale.Status),
		sale.TotalAnimals, sale.TotalWeight, sale.TotalBags, sale.Notes, sale.DocumentPath,
		sale.Version, sale.CreatedAt, sale.UpdatedAt).Scan(&sale.ID)
	if err != nil {
		return mapError(err, "insert sale "+sale.SaleNumber)
	}
	return nil
}

func (t *transaction) InsertClaims(ctx context.Context, claims []models.OperationClaim) error {
	for i := range claims {
		c := &claims[i]
		err := t.tx.QueryRow(ctx, `INSERT INTO sale_operations_ref (advanced_sale_id, operation_id, basket_id,
				original_animals, original_weight, original_animals_per_kg, included_in_sale)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			c.SaleID, c.OperationID, c.BasketID, c.OriginalAnimals, c.OriginalWeight,
			c.OriginalAnimalsPerKg, c.IncludedInSale).Scan(&c.ID)
		if err != nil {
			return mapError(err, fmt.Sprintf("claim operation %d", c.OperationID))
		}
	}
	return nil
}

func (t *transaction) LockSale(ctx context.Context, id int64) (models.Sale, error) {
	sale, err := scanSale(t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM advanced_sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return models.Sale{}, mapError(err, fmt.Sprintf("sale %d", id))
	}
	return sale, nil
}

func (t *transaction) UpdateSale(ctx context.Context, sale models.Sale, expectedVersion int64) error {
	date, err := parseDate(sale.SaleDate)
	if err != nil {
		return fmt.Errorf("%w: saleDate: %v", models.ErrValidation, err)
	}
	details, err := customerJSON(sale.CustomerDetails)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE advanced_sales SET customer_id = $1, customer_name = $2, customer_details = $3,
			sale_date = $4, status = $5, total_animals = $6, total_weight = $7, total_bags = $8, notes = $9,
			pdf_path = $10, version = $11, updated_at = $12
		WHERE id = $13 AND version = $14`,
		sale.CustomerID, sale.CustomerName, details, date, string(sale.Status), sale.TotalAnimals,
		sale.TotalWeight, sale.TotalBags, sale.Notes, sale.DocumentPath, sale.Version, sale.UpdatedAt,
		sale.ID, expectedVersion)
	if err != nil {
		return mapError(err, "update sale "+sale.SaleNumber)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale %d is no longer at version %d", models.ErrConflict, sale.ID, expectedVersion)
	}
	return nil
}

func (t *transaction) DeleteBags(ctx context.Context, saleID int64) error {
	// allocations follow through ON DELETE CASCADE
	if _, err := t.tx.Exec(ctx, `DELETE FROM sale_bags WHERE advanced_sale_id = $1`, saleID); err != nil {
		return mapError(err, "delete bags")
	}
	return nil
}

func (t *transaction) InsertBag(ctx context.Context, bag *models.Bag) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_bags (advanced_sale_id, bag_number, size_code, total_weight,
			original_weight, weight_loss, animal_count, animals_per_kg, original_animals_per_kg, waste_percentage, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		bag.SaleID, bag.BagNumber, bag.SizeCode, bag.TotalWeight, bag.OriginalWeight, bag.WeightLoss,
		bag.AnimalCount, bag.AnimalsPerKg, bag.OriginalAnimalsPerKg, bag.WastePercentage, bag.Notes).Scan(&bag.ID)
	if err != nil {
		return mapError(err, fmt.Sprintf("insert bag %d", bag.BagNumber))
	}
	if len(bag.Allocations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range bag.Allocations {
		a := &bag.Allocations[i]
		a.BagID = bag.ID
		batch.Queue(`INSERT INTO bag_allocations (sale_bag_id, source_operation_id, source_basket_id,
				allocated_animals, allocated_weight, source_animals_per_kg, source_size_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			a.BagID, a.SourceOperationID, a.SourceBasketID, a.AllocatedAnimals, a.AllocatedWeight,
			a.SourceAnimalsPerKg, a.SourceSizeCode).QueryRow(func(row pgx.Row) error {
			return row.Scan(&a.ID)
		})
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(err, fmt.Sprintf("insert allocations of bag %d", bag.BagNumber))
	}
	return nil
}

func customerJSON(details *models.CustomerSnapshot) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode customer details: %w", err)
	}
	return data, nil
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(models.DateLayout, value)
}

// mapError classifies driver errors into the engine's error kinds.
func mapError(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s: %s", models.ErrConflict, what, pgErr.ConstraintName)
		case checkViolation:
			return fmt.Errorf("%w: %s: %s", models.ErrValidation, what, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
