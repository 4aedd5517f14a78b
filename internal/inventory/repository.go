package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matices-erp/matices-pos/internal/platform/db"
	"github.com/matices-erp/matices-pos/internal/shared"
)

// Repository persists lots and stock ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBranchStock(ctx context.Context, branchID int64, filter StockFilter) ([]InventoryDetail, int, error)
	GetLotsForProduct(ctx context.Context, productID int64) ([]Lot, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertLot(ctx context.Context, lot Lot) (int64, time.Time, error)
	GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error)
	DecrementLotAvailable(ctx context.Context, lotID, qty int64) error
	GetInventory(ctx context.Context, branchID, productID int64) (Inventory, error)
	GetInventoryByID(ctx context.Context, id int64) (Inventory, error)
	CreateInventory(ctx context.Context, entry Inventory) (int64, error)
	AddStock(ctx context.Context, inventoryID, qty int64) error
	InsertDistribution(ctx context.Context, dist LotDistribution) (int64, error)
	UpdateStockLevels(ctx context.Context, inventoryID int64, stockMin, stockMax *int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// ErrEntryNotFound indicates a missing stock ledger row.
var ErrEntryNotFound = errors.New("inventory entry not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListBranchStock lists ledger entries for one branch with catalog labels.
func (r *Repository) ListBranchStock(ctx context.Context, branchID int64, filter StockFilter) ([]InventoryDetail, int, error) {
	if r == nil {
		return nil, 0, errors.New("inventory repository not initialised")
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = shared.DefaultPerPage
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	where := `i.branch_id=$1 AND i.active`
	args := []any{branchID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(` AND (p.name ILIKE $%d OR p.sku ILIKE $%d)`, len(args), len(args))
	}
	if filter.LowStockOnly {
		where += ` AND i.stock_actual < i.stock_min`
	}

	var total int
	countSQL := `SELECT COUNT(*) FROM inventories i JOIN products p ON p.id = i.product_id WHERE ` + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, (page-1)*perPage)
	listSQL := `SELECT i.id, i.branch_id, i.product_id, i.stock_actual, i.stock_min, i.stock_max, i.active, i.updated_at,
       p.sku, p.name, p.sale_price, b.name
FROM inventories i
JOIN products p ON p.id = i.product_id
JOIN branches b ON b.id = i.branch_id
WHERE ` + where + fmt.Sprintf(` ORDER BY i.stock_actual ASC, i.id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []InventoryDetail{}
	for rows.Next() {
		var d InventoryDetail
		if err := rows.Scan(&d.ID, &d.BranchID, &d.ProductID, &d.StockActual, &d.StockMin, &d.StockMax, &d.Active, &d.UpdatedAt,
			&d.ProductSKU, &d.ProductName, &d.ProductPrice, &d.BranchName); err != nil {
			return nil, 0, err
		}
		entries = append(entries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// GetLotsForProduct lists active lots with remaining quantity, newest
// intake first, with their distribution audit trail attached.
func (r *Repository) GetLotsForProduct(ctx context.Context, productID int64) ([]Lot, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.code, l.supplier_id, l.product_id, l.intake_date, l.quantity_total, l.quantity_available,
       l.unit_cost, l.total_cost, l.supplier_invoice_number, l.active, l.created_at
FROM lots l
WHERE l.product_id=$1 AND l.quantity_available > 0 AND l.active
ORDER BY l.intake_date DESC, l.id DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := []Lot{}
	ids := []int64{}
	for rows.Next() {
		var lot Lot
		if err := rows.Scan(&lot.ID, &lot.Code, &lot.SupplierID, &lot.ProductID, &lot.IntakeDate, &lot.QuantityTotal, &lot.QuantityAvailable,
			&lot.UnitCost, &lot.TotalCost, &lot.SupplierInvoiceNumber, &lot.Active, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
		ids = append(ids, lot.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return lots, nil
	}

	distRows, err := r.pool.Query(ctx, `SELECT d.id, d.lot_id, d.inventory_id, i.branch_id, d.quantity_assigned, d.ref_id, d.assigned_by, d.assigned_at
FROM lot_distributions d
JOIN inventories i ON i.id = d.inventory_id
WHERE d.lot_id = ANY($1)
ORDER BY d.assigned_at ASC, d.id ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer distRows.Close()

	byLot := make(map[int64][]LotDistribution)
	for distRows.Next() {
		var d LotDistribution
		if err := distRows.Scan(&d.ID, &d.LotID, &d.InventoryID, &d.BranchID, &d.QuantityAssigned, &d.RefID, &d.AssignedBy, &d.AssignedAt); err != nil {
			return nil, err
		}
		byLot[d.LotID] = append(byLot[d.LotID], d)
	}
	if err := distRows.Err(); err != nil {
		return nil, err
	}
	for i := range lots {
		lots[i].Distributions = byLot[lots[i].ID]
	}
	return lots, nil
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, time.Time, error) {
	var id int64
	var createdAt time.Time
	err := r.tx.QueryRow(ctx, `INSERT INTO lots (code, supplier_id, product_id, intake_date, quantity_total, quantity_available, unit_cost, total_cost, supplier_invoice_number, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE,NOW()) RETURNING id, created_at`,
		lot.Code, lot.SupplierID, lot.ProductID, lot.IntakeDate, lot.QuantityTotal, lot.QuantityAvailable, lot.UnitCost, lot.TotalCost, lot.SupplierInvoiceNumber).Scan(&id, &createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, time.Time{}, fmt.Errorf("%w: lot code %q already exists", shared.ErrConflict, lot.Code)
		}
		return 0, time.Time{}, err
	}
	return id, createdAt, nil
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error) {
	var lot Lot
	err := r.tx.QueryRow(ctx, `SELECT id, code, supplier_id, product_id, intake_date, quantity_total, quantity_available, unit_cost, total_cost, supplier_invoice_number, active, created_at
FROM lots WHERE id=$1 FOR UPDATE`, lotID).
		Scan(&lot.ID, &lot.Code, &lot.SupplierID, &lot.ProductID, &lot.IntakeDate, &lot.QuantityTotal, &lot.QuantityAvailable,
			&lot.UnitCost, &lot.TotalCost, &lot.SupplierInvoiceNumber, &lot.Active, &lot.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, fmt.Errorf("%w: lot %d", shared.ErrNotFound, lotID)
		}
		return Lot{}, err
	}
	return lot, nil
}

// DecrementLotAvailable debits the lot remainder. The service validates
// under the row lock; the conditional guard keeps the invariant even if
// a caller skips the check.
func (r *txRepository) DecrementLotAvailable(ctx context.Context, lotID, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE lots SET quantity_available = quantity_available - $2 WHERE id=$1 AND quantity_available >= $2`, lotID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lot %d", shared.ErrOverAllocation, lotID)
	}
	return nil
}

func (r *txRepository) GetInventory(ctx context.Context, branchID, productID int64) (Inventory, error) {
	var entry Inventory
	err := r.tx.QueryRow(ctx, `SELECT id, branch_id, product_id, stock_actual, stock_min, stock_max, active, updated_at
FROM inventories WHERE branch_id=$1 AND product_id=$2`, branchID, productID).
		Scan(&entry.ID, &entry.BranchID, &entry.ProductID, &entry.StockActual, &entry.StockMin, &entry.StockMax, &entry.Active, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Inventory{BranchID: branchID, ProductID: productID}, ErrEntryNotFound
		}
		return Inventory{}, err
	}
	return entry, nil
}

func (r *txRepository) GetInventoryByID(ctx context.Context, id int64) (Inventory, error) {
	var entry Inventory
	err := r.tx.QueryRow(ctx, `SELECT id, branch_id, product_id, stock_actual, stock_min, stock_max, active, updated_at
FROM inventories WHERE id=$1`, id).
		Scan(&entry.ID, &entry.BranchID, &entry.ProductID, &entry.StockActual, &entry.StockMin, &entry.StockMax, &entry.Active, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Inventory{}, ErrEntryNotFound
		}
		return Inventory{}, err
	}
	return entry, nil
}

func (r *txRepository) CreateInventory(ctx context.Context, entry Inventory) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventories (branch_id, product_id, stock_actual, stock_min, stock_max, active, updated_at)
VALUES ($1,$2,$3,$4,$5,TRUE,NOW()) RETURNING id`,
		entry.BranchID, entry.ProductID, entry.StockActual, entry.StockMin, entry.StockMax).Scan(&id)
	return id, err
}

func (r *txRepository) AddStock(ctx context.Context, inventoryID, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventories SET stock_actual = stock_actual + $2, updated_at = NOW() WHERE id=$1`, inventoryID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) InsertDistribution(ctx context.Context, dist LotDistribution) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO lot_distributions (lot_id, inventory_id, quantity_assigned, ref_id, assigned_by, assigned_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		dist.LotID, dist.InventoryID, dist.QuantityAssigned, dist.RefID, dist.AssignedBy).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateStockLevels(ctx context.Context, inventoryID int64, stockMin, stockMax *int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventories
SET stock_min = COALESCE($2, stock_min), stock_max = COALESCE($3, stock_max), updated_at = NOW()
WHERE id=$1`, inventoryID, stockMin, stockMax)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}
