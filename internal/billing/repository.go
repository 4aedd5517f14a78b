package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matices-erp/matices-pos/internal/catalog"
	"github.com/matices-erp/matices-pos/internal/platform/db"
	"github.com/matices-erp/matices-pos/internal/shared"
)

// Repository persists invoices and their settlement side effects in
// PostgreSQL.
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
	GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error)
}

// TxRepository exposes the transactional operations used by the
// settlement flows. Walk-in customer creation lives here rather than in
// catalog because it has to commit or roll back with the invoice.
type TxRepository interface {
	NextInvoiceSequence(ctx context.Context, series string, branchID int64) (int64, error)
	DeductStock(ctx context.Context, branchID, productID, qty int64) error
	RestoreStock(ctx context.Context, branchID, productID, qty int64) error
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertLine(ctx context.Context, line InvoiceLine) (int64, error)
	InsertPayment(ctx context.Context, payment InvoicePayment) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, number string) (Invoice, error)
	GetInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error)
	InsertVoid(ctx context.Context, void InvoiceVoid) (int64, error)
	MarkVoidRestored(ctx context.Context, voidID int64) error
	MarkInvoiceVoided(ctx context.Context, invoiceID int64) error
	FindWalkinByTaxID(ctx context.Context, taxID string) (*catalog.WalkinCustomer, error)
	InsertWalkinCustomer(ctx context.Context, c catalog.NewWalkinCustomer) (*catalog.WalkinCustomer, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("billing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const invoiceColumns = `id, number, series, sequence, branch_id, channel, customer_kind, user_id, walkin_customer_id,
customer_name, customer_tax_id, subtotal, discount_total, total, status, quotation_id, created_by, created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Series, &inv.Sequence, &inv.BranchID, &inv.Channel,
		&inv.Customer.Kind, &inv.Customer.UserID, &inv.Customer.WalkinID,
		&inv.CustomerName, &inv.CustomerTaxID, &inv.Subtotal, &inv.DiscountTotal, &inv.Total,
		&inv.Status, &inv.QuotationID, &inv.CreatedBy, &inv.CreatedAt)
	return inv, err
}

// GetInvoiceByNumber loads an invoice with its lines and payments.
func (r *Repository) GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error) {
	if r == nil {
		return Invoice{}, errors.New("billing repository not initialised")
	}
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number=$1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w: invoice %s", shared.ErrNotFound, number)
		}
		return Invoice{}, err
	}

	lineRows, err := r.pool.Query(ctx, `SELECT id, invoice_id, product_id, product_sku, product_name, quantity, unit_price, discount_pct, discount_amount, subtotal, lot_id
FROM invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var l InvoiceLine
		if err := lineRows.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.ProductSKU, &l.ProductName, &l.Quantity,
			&l.UnitPrice, &l.DiscountPct, &l.DiscountAmount, &l.Subtotal, &l.LotID); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	if err := lineRows.Err(); err != nil {
		return Invoice{}, err
	}

	payRows, err := r.pool.Query(ctx, `SELECT id, invoice_id, method_id, method_name, amount, reference
FROM invoice_payments WHERE invoice_id=$1 ORDER BY id ASC`, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	defer payRows.Close()
	for payRows.Next() {
		var p InvoicePayment
		if err := payRows.Scan(&p.ID, &p.InvoiceID, &p.MethodID, &p.MethodName, &p.Amount, &p.Reference); err != nil {
			return Invoice{}, err
		}
		inv.Payments = append(inv.Payments, p)
	}
	if err := payRows.Err(); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// ListInvoices pages through invoice headers, newest first.
func (r *Repository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	if r == nil {
		return nil, 0, errors.New("billing repository not initialised")
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = shared.DefaultPerPage
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	where := `1=1`
	args := []any{}
	if filter.BranchID > 0 {
		args = append(args, filter.BranchID)
		where += fmt.Sprintf(` AND branch_id=$%d`, len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	invoices := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// NextInvoiceSequence atomically advances the counter row for one
// series+branch pair and returns the new sequence. The upsert keeps
// concurrent invoice creation from ever producing duplicate numbers.
func (r *txRepository) NextInvoiceSequence(ctx context.Context, series string, branchID int64) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_series (series, branch_id, next_seq)
VALUES ($1, $2, 1)
ON CONFLICT (series, branch_id) DO UPDATE SET next_seq = invoice_series.next_seq + 1
RETURNING next_seq`, series, branchID).Scan(&seq)
	return seq, err
}

// DeductStock debits the branch ledger. The conditional guard makes the
// check and the decrement one atomic statement; zero rows affected
// means the entry is missing or holds too little stock.
func (r *txRepository) DeductStock(ctx context.Context, branchID, productID, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventories
SET stock_actual = stock_actual - $3, updated_at = NOW()
WHERE branch_id=$1 AND product_id=$2 AND active AND stock_actual >= $3`, branchID, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d at branch %d", shared.ErrInsufficientStock, productID, branchID)
	}
	return nil
}

// RestoreStock credits the branch ledger back after a void.
func (r *txRepository) RestoreStock(ctx context.Context, branchID, productID, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventories
SET stock_actual = stock_actual + $3, updated_at = NOW()
WHERE branch_id=$1 AND product_id=$2`, branchID, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stock ledger entry for product %d at branch %d", shared.ErrNotFound, productID, branchID)
	}
	return nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (number, series, sequence, branch_id, channel, customer_kind, user_id, walkin_customer_id,
customer_name, customer_tax_id, subtotal, discount_total, total, status, quotation_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW()) RETURNING id`,
		inv.Number, inv.Series, inv.Sequence, inv.BranchID, inv.Channel, inv.Customer.Kind, inv.Customer.UserID, inv.Customer.WalkinID,
		inv.CustomerName, inv.CustomerTaxID, inv.Subtotal, inv.DiscountTotal, inv.Total, inv.Status, inv.QuotationID, inv.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: invoice number %s already exists", shared.ErrConflict, inv.Number)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) InsertLine(ctx context.Context, line InvoiceLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, product_id, product_sku, product_name, quantity, unit_price, discount_pct, discount_amount, subtotal, lot_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		line.InvoiceID, line.ProductID, line.ProductSKU, line.ProductName, line.Quantity,
		line.UnitPrice, line.DiscountPct, line.DiscountAmount, line.Subtotal, line.LotID).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPayment(ctx context.Context, payment InvoicePayment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_payments (invoice_id, method_id, method_name, amount, reference)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		payment.InvoiceID, payment.MethodID, payment.MethodName, payment.Amount, payment.Reference).Scan(&id)
	return id, err
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, number string) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number=$1 FOR UPDATE`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w: invoice %s", shared.ErrNotFound, number)
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) GetInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, invoice_id, product_id, product_sku, product_name, quantity, unit_price, discount_pct, discount_amount, subtotal, lot_id
FROM invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []InvoiceLine{}
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.ProductSKU, &l.ProductName, &l.Quantity,
			&l.UnitPrice, &l.DiscountPct, &l.DiscountAmount, &l.Subtotal, &l.LotID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// InsertVoid writes the void snapshot. invoice_voids carries a unique
// index on invoice_id, so a concurrent double-void surfaces as 23505.
func (r *txRepository) InsertVoid(ctx context.Context, void InvoiceVoid) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_voids (invoice_id, invoice_number, reason, subtotal, discount_total, total, requires_restock, stock_restored, voided_by, voided_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8,NOW()) RETURNING id`,
		void.InvoiceID, void.InvoiceNumber, void.Reason, void.Subtotal, void.DiscountTotal, void.Total, void.RequiresRestock, void.VoidedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: invoice %s", shared.ErrAlreadyVoided, void.InvoiceNumber)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) MarkVoidRestored(ctx context.Context, voidID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoice_voids SET stock_restored = TRUE WHERE id=$1`, voidID)
	return err
}

// MarkInvoiceVoided flips the invoice to voided. The status guard keeps
// the transition one-way even if the void row check is bypassed.
func (r *txRepository) MarkInvoiceVoided(ctx context.Context, invoiceID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2 WHERE id=$1 AND status=$3`, invoiceID, StatusVoided, StatusActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %d", shared.ErrAlreadyVoided, invoiceID)
	}
	return nil
}

func (r *txRepository) FindWalkinByTaxID(ctx context.Context, taxID string) (*catalog.WalkinCustomer, error) {
	var c catalog.WalkinCustomer
	err := r.tx.QueryRow(ctx, `SELECT id, first_name, last_name, tax_id, phone, address, email
FROM walkin_customers WHERE tax_id=$1 ORDER BY id LIMIT 1`, taxID).
		Scan(&c.ID, &c.FirstName, &c.LastName, &c.TaxID, &c.Phone, &c.Address, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: walk-in customer with tax id %s", shared.ErrNotFound, taxID)
		}
		return nil, err
	}
	return &c, nil
}

func (r *txRepository) InsertWalkinCustomer(ctx context.Context, c catalog.NewWalkinCustomer) (*catalog.WalkinCustomer, error) {
	created := catalog.WalkinCustomer{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		TaxID:     c.TaxID,
		Phone:     c.Phone,
		Address:   c.Address,
		Email:     c.Email,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO walkin_customers (first_name, last_name, tax_id, phone, address, email)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		c.FirstName, c.LastName, c.TaxID, c.Phone, c.Address, c.Email).Scan(&created.ID)
	if err != nil {
		return nil, err
	}
	return &created, nil
}
