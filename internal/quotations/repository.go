package quotations

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matices-erp/matices-pos/internal/platform/db"
	"github.com/matices-erp/matices-pos/internal/shared"
)

// Repository persists quotations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, q Quotation) (Quotation, error)
	Get(ctx context.Context, id int64) (Quotation, error)
	List(ctx context.Context, filter Filter) ([]Quotation, int, error)
	Transition(ctx context.Context, id int64, from, to Status, invoiceID *int64) error
}

const quotationColumns = `id, branch_id, customer_name, customer_tax_id, subtotal, discount_total, total, status, expires_at, invoice_id, created_by, created_at`

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.BranchID, &q.CustomerName, &q.CustomerTaxID, &q.Subtotal, &q.DiscountTotal, &q.Total,
		&q.Status, &q.ExpiresAt, &q.InvoiceID, &q.CreatedBy, &q.CreatedAt)
	return q, err
}

// Insert writes the quotation and its lines in one transaction.
func (r *Repository) Insert(ctx context.Context, q Quotation) (Quotation, error) {
	if r == nil {
		return Quotation{}, errors.New("quotations repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO quotations (branch_id, customer_name, customer_tax_id, subtotal, discount_total, total, status, expires_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id, created_at`,
			q.BranchID, q.CustomerName, q.CustomerTaxID, q.Subtotal, q.DiscountTotal, q.Total, q.Status, q.ExpiresAt, q.CreatedBy).
			Scan(&q.ID, &q.CreatedAt)
		if err != nil {
			return err
		}
		for i := range q.Lines {
			q.Lines[i].QuotationID = q.ID
			err = tx.QueryRow(ctx, `INSERT INTO quotation_lines (quotation_id, product_id, product_sku, product_name, quantity, unit_price, discount_pct, discount_amount, subtotal)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
				q.Lines[i].QuotationID, q.Lines[i].ProductID, q.Lines[i].ProductSKU, q.Lines[i].ProductName, q.Lines[i].Quantity,
				q.Lines[i].UnitPrice, q.Lines[i].DiscountPct, q.Lines[i].DiscountAmount, q.Lines[i].Subtotal).Scan(&q.Lines[i].ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Quotation{}, err
	}
	return q, nil
}

// Get loads a quotation with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Quotation, error) {
	if r == nil {
		return Quotation{}, errors.New("quotations repository not initialised")
	}
	q, err := scanQuotation(r.pool.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
		}
		return Quotation{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, quotation_id, product_id, product_sku, product_name, quantity, unit_price, discount_pct, discount_amount, subtotal
FROM quotation_lines WHERE quotation_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Quotation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l QuotationLine
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.ProductID, &l.ProductSKU, &l.ProductName, &l.Quantity,
			&l.UnitPrice, &l.DiscountPct, &l.DiscountAmount, &l.Subtotal); err != nil {
			return Quotation{}, err
		}
		q.Lines = append(q.Lines, l)
	}
	return q, rows.Err()
}

// List pages through quotations, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Quotation, int, error) {
	if r == nil {
		return nil, 0, errors.New("quotations repository not initialised")
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
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND status=$%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotations WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	quotations := []Quotation{}
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		quotations = append(quotations, q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return quotations, total, nil
}

// Transition moves a quotation between states. The status guard in the
// WHERE clause makes each transition one-way under concurrency.
func (r *Repository) Transition(ctx context.Context, id int64, from, to Status, invoiceID *int64) error {
	if r == nil {
		return errors.New("quotations repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quotations SET status=$3, invoice_id=COALESCE($4, invoice_id) WHERE id=$1 AND status=$2`,
		id, from, to, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d is not %s", shared.ErrConflict, id, from)
	}
	return nil
}
