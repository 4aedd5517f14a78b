package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matices-erp/matices-pos/internal/shared"
)

// Repository implements the directory ports against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns an active product by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, sale_price, active FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.SalePrice, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

// Suppliers exposes the supplier directory backed by the same pool.
func (r *Repository) Suppliers() SupplierDirectory { return supplierRepo{pool: r.pool} }

// Branches exposes the branch directory backed by the same pool.
func (r *Repository) Branches() BranchDirectory { return branchRepo{pool: r.pool} }

// PaymentMethods exposes the payment method directory backed by the same pool.
func (r *Repository) PaymentMethods() PaymentMethodDirectory { return paymentMethodRepo{pool: r.pool} }

// Users exposes the registered user directory backed by the same pool.
func (r *Repository) Users() UserDirectory { return userRepo{pool: r.pool} }

// Walkins exposes the walk-in customer directory backed by the same pool.
func (r *Repository) Walkins() WalkinDirectory { return walkinRepo{pool: r.pool} }

type supplierRepo struct {
	pool *pgxpool.Pool
}

func (r supplierRepo) Get(ctx context.Context, id int64) (*Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, active FROM suppliers WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &s, nil
}

type branchRepo struct {
	pool *pgxpool.Pool
}

func (r branchRepo) Get(ctx context.Context, id int64) (*Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `SELECT id, name, active FROM branches WHERE id=$1`, id).
		Scan(&b.ID, &b.Name, &b.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: branch %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &b, nil
}

type paymentMethodRepo struct {
	pool *pgxpool.Pool
}

func (r paymentMethodRepo) Get(ctx context.Context, id int64) (*PaymentMethod, error) {
	var m PaymentMethod
	err := r.pool.QueryRow(ctx, `SELECT id, name, active FROM payment_methods WHERE id=$1`, id).
		Scan(&m.ID, &m.Name, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment method %d", shared.ErrInvalidPaymentMethod, id)
		}
		return nil, err
	}
	return &m, nil
}

// FindByName matches active payment methods with a case-insensitive
// substring, mirroring how POS clients send free-form method names.
func (r paymentMethodRepo) FindByName(ctx context.Context, name string) (*PaymentMethod, error) {
	var m PaymentMethod
	err := r.pool.QueryRow(ctx, `SELECT id, name, active FROM payment_methods WHERE name ILIKE '%' || $1 || '%' AND active ORDER BY id LIMIT 1`, name).
		Scan(&m.ID, &m.Name, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", shared.ErrInvalidPaymentMethod, name)
		}
		return nil, err
	}
	return &m, nil
}

type userRepo struct {
	pool *pgxpool.Pool
}

func (r userRepo) Get(ctx context.Context, id int64) (*RegisteredUser, error) {
	var u RegisteredUser
	err := r.pool.QueryRow(ctx, `SELECT id, first_name, last_name, tax_id, address FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.TaxID, &u.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}

type walkinRepo struct {
	pool *pgxpool.Pool
}

func (r walkinRepo) Get(ctx context.Context, id int64) (*WalkinCustomer, error) {
	var c WalkinCustomer
	err := r.pool.QueryRow(ctx, `SELECT id, first_name, last_name, tax_id, phone, address, email FROM walkin_customers WHERE id=$1`, id).
		Scan(&c.ID, &c.FirstName, &c.LastName, &c.TaxID, &c.Phone, &c.Address, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: walk-in customer %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func (r walkinRepo) FindByTaxID(ctx context.Context, taxID string) (*WalkinCustomer, error) {
	var c WalkinCustomer
	err := r.pool.QueryRow(ctx, `SELECT id, first_name, last_name, tax_id, phone, address, email FROM walkin_customers WHERE tax_id=$1 ORDER BY id LIMIT 1`, taxID).
		Scan(&c.ID, &c.FirstName, &c.LastName, &c.TaxID, &c.Phone, &c.Address, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: walk-in customer with tax id %s", shared.ErrNotFound, taxID)
		}
		return nil, err
	}
	return &c, nil
}
