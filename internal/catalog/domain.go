package catalog

import "context"

// FinalConsumerTaxID is the generic tax id recorded for anonymous buyers.
const FinalConsumerTaxID = "CF"

// DefaultWalkinCustomerID is the seeded "final consumer" walk-in customer
// used when a sale carries no customer information at all.
const DefaultWalkinCustomerID = 1

// Product is the catalog view the settlement core consumes: identity,
// label snapshot fields and the fallback sale price.
type Product struct {
	ID        int64   `json:"id"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	SalePrice float64 `json:"sale_price"`
	Active    bool    `json:"active"`
}

// Supplier identifies the vendor a lot was purchased from.
type Supplier struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Branch is a retail location holding its own stock ledger.
type Branch struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// PaymentMethod is a way to settle an invoice (cash, card, transfer...).
type PaymentMethod struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// RegisteredUser is an account holder buying through the online channel.
type RegisteredUser struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	TaxID     *string `json:"tax_id,omitempty"`
	Address   *string `json:"address,omitempty"`
}

// DisplayName returns the historical-snapshot form of the user's name.
func (u RegisteredUser) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// WalkinCustomer is a buyer without a registered account, identified ad
// hoc at sale time.
type WalkinCustomer struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name,omitempty"`
	TaxID     string  `json:"tax_id"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// DisplayName returns the historical-snapshot form of the customer name.
func (c WalkinCustomer) DisplayName() string {
	if c.LastName == nil || *c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + *c.LastName
}

// NewWalkinCustomer carries inline walk-in customer fields supplied at
// sale time.
type NewWalkinCustomer struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	TaxID     string  `json:"tax_id,omitempty" validate:"omitempty,max=20"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	Address   *string `json:"address,omitempty" validate:"omitempty,max=300"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
}

// ProductDirectory resolves products by id.
type ProductDirectory interface {
	Get(ctx context.Context, id int64) (*Product, error)
}

// SupplierDirectory resolves suppliers by id.
type SupplierDirectory interface {
	Get(ctx context.Context, id int64) (*Supplier, error)
}

// BranchDirectory resolves branches by id.
type BranchDirectory interface {
	Get(ctx context.Context, id int64) (*Branch, error)
}

// PaymentMethodDirectory resolves payment methods by id or by an
// approximate name supplied by the POS client.
type PaymentMethodDirectory interface {
	Get(ctx context.Context, id int64) (*PaymentMethod, error)
	FindByName(ctx context.Context, name string) (*PaymentMethod, error)
}

// UserDirectory resolves registered account holders.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (*RegisteredUser, error)
}

// WalkinDirectory resolves walk-in customers. Creation happens inside
// the sale transaction and therefore lives on the billing tx repository,
// not here.
type WalkinDirectory interface {
	Get(ctx context.Context, id int64) (*WalkinCustomer, error)
	FindByTaxID(ctx context.Context, taxID string) (*WalkinCustomer, error)
}
