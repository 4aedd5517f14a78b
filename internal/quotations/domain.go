package quotations

import "time"

// Status of a quotation. Pending quotations either get invoiced,
// cancelled, or age past their expiry date.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInvoiced  Status = "invoiced"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// DefaultValidityDays is how long a quotation stays open when the
// request doesn't say.
const DefaultValidityDays = 15

// Quotation is a priced offer that may later become an invoice. Amounts
// use the same arithmetic as invoices: line discounts net into each
// line subtotal and the total equals the subtotal.
type Quotation struct {
	ID            int64     `json:"id"`
	BranchID      int64     `json:"branch_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerTaxID string    `json:"customer_tax_id"`
	Subtotal      float64   `json:"subtotal"`
	DiscountTotal float64   `json:"discount_total"`
	Total         float64   `json:"total"`
	Status        Status    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
	InvoiceID     *int64    `json:"invoice_id,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`

	Lines []QuotationLine `json:"lines,omitempty"`
}

// QuotationLine is one quoted product with its price snapshot.
type QuotationLine struct {
	ID             int64   `json:"id"`
	QuotationID    int64   `json:"quotation_id"`
	ProductID      int64   `json:"product_id"`
	ProductSKU     string  `json:"product_sku"`
	ProductName    string  `json:"product_name"`
	Quantity       int64   `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	DiscountPct    float64 `json:"discount_pct"`
	DiscountAmount float64 `json:"discount_amount"`
	Subtotal       float64 `json:"subtotal"`
}

// LineInput is one requested quotation line.
type LineInput struct {
	ProductID   int64    `json:"product_id" validate:"required,gt=0"`
	Quantity    int64    `json:"quantity" validate:"required,gt=0"`
	UnitPrice   *float64 `json:"unit_price,omitempty" validate:"omitempty,gt=0"`
	DiscountPct float64  `json:"discount_pct" validate:"gte=0,lte=100"`
}

// CreateInput opens a quotation.
type CreateInput struct {
	BranchID      int64       `json:"branch_id" validate:"required,gt=0"`
	CustomerName  string      `json:"customer_name" validate:"required,max=200"`
	CustomerTaxID string      `json:"customer_tax_id,omitempty" validate:"omitempty,max=20"`
	ValidDays     int         `json:"valid_days,omitempty" validate:"omitempty,gt=0,lte=90"`
	Lines         []LineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID       int64       `json:"-"`
}

// Filter narrows quotation listings.
type Filter struct {
	BranchID int64
	Status   Status
	Page     int
	PerPage  int
}
