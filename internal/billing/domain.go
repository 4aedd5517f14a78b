package billing

import (
	"time"

	"github.com/matices-erp/matices-pos/internal/catalog"
)

// Invoice status values. Voiding is the only transition and it is
// one-way.
const (
	StatusActive int16 = 1
	StatusVoided int16 = 0
)

// SaleChannel tells where the sale originated.
type SaleChannel string

const (
	ChannelInPerson SaleChannel = "in_person"
	ChannelOnline   SaleChannel = "online"
)

// CustomerKind discriminates the customer reference on an invoice.
type CustomerKind string

const (
	CustomerRegistered CustomerKind = "registered"
	CustomerWalkin     CustomerKind = "walkin"
)

// CustomerRef points at exactly one customer record: a registered user
// or a walk-in customer. Name and tax id are snapshotted onto the
// invoice so later edits to the customer don't rewrite history.
type CustomerRef struct {
	Kind     CustomerKind `json:"kind"`
	UserID   *int64       `json:"user_id,omitempty"`
	WalkinID *int64       `json:"walkin_customer_id,omitempty"`
}

// Invoice is a settled sale. Total equals Subtotal: line discounts are
// already netted into each line subtotal and DiscountTotal is
// informational only.
type Invoice struct {
	ID            int64       `json:"id"`
	Number        string      `json:"number"`
	Series        string      `json:"series"`
	Sequence      int64       `json:"sequence"`
	BranchID      int64       `json:"branch_id"`
	Channel       SaleChannel `json:"channel"`
	Customer      CustomerRef `json:"customer"`
	CustomerName  string      `json:"customer_name"`
	CustomerTaxID string      `json:"customer_tax_id"`
	Subtotal      float64     `json:"subtotal"`
	DiscountTotal float64     `json:"discount_total"`
	Total         float64     `json:"total"`
	Status        int16       `json:"status"`
	QuotationID   *int64      `json:"quotation_id,omitempty"`
	CreatedBy     int64       `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`

	Lines    []InvoiceLine    `json:"lines,omitempty"`
	Payments []InvoicePayment `json:"payments,omitempty"`
}

// InvoiceLine is one sold product with its historical price snapshot.
type InvoiceLine struct {
	ID             int64   `json:"id"`
	InvoiceID      int64   `json:"invoice_id"`
	ProductID      int64   `json:"product_id"`
	ProductSKU     string  `json:"product_sku"`
	ProductName    string  `json:"product_name"`
	Quantity       int64   `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	DiscountPct    float64 `json:"discount_pct"`
	DiscountAmount float64 `json:"discount_amount"`
	Subtotal       float64 `json:"subtotal"`
	LotID          *int64  `json:"lot_id,omitempty"`
}

// InvoicePayment is one settlement against an invoice.
type InvoicePayment struct {
	ID         int64   `json:"id"`
	InvoiceID  int64   `json:"invoice_id"`
	MethodID   int64   `json:"method_id"`
	MethodName string  `json:"method_name"`
	Amount     float64 `json:"amount"`
	Reference  *string `json:"reference,omitempty"`
}

// InvoiceVoid records the cancellation of an invoice with a snapshot of
// the voided amounts. StockRestored flips true only after every line's
// quantity has been credited back to the branch ledger.
type InvoiceVoid struct {
	ID              int64     `json:"id"`
	InvoiceID       int64     `json:"invoice_id"`
	InvoiceNumber   string    `json:"invoice_number"`
	Reason          string    `json:"reason"`
	Subtotal        float64   `json:"subtotal"`
	DiscountTotal   float64   `json:"discount_total"`
	Total           float64   `json:"total"`
	RequiresRestock bool      `json:"requires_restock"`
	StockRestored   bool      `json:"stock_restored"`
	VoidedBy        int64     `json:"voided_by"`
	VoidedAt        time.Time `json:"voided_at"`
}

// LineInput is one requested sale line. UnitPrice overrides the catalog
// price when present; DiscountPct is a percentage of the gross line.
type LineInput struct {
	ProductID   int64    `json:"product_id" validate:"required,gt=0"`
	Quantity    int64    `json:"quantity" validate:"required,gt=0"`
	UnitPrice   *float64 `json:"unit_price,omitempty" validate:"omitempty,gt=0"`
	DiscountPct float64  `json:"discount_pct" validate:"gte=0,lte=100"`
	LotID       *int64   `json:"lot_id,omitempty" validate:"omitempty,gt=0"`
}

// PaymentInput settles part of the invoice total. Either MethodID or
// MethodName identifies the payment method; names are matched fuzzily
// against the active catalog.
type PaymentInput struct {
	MethodID   int64   `json:"method_id,omitempty" validate:"omitempty,gt=0"`
	MethodName string  `json:"method_name,omitempty" validate:"omitempty,max=50"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Reference  *string `json:"reference,omitempty" validate:"omitempty,max=100"`
}

// CreateInvoiceRequest carries a full sale. Customer resolution uses at
// most one of UserID, WalkinCustomerID or Customer; with none set the
// sale books against the system final-consumer walk-in record. An empty
// Channel books as an in-person sale.
type CreateInvoiceRequest struct {
	BranchID         int64                      `json:"branch_id" validate:"required,gt=0"`
	Channel          SaleChannel                `json:"channel" validate:"omitempty,oneof=in_person online"`
	Series           string                     `json:"series,omitempty" validate:"omitempty,max=10"`
	UserID           *int64                     `json:"user_id,omitempty" validate:"omitempty,gt=0"`
	WalkinCustomerID *int64                     `json:"walkin_customer_id,omitempty" validate:"omitempty,gt=0"`
	Customer         *catalog.NewWalkinCustomer `json:"customer,omitempty"`
	Lines            []LineInput                `json:"lines" validate:"required,min=1,dive"`
	Payments         []PaymentInput             `json:"payments" validate:"required,min=1,dive"`
	QuotationID      *int64                     `json:"quotation_id,omitempty" validate:"omitempty,gt=0"`
	RequestID        string                     `json:"request_id,omitempty" validate:"omitempty,max=64"`
	ActorID          int64                      `json:"-"`
}

// VoidInput cancels an active invoice.
type VoidInput struct {
	Number  string `json:"number" validate:"required"`
	Reason  string `json:"reason" validate:"required,max=300"`
	ActorID int64  `json:"-"`
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	BranchID int64
	Status   *int16
	From     *time.Time
	To       *time.Time
	Page     int
	PerPage  int
}
