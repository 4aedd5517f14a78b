package inventory

import (
	"time"

	"github.com/matices-erp/matices-pos/internal/catalog"
)

// Default min/max stock levels applied when a ledger entry is created
// lazily during distribution.
const (
	DefaultStockMin = 5
	DefaultStockMax = 1000
)

// Lot is a purchased batch of one product from one supplier with a
// finite distributable quantity. QuantityAvailable only decreases; lots
// are never replenished and never physically deleted.
type Lot struct {
	ID                    int64     `json:"id"`
	Code                  string    `json:"code"`
	SupplierID            int64     `json:"supplier_id"`
	ProductID             int64     `json:"product_id"`
	IntakeDate            time.Time `json:"intake_date"`
	QuantityTotal         int64     `json:"quantity_total"`
	QuantityAvailable     int64     `json:"quantity_available"`
	UnitCost              float64   `json:"unit_cost"`
	TotalCost             float64   `json:"total_cost"`
	SupplierInvoiceNumber *string   `json:"supplier_invoice_number,omitempty"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`

	Supplier      *catalog.Supplier `json:"supplier,omitempty"`
	Product       *catalog.Product  `json:"product,omitempty"`
	Distributions []LotDistribution `json:"distributions,omitempty"`
}

// LotDistribution is one append-only audit row per distribution event.
// A lot may be distributed to the same branch in multiple events.
type LotDistribution struct {
	ID               int64     `json:"id"`
	LotID            int64     `json:"lot_id"`
	InventoryID      int64     `json:"inventory_id"`
	BranchID         int64     `json:"branch_id"`
	QuantityAssigned int64     `json:"quantity_assigned"`
	RefID            string    `json:"ref_id"`
	AssignedBy       int64     `json:"assigned_by"`
	AssignedAt       time.Time `json:"assigned_at"`
}

// Inventory is the stock ledger entry for one product at one branch,
// unique per (branch_id, product_id). StockActual never goes negative.
type Inventory struct {
	ID          int64     `json:"id"`
	BranchID    int64     `json:"branch_id"`
	ProductID   int64     `json:"product_id"`
	StockActual int64     `json:"stock_actual"`
	StockMin    int64     `json:"stock_min"`
	StockMax    int64     `json:"stock_max"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InventoryDetail joins a ledger entry with the catalog labels the
// listing endpoints show.
type InventoryDetail struct {
	Inventory
	ProductSKU   string  `json:"product_sku"`
	ProductName  string  `json:"product_name"`
	ProductPrice float64 `json:"product_price"`
	BranchName   string  `json:"branch_name"`
}

// DistributionLine assigns part of a lot to a branch. Either BranchID
// or InventoryID identifies the destination; BranchID resolves (or
// lazily creates) the ledger entry for the lot's product.
type DistributionLine struct {
	BranchID    int64 `json:"branch_id,omitempty"`
	InventoryID int64 `json:"inventory_id,omitempty"`
	Quantity    int64 `json:"quantity" validate:"required,gt=0"`
}

// IntakeInput registers a purchased lot, optionally distributing part
// of it in the same atomic unit. An empty distribution list leaves the
// whole lot available for a later Distribute call.
type IntakeInput struct {
	Code                  string             `json:"code" validate:"required,max=50"`
	SupplierID            int64              `json:"supplier_id" validate:"required,gt=0"`
	ProductID             int64              `json:"product_id" validate:"required,gt=0"`
	IntakeDate            time.Time          `json:"intake_date" validate:"required"`
	QuantityTotal         int64              `json:"quantity_total" validate:"required,gt=0"`
	UnitCost              float64            `json:"unit_cost" validate:"required,gt=0"`
	SupplierInvoiceNumber *string            `json:"supplier_invoice_number,omitempty"`
	Distributions         []DistributionLine `json:"distributions" validate:"dive"`
	ActorID               int64              `json:"-"`
}

// DistributeInput assigns part of an existing lot's remainder.
type DistributeInput struct {
	LotID         int64              `json:"lot_id" validate:"required,gt=0"`
	Distributions []DistributionLine `json:"distributions" validate:"required,min=1,dive"`
	ActorID       int64              `json:"-"`
}

// SetLevelsInput creates or updates the min/max levels of a ledger
// entry without touching stock_actual.
type SetLevelsInput struct {
	BranchID  int64  `json:"branch_id" validate:"required,gt=0"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	StockMin  *int64 `json:"stock_min,omitempty" validate:"omitempty,gte=0"`
	StockMax  *int64 `json:"stock_max,omitempty" validate:"omitempty,gte=0"`
}

// StockFilter narrows branch stock listings.
type StockFilter struct {
	Search       string
	LowStockOnly bool
	Page         int
	PerPage      int
}
