package quotations

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/matices-erp/matices-pos/internal/catalog"
	"github.com/matices-erp/matices-pos/internal/shared"
)

// Service manages quotation lifecycle.
type Service struct {
	repo     RepositoryPort
	products catalog.ProductDirectory
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, products catalog.ProductDirectory) *Service {
	return &Service{repo: repo, products: products, now: time.Now}
}

// Create prices the quoted lines against the catalog and opens a
// pending quotation. Prices are snapshotted now; the invoice that may
// follow re-prices at sale time.
func (s *Service) Create(ctx context.Context, input CreateInput) (Quotation, error) {
	if input.BranchID <= 0 {
		return Quotation{}, fmt.Errorf("%w: branch_id required", shared.ErrValidation)
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return Quotation{}, fmt.Errorf("%w: customer name required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Quotation{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	validDays := input.ValidDays
	if validDays <= 0 {
		validDays = DefaultValidityDays
	}
	taxID := strings.TrimSpace(input.CustomerTaxID)
	if taxID == "" {
		taxID = catalog.FinalConsumerTaxID
	}

	var subtotal, discountTotal float64
	lines := make([]QuotationLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		if in.ProductID <= 0 || in.Quantity <= 0 {
			return Quotation{}, fmt.Errorf("%w: each line needs a product and a positive quantity", shared.ErrValidation)
		}
		if in.DiscountPct < 0 || in.DiscountPct > 100 {
			return Quotation{}, fmt.Errorf("%w: discount_pct must be between 0 and 100", shared.ErrValidation)
		}
		product, err := s.products.Get(ctx, in.ProductID)
		if err != nil {
			return Quotation{}, err
		}
		price := product.SalePrice
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		gross := price * float64(in.Quantity)
		discount := roundTo2(gross * in.DiscountPct / 100)
		lineSubtotal := roundTo2(gross - discount)
		lines = append(lines, QuotationLine{
			ProductID:      product.ID,
			ProductSKU:     product.SKU,
			ProductName:    product.Name,
			Quantity:       in.Quantity,
			UnitPrice:      price,
			DiscountPct:    in.DiscountPct,
			DiscountAmount: discount,
			Subtotal:       lineSubtotal,
		})
		subtotal += lineSubtotal
		discountTotal += discount
	}
	subtotal = roundTo2(subtotal)

	q := Quotation{
		BranchID:      input.BranchID,
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerTaxID: taxID,
		Subtotal:      subtotal,
		DiscountTotal: roundTo2(discountTotal),
		Total:         subtotal,
		Status:        StatusPending,
		ExpiresAt:     s.now().AddDate(0, 0, validDays),
		CreatedBy:     input.ActorID,
		Lines:         lines,
	}
	return s.repo.Insert(ctx, q)
}

// Get loads one quotation, presenting overdue pending ones as expired.
func (s *Service) Get(ctx context.Context, id int64) (Quotation, error) {
	if id <= 0 {
		return Quotation{}, fmt.Errorf("%w: quotation id required", shared.ErrValidation)
	}
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	return s.presentStatus(q), nil
}

// List pages through quotations.
func (s *Service) List(ctx context.Context, filter Filter) ([]Quotation, shared.Pagination, error) {
	quotations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range quotations {
		quotations[i] = s.presentStatus(quotations[i])
	}
	return quotations, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Cancel closes a pending quotation.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: quotation id required", shared.ErrValidation)
	}
	return s.repo.Transition(ctx, id, StatusPending, StatusCancelled, nil)
}

// MarkInvoiced links a quotation to the invoice that settled it. Only
// pending, unexpired quotations can transition.
func (s *Service) MarkInvoiced(ctx context.Context, quotationID, invoiceID int64) error {
	q, err := s.repo.Get(ctx, quotationID)
	if err != nil {
		return err
	}
	if q.Status == StatusPending && q.ExpiresAt.Before(s.now()) {
		return fmt.Errorf("%w: quotation %d expired on %s", shared.ErrConflict, quotationID, q.ExpiresAt.Format("2006-01-02"))
	}
	return s.repo.Transition(ctx, quotationID, StatusPending, StatusInvoiced, &invoiceID)
}

// presentStatus reports overdue pending quotations as expired without
// rewriting the row; the stored status stays pending until a terminal
// transition happens.
func (s *Service) presentStatus(q Quotation) Quotation {
	if q.Status == StatusPending && q.ExpiresAt.Before(s.now()) {
		q.Status = StatusExpired
	}
	return q
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
