package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/matices-erp/matices-pos/internal/catalog"
	"github.com/matices-erp/matices-pos/internal/shared"
)

// paymentTolerance is the largest accepted gap between the payment sum
// and the invoice total, covering float rounding on split payments.
const paymentTolerance = 0.01

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed create requests by request id.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, requestID, scope string) error
	Delete(ctx context.Context, requestID string) error
}

// QuotationMarker flips a quotation to invoiced once a sale references
// it. Implemented by the quotations service.
type QuotationMarker interface {
	MarkInvoiced(ctx context.Context, quotationID, invoiceID int64) error
}

// Directories bundles the catalog lookups the settlement flows need.
type Directories struct {
	Products       catalog.ProductDirectory
	PaymentMethods catalog.PaymentMethodDirectory
	Users          catalog.UserDirectory
	Walkins        catalog.WalkinDirectory
}

// Service coordinates sale settlement and void settlement.
type Service struct {
	repo          RepositoryPort
	dirs          Directories
	defaultSeries string
	quotations    QuotationMarker
	idempotency   IdempotencyPort
	audit         AuditPort
}

// NewService builds Service. quotations, idempotency and audit may be
// nil; the corresponding side effects are skipped.
func NewService(repo RepositoryPort, dirs Directories, defaultSeries string, quotations QuotationMarker, idempotency IdempotencyPort, audit AuditPort) *Service {
	if defaultSeries == "" {
		defaultSeries = "A"
	}
	return &Service{repo: repo, dirs: dirs, defaultSeries: defaultSeries, quotations: quotations, idempotency: idempotency, audit: audit}
}

// resolvedCustomer carries the reference plus the snapshot fields that
// get copied onto the invoice.
type resolvedCustomer struct {
	ref    CustomerRef
	name   string
	taxID  string
	inline *catalog.NewWalkinCustomer
}

// CreateInvoice settles a sale: resolves the customer, prices the
// lines, validates payments against the total and then, in one
// transaction, deducts branch stock per line, draws the next invoice
// number and persists invoice, lines and payments. Any failure leaves
// the store untouched.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error) {
	if err := validateCreateRequest(&req); err != nil {
		return Invoice{}, err
	}
	series := req.Series
	if series == "" {
		series = s.defaultSeries
	}

	keyInserted := false
	if req.RequestID != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, req.RequestID, "billing"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Invoice{}, fmt.Errorf("%w: request %s already processed", shared.ErrConflict, req.RequestID)
			}
			return Invoice{}, err
		}
		keyInserted = true
	}
	fail := func(err error) (Invoice, error) {
		if keyInserted {
			_ = s.idempotency.Delete(ctx, req.RequestID)
		}
		return Invoice{}, err
	}

	customer, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return fail(err)
	}

	lines, subtotal, discountTotal, err := s.priceLines(ctx, req.Lines)
	if err != nil {
		return fail(err)
	}
	// Line discounts are already netted into each line subtotal, so the
	// invoice total IS the subtotal and discount_total stays
	// informational. Subtracting it again would double-discount.
	total := subtotal

	payments, paid, err := s.resolvePayments(ctx, req.Payments)
	if err != nil {
		return fail(err)
	}
	if math.Abs(paid-total) >= paymentTolerance {
		return fail(fmt.Errorf("%w: payments sum to %.2f, total is %.2f", shared.ErrPaymentMismatch, paid, total))
	}

	inv := Invoice{
		Series:        series,
		BranchID:      req.BranchID,
		Channel:       req.Channel,
		Customer:      customer.ref,
		CustomerName:  customer.name,
		CustomerTaxID: customer.taxID,
		Subtotal:      subtotal,
		DiscountTotal: discountTotal,
		Total:         total,
		Status:        StatusActive,
		QuotationID:   req.QuotationID,
		CreatedBy:     req.ActorID,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if customer.inline != nil {
			ref, name, taxID, err := resolveInlineWalkin(ctx, tx, *customer.inline)
			if err != nil {
				return err
			}
			inv.Customer, inv.CustomerName, inv.CustomerTaxID = ref, name, taxID
		}
		seq, err := tx.NextInvoiceSequence(ctx, series, req.BranchID)
		if err != nil {
			return err
		}
		inv.Sequence = seq
		inv.Number = fmt.Sprintf("%s-%08d", series, seq)

		for _, line := range lines {
			if err := tx.DeductStock(ctx, req.BranchID, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		inv.ID, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].InvoiceID = inv.ID
			lines[i].ID, err = tx.InsertLine(ctx, lines[i])
			if err != nil {
				return err
			}
		}
		for i := range payments {
			payments[i].InvoiceID = inv.ID
			payments[i].ID, err = tx.InsertPayment(ctx, payments[i])
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}
	inv.Lines = lines
	inv.Payments = payments

	if req.QuotationID != nil && s.quotations != nil {
		// Best effort outside the sale tx; the quotation keeps pointing
		// at a real invoice either way.
		_ = s.quotations.MarkInvoiced(ctx, *req.QuotationID, inv.ID)
	}
	s.recordAudit(ctx, req.ActorID, "billing:create", "invoice", inv.Number, map[string]any{
		"invoice_id": inv.ID,
		"branch_id":  inv.BranchID,
		"total":      inv.Total,
		"lines":      len(inv.Lines),
	})
	return inv, nil
}

// VoidInvoice cancels an active invoice: writes the void snapshot,
// credits every line's quantity back onto the branch ledger, marks the
// restoration done and flips the invoice status, all in one
// transaction. Voiding is one-way; a second call fails.
func (s *Service) VoidInvoice(ctx context.Context, input VoidInput) (InvoiceVoid, Invoice, error) {
	number := strings.TrimSpace(input.Number)
	if number == "" {
		return InvoiceVoid{}, Invoice{}, fmt.Errorf("%w: invoice number required", shared.ErrValidation)
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return InvoiceVoid{}, Invoice{}, fmt.Errorf("%w: void reason required", shared.ErrValidation)
	}

	var (
		inv  Invoice
		void InvoiceVoid
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, number)
		if err != nil {
			return err
		}
		if inv.Status != StatusActive {
			return fmt.Errorf("%w: invoice %s", shared.ErrAlreadyVoided, number)
		}
		inv.Lines, err = tx.GetInvoiceLines(ctx, inv.ID)
		if err != nil {
			return err
		}

		void = InvoiceVoid{
			InvoiceID:       inv.ID,
			InvoiceNumber:   inv.Number,
			Reason:          reason,
			Subtotal:        inv.Subtotal,
			DiscountTotal:   inv.DiscountTotal,
			Total:           inv.Total,
			RequiresRestock: true,
			VoidedBy:        input.ActorID,
		}
		void.ID, err = tx.InsertVoid(ctx, void)
		if err != nil {
			return err
		}

		for _, line := range inv.Lines {
			if err := tx.RestoreStock(ctx, inv.BranchID, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		if err := tx.MarkVoidRestored(ctx, void.ID); err != nil {
			return err
		}
		void.StockRestored = true

		if err := tx.MarkInvoiceVoided(ctx, inv.ID); err != nil {
			return err
		}
		inv.Status = StatusVoided
		return nil
	})
	if err != nil {
		return InvoiceVoid{}, Invoice{}, err
	}

	s.recordAudit(ctx, input.ActorID, "billing:void", "invoice", inv.Number, map[string]any{
		"invoice_id": inv.ID,
		"reason":     reason,
		"total":      inv.Total,
	})
	return void, inv, nil
}

// GetInvoice loads one invoice with lines and payments.
func (s *Service) GetInvoice(ctx context.Context, number string) (Invoice, error) {
	if strings.TrimSpace(number) == "" {
		return Invoice{}, fmt.Errorf("%w: invoice number required", shared.ErrValidation)
	}
	return s.repo.GetInvoiceByNumber(ctx, number)
}

// ListInvoices pages through invoice headers.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, shared.Pagination, error) {
	invoices, total, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return invoices, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func validateCreateRequest(req *CreateInvoiceRequest) error {
	if req.BranchID <= 0 {
		return fmt.Errorf("%w: branch_id required", shared.ErrValidation)
	}
	if req.Channel == "" {
		req.Channel = ChannelInPerson
	}
	if req.Channel != ChannelInPerson && req.Channel != ChannelOnline {
		return fmt.Errorf("%w: unknown channel %q", shared.ErrValidation, req.Channel)
	}
	if len(req.Lines) == 0 {
		return fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if len(req.Payments) == 0 {
		return fmt.Errorf("%w: at least one payment required", shared.ErrValidation)
	}
	refs := 0
	if req.UserID != nil {
		refs++
	}
	if req.WalkinCustomerID != nil {
		refs++
	}
	if req.Customer != nil {
		refs++
	}
	if refs > 1 {
		return fmt.Errorf("%w: supply at most one of user_id, walkin_customer_id or customer", shared.ErrValidation)
	}
	if req.Customer != nil && strings.TrimSpace(req.Customer.FirstName) == "" {
		return fmt.Errorf("%w: customer name required", shared.ErrValidation)
	}
	for _, line := range req.Lines {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return fmt.Errorf("%w: each line needs a product and a positive quantity", shared.ErrValidation)
		}
		if line.DiscountPct < 0 || line.DiscountPct > 100 {
			return fmt.Errorf("%w: discount_pct must be between 0 and 100", shared.ErrValidation)
		}
		if line.UnitPrice != nil && *line.UnitPrice <= 0 {
			return fmt.Errorf("%w: unit_price must be positive", shared.ErrValidation)
		}
	}
	for _, payment := range req.Payments {
		if payment.Amount <= 0 {
			return fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
		}
	}
	return nil
}

// resolveCustomer handles the three pre-transaction customer modes and
// defers inline walk-in resolution to the sale transaction so customer
// creation commits or rolls back with the invoice.
func (s *Service) resolveCustomer(ctx context.Context, req CreateInvoiceRequest) (resolvedCustomer, error) {
	switch {
	case req.UserID != nil:
		u, err := s.dirs.Users.Get(ctx, *req.UserID)
		if err != nil {
			return resolvedCustomer{}, err
		}
		taxID := catalog.FinalConsumerTaxID
		if u.TaxID != nil && *u.TaxID != "" {
			taxID = *u.TaxID
		}
		return resolvedCustomer{
			ref:   CustomerRef{Kind: CustomerRegistered, UserID: &u.ID},
			name:  u.DisplayName(),
			taxID: taxID,
		}, nil
	case req.WalkinCustomerID != nil:
		c, err := s.dirs.Walkins.Get(ctx, *req.WalkinCustomerID)
		if err != nil {
			return resolvedCustomer{}, err
		}
		return resolvedCustomer{
			ref:   CustomerRef{Kind: CustomerWalkin, WalkinID: &c.ID},
			name:  c.DisplayName(),
			taxID: c.TaxID,
		}, nil
	case req.Customer != nil:
		inline := *req.Customer
		inline.TaxID = strings.TrimSpace(inline.TaxID)
		if inline.TaxID == "" {
			inline.TaxID = catalog.FinalConsumerTaxID
		}
		return resolvedCustomer{inline: &inline}, nil
	default:
		c, err := s.dirs.Walkins.Get(ctx, catalog.DefaultWalkinCustomerID)
		if err != nil {
			return resolvedCustomer{}, err
		}
		return resolvedCustomer{
			ref:   CustomerRef{Kind: CustomerWalkin, WalkinID: &c.ID},
			name:  c.DisplayName(),
			taxID: c.TaxID,
		}, nil
	}
}

// resolveInlineWalkin reuses an existing walk-in customer with the same
// non-generic tax id, otherwise creates one. Runs inside the sale tx.
func resolveInlineWalkin(ctx context.Context, tx TxRepository, inline catalog.NewWalkinCustomer) (CustomerRef, string, string, error) {
	if inline.TaxID != catalog.FinalConsumerTaxID {
		existing, err := tx.FindWalkinByTaxID(ctx, inline.TaxID)
		if err == nil {
			return CustomerRef{Kind: CustomerWalkin, WalkinID: &existing.ID}, existing.DisplayName(), existing.TaxID, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return CustomerRef{}, "", "", err
		}
	}
	created, err := tx.InsertWalkinCustomer(ctx, inline)
	if err != nil {
		return CustomerRef{}, "", "", err
	}
	return CustomerRef{Kind: CustomerWalkin, WalkinID: &created.ID}, created.DisplayName(), created.TaxID, nil
}

// priceLines snapshots catalog data onto each line and computes the
// discount arithmetic: gross = price × qty, discount = gross × pct/100,
// line subtotal = gross − discount.
func (s *Service) priceLines(ctx context.Context, inputs []LineInput) ([]InvoiceLine, float64, float64, error) {
	lines := make([]InvoiceLine, 0, len(inputs))
	var subtotal, discountTotal float64
	for _, in := range inputs {
		product, err := s.dirs.Products.Get(ctx, in.ProductID)
		if err != nil {
			return nil, 0, 0, err
		}
		price := product.SalePrice
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		if price <= 0 {
			return nil, 0, 0, fmt.Errorf("%w: product %d has no sale price", shared.ErrValidation, in.ProductID)
		}
		gross := price * float64(in.Quantity)
		discount := roundTo2(gross * in.DiscountPct / 100)
		lineSubtotal := roundTo2(gross - discount)

		lines = append(lines, InvoiceLine{
			ProductID:      product.ID,
			ProductSKU:     product.SKU,
			ProductName:    product.Name,
			Quantity:       in.Quantity,
			UnitPrice:      price,
			DiscountPct:    in.DiscountPct,
			DiscountAmount: discount,
			Subtotal:       lineSubtotal,
			LotID:          in.LotID,
		})
		subtotal += lineSubtotal
		discountTotal += discount
	}
	return lines, roundTo2(subtotal), roundTo2(discountTotal), nil
}

// resolvePayments maps each payment input to an active method, by id
// or by fuzzy name, and returns the rows plus the paid sum.
func (s *Service) resolvePayments(ctx context.Context, inputs []PaymentInput) ([]InvoicePayment, float64, error) {
	payments := make([]InvoicePayment, 0, len(inputs))
	var paid float64
	for _, in := range inputs {
		var (
			method *catalog.PaymentMethod
			err    error
		)
		switch {
		case in.MethodID > 0:
			method, err = s.dirs.PaymentMethods.Get(ctx, in.MethodID)
		case in.MethodName != "":
			method, err = s.dirs.PaymentMethods.FindByName(ctx, in.MethodName)
		default:
			err = fmt.Errorf("%w: payment method required", shared.ErrInvalidPaymentMethod)
		}
		if err != nil {
			return nil, 0, err
		}
		if !method.Active {
			return nil, 0, fmt.Errorf("%w: %s is inactive", shared.ErrInvalidPaymentMethod, method.Name)
		}
		payments = append(payments, InvoicePayment{
			MethodID:   method.ID,
			MethodName: method.Name,
			Amount:     roundTo2(in.Amount),
			Reference:  in.Reference,
		})
		paid += in.Amount
	}
	return payments, roundTo2(paid), nil
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
}
