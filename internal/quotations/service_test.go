package quotations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matices-erp/matices-pos/internal/catalog"
	"github.com/matices-erp/matices-pos/internal/shared"
)

type memoryRepo struct {
	quotations map[int64]*Quotation
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{quotations: make(map[int64]*Quotation)}
}

func (r *memoryRepo) Insert(ctx context.Context, q Quotation) (Quotation, error) {
	r.nextID++
	q.ID = r.nextID
	q.CreatedAt = time.Now()
	for i := range q.Lines {
		q.Lines[i].QuotationID = q.ID
		q.Lines[i].ID = int64(i + 1)
	}
	stored := q
	r.quotations[q.ID] = &stored
	return q, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Quotation, error) {
	q, ok := r.quotations[id]
	if !ok {
		return Quotation{}, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return *q, nil
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]Quotation, int, error) {
	result := []Quotation{}
	for _, q := range r.quotations {
		if filter.BranchID > 0 && q.BranchID != filter.BranchID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		result = append(result, *q)
	}
	return result, len(result), nil
}

func (r *memoryRepo) Transition(ctx context.Context, id int64, from, to Status, invoiceID *int64) error {
	q, ok := r.quotations[id]
	if !ok || q.Status != from {
		return fmt.Errorf("%w: quotation %d is not %s", shared.ErrConflict, id, from)
	}
	q.Status = to
	if invoiceID != nil {
		q.InvoiceID = invoiceID
	}
	return nil
}

type stubProducts struct{}

func (stubProducts) Get(ctx context.Context, id int64) (*catalog.Product, error) {
	if id != 7 {
		return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return &catalog.Product{ID: 7, SKU: "PNT-7", Name: "Latex Interior", SalePrice: 50.00, Active: true}, nil
}

func newTestService(repo *memoryRepo, now time.Time) *Service {
	svc := NewService(repo, stubProducts{})
	svc.now = func() time.Time { return now }
	return svc
}

func TestCreateQuotation(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(newMemoryRepo(), now)

	q, err := svc.Create(context.Background(), CreateInput{
		BranchID:     1,
		CustomerName: "Constructora Sol",
		Lines:        []LineInput{{ProductID: 7, Quantity: 4, DiscountPct: 25}},
		ActorID:      42,
	})
	require.NoError(t, err)

	// 4 × 50.00 with 25% off: discount 50.00, subtotal 150.00.
	require.InDelta(t, 150.00, q.Subtotal, 0.001)
	require.InDelta(t, 50.00, q.DiscountTotal, 0.001)
	require.Equal(t, q.Subtotal, q.Total)
	require.Equal(t, StatusPending, q.Status)
	require.Equal(t, catalog.FinalConsumerTaxID, q.CustomerTaxID)
	require.Equal(t, now.AddDate(0, 0, DefaultValidityDays), q.ExpiresAt)
}

func TestCreateQuotationValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), time.Now())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{BranchID: 1, CustomerName: "X"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{
		BranchID: 1, CustomerName: " ",
		Lines: []LineInput{{ProductID: 7, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMarkInvoiced(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	ctx := context.Background()

	q, err := svc.Create(ctx, CreateInput{
		BranchID: 1, CustomerName: "Constructora Sol",
		Lines: []LineInput{{ProductID: 7, Quantity: 4}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkInvoiced(ctx, q.ID, 99))
	updated, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInvoiced, updated.Status)
	require.Equal(t, int64(99), *updated.InvoiceID)

	// Already invoiced: a second mark conflicts.
	require.ErrorIs(t, svc.MarkInvoiced(ctx, q.ID, 100), shared.ErrConflict)
}

func TestMarkInvoicedExpired(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	ctx := context.Background()

	q, err := svc.Create(ctx, CreateInput{
		BranchID: 1, CustomerName: "Constructora Sol", ValidDays: 5,
		Lines: []LineInput{{ProductID: 7, Quantity: 4}},
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return now.AddDate(0, 0, 6) }
	require.ErrorIs(t, svc.MarkInvoiced(ctx, q.ID, 99), shared.ErrConflict)

	// The overdue pending row presents as expired.
	stale, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, stale.Status)
}

func TestCancelQuotation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, time.Now())
	ctx := context.Background()

	q, err := svc.Create(ctx, CreateInput{
		BranchID: 1, CustomerName: "Constructora Sol",
		Lines: []LineInput{{ProductID: 7, Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, q.ID))
	require.ErrorIs(t, svc.Cancel(ctx, q.ID), shared.ErrConflict)
	require.ErrorIs(t, svc.MarkInvoiced(ctx, q.ID, 99), shared.ErrConflict)
}
