package inventory

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
	lots          map[int64]*Lot
	lotsByCode    map[string]int64
	entries       map[int64]*Inventory
	entryByKey    map[string]int64
	distributions []LotDistribution
	nextLotID     int64
	nextEntryID   int64
	nextDistID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		lots:       make(map[int64]*Lot),
		lotsByCode: make(map[string]int64),
		entries:    make(map[int64]*Inventory),
		entryByKey: make(map[string]int64),
	}
}

func entryKey(branchID, productID int64) string {
	return fmt.Sprintf("%d:%d", branchID, productID)
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListBranchStock(ctx context.Context, branchID int64, filter StockFilter) ([]InventoryDetail, int, error) {
	result := []InventoryDetail{}
	for _, e := range r.entries {
		if e.BranchID != branchID {
			continue
		}
		if filter.LowStockOnly && e.StockActual >= e.StockMin {
			continue
		}
		result = append(result, InventoryDetail{Inventory: *e})
	}
	return result, len(result), nil
}

func (r *memoryRepo) GetLotsForProduct(ctx context.Context, productID int64) ([]Lot, error) {
	result := []Lot{}
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.QuantityAvailable > 0 && lot.Active {
			result = append(result, *lot)
		}
	}
	return result, nil
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot Lot) (int64, time.Time, error) {
	if _, exists := tx.repo.lotsByCode[lot.Code]; exists {
		return 0, time.Time{}, fmt.Errorf("%w: lot code %q already exists", shared.ErrConflict, lot.Code)
	}
	tx.repo.nextLotID++
	lot.ID = tx.repo.nextLotID
	lot.CreatedAt = time.Now()
	tx.repo.lots[lot.ID] = &lot
	tx.repo.lotsByCode[lot.Code] = lot.ID
	return lot.ID, lot.CreatedAt, nil
}

func (tx *memoryTx) GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error) {
	lot, ok := tx.repo.lots[lotID]
	if !ok {
		return Lot{}, fmt.Errorf("%w: lot %d", shared.ErrNotFound, lotID)
	}
	return *lot, nil
}

func (tx *memoryTx) DecrementLotAvailable(ctx context.Context, lotID, qty int64) error {
	lot, ok := tx.repo.lots[lotID]
	if !ok || lot.QuantityAvailable < qty {
		return fmt.Errorf("%w: lot %d", shared.ErrOverAllocation, lotID)
	}
	lot.QuantityAvailable -= qty
	return nil
}

func (tx *memoryTx) GetInventory(ctx context.Context, branchID, productID int64) (Inventory, error) {
	id, ok := tx.repo.entryByKey[entryKey(branchID, productID)]
	if !ok {
		return Inventory{BranchID: branchID, ProductID: productID}, ErrEntryNotFound
	}
	return *tx.repo.entries[id], nil
}

func (tx *memoryTx) GetInventoryByID(ctx context.Context, id int64) (Inventory, error) {
	entry, ok := tx.repo.entries[id]
	if !ok {
		return Inventory{}, ErrEntryNotFound
	}
	return *entry, nil
}

func (tx *memoryTx) CreateInventory(ctx context.Context, entry Inventory) (int64, error) {
	tx.repo.nextEntryID++
	entry.ID = tx.repo.nextEntryID
	tx.repo.entries[entry.ID] = &entry
	tx.repo.entryByKey[entryKey(entry.BranchID, entry.ProductID)] = entry.ID
	return entry.ID, nil
}

func (tx *memoryTx) AddStock(ctx context.Context, inventoryID, qty int64) error {
	entry, ok := tx.repo.entries[inventoryID]
	if !ok {
		return ErrEntryNotFound
	}
	entry.StockActual += qty
	return nil
}

func (tx *memoryTx) InsertDistribution(ctx context.Context, dist LotDistribution) (int64, error) {
	tx.repo.nextDistID++
	dist.ID = tx.repo.nextDistID
	tx.repo.distributions = append(tx.repo.distributions, dist)
	return dist.ID, nil
}

func (tx *memoryTx) UpdateStockLevels(ctx context.Context, inventoryID int64, stockMin, stockMax *int64) error {
	entry, ok := tx.repo.entries[inventoryID]
	if !ok {
		return ErrEntryNotFound
	}
	if stockMin != nil {
		entry.StockMin = *stockMin
	}
	if stockMax != nil {
		entry.StockMax = *stockMax
	}
	return nil
}

type stubDirectories struct{}

func (stubDirectories) Get(ctx context.Context, id int64) (*catalog.Product, error) {
	if id <= 0 || id > 100 {
		return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return &catalog.Product{ID: id, SKU: fmt.Sprintf("SKU-%d", id), Name: fmt.Sprintf("Paint %d", id), SalePrice: 100, Active: true}, nil
}

type stubSuppliers struct{}

func (stubSuppliers) Get(ctx context.Context, id int64) (*catalog.Supplier, error) {
	if id <= 0 || id > 100 {
		return nil, fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
	}
	return &catalog.Supplier{ID: id, Name: fmt.Sprintf("Supplier %d", id), Active: true}, nil
}

type stubBranches struct{}

func (stubBranches) Get(ctx context.Context, id int64) (*catalog.Branch, error) {
	if id <= 0 || id > 100 {
		return nil, fmt.Errorf("%w: branch %d", shared.ErrNotFound, id)
	}
	return &catalog.Branch{ID: id, Name: fmt.Sprintf("Branch %d", id), Active: true}, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, stubDirectories{}, stubSuppliers{}, stubBranches{}, nil, nil)
}

func intakeInput() IntakeInput {
	return IntakeInput{
		Code:          "LOT-2026-001",
		SupplierID:    3,
		ProductID:     7,
		IntakeDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		QuantityTotal: 100,
		UnitCost:      10.00,
		ActorID:       42,
	}
}

func TestIntakeLot(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot, err := svc.IntakeLot(ctx, intakeInput())
	require.NoError(t, err)
	require.Equal(t, int64(100), lot.QuantityTotal)
	require.Equal(t, int64(100), lot.QuantityAvailable)
	require.InDelta(t, 1000.00, lot.TotalCost, 0.001)
	require.NotNil(t, lot.Supplier)
	require.NotNil(t, lot.Product)

	// The returned timestamp is the stored row's, not a second clock
	// reading taken after the transaction.
	require.False(t, lot.CreatedAt.IsZero())
	require.True(t, lot.CreatedAt.Equal(repo.lots[lot.ID].CreatedAt))
}

func TestIntakeLotDuplicateCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.IntakeLot(ctx, intakeInput())
	require.NoError(t, err)

	_, err = svc.IntakeLot(ctx, intakeInput())
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestIntakeLotValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	input := intakeInput()
	input.QuantityTotal = 0
	_, err := svc.IntakeLot(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = intakeInput()
	input.UnitCost = 0
	_, err = svc.IntakeLot(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = intakeInput()
	input.Code = ""
	_, err = svc.IntakeLot(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = intakeInput()
	input.SupplierID = 999
	_, err = svc.IntakeLot(ctx, input)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIntakeWithInlineDistribution(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	input := intakeInput()
	input.Distributions = []DistributionLine{
		{BranchID: 1, Quantity: 30},
		{BranchID: 2, Quantity: 20},
	}
	lot, err := svc.IntakeLot(ctx, input)
	require.NoError(t, err)
	require.Equal(t, int64(50), lot.QuantityAvailable)
	require.Len(t, lot.Distributions, 2)

	// Ledger entries were created lazily with default levels.
	entry := repo.entries[repo.entryByKey[entryKey(1, 7)]]
	require.Equal(t, int64(30), entry.StockActual)
	require.Equal(t, int64(DefaultStockMin), entry.StockMin)
	require.Equal(t, int64(DefaultStockMax), entry.StockMax)
}

func TestIntakeOverDistribution(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	input := intakeInput()
	input.Distributions = []DistributionLine{{BranchID: 1, Quantity: 101}}
	_, err := svc.IntakeLot(ctx, input)
	require.ErrorIs(t, err, shared.ErrOverAllocation)
	require.Empty(t, repo.lots)
}

func TestDistributeFullLotAcrossBranches(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot, err := svc.IntakeLot(ctx, intakeInput())
	require.NoError(t, err)

	dists, updated, err := svc.Distribute(ctx, DistributeInput{
		LotID: lot.ID,
		Distributions: []DistributionLine{
			{BranchID: 1, Quantity: 60},
			{BranchID: 2, Quantity: 40},
		},
		ActorID: 42,
	})
	require.NoError(t, err)
	require.Len(t, dists, 2)
	require.Equal(t, int64(0), updated.QuantityAvailable)

	require.Equal(t, int64(60), repo.entries[repo.entryByKey[entryKey(1, 7)]].StockActual)
	require.Equal(t, int64(40), repo.entries[repo.entryByKey[entryKey(2, 7)]].StockActual)

	// One more unit is over-allocation.
	_, _, err = svc.Distribute(ctx, DistributeInput{
		LotID:         lot.ID,
		Distributions: []DistributionLine{{BranchID: 1, Quantity: 1}},
		ActorID:       42,
	})
	require.ErrorIs(t, err, shared.ErrOverAllocation)
}

func TestDistributePartialLeavesRemainder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot, err := svc.IntakeLot(ctx, intakeInput())
	require.NoError(t, err)

	_, updated, err := svc.Distribute(ctx, DistributeInput{
		LotID:         lot.ID,
		Distributions: []DistributionLine{{BranchID: 1, Quantity: 25}},
		ActorID:       42,
	})
	require.NoError(t, err)
	require.Equal(t, int64(75), updated.QuantityAvailable)

	// Same branch again in a second event: audit rows stay append-only.
	_, updated, err = svc.Distribute(ctx, DistributeInput{
		LotID:         lot.ID,
		Distributions: []DistributionLine{{BranchID: 1, Quantity: 25}},
		ActorID:       42,
	})
	require.NoError(t, err)
	require.Equal(t, int64(50), updated.QuantityAvailable)
	require.Len(t, repo.distributions, 2)
	require.Equal(t, int64(50), repo.entries[repo.entryByKey[entryKey(1, 7)]].StockActual)
}

func TestDistributeValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.Distribute(ctx, DistributeInput{LotID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.Distribute(ctx, DistributeInput{
		LotID:         99,
		Distributions: []DistributionLine{{BranchID: 1, Quantity: 5}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	lot, err := svc.IntakeLot(ctx, intakeInput())
	require.NoError(t, err)
	_, _, err = svc.Distribute(ctx, DistributeInput{
		LotID:         lot.ID,
		Distributions: []DistributionLine{{BranchID: 1, Quantity: 0}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDistributeToMismatchedInventory(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	// Ledger entry for a different product.
	otherID, err := (&memoryTx{repo: repo}).CreateInventory(ctx, Inventory{BranchID: 1, ProductID: 9, StockMin: 5, StockMax: 1000, Active: true})
	require.NoError(t, err)

	lot, err := svc.IntakeLot(ctx, intakeInput())
	require.NoError(t, err)

	_, _, err = svc.Distribute(ctx, DistributeInput{
		LotID:         lot.ID,
		Distributions: []DistributionLine{{InventoryID: otherID, Quantity: 5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetStockLevels(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	min := int64(10)
	entry, err := svc.SetStockLevels(ctx, SetLevelsInput{BranchID: 1, ProductID: 7, StockMin: &min})
	require.NoError(t, err)
	require.Equal(t, int64(10), entry.StockMin)
	require.Equal(t, int64(DefaultStockMax), entry.StockMax)
	require.Equal(t, int64(0), entry.StockActual)

	max := int64(500)
	entry, err = svc.SetStockLevels(ctx, SetLevelsInput{BranchID: 1, ProductID: 7, StockMax: &max})
	require.NoError(t, err)
	require.Equal(t, int64(10), entry.StockMin)
	require.Equal(t, int64(500), entry.StockMax)
}

func TestLotInvariantNeverExceedsTotal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot, err := svc.IntakeLot(ctx, intakeInput())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, updated, err := svc.Distribute(ctx, DistributeInput{
			LotID:         lot.ID,
			Distributions: []DistributionLine{{BranchID: 1, Quantity: 10}},
		})
		require.NoError(t, err)
		require.GreaterOrEqual(t, updated.QuantityAvailable, int64(0))
		require.LessOrEqual(t, updated.QuantityAvailable, updated.QuantityTotal)
	}
	_, _, err = svc.Distribute(ctx, DistributeInput{
		LotID:         lot.ID,
		Distributions: []DistributionLine{{BranchID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrOverAllocation)
}
