package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matices-erp/matices-pos/internal/catalog"
	"github.com/matices-erp/matices-pos/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates lot intake and distribution.
type Service struct {
	repo        RepositoryPort
	products    catalog.ProductDirectory
	suppliers   catalog.SupplierDirectory
	branches    catalog.BranchDirectory
	audit       AuditPort
	integration IntegrationHandler
}

// NewService builds Service.
func NewService(repo RepositoryPort, products catalog.ProductDirectory, suppliers catalog.SupplierDirectory, branches catalog.BranchDirectory, audit AuditPort, integration IntegrationHandler) *Service {
	return &Service{repo: repo, products: products, suppliers: suppliers, branches: branches, audit: audit, integration: integration}
}

// IntakeLot registers a purchased lot and optionally distributes part of
// it across branch ledgers in the same transaction. The undistributed
// remainder stays available for a later Distribute call.
func (s *Service) IntakeLot(ctx context.Context, input IntakeInput) (Lot, error) {
	if input.Code == "" {
		return Lot{}, fmt.Errorf("%w: lot code required", shared.ErrValidation)
	}
	if input.IntakeDate.IsZero() {
		return Lot{}, fmt.Errorf("%w: intake date required", shared.ErrValidation)
	}
	if input.QuantityTotal <= 0 {
		return Lot{}, fmt.Errorf("%w: quantity_total must be positive", shared.ErrValidation)
	}
	if input.UnitCost <= 0 {
		return Lot{}, fmt.Errorf("%w: unit_cost must be positive", shared.ErrValidation)
	}
	totalRequested, err := validateDistributionLines(input.Distributions)
	if err != nil {
		return Lot{}, err
	}
	if totalRequested > input.QuantityTotal {
		return Lot{}, fmt.Errorf("%w: requested %d of %d", shared.ErrOverAllocation, totalRequested, input.QuantityTotal)
	}

	supplier, err := s.suppliers.Get(ctx, input.SupplierID)
	if err != nil {
		return Lot{}, err
	}
	product, err := s.products.Get(ctx, input.ProductID)
	if err != nil {
		return Lot{}, err
	}

	refID := uuid.NewString()
	lot := Lot{
		Code:                  input.Code,
		SupplierID:            input.SupplierID,
		ProductID:             input.ProductID,
		IntakeDate:            input.IntakeDate,
		QuantityTotal:         input.QuantityTotal,
		QuantityAvailable:     input.QuantityTotal - totalRequested,
		UnitCost:              input.UnitCost,
		TotalCost:             float64(input.QuantityTotal) * input.UnitCost,
		SupplierInvoiceNumber: input.SupplierInvoiceNumber,
		Active:                true,
	}

	var dists []LotDistribution
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, createdAt, err := tx.InsertLot(ctx, lot)
		if err != nil {
			return err
		}
		lot.ID = id
		lot.CreatedAt = createdAt
		dists, err = s.applyDistributions(ctx, tx, id, lot.ProductID, input.Distributions, refID, input.ActorID)
		return err
	})
	if err != nil {
		return Lot{}, err
	}

	lot.Supplier = supplier
	lot.Product = product
	lot.Distributions = dists

	s.recordAudit(ctx, input.ActorID, "inventory:intake", "lot", lot.Code, map[string]any{
		"lot_id":         lot.ID,
		"product_id":     lot.ProductID,
		"quantity_total": lot.QuantityTotal,
		"distributed":    totalRequested,
	})
	s.notifyDistributed(ctx, lot, totalRequested, refID)
	return lot, nil
}

// Distribute assigns part of an existing lot's remainder to branch
// ledgers. The lot row stays locked across the check and the update so
// concurrent calls cannot over-allocate.
func (s *Service) Distribute(ctx context.Context, input DistributeInput) ([]LotDistribution, Lot, error) {
	if input.LotID <= 0 {
		return nil, Lot{}, fmt.Errorf("%w: lot_id required", shared.ErrValidation)
	}
	if len(input.Distributions) == 0 {
		return nil, Lot{}, fmt.Errorf("%w: at least one distribution line required", shared.ErrValidation)
	}
	totalRequested, err := validateDistributionLines(input.Distributions)
	if err != nil {
		return nil, Lot{}, err
	}

	refID := uuid.NewString()
	var lot Lot
	var dists []LotDistribution
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, err = tx.GetLotForUpdate(ctx, input.LotID)
		if err != nil {
			return err
		}
		if !lot.Active {
			return fmt.Errorf("%w: lot %d is inactive", shared.ErrNotFound, input.LotID)
		}
		if totalRequested > lot.QuantityAvailable {
			return fmt.Errorf("%w: requested %d, available %d", shared.ErrOverAllocation, totalRequested, lot.QuantityAvailable)
		}
		dists, err = s.applyDistributions(ctx, tx, lot.ID, lot.ProductID, input.Distributions, refID, input.ActorID)
		if err != nil {
			return err
		}
		if err := tx.DecrementLotAvailable(ctx, lot.ID, totalRequested); err != nil {
			return err
		}
		lot.QuantityAvailable -= totalRequested
		return nil
	})
	if err != nil {
		return nil, Lot{}, err
	}

	s.recordAudit(ctx, input.ActorID, "inventory:distribute", "lot", lot.Code, map[string]any{
		"lot_id":      lot.ID,
		"product_id":  lot.ProductID,
		"distributed": totalRequested,
		"remaining":   lot.QuantityAvailable,
	})
	s.notifyDistributed(ctx, lot, totalRequested, refID)
	return dists, lot, nil
}

// ListBranchStock returns the branch stock ledger with catalog labels.
func (s *Service) ListBranchStock(ctx context.Context, branchID int64, filter StockFilter) ([]InventoryDetail, shared.Pagination, error) {
	if branchID <= 0 {
		return nil, shared.Pagination{}, fmt.Errorf("%w: branch_id required", shared.ErrValidation)
	}
	if _, err := s.branches.Get(ctx, branchID); err != nil {
		return nil, shared.Pagination{}, err
	}
	entries, total, err := s.repo.ListBranchStock(ctx, branchID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// SetStockLevels creates or updates the min/max levels of a ledger
// entry. Stock itself is only mutated by distribution and settlement.
func (s *Service) SetStockLevels(ctx context.Context, input SetLevelsInput) (Inventory, error) {
	if input.BranchID <= 0 || input.ProductID <= 0 {
		return Inventory{}, fmt.Errorf("%w: branch and product required", shared.ErrValidation)
	}
	if input.StockMin != nil && *input.StockMin < 0 {
		return Inventory{}, fmt.Errorf("%w: stock_min must not be negative", shared.ErrValidation)
	}
	if input.StockMax != nil && *input.StockMax < 0 {
		return Inventory{}, fmt.Errorf("%w: stock_max must not be negative", shared.ErrValidation)
	}
	if _, err := s.products.Get(ctx, input.ProductID); err != nil {
		return Inventory{}, err
	}
	if _, err := s.branches.Get(ctx, input.BranchID); err != nil {
		return Inventory{}, err
	}

	var entry Inventory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetInventory(ctx, input.BranchID, input.ProductID)
		if errors.Is(err, ErrEntryNotFound) {
			entry = Inventory{
				BranchID:  input.BranchID,
				ProductID: input.ProductID,
				StockMin:  DefaultStockMin,
				StockMax:  DefaultStockMax,
				Active:    true,
			}
			if input.StockMin != nil {
				entry.StockMin = *input.StockMin
			}
			if input.StockMax != nil {
				entry.StockMax = *input.StockMax
			}
			entry.ID, err = tx.CreateInventory(ctx, entry)
			return err
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateStockLevels(ctx, entry.ID, input.StockMin, input.StockMax); err != nil {
			return err
		}
		if input.StockMin != nil {
			entry.StockMin = *input.StockMin
		}
		if input.StockMax != nil {
			entry.StockMax = *input.StockMax
		}
		return nil
	})
	if err != nil {
		return Inventory{}, err
	}
	return entry, nil
}

// GetLotsForProduct lists active lots that still have undistributed
// quantity, supplier detail attached, newest intake first.
func (s *Service) GetLotsForProduct(ctx context.Context, productID int64) ([]Lot, error) {
	if productID <= 0 {
		return nil, fmt.Errorf("%w: product_id required", shared.ErrValidation)
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	lots, err := s.repo.GetLotsForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	suppliers := map[int64]*catalog.Supplier{}
	for i := range lots {
		sup, ok := suppliers[lots[i].SupplierID]
		if !ok {
			sup, err = s.suppliers.Get(ctx, lots[i].SupplierID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return nil, err
			}
			suppliers[lots[i].SupplierID] = sup
		}
		lots[i].Supplier = sup
	}
	return lots, nil
}

// applyDistributions resolves each destination ledger entry, appends
// the audit row and credits branch stock. Runs inside the caller's tx.
func (s *Service) applyDistributions(ctx context.Context, tx TxRepository, lotID, productID int64, lines []DistributionLine, refID string, actorID int64) ([]LotDistribution, error) {
	dists := make([]LotDistribution, 0, len(lines))
	for _, line := range lines {
		entry, err := s.resolveEntry(ctx, tx, productID, line)
		if err != nil {
			return nil, err
		}
		dist := LotDistribution{
			LotID:            lotID,
			InventoryID:      entry.ID,
			BranchID:         entry.BranchID,
			QuantityAssigned: line.Quantity,
			RefID:            refID,
			AssignedBy:       actorID,
		}
		dist.ID, err = tx.InsertDistribution(ctx, dist)
		if err != nil {
			return nil, err
		}
		if err := tx.AddStock(ctx, entry.ID, line.Quantity); err != nil {
			return nil, err
		}
		dist.AssignedAt = time.Now().UTC()
		dists = append(dists, dist)
	}
	return dists, nil
}

// resolveEntry locates the destination ledger entry for a distribution
// line, creating it lazily with default levels when only a branch is
// given and the branch has never held the product.
func (s *Service) resolveEntry(ctx context.Context, tx TxRepository, productID int64, line DistributionLine) (Inventory, error) {
	if line.InventoryID > 0 {
		entry, err := tx.GetInventoryByID(ctx, line.InventoryID)
		if errors.Is(err, ErrEntryNotFound) {
			return Inventory{}, fmt.Errorf("%w: inventory %d", shared.ErrNotFound, line.InventoryID)
		}
		if err != nil {
			return Inventory{}, err
		}
		if entry.ProductID != productID {
			return Inventory{}, fmt.Errorf("%w: inventory %d holds a different product", shared.ErrValidation, line.InventoryID)
		}
		return entry, nil
	}
	if line.BranchID <= 0 {
		return Inventory{}, fmt.Errorf("%w: each distribution needs branch_id or inventory_id", shared.ErrValidation)
	}
	if _, err := s.branches.Get(ctx, line.BranchID); err != nil {
		return Inventory{}, err
	}
	entry, err := tx.GetInventory(ctx, line.BranchID, productID)
	if errors.Is(err, ErrEntryNotFound) {
		entry = Inventory{
			BranchID:  line.BranchID,
			ProductID: productID,
			StockMin:  DefaultStockMin,
			StockMax:  DefaultStockMax,
			Active:    true,
		}
		entry.ID, err = tx.CreateInventory(ctx, entry)
		if err != nil {
			return Inventory{}, err
		}
		return entry, nil
	}
	if err != nil {
		return Inventory{}, err
	}
	return entry, nil
}

func validateDistributionLines(lines []DistributionLine) (int64, error) {
	var total int64
	for _, line := range lines {
		if line.Quantity <= 0 {
			return 0, fmt.Errorf("%w: distribution quantity must be positive", shared.ErrValidation)
		}
		if line.InventoryID <= 0 && line.BranchID <= 0 {
			return 0, fmt.Errorf("%w: each distribution needs branch_id or inventory_id", shared.ErrValidation)
		}
		total += line.Quantity
	}
	return total, nil
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

func (s *Service) notifyDistributed(ctx context.Context, lot Lot, distributed int64, refID string) {
	if s.integration == nil || distributed == 0 {
		return
	}
	_ = s.integration.HandleLotDistributed(ctx, LotDistributedEvent{
		LotID:            lot.ID,
		LotCode:          lot.Code,
		ProductID:        lot.ProductID,
		TotalDistributed: distributed,
		RemainingInLot:   lot.QuantityAvailable,
		RefID:            refID,
		OccurredAt:       time.Now().UTC(),
	})
}
