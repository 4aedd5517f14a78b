package integration

import (
	"context"
	"log/slog"

	"github.com/matices-erp/matices-pos/internal/inventory"
)

// Hooks receives domain events from the inventory module and fans them
// out to downstream consumers. Today that is the structured log stream
// replenishment dashboards tail; low-stock alerting hangs off the same
// events.
type Hooks struct {
	logger *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(logger *slog.Logger) *Hooks {
	return &Hooks{logger: logger}
}

// HandleLotDistributed publishes a completed distribution.
func (h *Hooks) HandleLotDistributed(ctx context.Context, evt inventory.LotDistributedEvent) error {
	if h == nil || h.logger == nil {
		return nil
	}
	h.logger.Info("lot distributed",
		slog.Int64("lot_id", evt.LotID),
		slog.String("lot_code", evt.LotCode),
		slog.Int64("product_id", evt.ProductID),
		slog.Int64("distributed", evt.TotalDistributed),
		slog.Int64("remaining", evt.RemainingInLot),
		slog.String("ref_id", evt.RefID))
	return nil
}
