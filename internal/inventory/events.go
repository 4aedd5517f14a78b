package inventory

import (
	"context"
	"time"
)

// LotDistributedEvent describes a completed distribution for downstream
// consumers (reporting, replenishment alerts).
type LotDistributedEvent struct {
	LotID            int64
	LotCode          string
	ProductID        int64
	TotalDistributed int64
	RemainingInLot   int64
	RefID            string
	OccurredAt       time.Time
}

// IntegrationHandler receives inventory events for downstream consumers.
type IntegrationHandler interface {
	HandleLotDistributed(ctx context.Context, evt LotDistributedEvent) error
}
