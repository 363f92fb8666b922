package traceability

import (
	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeBatchReceived           = "traceability.batch.received"
	EventTypeBatchAdjusted           = "traceability.batch.adjusted"
	EventTypeBatchDepleted           = "traceability.batch.depleted"
	EventTypeBatchQuarantined        = "traceability.batch.quarantined"
	EventTypeBatchQuarantineReleased = "traceability.batch.quarantine_released"
	EventTypeBatchRecalled           = "traceability.batch.recalled"
	EventTypeBatchExpiring           = "traceability.batch.expiring"
	EventTypeBatchExpired            = "traceability.batch.expired"
	EventTypeBatchDispatched         = "traceability.batch.dispatched"
	EventTypeRecallInitiated         = "traceability.recall.initiated"
	EventTypeRecallClosed            = "traceability.recall.closed"
)

const aggregateTypeStockBatch = "StockBatch"
const aggregateTypeRecall = "Recall"

// BatchReceivedEvent is raised when a new batch enters stock
type BatchReceivedEvent struct {
	shared.BaseDomainEvent
	StockItemID      uuid.UUID       `json:"stock_item_id"`
	BatchCode        string          `json:"batch_code"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
}

// NewBatchReceivedEvent creates a new BatchReceivedEvent
func NewBatchReceivedEvent(tenantID, batchID, stockItemID uuid.UUID, batchCode string, quantity decimal.Decimal) *BatchReceivedEvent {
	return &BatchReceivedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeBatchReceived, aggregateTypeStockBatch, batchID, tenantID),
		StockItemID:      stockItemID,
		BatchCode:        batchCode,
		QuantityReceived: quantity,
	}
}

// BatchAdjustedEvent is raised when a manual correction changes the
// remaining quantity
type BatchAdjustedEvent struct {
	shared.BaseDomainEvent
	BatchCode    string          `json:"batch_code"`
	Delta        decimal.Decimal `json:"delta"`
	NewRemaining decimal.Decimal `json:"new_remaining"`
	Reason       string          `json:"reason"`
}

// NewBatchAdjustedEvent creates a new BatchAdjustedEvent
func NewBatchAdjustedEvent(tenantID, batchID uuid.UUID, batchCode string, delta, newRemaining decimal.Decimal, reason string) *BatchAdjustedEvent {
	return &BatchAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchAdjusted, aggregateTypeStockBatch, batchID, tenantID),
		BatchCode:       batchCode,
		Delta:           delta,
		NewRemaining:    newRemaining,
		Reason:          reason,
	}
}

// BatchDepletedEvent is raised when consumption or dispatch drives the
// remaining quantity to zero
type BatchDepletedEvent struct {
	shared.BaseDomainEvent
	BatchCode string `json:"batch_code"`
}

// NewBatchDepletedEvent creates a new BatchDepletedEvent
func NewBatchDepletedEvent(tenantID, batchID uuid.UUID, batchCode string) *BatchDepletedEvent {
	return &BatchDepletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchDepleted, aggregateTypeStockBatch, batchID, tenantID),
		BatchCode:       batchCode,
	}
}

// BatchQuarantinedEvent is raised when a batch is placed on hold
type BatchQuarantinedEvent struct {
	shared.BaseDomainEvent
	BatchCode string `json:"batch_code"`
	Reason    string `json:"reason"`
}

// NewBatchQuarantinedEvent creates a new BatchQuarantinedEvent
func NewBatchQuarantinedEvent(tenantID, batchID uuid.UUID, batchCode, reason string) *BatchQuarantinedEvent {
	return &BatchQuarantinedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchQuarantined, aggregateTypeStockBatch, batchID, tenantID),
		BatchCode:       batchCode,
		Reason:          reason,
	}
}

// BatchQuarantineReleasedEvent is raised when a hold is lifted
type BatchQuarantineReleasedEvent struct {
	shared.BaseDomainEvent
	BatchCode string `json:"batch_code"`
}

// NewBatchQuarantineReleasedEvent creates a new BatchQuarantineReleasedEvent
func NewBatchQuarantineReleasedEvent(tenantID, batchID uuid.UUID, batchCode string) *BatchQuarantineReleasedEvent {
	return &BatchQuarantineReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchQuarantineReleased, aggregateTypeStockBatch, batchID, tenantID),
		BatchCode:       batchCode,
	}
}

// BatchRecalledEvent is raised when a recall cascade writes off a batch
type BatchRecalledEvent struct {
	shared.BaseDomainEvent
	BatchCode        string          `json:"batch_code"`
	RecallID         uuid.UUID       `json:"recall_id"`
	QuantityRecalled decimal.Decimal `json:"quantity_recalled"`
}

// NewBatchRecalledEvent creates a new BatchRecalledEvent
func NewBatchRecalledEvent(tenantID, batchID uuid.UUID, batchCode string, recallID uuid.UUID, quantityRecalled decimal.Decimal) *BatchRecalledEvent {
	return &BatchRecalledEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeBatchRecalled, aggregateTypeStockBatch, batchID, tenantID),
		BatchCode:        batchCode,
		RecallID:         recallID,
		QuantityRecalled: quantityRecalled,
	}
}

// BatchExpiringEvent is raised by the expiry sweep for batches inside
// their warning window
type BatchExpiringEvent struct {
	shared.BaseDomainEvent
	BatchCode string         `json:"batch_code"`
	Severity  ExpirySeverity `json:"severity"`
	DaysLeft  int            `json:"days_left"`
}

// NewBatchExpiringEvent creates a new BatchExpiringEvent
func NewBatchExpiringEvent(tenantID, batchID uuid.UUID, batchCode string, severity ExpirySeverity, daysLeft int) *BatchExpiringEvent {
	return &BatchExpiringEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchExpiring, aggregateTypeStockBatch, batchID, tenantID),
		BatchCode:       batchCode,
		Severity:        severity,
		DaysLeft:        daysLeft,
	}
}

// BatchExpiredEvent is raised when a batch passes its use-by date
type BatchExpiredEvent struct {
	shared.BaseDomainEvent
	BatchCode         string          `json:"batch_code"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
}

// NewBatchExpiredEvent creates a new BatchExpiredEvent
func NewBatchExpiredEvent(tenantID, batchID uuid.UUID, batchCode string, remaining decimal.Decimal) *BatchExpiredEvent {
	return &BatchExpiredEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeBatchExpired, aggregateTypeStockBatch, batchID, tenantID),
		BatchCode:         batchCode,
		QuantityRemaining: remaining,
	}
}

// BatchDispatchedEvent is raised when stock from a batch ships to a
// customer
type BatchDispatchedEvent struct {
	shared.BaseDomainEvent
	BatchCode          string          `json:"batch_code"`
	DispatchID         uuid.UUID       `json:"dispatch_id"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	QuantityDispatched decimal.Decimal `json:"quantity_dispatched"`
}

// NewBatchDispatchedEvent creates a new BatchDispatchedEvent
func NewBatchDispatchedEvent(tenantID, batchID uuid.UUID, batchCode string, dispatchID, customerID uuid.UUID, quantity decimal.Decimal) *BatchDispatchedEvent {
	return &BatchDispatchedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeBatchDispatched, aggregateTypeStockBatch, batchID, tenantID),
		BatchCode:          batchCode,
		DispatchID:         dispatchID,
		CustomerID:         customerID,
		QuantityDispatched: quantity,
	}
}

// RecallInitiatedEvent is raised the first time a recall cascade runs
type RecallInitiatedEvent struct {
	shared.BaseDomainEvent
	RecallCode    string    `json:"recall_code"`
	RootBatchID   uuid.UUID `json:"root_batch_id"`
	AffectedCount int       `json:"affected_count"`
}

// NewRecallInitiatedEvent creates a new RecallInitiatedEvent
func NewRecallInitiatedEvent(tenantID, recallID uuid.UUID, recallCode string, rootBatchID uuid.UUID, affectedCount int) *RecallInitiatedEvent {
	return &RecallInitiatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecallInitiated, aggregateTypeRecall, recallID, tenantID),
		RecallCode:      recallCode,
		RootBatchID:     rootBatchID,
		AffectedCount:   affectedCount,
	}
}

// RecallClosedEvent is raised when a recall case is closed
type RecallClosedEvent struct {
	shared.BaseDomainEvent
	RecallCode string `json:"recall_code"`
}

// NewRecallClosedEvent creates a new RecallClosedEvent
func NewRecallClosedEvent(tenantID, recallID uuid.UUID, recallCode string) *RecallClosedEvent {
	return &RecallClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecallClosed, aggregateTypeRecall, recallID, tenantID),
		RecallCode:      recallCode,
	}
}
