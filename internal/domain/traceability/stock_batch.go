package traceability

import (
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStatus represents the lifecycle state of a stock batch
type BatchStatus string

const (
	BatchStatusActive      BatchStatus = "active"
	BatchStatusQuarantined BatchStatus = "quarantined"
	BatchStatusRecalled    BatchStatus = "recalled"
	BatchStatusConsumed    BatchStatus = "consumed"
	BatchStatusExpired     BatchStatus = "expired"
)

// IsValid checks if the batch status is a known value
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusActive, BatchStatusQuarantined, BatchStatusRecalled,
		BatchStatusConsumed, BatchStatusExpired:
		return true
	}
	return false
}

// StockBatch is the aggregate root for a physical lot of stock.
// QuantityRemaining is a projection over the batch's movement ledger:
// it always equals the sum of all movement deltas, starting from the
// initial received movement, and is never negative. All quantity changes
// go through the aggregate methods so the projection, the ledger event
// and the lifecycle status stay consistent.
type StockBatch struct {
	shared.TenantAggregateRoot
	BatchCode            string           `gorm:"type:varchar(64);not null"`
	StockItemID          uuid.UUID        `gorm:"type:uuid;not null;index"`
	SiteID               *uuid.UUID       `gorm:"type:uuid;index"`
	Unit                 string           `gorm:"type:varchar(20);not null"`
	QuantityReceived     decimal.Decimal  `gorm:"type:decimal(20,4);not null"`
	QuantityRemaining    decimal.Decimal  `gorm:"type:decimal(20,4);not null"`
	Status               BatchStatus      `gorm:"type:varchar(20);not null;default:'active'"`
	UseByDate            *time.Time       `gorm:"type:date"`
	BestBeforeDate       *time.Time       `gorm:"type:date"`
	TemperatureOnReceipt *decimal.Decimal `gorm:"type:decimal(6,2)"`
	ConditionNotes       string           `gorm:"type:text"`
	SourceDeliveryLineID *uuid.UUID       `gorm:"type:uuid;index"`
}

// TableName specifies the table name for GORM
func (StockBatch) TableName() string {
	return "stock_batches"
}

// NewStockBatch creates a batch from a goods receipt. The received
// quantity seeds both QuantityReceived and the remaining projection;
// the paired ledger event comes from InitialMovement.
func NewStockBatch(
	tenantID, stockItemID uuid.UUID,
	batchCode, unit string,
	quantityReceived decimal.Decimal,
) (*StockBatch, error) {
	if batchCode == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "batch code is required")
	}
	if unit == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "unit is required")
	}
	if !quantityReceived.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "received quantity must be positive")
	}

	batch := &StockBatch{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		BatchCode:           batchCode,
		StockItemID:         stockItemID,
		Unit:                unit,
		QuantityReceived:    quantityReceived,
		QuantityRemaining:   quantityReceived,
		Status:              BatchStatusActive,
	}

	batch.AddDomainEvent(NewBatchReceivedEvent(tenantID, batch.ID, stockItemID, batchCode, quantityReceived))
	return batch, nil
}

// SetSite assigns the batch to a site (nil means company-wide)
func (b *StockBatch) SetSite(siteID uuid.UUID) {
	b.SiteID = &siteID
}

// SetDates sets the use-by and best-before dates
func (b *StockBatch) SetDates(useBy, bestBefore *time.Time) {
	b.UseByDate = useBy
	b.BestBeforeDate = bestBefore
}

// SetReceiptConditions records receipt inspection details
func (b *StockBatch) SetReceiptConditions(temperature *decimal.Decimal, notes string) {
	b.TemperatureOnReceipt = temperature
	b.ConditionNotes = notes
}

// SetSourceDeliveryLine links the batch to the supplier delivery line it
// was received from. Batches with a source delivery line and no inbound
// production edge are origin nodes for backward traces.
func (b *StockBatch) SetSourceDeliveryLine(deliveryLineID uuid.UUID) {
	b.SourceDeliveryLineID = &deliveryLineID
}

// InitialMovement builds the received ledger event that seeds the
// batch's ledger. It must be persisted in the same transaction as the
// batch itself.
func (b *StockBatch) InitialMovement(createdBy string) (*BatchMovement, error) {
	movement, err := NewBatchMovement(
		b.TenantID, b.ID,
		MovementTypeReceived,
		b.QuantityReceived, b.QuantityReceived,
		createdBy,
	)
	if err != nil {
		return nil, err
	}
	if b.SourceDeliveryLineID != nil {
		movement.WithReference(ReferenceTypeDeliveryLine, *b.SourceDeliveryLineID)
	}
	return movement, nil
}

// IsTerminal reports whether the batch has reached a terminal status
func (b *StockBatch) IsTerminal() bool {
	return b.Status == BatchStatusRecalled || b.Status == BatchStatusConsumed || b.Status == BatchStatusExpired
}

// Consume draws down the batch for use in production. Only active
// batches can be consumed.
func (b *StockBatch) Consume(quantity decimal.Decimal, productionBatchID uuid.UUID, createdBy string) (*BatchMovement, error) {
	return b.drawDown(MovementTypeConsumed, quantity, ReferenceTypeProduction, productionBatchID, createdBy)
}

// Dispatch draws down the batch for an outbound shipment. Only active
// batches can be dispatched.
func (b *StockBatch) Dispatch(quantity decimal.Decimal, dispatchID uuid.UUID, createdBy string) (*BatchMovement, error) {
	return b.drawDown(MovementTypeDispatched, quantity, ReferenceTypeDispatch, dispatchID, createdBy)
}

// Transfer draws down the batch for a site-to-site transfer. The batch
// stays active: transferred stock still exists, it just left this site.
func (b *StockBatch) Transfer(quantity decimal.Decimal, createdBy string) (*BatchMovement, error) {
	if b.Status != BatchStatusActive {
		return nil, shared.ErrInvalidState
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "transfer quantity must be positive")
	}
	delta := quantity.Neg()
	if b.QuantityRemaining.Add(delta).IsNegative() {
		return nil, shared.ErrInsufficientQuantity
	}

	b.QuantityRemaining = b.QuantityRemaining.Add(delta)
	b.UpdatedAt = time.Now()

	return NewBatchMovement(b.TenantID, b.ID, MovementTypeTransferred, delta, b.QuantityRemaining, createdBy)
}

func (b *StockBatch) drawDown(movementType MovementType, quantity decimal.Decimal, referenceType string, referenceID uuid.UUID, createdBy string) (*BatchMovement, error) {
	if b.Status != BatchStatusActive {
		return nil, shared.ErrInvalidState
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "quantity must be positive")
	}
	delta := quantity.Neg()
	if b.QuantityRemaining.Add(delta).IsNegative() {
		return nil, shared.ErrInsufficientQuantity
	}

	b.QuantityRemaining = b.QuantityRemaining.Add(delta)
	b.UpdatedAt = time.Now()
	if b.QuantityRemaining.IsZero() {
		b.Status = BatchStatusConsumed
		b.AddDomainEvent(NewBatchDepletedEvent(b.TenantID, b.ID, b.BatchCode))
	}

	movement, err := NewBatchMovement(b.TenantID, b.ID, movementType, delta, b.QuantityRemaining, createdBy)
	if err != nil {
		return nil, err
	}
	movement.WithReference(referenceType, referenceID)
	return movement, nil
}

// Adjust applies a signed correction to the remaining quantity. A
// negative adjustment cannot take the projection below zero; the
// operation is rejected, never clamped. A positive adjustment on a
// consumed batch restores it to active.
func (b *StockBatch) Adjust(delta decimal.Decimal, reason, createdBy string) (*BatchMovement, error) {
	if b.Status == BatchStatusRecalled || b.Status == BatchStatusExpired {
		return nil, shared.ErrInvalidState
	}
	if delta.IsZero() {
		return nil, shared.NewDomainError("INVALID_INPUT", "adjustment delta cannot be zero")
	}
	newRemaining := b.QuantityRemaining.Add(delta)
	if newRemaining.IsNegative() {
		return nil, shared.ErrInsufficientQuantity
	}

	b.QuantityRemaining = newRemaining
	b.UpdatedAt = time.Now()
	if b.Status == BatchStatusConsumed && newRemaining.IsPositive() {
		b.Status = BatchStatusActive
	}
	b.AddDomainEvent(NewBatchAdjustedEvent(b.TenantID, b.ID, b.BatchCode, delta, newRemaining, reason))

	movement, err := NewBatchMovement(b.TenantID, b.ID, MovementTypeAdjustment, delta, newRemaining, createdBy)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		movement.WithNotes(reason)
	}
	return movement, nil
}

// Quarantine places the batch on hold pending investigation
func (b *StockBatch) Quarantine(reason string) error {
	if b.Status != BatchStatusActive {
		return shared.ErrInvalidState
	}
	b.Status = BatchStatusQuarantined
	b.UpdatedAt = time.Now()
	b.AddDomainEvent(NewBatchQuarantinedEvent(b.TenantID, b.ID, b.BatchCode, reason))
	return nil
}

// ReleaseFromQuarantine returns a quarantined batch to active
func (b *StockBatch) ReleaseFromQuarantine() error {
	if b.Status != BatchStatusQuarantined {
		return shared.ErrInvalidState
	}
	b.Status = BatchStatusActive
	b.UpdatedAt = time.Now()
	b.AddDomainEvent(NewBatchQuarantineReleasedEvent(b.TenantID, b.ID, b.BatchCode))
	return nil
}

// Recall marks the batch recalled and writes off whatever remains. The
// delta is derived as the negation of the current remaining quantity,
// which makes the recalled quantity itself auditable from the ledger
// and bypasses the insufficiency check by construction. Recalling an
// already recalled batch is a no-op and returns a nil movement.
func (b *StockBatch) Recall(recallID uuid.UUID, createdBy string) (*BatchMovement, error) {
	if b.Status == BatchStatusRecalled {
		return nil, nil
	}

	delta := b.QuantityRemaining.Neg()
	b.QuantityRemaining = decimal.Zero
	b.Status = BatchStatusRecalled
	b.UpdatedAt = time.Now()
	b.AddDomainEvent(NewBatchRecalledEvent(b.TenantID, b.ID, b.BatchCode, recallID, delta.Neg()))

	movement, err := NewBatchMovement(b.TenantID, b.ID, MovementTypeRecalled, delta, decimal.Zero, createdBy)
	if err != nil {
		return nil, err
	}
	movement.WithReference(ReferenceTypeRecall, recallID)
	return movement, nil
}

// MarkExpired transitions an active or quarantined batch to expired.
// The remaining quantity is kept: expiry is a status fact, not a
// quantity movement, and disposal is recorded separately as an
// adjustment.
func (b *StockBatch) MarkExpired() error {
	if b.Status != BatchStatusActive && b.Status != BatchStatusQuarantined {
		return shared.ErrInvalidState
	}
	b.Status = BatchStatusExpired
	b.UpdatedAt = time.Now()
	b.AddDomainEvent(NewBatchExpiredEvent(b.TenantID, b.ID, b.BatchCode, b.QuantityRemaining))
	return nil
}
