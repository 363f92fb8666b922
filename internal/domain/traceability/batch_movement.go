package traceability

import (
	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType categorizes ledger events on a stock batch
type MovementType string

const (
	MovementTypeReceived    MovementType = "received"
	MovementTypeConsumed    MovementType = "consumed"
	MovementTypeAdjustment  MovementType = "adjustment"
	MovementTypeDispatched  MovementType = "dispatched"
	MovementTypeRecalled    MovementType = "recalled"
	MovementTypeTransferred MovementType = "transferred"
)

// IsValid checks if the movement type is a known value
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeReceived, MovementTypeConsumed, MovementTypeAdjustment,
		MovementTypeDispatched, MovementTypeRecalled, MovementTypeTransferred:
		return true
	}
	return false
}

// Reference types linking a movement to the record that caused it
const (
	ReferenceTypeDeliveryLine = "delivery_line"
	ReferenceTypeProduction   = "production_batch"
	ReferenceTypeDispatch     = "dispatch"
	ReferenceTypeRecall       = "recall"
)

// BatchMovement is an append-only ledger event on a stock batch.
// Movements are never updated or deleted; corrections append a new
// adjustment movement. BalanceAfter snapshots the projected remaining
// quantity immediately after this movement was applied.
type BatchMovement struct {
	shared.BaseEntity
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	MovementType  MovementType    `gorm:"type:varchar(20);not null"`
	QuantityDelta decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	ReferenceType string          `gorm:"type:varchar(32)"`
	ReferenceID   *uuid.UUID      `gorm:"type:uuid;index"`
	Notes         string          `gorm:"type:text"`
	CreatedBy     string          `gorm:"type:varchar(100);not null"`
}

// TableName specifies the table name for GORM
func (BatchMovement) TableName() string {
	return "batch_movements"
}

// NewBatchMovement creates a ledger event after validating the delta sign
// against the movement type
func NewBatchMovement(
	tenantID, batchID uuid.UUID,
	movementType MovementType,
	quantityDelta, balanceAfter decimal.Decimal,
	createdBy string,
) (*BatchMovement, error) {
	if !movementType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "unknown movement type: "+string(movementType))
	}
	if createdBy == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "created_by is required")
	}
	if err := validateDeltaSign(movementType, quantityDelta); err != nil {
		return nil, err
	}

	return &BatchMovement{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      tenantID,
		BatchID:       batchID,
		MovementType:  movementType,
		QuantityDelta: quantityDelta,
		BalanceAfter:  balanceAfter,
		CreatedBy:     createdBy,
	}, nil
}

func validateDeltaSign(movementType MovementType, delta decimal.Decimal) error {
	switch movementType {
	case MovementTypeReceived:
		if !delta.IsPositive() {
			return shared.NewDomainError("INVALID_INPUT", "received movement requires a positive delta")
		}
	case MovementTypeConsumed, MovementTypeDispatched:
		if !delta.IsNegative() {
			return shared.NewDomainError("INVALID_INPUT", "consumed and dispatched movements require a negative delta")
		}
	case MovementTypeRecalled:
		// Zero is allowed: recalling an already depleted batch still records
		// the audit event.
		if delta.IsPositive() {
			return shared.NewDomainError("INVALID_INPUT", "recalled movement cannot increase quantity")
		}
	case MovementTypeAdjustment, MovementTypeTransferred:
		if delta.IsZero() {
			return shared.NewDomainError("INVALID_INPUT", "movement delta cannot be zero")
		}
	}
	return nil
}

// WithReference links the movement to the record that caused it
func (m *BatchMovement) WithReference(referenceType string, referenceID uuid.UUID) *BatchMovement {
	m.ReferenceType = referenceType
	m.ReferenceID = &referenceID
	return m
}

// WithNotes attaches free-text notes to the movement
func (m *BatchMovement) WithNotes(notes string) *BatchMovement {
	m.Notes = notes
	return m
}
