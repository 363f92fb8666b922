package traceability

import (
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductionConsumption is a lineage edge recording that an input batch
// was consumed by a production run. Edges are append-only and always
// persisted in the same transaction as the paired consumed movement.
type ProductionConsumption struct {
	shared.BaseEntity
	TenantID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductionBatchID uuid.UUID       `gorm:"type:uuid;not null;index"`
	InputBatchID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	QuantityConsumed  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
}

// TableName specifies the table name for GORM
func (ProductionConsumption) TableName() string {
	return "production_consumptions"
}

// NewProductionConsumption creates a consumption edge
func NewProductionConsumption(tenantID, productionBatchID, inputBatchID uuid.UUID, quantity decimal.Decimal) (*ProductionConsumption, error) {
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "consumed quantity must be positive")
	}
	return &ProductionConsumption{
		BaseEntity:        shared.NewBaseEntity(),
		TenantID:          tenantID,
		ProductionBatchID: productionBatchID,
		InputBatchID:      inputBatchID,
		QuantityConsumed:  quantity,
	}, nil
}

// ProductionOutput is a lineage edge recording that a production run
// yielded an output batch.
type ProductionOutput struct {
	shared.BaseEntity
	TenantID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductionBatchID uuid.UUID       `gorm:"type:uuid;not null;index"`
	OutputBatchID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	QuantityProduced  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
}

// TableName specifies the table name for GORM
func (ProductionOutput) TableName() string {
	return "production_outputs"
}

// NewProductionOutput creates an output edge
func NewProductionOutput(tenantID, productionBatchID, outputBatchID uuid.UUID, quantity decimal.Decimal) (*ProductionOutput, error) {
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "produced quantity must be positive")
	}
	return &ProductionOutput{
		BaseEntity:        shared.NewBaseEntity(),
		TenantID:          tenantID,
		ProductionBatchID: productionBatchID,
		OutputBatchID:     outputBatchID,
		QuantityProduced:  quantity,
	}, nil
}

// DispatchRecord is a terminal lineage edge recording that part of a
// batch left the building to a customer.
type DispatchRecord struct {
	shared.BaseEntity
	TenantID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	StockBatchID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	CustomerID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	QuantityDispatched decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	DispatchDate       time.Time       `gorm:"type:date;not null"`
	DeliveryNoteRef    string          `gorm:"type:varchar(64)"`
}

// TableName specifies the table name for GORM
func (DispatchRecord) TableName() string {
	return "dispatch_records"
}

// NewDispatchRecord creates a dispatch edge
func NewDispatchRecord(tenantID, stockBatchID, customerID uuid.UUID, quantity decimal.Decimal, dispatchDate time.Time) (*DispatchRecord, error) {
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "dispatched quantity must be positive")
	}
	if dispatchDate.IsZero() {
		dispatchDate = time.Now()
	}
	return &DispatchRecord{
		BaseEntity:         shared.NewBaseEntity(),
		TenantID:           tenantID,
		StockBatchID:       stockBatchID,
		CustomerID:         customerID,
		QuantityDispatched: quantity,
		DispatchDate:       dispatchDate,
	}, nil
}

// WithDeliveryNote attaches the delivery note reference
func (d *DispatchRecord) WithDeliveryNote(ref string) *DispatchRecord {
	d.DeliveryNoteRef = ref
	return d
}
