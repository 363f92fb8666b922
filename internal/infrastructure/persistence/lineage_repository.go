package persistence

import (
	"context"
	"errors"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLineageRepository implements LineageRepository using GORM. Edges
// are immutable once written; the graph only ever grows.
type GormLineageRepository struct {
	db *gorm.DB
}

// NewGormLineageRepository creates a new GormLineageRepository
func NewGormLineageRepository(db *gorm.DB) *GormLineageRepository {
	return &GormLineageRepository{db: db}
}

// AddConsumption inserts an input-batch-to-production edge
func (r *GormLineageRepository) AddConsumption(ctx context.Context, edge *traceability.ProductionConsumption) error {
	return r.db.WithContext(ctx).Create(edge).Error
}

// AddOutput inserts a production-to-output-batch edge
func (r *GormLineageRepository) AddOutput(ctx context.Context, edge *traceability.ProductionOutput) error {
	return r.db.WithContext(ctx).Create(edge).Error
}

// AddDispatch inserts a dispatch record
func (r *GormLineageRepository) AddDispatch(ctx context.Context, record *traceability.DispatchRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindDispatchByID finds a dispatch record by ID within a tenant
func (r *GormLineageRepository) FindDispatchByID(ctx context.Context, tenantID, id uuid.UUID) (*traceability.DispatchRecord, error) {
	var record traceability.DispatchRecord
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ConsumptionsByInputBatch finds consumption edges where the batch was an input
func (r *GormLineageRepository) ConsumptionsByInputBatch(ctx context.Context, tenantID, inputBatchID uuid.UUID) ([]traceability.ProductionConsumption, error) {
	var edges []traceability.ProductionConsumption
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND input_batch_id = ?", tenantID, inputBatchID).
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// ConsumptionsByProductionBatch finds consumption edges feeding a production run
func (r *GormLineageRepository) ConsumptionsByProductionBatch(ctx context.Context, tenantID, productionBatchID uuid.UUID) ([]traceability.ProductionConsumption, error) {
	var edges []traceability.ProductionConsumption
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND production_batch_id = ?", tenantID, productionBatchID).
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// OutputsByProductionBatch finds output edges produced by a production run
func (r *GormLineageRepository) OutputsByProductionBatch(ctx context.Context, tenantID, productionBatchID uuid.UUID) ([]traceability.ProductionOutput, error) {
	var edges []traceability.ProductionOutput
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND production_batch_id = ?", tenantID, productionBatchID).
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// OutputsByOutputBatch finds the output edge that created a batch
func (r *GormLineageRepository) OutputsByOutputBatch(ctx context.Context, tenantID, outputBatchID uuid.UUID) ([]traceability.ProductionOutput, error) {
	var edges []traceability.ProductionOutput
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND output_batch_id = ?", tenantID, outputBatchID).
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// DispatchesByBatch finds dispatch records for a batch
func (r *GormLineageRepository) DispatchesByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]traceability.DispatchRecord, error) {
	var records []traceability.DispatchRecord
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND batch_id = ?", tenantID, batchID).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Ensure GormLineageRepository implements LineageRepository
var _ traceability.LineageRepository = (*GormLineageRepository)(nil)
