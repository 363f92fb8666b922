package persistence

import (
	"context"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormBatchMovementRepository implements BatchMovementRepository using GORM.
// The ledger is append-only: there is deliberately no update or delete.
type GormBatchMovementRepository struct {
	db *gorm.DB
}

// NewGormBatchMovementRepository creates a new GormBatchMovementRepository
func NewGormBatchMovementRepository(db *gorm.DB) *GormBatchMovementRepository {
	return &GormBatchMovementRepository{db: db}
}

// Append inserts a ledger event
func (r *GormBatchMovementRepository) Append(ctx context.Context, movement *traceability.BatchMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// FindByBatch finds movements for a batch in ledger order
func (r *GormBatchMovementRepository) FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID, filter shared.Filter) ([]traceability.BatchMovement, error) {
	var movements []traceability.BatchMovement
	query := r.db.WithContext(ctx).Model(&traceability.BatchMovement{}).
		Where("tenant_id = ? AND batch_id = ?", tenantID, batchID)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, BatchMovementSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	if err := query.Order(orderBy + " " + orderDir).Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// CountByBatch counts movements for a batch
func (r *GormBatchMovementRepository) CountByBatch(ctx context.Context, tenantID, batchID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&traceability.BatchMovement{}).
		Where("tenant_id = ? AND batch_id = ?", tenantID, batchID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumDeltas folds all movement deltas for a batch
func (r *GormBatchMovementRepository) SumDeltas(ctx context.Context, tenantID, batchID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	if err := r.db.WithContext(ctx).
		Model(&traceability.BatchMovement{}).
		Select("SUM(quantity_delta)").
		Where("tenant_id = ? AND batch_id = ?", tenantID, batchID).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// Ensure GormBatchMovementRepository implements BatchMovementRepository
var _ traceability.BatchMovementRepository = (*GormBatchMovementRepository)(nil)
