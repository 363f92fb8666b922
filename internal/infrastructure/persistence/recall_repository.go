package persistence

import (
	"context"
	"errors"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRecallRepository implements RecallRepository using GORM
type GormRecallRepository struct {
	db *gorm.DB
}

// NewGormRecallRepository creates a new GormRecallRepository
func NewGormRecallRepository(db *gorm.DB) *GormRecallRepository {
	return &GormRecallRepository{db: db}
}

// Create inserts a new recall. A recall code collision within the tenant
// surfaces as ErrDuplicateRecallCode.
func (r *GormRecallRepository) Create(ctx context.Context, recall *traceability.Recall) error {
	if err := r.db.WithContext(ctx).Create(recall).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateRecallCode
		}
		return err
	}
	return nil
}

// FindByCode finds a recall by its code within a tenant, with the cached
// affected lists preloaded
func (r *GormRecallRepository) FindByCode(ctx context.Context, tenantID uuid.UUID, recallCode string) (*traceability.Recall, error) {
	var recall traceability.Recall
	if err := r.db.WithContext(ctx).
		Preload("AffectedBatches").
		Preload("AffectedDispatches").
		Where("tenant_id = ? AND recall_code = ?", tenantID, recallCode).
		First(&recall).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrRecallNotFound
		}
		return nil, err
	}
	return &recall, nil
}

// FindAllForTenant finds all recalls for a tenant
func (r *GormRecallRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]traceability.Recall, error) {
	var recalls []traceability.Recall
	query := r.db.WithContext(ctx).Model(&traceability.Recall{}).
		Preload("AffectedBatches").
		Preload("AffectedDispatches").
		Where("tenant_id = ?", tenantID)

	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "severity":
			query = query.Where("severity = ?", value)
		}
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, RecallSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	if err := query.Order(orderBy + " " + orderDir).Find(&recalls).Error; err != nil {
		return nil, err
	}
	return recalls, nil
}

// Save updates the recall guarded by its optimistic version and
// replaces its cached affected lists. The lists are a projection of the
// latest cascade run, so stale rows from a previous run are dropped
// rather than merged. Callers increment the aggregate version before
// saving; a stale version surfaces as ErrConcurrencyConflict.
func (r *GormRecallRepository) Save(ctx context.Context, recall *traceability.Recall) error {
	if err := r.db.WithContext(ctx).
		Where("recall_id = ?", recall.ID).
		Delete(&traceability.RecallAffectedBatch{}).Error; err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Where("recall_id = ?", recall.ID).
		Delete(&traceability.RecallAffectedDispatch{}).Error; err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&traceability.Recall{}).
		Where("id = ? AND version = ?", recall.ID, recall.Version-1).
		Updates(map[string]interface{}{
			"status":            recall.Status,
			"activated_at":      recall.ActivatedAt,
			"closed_at":         recall.ClosedAt,
			"cascade_truncated": recall.CascadeTruncated,
			"version":           recall.Version,
			"updated_at":        recall.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}

	if len(recall.AffectedBatches) > 0 {
		if err := r.db.WithContext(ctx).Create(&recall.AffectedBatches).Error; err != nil {
			return err
		}
	}
	if len(recall.AffectedDispatches) > 0 {
		if err := r.db.WithContext(ctx).Create(&recall.AffectedDispatches).Error; err != nil {
			return err
		}
	}
	return nil
}

// Ensure GormRecallRepository implements RecallRepository
var _ traceability.RecallRepository = (*GormRecallRepository)(nil)
