package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// GormStockBatchRepository implements StockBatchRepository using GORM
type GormStockBatchRepository struct {
	db *gorm.DB
}

// NewGormStockBatchRepository creates a new GormStockBatchRepository
func NewGormStockBatchRepository(db *gorm.DB) *GormStockBatchRepository {
	return &GormStockBatchRepository{db: db}
}

// FindByIDForTenant finds a stock batch by ID within a tenant
func (r *GormStockBatchRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*traceability.StockBatch, error) {
	var batch traceability.StockBatch
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindByBatchCode finds a stock batch by its code within a tenant
func (r *GormStockBatchRepository) FindByBatchCode(ctx context.Context, tenantID uuid.UUID, batchCode string) (*traceability.StockBatch, error) {
	var batch traceability.StockBatch
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND batch_code = ?", tenantID, batchCode).
		First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindAllForTenant finds all stock batches for a tenant
func (r *GormStockBatchRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]traceability.StockBatch, error) {
	var batches []traceability.StockBatch
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&traceability.StockBatch{}).
			Where("tenant_id = ?", tenantID),
		filter,
	)

	if err := query.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// CountForTenant counts stock batches for a tenant
func (r *GormStockBatchRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilters(
		r.db.WithContext(ctx).Model(&traceability.StockBatch{}).
			Where("tenant_id = ?", tenantID),
		filter,
	)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindWithDatesBefore finds non-terminal batches whose use-by date is on or
// before useByBefore, or whose best-before date is on or before bestBeforeBefore
func (r *GormStockBatchRepository) FindWithDatesBefore(ctx context.Context, tenantID uuid.UUID, useByBefore, bestBeforeBefore time.Time) ([]traceability.StockBatch, error) {
	var batches []traceability.StockBatch
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("status IN ?", []traceability.BatchStatus{traceability.BatchStatusActive, traceability.BatchStatusQuarantined}).
		Where("(use_by_date IS NOT NULL AND use_by_date <= ?) OR (best_before_date IS NOT NULL AND best_before_date <= ?)",
			useByBefore, bestBeforeBefore).
		Order("COALESCE(use_by_date, best_before_date) ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindExpiredSystemWide finds active or quarantined batches across all
// tenants whose use-by date has passed as of the given day. A use-by
// date equal to that day is still usable, so the cutoff is the start
// of the day, not the instant.
func (r *GormStockBatchRepository) FindExpiredSystemWide(ctx context.Context, asOf time.Time, limit int) ([]traceability.StockBatch, error) {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	var batches []traceability.StockBatch
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []traceability.BatchStatus{traceability.BatchStatusActive, traceability.BatchStatusQuarantined}).
		Where("use_by_date IS NOT NULL AND use_by_date < ?", dayStart).
		Order("use_by_date ASC").
		Limit(limit).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// CountReceivedOn counts batches of a stock item created on the given day
func (r *GormStockBatchRepository) CountReceivedOn(ctx context.Context, tenantID, stockItemID uuid.UUID, day time.Time) (int64, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&traceability.StockBatch{}).
		Where("tenant_id = ? AND stock_item_id = ?", tenantID, stockItemID).
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create inserts a new batch. A batch code collision within the tenant
// surfaces as ErrDuplicateBatchCode.
func (r *GormStockBatchRepository) Create(ctx context.Context, batch *traceability.StockBatch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateBatchCode
		}
		return err
	}
	return nil
}

// SaveWithVersion updates the batch guarded by its optimistic version.
// Callers increment the aggregate version before saving; the update only
// matches the row if nobody else has written it since it was read.
func (r *GormStockBatchRepository) SaveWithVersion(ctx context.Context, batch *traceability.StockBatch) error {
	result := r.db.WithContext(ctx).
		Model(batch).
		Where("id = ? AND version = ?", batch.ID, batch.Version-1).
		Updates(map[string]interface{}{
			"quantity_remaining": batch.QuantityRemaining,
			"status":             batch.Status,
			"use_by_date":        batch.UseByDate,
			"best_before_date":   batch.BestBeforeDate,
			"condition_notes":    batch.ConditionNotes,
			"version":            batch.Version,
			"updated_at":         batch.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// applyFilter applies pagination, ordering and field filters to the query
func (r *GormStockBatchRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilters(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, StockBatchSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// applyFilters applies the field filters only, for use by count queries
func (r *GormStockBatchRepository) applyFilters(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "stock_item_id":
			query = query.Where("stock_item_id = ?", value)
		case "site_id":
			query = query.Where("site_id = ?", value)
		case "has_stock":
			if value == true {
				query = query.Where("quantity_remaining > 0")
			}
		}
	}
	return query
}

// isUniqueViolation reports whether the error is a postgres unique
// constraint violation (SQLSTATE 23505). The gorm postgres driver is
// pgx-based, so the raw error arrives as *pgconn.PgError.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Ensure GormStockBatchRepository implements StockBatchRepository
var _ traceability.StockBatchRepository = (*GormStockBatchRepository)(nil)
