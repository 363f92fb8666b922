package traceability

import (
	"context"
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockBatchRepository manages stock batch persistence
type StockBatchRepository interface {
	BatchReader
	FindByBatchCode(ctx context.Context, tenantID uuid.UUID, batchCode string) (*StockBatch, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]StockBatch, error)
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error)

	// FindWithDatesBefore returns non-terminal batches whose use-by date
	// is on or before useByBefore, or whose best-before date is on or
	// before bestBeforeBefore. Used by the expiring-stock query.
	FindWithDatesBefore(ctx context.Context, tenantID uuid.UUID, useByBefore, bestBeforeBefore time.Time) ([]StockBatch, error)

	// FindExpiredSystemWide returns active or quarantined batches across
	// all tenants whose use-by date has passed as of the given day. Used
	// only by the expiry sweep.
	FindExpiredSystemWide(ctx context.Context, asOf time.Time, limit int) ([]StockBatch, error)

	// CountReceivedOn counts batches of a stock item created on the
	// given day, for server-side batch code generation.
	CountReceivedOn(ctx context.Context, tenantID, stockItemID uuid.UUID, day time.Time) (int64, error)

	// Create inserts a new batch. A batch code collision within the
	// tenant surfaces as ErrDuplicateBatchCode.
	Create(ctx context.Context, batch *StockBatch) error

	// SaveWithVersion updates the batch guarded by its optimistic
	// version. A stale version surfaces as ErrConcurrencyConflict.
	SaveWithVersion(ctx context.Context, batch *StockBatch) error
}

// BatchMovementRepository manages the append-only movement ledger
type BatchMovementRepository interface {
	// Append inserts a ledger event. Movements are never updated or
	// deleted.
	Append(ctx context.Context, movement *BatchMovement) error
	FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID, filter shared.Filter) ([]BatchMovement, error)
	CountByBatch(ctx context.Context, tenantID, batchID uuid.UUID) (int64, error)

	// SumDeltas folds all movement deltas for a batch. Used to verify
	// the projection against the ledger.
	SumDeltas(ctx context.Context, tenantID, batchID uuid.UUID) (decimal.Decimal, error)
}

// LineageRepository manages lineage graph edges. It doubles as the
// adjacency view the trace engine reads.
type LineageRepository interface {
	LineageReader
	AddConsumption(ctx context.Context, edge *ProductionConsumption) error
	AddOutput(ctx context.Context, edge *ProductionOutput) error
	AddDispatch(ctx context.Context, record *DispatchRecord) error
	FindDispatchByID(ctx context.Context, tenantID, id uuid.UUID) (*DispatchRecord, error)
}

// RecallRepository manages recall cases
type RecallRepository interface {
	// Create inserts a new recall. A recall code collision within the
	// tenant surfaces as ErrDuplicateRecallCode.
	Create(ctx context.Context, recall *Recall) error
	FindByCode(ctx context.Context, tenantID uuid.UUID, recallCode string) (*Recall, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Recall, error)

	// Save updates the recall guarded by its optimistic version and
	// replaces its cached affected lists. A stale version surfaces as
	// ErrConcurrencyConflict.
	Save(ctx context.Context, recall *Recall) error
}
