package traceability

import (
	"context"
	"errors"
	"fmt"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecallService runs the recall cascade: forward trace from the root
// batch, write off every reached batch, and cache the affected lists on
// the recall case. The cascade is idempotent per batch (already
// recalled batches are skipped) and safe to re-run to pick up
// downstream activity recorded after the recall was opened.
type RecallService struct {
	scope          TransactionScope
	batchRepo      traceability.StockBatchRepository
	lineageRepo    traceability.LineageRepository
	idempotency    shared.IdempotencyStore
	idempotencyCfg shared.IdempotencyConfig
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewRecallService creates a new RecallService
func NewRecallService(
	scope TransactionScope,
	batchRepo traceability.StockBatchRepository,
	lineageRepo traceability.LineageRepository,
	logger *zap.Logger,
) *RecallService {
	return &RecallService{
		scope:          scope,
		batchRepo:      batchRepo,
		lineageRepo:    lineageRepo,
		idempotencyCfg: shared.DefaultIdempotencyConfig(),
		logger:         logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *RecallService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetIdempotencyStore enables request deduplication for recall initiation
func (s *RecallService) SetIdempotencyStore(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) {
	s.idempotency = store
	s.idempotencyCfg = cfg
}

// InitiateRecall opens a recall case and runs the cascade. A retried
// request with the same recall code returns the existing case instead
// of creating a second one.
func (s *RecallService) InitiateRecall(ctx context.Context, tenantID uuid.UUID, input InitiateRecallInput) (*RecallResponse, error) {
	if replay, err := s.checkReplay(ctx, tenantID, input.RecallCode); err != nil {
		return nil, err
	} else if replay != nil {
		return replay, nil
	}

	recall, err := traceability.NewRecall(tenantID, input.RecallCode, input.Title, input.RecallType, input.Severity, input.Reason, input.RootBatchID)
	if err != nil {
		return nil, err
	}

	// The root batch must exist before the case is opened.
	if _, err := s.batchRepo.FindByIDForTenant(ctx, tenantID, input.RootBatchID); err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.RecallRepo().Create(ctx, recall)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recall opened",
		zap.String("recall_code", recall.RecallCode),
		zap.String("root_batch_id", recall.RootBatchID.String()),
		zap.String("severity", string(recall.Severity)),
	)
	return s.runCascade(ctx, tenantID, recall, input.MaxDepth, input.InitiatedBy)
}

// RerunCascade re-traces an open recall and writes off any batches that
// appeared downstream since the last run
func (s *RecallService) RerunCascade(ctx context.Context, tenantID uuid.UUID, recallCode, initiatedBy string) (*RecallResponse, error) {
	recall, err := s.findRecall(ctx, tenantID, recallCode)
	if err != nil {
		return nil, err
	}
	if recall.Status == traceability.RecallStatusClosed {
		return nil, shared.ErrInvalidState
	}
	return s.runCascade(ctx, tenantID, recall, 0, initiatedBy)
}

// GetRecall returns a recall with its cached affected lists
func (s *RecallService) GetRecall(ctx context.Context, tenantID uuid.UUID, recallCode string) (*RecallResponse, error) {
	recall, err := s.findRecall(ctx, tenantID, recallCode)
	if err != nil {
		return nil, err
	}
	return ToRecallResponse(recall), nil
}

// ListRecalls returns a page of recall cases for the tenant
func (s *RecallService) ListRecalls(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[RecallResponse], error) {
	var items []traceability.Recall
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		items, err = repos.RecallRepo().FindAllForTenant(ctx, tenantID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	responses := make([]RecallResponse, 0, len(items))
	for i := range items {
		responses = append(responses, *ToRecallResponse(&items[i]))
	}
	page := shared.NewPaginated(responses, int64(len(responses)), filter.Page, filter.PageSize)
	return &page, nil
}

// CloseRecall closes an active recall
func (s *RecallService) CloseRecall(ctx context.Context, tenantID uuid.UUID, recallCode string) (*RecallResponse, error) {
	var recall *traceability.Recall
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		recall, err = repos.RecallRepo().FindByCode(ctx, tenantID, recallCode)
		if err != nil {
			return err
		}
		if err := recall.Close(); err != nil {
			return err
		}
		recall.IncrementVersion()
		return repos.RecallRepo().Save(ctx, recall)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, recall.GetDomainEvents())
	recall.ClearDomainEvents()
	return ToRecallResponse(recall), nil
}

// runCascade traces forward from the recall's root batch and marks
// every reached batch recalled, one small transaction per batch rather
// than one unbounded transaction for the whole cascade. Failures on
// individual batches are recorded as pending, not fatal.
func (s *RecallService) runCascade(ctx context.Context, tenantID uuid.UUID, recall *traceability.Recall, maxDepth int, initiatedBy string) (*RecallResponse, error) {
	if initiatedBy == "" {
		initiatedBy = "system"
	}

	engine := traceability.NewTraceEngine(s.lineageRepo, s.batchRepo)
	trace, err := engine.Trace(ctx, tenantID, recall.RootBatchID, traceability.TraceDirectionForward, maxDepth)
	if err != nil {
		return nil, err
	}
	if trace.Truncated {
		s.logger.Warn("Recall cascade trace truncated, downstream batches may be missed",
			zap.String("recall_code", recall.RecallCode),
			zap.Int("max_depth", trace.MaxDepth),
		)
	}

	affected := make([]traceability.RecallAffectedBatch, 0, len(trace.Batches))
	var pendingCount int
	for _, traced := range trace.Batches {
		quarantined := true
		if err := s.recallBatch(ctx, tenantID, traced.Batch.ID, recall.ID, initiatedBy); err != nil {
			s.logger.Warn("Recall cascade could not write off batch, leaving pending",
				zap.String("recall_code", recall.RecallCode),
				zap.String("batch_id", traced.Batch.ID.String()),
				zap.Error(err),
			)
			quarantined = false
			pendingCount++
		}
		affected = append(affected, traceability.RecallAffectedBatch{
			BaseEntity:  shared.NewBaseEntity(),
			RecallID:    recall.ID,
			BatchID:     traced.Batch.ID,
			Depth:       traced.Depth,
			Quarantined: quarantined,
		})
	}

	dispatches := make([]traceability.RecallAffectedDispatch, 0, len(trace.Dispatches))
	for _, d := range trace.Dispatches {
		dispatches = append(dispatches, traceability.RecallAffectedDispatch{
			BaseEntity: shared.NewBaseEntity(),
			RecallID:   recall.ID,
			DispatchID: d.ID,
			CustomerID: d.CustomerID,
		})
	}

	if err := recall.Activate(affected, dispatches, trace.Truncated); err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		recall.IncrementVersion()
		return repos.RecallRepo().Save(ctx, recall)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, recall.GetDomainEvents())
	recall.ClearDomainEvents()
	s.logger.Info("Recall cascade completed",
		zap.String("recall_code", recall.RecallCode),
		zap.Int("affected_batches", len(affected)),
		zap.Int("pending", pendingCount),
		zap.Int("affected_dispatches", len(dispatches)),
	)
	return ToRecallResponse(recall), nil
}

// recallBatch writes off a single batch in its own transaction,
// retrying on version conflicts. An already recalled batch is a no-op.
func (s *RecallService) recallBatch(ctx context.Context, tenantID, batchID, recallID uuid.UUID, initiatedBy string) error {
	var lastErr error
	for attempt := 1; attempt <= maxSaveRetries; attempt++ {
		var batch *traceability.StockBatch
		lastErr = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			batch, err = repos.BatchRepo().FindByIDForTenant(ctx, tenantID, batchID)
			if err != nil {
				return err
			}
			movement, err := batch.Recall(recallID, initiatedBy)
			if err != nil {
				return err
			}
			if movement == nil {
				// Already recalled by an earlier run.
				return nil
			}
			batch.IncrementVersion()
			if err := repos.BatchRepo().SaveWithVersion(ctx, batch); err != nil {
				return err
			}
			return repos.MovementRepo().Append(ctx, movement)
		})
		if lastErr == nil {
			s.publishEvents(ctx, batch.GetDomainEvents())
			batch.ClearDomainEvents()
			return nil
		}
		if !errors.Is(lastErr, shared.ErrConcurrencyConflict) {
			return lastErr
		}
	}
	return lastErr
}

// checkReplay consults the idempotency store; a repeated initiate for
// the same recall code returns the stored case instead of creating a
// duplicate.
func (s *RecallService) checkReplay(ctx context.Context, tenantID uuid.UUID, recallCode string) (*RecallResponse, error) {
	if s.idempotency == nil || !s.idempotencyCfg.Enabled {
		return nil, nil
	}
	key := fmt.Sprintf("recall:initiate:%s:%s", tenantID, recallCode)
	newlyMarked, err := s.idempotency.MarkProcessed(ctx, key, s.idempotencyCfg.TTL)
	if err != nil {
		// The store being down must not block a food-safety recall.
		s.logger.Warn("Idempotency store unavailable, proceeding without dedup", zap.Error(err))
		return nil, nil
	}
	if newlyMarked {
		return nil, nil
	}

	recall, err := s.findRecall(ctx, tenantID, recallCode)
	if err != nil {
		if errors.Is(err, shared.ErrRecallNotFound) {
			// Marked but never created: an earlier attempt failed after
			// the mark. Let this attempt proceed.
			return nil, nil
		}
		return nil, err
	}
	s.logger.Info("Recall initiate replayed, returning existing case",
		zap.String("recall_code", recallCode),
	)
	return ToRecallResponse(recall), nil
}

func (s *RecallService) findRecall(ctx context.Context, tenantID uuid.UUID, recallCode string) (*traceability.Recall, error) {
	var recall *traceability.Recall
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		recall, err = repos.RecallRepo().FindByCode(ctx, tenantID, recallCode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recall, nil
}

func (s *RecallService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish domain events", zap.Error(err))
	}
}
