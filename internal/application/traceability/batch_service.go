package traceability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxSaveRetries bounds optimistic-lock retries. Business-rule
// rejections are never retried; only version conflicts are.
const maxSaveRetries = 3

// BatchService handles the stock batch lifecycle: receipt, adjustment,
// quarantine and queries over the batch ledger.
type BatchService struct {
	scope          TransactionScope
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewBatchService creates a new BatchService
func NewBatchService(scope TransactionScope, logger *zap.Logger) *BatchService {
	return &BatchService{
		scope:  scope,
		logger: logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *BatchService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// ReceiveBatch books a new batch into stock, seeding the ledger with
// the received movement in the same transaction. When no batch code is
// given the server generates one from the stock item and receipt date.
func (s *BatchService) ReceiveBatch(ctx context.Context, tenantID uuid.UUID, input ReceiveBatchInput) (*BatchResponse, error) {
	if !input.Quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "received quantity must be positive")
	}
	createdBy := input.ReceivedBy
	if createdBy == "" {
		createdBy = "system"
	}

	var batch *traceability.StockBatch
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		code := input.BatchCode
		if code == "" {
			seq, err := repos.BatchRepo().CountReceivedOn(ctx, tenantID, input.StockItemID, time.Now())
			if err != nil {
				return err
			}
			code = generateBatchCode(input.StockItemID, time.Now(), seq+1)
		}

		var err error
		batch, err = traceability.NewStockBatch(tenantID, input.StockItemID, code, input.Unit, input.Quantity)
		if err != nil {
			return err
		}
		if input.SiteID != nil {
			batch.SetSite(*input.SiteID)
		}
		batch.SetDates(input.UseByDate, input.BestBeforeDate)
		batch.SetReceiptConditions(input.TemperatureOnReceipt, input.ConditionNotes)
		if input.SourceDeliveryLineID != nil {
			batch.SetSourceDeliveryLine(*input.SourceDeliveryLineID)
		}

		movement, err := batch.InitialMovement(createdBy)
		if err != nil {
			return err
		}
		if err := repos.BatchRepo().Create(ctx, batch); err != nil {
			return err
		}
		return repos.MovementRepo().Append(ctx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, batch.GetDomainEvents())
	batch.ClearDomainEvents()
	s.logger.Info("Batch received",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_code", batch.BatchCode),
		zap.String("quantity", batch.QuantityReceived.String()),
	)
	return ToBatchResponse(batch), nil
}

// GetBatch returns a single batch
func (s *BatchService) GetBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*BatchResponse, error) {
	var batch *traceability.StockBatch
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByIDForTenant(ctx, tenantID, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToBatchResponse(batch), nil
}

// ListBatches returns a page of batches for the tenant
func (s *BatchService) ListBatches(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[BatchResponse], error) {
	var items []traceability.StockBatch
	var total int64
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		items, err = repos.BatchRepo().FindAllForTenant(ctx, tenantID, filter)
		if err != nil {
			return err
		}
		total, err = repos.BatchRepo().CountForTenant(ctx, tenantID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	responses := make([]BatchResponse, 0, len(items))
	for i := range items {
		responses = append(responses, *ToBatchResponse(&items[i]))
	}
	page := shared.NewPaginated(responses, total, filter.Page, filter.PageSize)
	return &page, nil
}

// ListMovements returns a page of the batch's ledger, oldest first by default
func (s *BatchService) ListMovements(ctx context.Context, tenantID, batchID uuid.UUID, filter shared.Filter) (*shared.Paginated[MovementResponse], error) {
	var movements []traceability.BatchMovement
	var total int64
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.BatchRepo().FindByIDForTenant(ctx, tenantID, batchID); err != nil {
			return err
		}
		var err error
		movements, err = repos.MovementRepo().FindByBatch(ctx, tenantID, batchID, filter)
		if err != nil {
			return err
		}
		total, err = repos.MovementRepo().CountByBatch(ctx, tenantID, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	responses := make([]MovementResponse, 0, len(movements))
	for i := range movements {
		responses = append(responses, *ToMovementResponse(&movements[i]))
	}
	page := shared.NewPaginated(responses, total, filter.Page, filter.PageSize)
	return &page, nil
}

// AdjustQuantity applies a signed manual correction as a new ledger
// event. Version conflicts are retried a bounded number of times;
// business-rule rejections surface immediately.
func (s *BatchService) AdjustQuantity(ctx context.Context, tenantID, batchID uuid.UUID, input AdjustQuantityInput) (*MovementResponse, error) {
	adjustedBy := input.AdjustedBy
	if adjustedBy == "" {
		adjustedBy = "system"
	}

	var batch *traceability.StockBatch
	var movement *traceability.BatchMovement
	err := s.withVersionRetry(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByIDForTenant(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		movement, err = batch.Adjust(input.Delta, input.Reason, adjustedBy)
		if err != nil {
			return err
		}
		if input.ReferenceID != nil {
			movement.WithReference(input.ReferenceType, *input.ReferenceID)
			s.warnIfReferenceUnresolved(ctx, repos, tenantID, input.ReferenceType, *input.ReferenceID)
		}
		batch.IncrementVersion()
		if err := repos.BatchRepo().SaveWithVersion(ctx, batch); err != nil {
			return err
		}
		return repos.MovementRepo().Append(ctx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, batch.GetDomainEvents())
	batch.ClearDomainEvents()
	return ToMovementResponse(movement), nil
}

// HoldBatch places a batch in quarantine
func (s *BatchService) HoldBatch(ctx context.Context, tenantID, batchID uuid.UUID, reason string) (*BatchResponse, error) {
	return s.transition(ctx, tenantID, batchID, func(batch *traceability.StockBatch) error {
		return batch.Quarantine(reason)
	})
}

// ReleaseBatch releases a batch from quarantine
func (s *BatchService) ReleaseBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*BatchResponse, error) {
	return s.transition(ctx, tenantID, batchID, func(batch *traceability.StockBatch) error {
		return batch.ReleaseFromQuarantine()
	})
}

func (s *BatchService) transition(ctx context.Context, tenantID, batchID uuid.UUID, change func(*traceability.StockBatch) error) (*BatchResponse, error) {
	var batch *traceability.StockBatch
	err := s.withVersionRetry(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByIDForTenant(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		if err := change(batch); err != nil {
			return err
		}
		batch.IncrementVersion()
		return repos.BatchRepo().SaveWithVersion(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, batch.GetDomainEvents())
	batch.ClearDomainEvents()
	return ToBatchResponse(batch), nil
}

// VerifyLedger folds the batch's full movement ledger and compares it
// with the remaining-quantity projection. A mismatch indicates data
// corruption outside the aggregate path.
func (s *BatchService) VerifyLedger(ctx context.Context, tenantID, batchID uuid.UUID) (*LedgerVerification, error) {
	var verification *LedgerVerification
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		batch, err := repos.BatchRepo().FindByIDForTenant(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		sum, err := repos.MovementRepo().SumDeltas(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		count, err := repos.MovementRepo().CountByBatch(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		verification = &LedgerVerification{
			BatchID:           batchID,
			LedgerSum:         sum,
			QuantityRemaining: batch.QuantityRemaining,
			Consistent:        sum.Equal(batch.QuantityRemaining),
			MovementCount:     count,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !verification.Consistent {
		s.logger.Error("Batch ledger does not reconcile with projection",
			zap.String("batch_id", batchID.String()),
			zap.String("ledger_sum", verification.LedgerSum.String()),
			zap.String("quantity_remaining", verification.QuantityRemaining.String()),
		)
	}
	return verification, nil
}

// warnIfReferenceUnresolved checks a movement reference against the
// records this service can see. An unresolvable reference is a data
// quality problem worth flagging, not a reason to block the ledger
// write. Reference types held outside this service are not checked.
func (s *BatchService) warnIfReferenceUnresolved(ctx context.Context, repos TransactionalRepositories, tenantID uuid.UUID, referenceType string, referenceID uuid.UUID) {
	var err error
	switch referenceType {
	case traceability.ReferenceTypeDispatch:
		_, err = repos.LineageRepo().FindDispatchByID(ctx, tenantID, referenceID)
	default:
		return
	}
	if err != nil {
		s.logger.Warn("Movement reference does not resolve, recording anyway",
			zap.Error(shared.ErrReferenceNotFound),
			zap.String("reference_type", referenceType),
			zap.String("reference_id", referenceID.String()),
		)
	}
}

// withVersionRetry re-runs the transactional function on optimistic
// version conflicts, up to maxSaveRetries attempts.
func (s *BatchService) withVersionRetry(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	var err error
	for attempt := 1; attempt <= maxSaveRetries; attempt++ {
		err = s.scope.Execute(ctx, fn)
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		s.logger.Debug("Retrying after version conflict", zap.Int("attempt", attempt))
	}
	return err
}

func (s *BatchService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish domain events", zap.Error(err))
	}
}

// generateBatchCode derives a server-side batch code from the stock
// item, receipt day and a per-day sequence, e.g. 3F2A9C1D-20260830-0001.
// Uniqueness is still enforced by the store on insert.
func generateBatchCode(stockItemID uuid.UUID, day time.Time, seq int64) string {
	prefix := strings.ToUpper(strings.ReplaceAll(stockItemID.String(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format("20060102"), seq)
}
