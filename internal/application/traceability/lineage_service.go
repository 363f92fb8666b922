package traceability

import (
	"context"
	"errors"
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LineageService records lineage graph edges. Every edge is written in
// one transaction with its paired ledger movement and projection
// update; a failure on either side rolls back both, because a lineage
// graph that disagrees with the ledger is worse than no graph at all.
type LineageService struct {
	scope          TransactionScope
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewLineageService creates a new LineageService
func NewLineageService(scope TransactionScope, logger *zap.Logger) *LineageService {
	return &LineageService{
		scope:  scope,
		logger: logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *LineageService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// RecordConsumption draws down an input batch into a production run and
// inserts the consumption edge atomically with the ledger movement.
func (s *LineageService) RecordConsumption(ctx context.Context, tenantID uuid.UUID, input RecordConsumptionInput) (*ConsumptionResponse, error) {
	recordedBy := input.RecordedBy
	if recordedBy == "" {
		recordedBy = "system"
	}

	var batch *traceability.StockBatch
	var movement *traceability.BatchMovement
	var edge *traceability.ProductionConsumption
	err := s.withVersionRetry(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByIDForTenant(ctx, tenantID, input.InputBatchID)
		if err != nil {
			return err
		}
		movement, err = batch.Consume(input.Quantity, input.ProductionBatchID, recordedBy)
		if err != nil {
			return err
		}
		edge, err = traceability.NewProductionConsumption(tenantID, input.ProductionBatchID, input.InputBatchID, input.Quantity)
		if err != nil {
			return err
		}
		batch.IncrementVersion()
		if err := repos.BatchRepo().SaveWithVersion(ctx, batch); err != nil {
			return err
		}
		if err := repos.MovementRepo().Append(ctx, movement); err != nil {
			return s.graphWriteFailure("append consumption movement", err)
		}
		if err := repos.LineageRepo().AddConsumption(ctx, edge); err != nil {
			return s.graphWriteFailure("insert consumption edge", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, batch.GetDomainEvents())
	batch.ClearDomainEvents()
	return &ConsumptionResponse{
		EdgeID:            edge.ID,
		ProductionBatchID: edge.ProductionBatchID,
		InputBatchID:      edge.InputBatchID,
		QuantityConsumed:  edge.QuantityConsumed,
		Movement:          *ToMovementResponse(movement),
	}, nil
}

// RecordOutput books a new batch produced by a production run and
// inserts the output edge atomically with the batch and its received
// movement.
func (s *LineageService) RecordOutput(ctx context.Context, tenantID uuid.UUID, input RecordOutputInput) (*OutputResponse, error) {
	recordedBy := input.RecordedBy
	if recordedBy == "" {
		recordedBy = "system"
	}

	var batch *traceability.StockBatch
	var edge *traceability.ProductionOutput
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

		movement, err := batch.InitialMovement(recordedBy)
		if err != nil {
			return err
		}
		movement.WithReference(traceability.ReferenceTypeProduction, input.ProductionBatchID)

		edge, err = traceability.NewProductionOutput(tenantID, input.ProductionBatchID, batch.ID, input.Quantity)
		if err != nil {
			return err
		}
		if err := repos.BatchRepo().Create(ctx, batch); err != nil {
			return err
		}
		if err := repos.MovementRepo().Append(ctx, movement); err != nil {
			return s.graphWriteFailure("append output movement", err)
		}
		if err := repos.LineageRepo().AddOutput(ctx, edge); err != nil {
			return s.graphWriteFailure("insert output edge", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, batch.GetDomainEvents())
	batch.ClearDomainEvents()
	return &OutputResponse{
		EdgeID:            edge.ID,
		ProductionBatchID: edge.ProductionBatchID,
		QuantityProduced:  edge.QuantityProduced,
		Batch:             *ToBatchResponse(batch),
	}, nil
}

// RecordDispatch draws down a batch for an outbound shipment and
// inserts the dispatch record atomically with the ledger movement.
func (s *LineageService) RecordDispatch(ctx context.Context, tenantID uuid.UUID, input RecordDispatchInput) (*DispatchResponse, error) {
	recordedBy := input.RecordedBy
	if recordedBy == "" {
		recordedBy = "system"
	}

	var batch *traceability.StockBatch
	var record *traceability.DispatchRecord
	err := s.withVersionRetry(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByIDForTenant(ctx, tenantID, input.BatchID)
		if err != nil {
			return err
		}
		record, err = traceability.NewDispatchRecord(tenantID, input.BatchID, input.CustomerID, input.Quantity, input.DispatchDate)
		if err != nil {
			return err
		}
		if input.DeliveryNoteRef != "" {
			record.WithDeliveryNote(input.DeliveryNoteRef)
		}
		movement, err := batch.Dispatch(input.Quantity, record.ID, recordedBy)
		if err != nil {
			return err
		}
		batch.IncrementVersion()
		if err := repos.BatchRepo().SaveWithVersion(ctx, batch); err != nil {
			return err
		}
		if err := repos.MovementRepo().Append(ctx, movement); err != nil {
			return s.graphWriteFailure("append dispatch movement", err)
		}
		if err := repos.LineageRepo().AddDispatch(ctx, record); err != nil {
			return s.graphWriteFailure("insert dispatch record", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.AddDomainEvent(traceability.NewBatchDispatchedEvent(
		tenantID, batch.ID, batch.BatchCode, record.ID, record.CustomerID, record.QuantityDispatched))
	s.publishEvents(ctx, batch.GetDomainEvents())
	batch.ClearDomainEvents()
	return ToDispatchResponse(record), nil
}

// graphWriteFailure logs the underlying infrastructure error and
// surfaces the graph-write failure to the caller. The surrounding
// transaction rolls back, so neither the edge nor the movement lands.
func (s *LineageService) graphWriteFailure(op string, err error) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	s.logger.Error("Lineage graph write failed, rolling back",
		zap.String("operation", op),
		zap.Error(err),
	)
	return shared.ErrGraphWriteFailure
}

func (s *LineageService) withVersionRetry(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
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

func (s *LineageService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish domain events", zap.Error(err))
	}
}
