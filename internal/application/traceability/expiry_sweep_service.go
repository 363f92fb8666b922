package traceability

import (
	"context"
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExpiryConfig holds expiry classification and sweep settings
type ExpiryConfig struct {
	// WarnDaysUseBy is the critical window before a use-by date
	WarnDaysUseBy int
	// WarnDaysBestBefore is the warning window before a best-before date
	WarnDaysBestBefore int
	// SweepInterval is how often the background sweep runs
	SweepInterval time.Duration
	// SweepBatchLimit caps how many batches one sweep pass marks
	SweepBatchLimit int
}

// DefaultExpiryConfig returns the default expiry configuration
func DefaultExpiryConfig() ExpiryConfig {
	return ExpiryConfig{
		WarnDaysUseBy:      3,
		WarnDaysBestBefore: 7,
		SweepInterval:      time.Hour,
		SweepBatchLimit:    500,
	}
}

// SweepStats summarizes one expiry sweep pass
type SweepStats struct {
	Scanned     int       `json:"scanned"`
	Marked      int       `json:"marked"`
	Failed      int       `json:"failed"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ExpirySweepService answers expiring-stock queries and runs the
// background sweep that marks batches expired once their use-by date
// has passed. The sweep publishes domain events for the alerting
// pipeline; delivery of notifications is out of scope here.
type ExpirySweepService struct {
	scope          TransactionScope
	batchRepo      traceability.StockBatchRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	cfg            ExpiryConfig
}

// NewExpirySweepService creates a new ExpirySweepService
func NewExpirySweepService(scope TransactionScope, batchRepo traceability.StockBatchRepository, cfg ExpiryConfig, logger *zap.Logger) *ExpirySweepService {
	if cfg.WarnDaysUseBy <= 0 {
		cfg.WarnDaysUseBy = DefaultExpiryConfig().WarnDaysUseBy
	}
	if cfg.WarnDaysBestBefore <= 0 {
		cfg.WarnDaysBestBefore = DefaultExpiryConfig().WarnDaysBestBefore
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultExpiryConfig().SweepInterval
	}
	if cfg.SweepBatchLimit <= 0 {
		cfg.SweepBatchLimit = DefaultExpiryConfig().SweepBatchLimit
	}
	return &ExpirySweepService{
		scope:     scope,
		batchRepo: batchRepo,
		logger:    logger,
		cfg:       cfg,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *ExpirySweepService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// ExpiringBatches returns the tenant's batches at or inside the given
// warning windows, classified by severity. Zero window arguments fall
// back to the configured defaults. Batches already past their use-by
// date are only included when includeExpired is set.
func (s *ExpirySweepService) ExpiringBatches(ctx context.Context, tenantID uuid.UUID, useByDays, bestBeforeDays int, includeExpired bool) ([]ExpiringBatchResponse, error) {
	if useByDays <= 0 {
		useByDays = s.cfg.WarnDaysUseBy
	}
	if bestBeforeDays <= 0 {
		bestBeforeDays = s.cfg.WarnDaysBestBefore
	}

	today := time.Now()
	batches, err := s.batchRepo.FindWithDatesBefore(ctx, tenantID,
		today.AddDate(0, 0, useByDays),
		today.AddDate(0, 0, bestBeforeDays),
	)
	if err != nil {
		return nil, err
	}

	responses := make([]ExpiringBatchResponse, 0, len(batches))
	for i := range batches {
		batch := &batches[i]
		severity := traceability.ClassifyExpiry(batch.UseByDate, batch.BestBeforeDate, today, useByDays, bestBeforeDays)
		if severity == traceability.ExpirySeverityNone {
			continue
		}
		if severity == traceability.ExpirySeverityExpired && !includeExpired {
			continue
		}

		resp := ExpiringBatchResponse{
			Batch:    *ToBatchResponse(batch),
			Severity: severity,
		}
		if batch.UseByDate != nil {
			days := traceability.DaysUntil(*batch.UseByDate, today)
			resp.DaysUntilUse = &days
		}
		if batch.BestBeforeDate != nil {
			days := traceability.DaysUntil(*batch.BestBeforeDate, today)
			resp.DaysUntilBB = &days
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// Sweep marks batches whose use-by date has passed as expired, across
// all tenants, publishing a BatchExpired event for each. Individual
// failures are logged and counted; the pass continues.
func (s *ExpirySweepService) Sweep(ctx context.Context) (*SweepStats, error) {
	stats := &SweepStats{ProcessedAt: time.Now()}

	expired, err := s.batchRepo.FindExpiredSystemWide(ctx, time.Now(), s.cfg.SweepBatchLimit)
	if err != nil {
		s.logger.Error("Expiry sweep query failed", zap.Error(err))
		return nil, err
	}
	stats.Scanned = len(expired)
	if stats.Scanned == 0 {
		return stats, nil
	}

	for i := range expired {
		if err := s.markExpired(ctx, &expired[i]); err != nil {
			s.logger.Warn("Failed to mark batch expired",
				zap.String("batch_id", expired[i].ID.String()),
				zap.String("batch_code", expired[i].BatchCode),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}
		stats.Marked++
	}

	s.logger.Info("Expiry sweep completed",
		zap.Int("scanned", stats.Scanned),
		zap.Int("marked", stats.Marked),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (s *ExpirySweepService) markExpired(ctx context.Context, stale *traceability.StockBatch) error {
	var batch *traceability.StockBatch
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByIDForTenant(ctx, stale.TenantID, stale.ID)
		if err != nil {
			return err
		}
		if err := batch.MarkExpired(); err != nil {
			return err
		}
		batch.IncrementVersion()
		return repos.BatchRepo().SaveWithVersion(ctx, batch)
	})
	if err != nil {
		return err
	}

	s.publishEvents(ctx, batch.GetDomainEvents())
	batch.ClearDomainEvents()
	return nil
}

// Run executes the sweep on the configured interval until the context
// is cancelled
func (s *ExpirySweepService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.Info("Expiry sweep started", zap.Duration("interval", s.cfg.SweepInterval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweep stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Expiry sweep pass failed", zap.Error(err))
			}
		}
	}
}

func (s *ExpirySweepService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish domain events", zap.Error(err))
	}
}
