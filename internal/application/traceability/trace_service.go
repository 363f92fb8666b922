package traceability

import (
	"context"

	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TraceService answers forward and backward trace queries. Traces are
// read-only and run outside any write transaction.
type TraceService struct {
	batchRepo    traceability.StockBatchRepository
	lineageRepo  traceability.LineageRepository
	depthCeiling int
	logger       *zap.Logger
}

// TraceServiceOption is a functional option for TraceService
type TraceServiceOption func(*TraceService)

// WithTraceDepthCeiling caps the depth a caller may request. Requests
// above the ceiling are clamped, not rejected.
func WithTraceDepthCeiling(ceiling int) TraceServiceOption {
	return func(s *TraceService) {
		if ceiling > 0 {
			s.depthCeiling = ceiling
		}
	}
}

// NewTraceService creates a new TraceService
func NewTraceService(batchRepo traceability.StockBatchRepository, lineageRepo traceability.LineageRepository, logger *zap.Logger, opts ...TraceServiceOption) *TraceService {
	s := &TraceService{
		batchRepo:    batchRepo,
		lineageRepo:  lineageRepo,
		depthCeiling: traceability.DefaultMaxTraceDepth,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trace walks the lineage graph from the given batch. A truncated
// result is returned with its flag set rather than failing, so the
// caller always sees the partial picture together with the fact that
// it is partial.
func (s *TraceService) Trace(ctx context.Context, tenantID, batchID uuid.UUID, direction traceability.TraceDirection, maxDepth int) (*TraceResponse, error) {
	if maxDepth <= 0 || maxDepth > s.depthCeiling {
		maxDepth = s.depthCeiling
	}
	engine := traceability.NewTraceEngine(s.lineageRepo, s.batchRepo)
	result, err := engine.Trace(ctx, tenantID, batchID, direction, maxDepth)
	if err != nil {
		return nil, err
	}
	if result.Truncated {
		s.logger.Warn("Trace truncated by depth guard",
			zap.String("root_batch_id", batchID.String()),
			zap.String("direction", string(direction)),
			zap.Int("max_depth", result.MaxDepth),
			zap.Int("batches_reached", len(result.Batches)),
		)
	}
	return ToTraceResponse(result), nil
}
