package traceability

import (
	"context"
	"errors"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// TraceDirection selects which way the lineage graph is walked
type TraceDirection string

const (
	TraceDirectionForward  TraceDirection = "forward"
	TraceDirectionBackward TraceDirection = "backward"
)

// IsValid checks if the direction is a known value
func (d TraceDirection) IsValid() bool {
	return d == TraceDirectionForward || d == TraceDirectionBackward
}

// DefaultMaxTraceDepth bounds a trace when the caller does not give a
// limit. Depth counts batch-to-batch hops through production runs.
const DefaultMaxTraceDepth = 32

// LineageReader is the adjacency view of the lineage graph the trace
// engine walks. Implementations must scope every query to the tenant.
type LineageReader interface {
	ConsumptionsByInputBatch(ctx context.Context, tenantID, inputBatchID uuid.UUID) ([]ProductionConsumption, error)
	ConsumptionsByProductionBatch(ctx context.Context, tenantID, productionBatchID uuid.UUID) ([]ProductionConsumption, error)
	OutputsByProductionBatch(ctx context.Context, tenantID, productionBatchID uuid.UUID) ([]ProductionOutput, error)
	OutputsByOutputBatch(ctx context.Context, tenantID, outputBatchID uuid.UUID) ([]ProductionOutput, error)
	DispatchesByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]DispatchRecord, error)
}

// BatchReader resolves batch ids discovered during a trace
type BatchReader interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*StockBatch, error)
}

// TracedBatch is one batch reached by a trace. ViaProductionID is the
// production run through which the batch was reached; nil for the root.
type TracedBatch struct {
	Batch           *StockBatch `json:"batch"`
	Depth           int         `json:"depth"`
	ViaProductionID *uuid.UUID  `json:"via_production_id,omitempty"`
}

// TraceResult is the outcome of a graph walk. Truncated reports that
// the depth guard stopped the walk before the graph was exhausted; the
// batches collected up to that point are still returned.
type TraceResult struct {
	RootBatchID uuid.UUID        `json:"root_batch_id"`
	Direction   TraceDirection   `json:"direction"`
	MaxDepth    int              `json:"max_depth"`
	Batches     []TracedBatch    `json:"batches"`
	Dispatches  []DispatchRecord `json:"dispatches,omitempty"`
	Truncated   bool             `json:"truncated"`
}

// TraceEngine walks the lineage graph breadth-first. The walk is
// cycle-safe: batches and production runs are each visited at most
// once, so a malformed cyclic graph terminates instead of looping.
type TraceEngine struct {
	lineage LineageReader
	batches BatchReader
}

// NewTraceEngine creates a trace engine over the given graph views
func NewTraceEngine(lineage LineageReader, batches BatchReader) *TraceEngine {
	return &TraceEngine{
		lineage: lineage,
		batches: batches,
	}
}

type traceNode struct {
	batchID uuid.UUID
	depth   int
}

// Trace walks the graph from rootBatchID in the given direction.
// Forward follows consumption edges into production runs and out to
// their output batches, collecting dispatch records along the way.
// Backward mirrors that, terminating at batches with no inbound
// production edge. Edges pointing at batches that no longer resolve
// are skipped rather than failing the whole trace.
func (e *TraceEngine) Trace(ctx context.Context, tenantID, rootBatchID uuid.UUID, direction TraceDirection, maxDepth int) (*TraceResult, error) {
	if !direction.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "trace direction must be forward or backward")
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTraceDepth
	}

	root, err := e.batches.FindByIDForTenant(ctx, tenantID, rootBatchID)
	if err != nil {
		return nil, err
	}

	result := &TraceResult{
		RootBatchID: rootBatchID,
		Direction:   direction,
		MaxDepth:    maxDepth,
		Batches:     []TracedBatch{{Batch: root, Depth: 0}},
	}

	visitedBatches := map[uuid.UUID]bool{rootBatchID: true}
	visitedProductions := map[uuid.UUID]bool{}
	queue := []traceNode{{batchID: rootBatchID, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := queue[0]
		queue = queue[1:]

		if direction == TraceDirectionForward {
			dispatches, err := e.lineage.DispatchesByBatch(ctx, tenantID, node.batchID)
			if err != nil {
				return nil, err
			}
			result.Dispatches = append(result.Dispatches, dispatches...)
		}

		productions, err := e.adjacentProductions(ctx, tenantID, node.batchID, direction)
		if err != nil {
			return nil, err
		}

		for _, productionID := range productions {
			if visitedProductions[productionID] {
				continue
			}
			visitedProductions[productionID] = true

			nextBatches, err := e.batchesViaProduction(ctx, tenantID, productionID, direction)
			if err != nil {
				return nil, err
			}

			for _, nextID := range nextBatches {
				if visitedBatches[nextID] {
					continue
				}
				if node.depth+1 > maxDepth {
					result.Truncated = true
					continue
				}
				visitedBatches[nextID] = true

				batch, err := e.batches.FindByIDForTenant(ctx, tenantID, nextID)
				if err != nil {
					if errors.Is(err, shared.ErrBatchNotFound) || errors.Is(err, shared.ErrNotFound) {
						continue
					}
					return nil, err
				}

				viaID := productionID
				result.Batches = append(result.Batches, TracedBatch{
					Batch:           batch,
					Depth:           node.depth + 1,
					ViaProductionID: &viaID,
				})
				queue = append(queue, traceNode{batchID: nextID, depth: node.depth + 1})
			}
		}
	}

	return result, nil
}

// adjacentProductions returns the production runs reachable one hop
// from the batch in the walk direction
func (e *TraceEngine) adjacentProductions(ctx context.Context, tenantID, batchID uuid.UUID, direction TraceDirection) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if direction == TraceDirectionForward {
		consumptions, err := e.lineage.ConsumptionsByInputBatch(ctx, tenantID, batchID)
		if err != nil {
			return nil, err
		}
		for _, c := range consumptions {
			ids = append(ids, c.ProductionBatchID)
		}
		return ids, nil
	}

	outputs, err := e.lineage.OutputsByOutputBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	for _, o := range outputs {
		ids = append(ids, o.ProductionBatchID)
	}
	return ids, nil
}

// batchesViaProduction returns the batch ids on the far side of a
// production run in the walk direction
func (e *TraceEngine) batchesViaProduction(ctx context.Context, tenantID, productionID uuid.UUID, direction TraceDirection) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if direction == TraceDirectionForward {
		outputs, err := e.lineage.OutputsByProductionBatch(ctx, tenantID, productionID)
		if err != nil {
			return nil, err
		}
		for _, o := range outputs {
			ids = append(ids, o.OutputBatchID)
		}
		return ids, nil
	}

	consumptions, err := e.lineage.ConsumptionsByProductionBatch(ctx, tenantID, productionID)
	if err != nil {
		return nil, err
	}
	for _, c := range consumptions {
		ids = append(ids, c.InputBatchID)
	}
	return ids, nil
}
