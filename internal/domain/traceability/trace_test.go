package traceability

import (
	"context"
	"testing"
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLineage struct {
	consumptions []ProductionConsumption
	outputs      []ProductionOutput
	dispatches   []DispatchRecord
}

func (m *memLineage) ConsumptionsByInputBatch(_ context.Context, tenantID, inputBatchID uuid.UUID) ([]ProductionConsumption, error) {
	var out []ProductionConsumption
	for _, c := range m.consumptions {
		if c.TenantID == tenantID && c.InputBatchID == inputBatchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memLineage) ConsumptionsByProductionBatch(_ context.Context, tenantID, productionBatchID uuid.UUID) ([]ProductionConsumption, error) {
	var out []ProductionConsumption
	for _, c := range m.consumptions {
		if c.TenantID == tenantID && c.ProductionBatchID == productionBatchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memLineage) OutputsByProductionBatch(_ context.Context, tenantID, productionBatchID uuid.UUID) ([]ProductionOutput, error) {
	var out []ProductionOutput
	for _, o := range m.outputs {
		if o.TenantID == tenantID && o.ProductionBatchID == productionBatchID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memLineage) OutputsByOutputBatch(_ context.Context, tenantID, outputBatchID uuid.UUID) ([]ProductionOutput, error) {
	var out []ProductionOutput
	for _, o := range m.outputs {
		if o.TenantID == tenantID && o.OutputBatchID == outputBatchID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memLineage) DispatchesByBatch(_ context.Context, tenantID, batchID uuid.UUID) ([]DispatchRecord, error) {
	var out []DispatchRecord
	for _, d := range m.dispatches {
		if d.TenantID == tenantID && d.StockBatchID == batchID {
			out = append(out, d)
		}
	}
	return out, nil
}

type memBatches map[uuid.UUID]*StockBatch

func (m memBatches) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*StockBatch, error) {
	b, ok := m[id]
	if !ok || b.TenantID != tenantID {
		return nil, shared.ErrBatchNotFound
	}
	return b, nil
}

// traceFixture wires the flour scenario: a contaminated flour batch and
// a butter batch are mixed in one production run into two finished
// batches; one finished batch ships to two customers and also feeds a
// second production run yielding a third finished batch.
type traceFixture struct {
	tenantID uuid.UUID
	lineage  *memLineage
	batches  memBatches
	engine   *TraceEngine

	flour, butter, finished1, finished2, finished3 uuid.UUID
	run1, run2                                     uuid.UUID
}

func newTraceFixture(t *testing.T) *traceFixture {
	t.Helper()
	f := &traceFixture{
		tenantID: uuid.New(),
		lineage:  &memLineage{},
		batches:  memBatches{},
		run1:     uuid.New(),
		run2:     uuid.New(),
	}
	f.engine = NewTraceEngine(f.lineage, f.batches)

	f.flour = f.addBatch(t, "BR-FLOUR-001")
	f.butter = f.addBatch(t, "BR-BUTTER-001")
	f.finished1 = f.addBatch(t, "FG-PIE-001")
	f.finished2 = f.addBatch(t, "FG-PIE-002")
	f.finished3 = f.addBatch(t, "FG-TRIFLE-001")

	f.consume(f.run1, f.flour)
	f.consume(f.run1, f.butter)
	f.output(f.run1, f.finished1)
	f.output(f.run1, f.finished2)
	f.consume(f.run2, f.finished1)
	f.output(f.run2, f.finished3)

	f.dispatch(f.finished1)
	f.dispatch(f.finished1)
	f.dispatch(f.finished3)

	return f
}

func (f *traceFixture) addBatch(t *testing.T, code string) uuid.UUID {
	t.Helper()
	b, err := NewStockBatch(f.tenantID, uuid.New(), code, "kg", decimal.NewFromInt(100))
	require.NoError(t, err)
	f.batches[b.ID] = b
	return b.ID
}

func (f *traceFixture) consume(productionID, inputID uuid.UUID) {
	edge, _ := NewProductionConsumption(f.tenantID, productionID, inputID, decimal.NewFromInt(10))
	f.lineage.consumptions = append(f.lineage.consumptions, *edge)
}

func (f *traceFixture) output(productionID, outputID uuid.UUID) {
	edge, _ := NewProductionOutput(f.tenantID, productionID, outputID, decimal.NewFromInt(20))
	f.lineage.outputs = append(f.lineage.outputs, *edge)
}

func (f *traceFixture) dispatch(batchID uuid.UUID) {
	d, _ := NewDispatchRecord(f.tenantID, batchID, uuid.New(), decimal.NewFromInt(5), time.Now())
	f.lineage.dispatches = append(f.lineage.dispatches, *d)
}

func tracedIDs(result *TraceResult) map[uuid.UUID]int {
	ids := make(map[uuid.UUID]int, len(result.Batches))
	for _, tb := range result.Batches {
		ids[tb.Batch.ID] = tb.Depth
	}
	return ids
}

func TestTraceEngine_Forward(t *testing.T) {
	f := newTraceFixture(t)

	result, err := f.engine.Trace(context.Background(), f.tenantID, f.flour, TraceDirectionForward, 0)
	require.NoError(t, err)

	depths := tracedIDs(result)
	assert.Len(t, depths, 4)
	assert.Equal(t, 0, depths[f.flour])
	assert.Equal(t, 1, depths[f.finished1])
	assert.Equal(t, 1, depths[f.finished2])
	assert.Equal(t, 2, depths[f.finished3])
	// The sibling raw ingredient is not downstream of the flour.
	assert.NotContains(t, depths, f.butter)

	// Dispatches of every reached batch are collected.
	assert.Len(t, result.Dispatches, 3)
	assert.False(t, result.Truncated)
}

func TestTraceEngine_Backward(t *testing.T) {
	f := newTraceFixture(t)

	result, err := f.engine.Trace(context.Background(), f.tenantID, f.finished3, TraceDirectionBackward, 0)
	require.NoError(t, err)

	depths := tracedIDs(result)
	assert.Len(t, depths, 4)
	assert.Equal(t, 0, depths[f.finished3])
	assert.Equal(t, 1, depths[f.finished1])
	assert.Equal(t, 2, depths[f.flour])
	assert.Equal(t, 2, depths[f.butter])
	// The other output of the first run is not an ancestor.
	assert.NotContains(t, depths, f.finished2)

	assert.Empty(t, result.Dispatches)
}

// Every batch reached forward from an origin must reach that origin
// backward, and vice versa.
func TestTraceEngine_ForwardBackwardDuality(t *testing.T) {
	f := newTraceFixture(t)
	ctx := context.Background()

	forward, err := f.engine.Trace(ctx, f.tenantID, f.flour, TraceDirectionForward, 0)
	require.NoError(t, err)

	for id := range tracedIDs(forward) {
		if id == f.flour {
			continue
		}
		backward, err := f.engine.Trace(ctx, f.tenantID, id, TraceDirectionBackward, 0)
		require.NoError(t, err)
		assert.Contains(t, tracedIDs(backward), f.flour,
			"batch reached forward from flour must see flour backward")
	}
}

func TestTraceEngine_DepthGuardTruncates(t *testing.T) {
	f := newTraceFixture(t)

	result, err := f.engine.Trace(context.Background(), f.tenantID, f.flour, TraceDirectionForward, 1)
	require.NoError(t, err)

	depths := tracedIDs(result)
	assert.Contains(t, depths, f.finished1)
	assert.NotContains(t, depths, f.finished3)
	assert.True(t, result.Truncated)
}

func TestTraceEngine_CycleSafety(t *testing.T) {
	f := newTraceFixture(t)
	// Malformed data: the downstream trifle batch is recorded as an
	// input of the run that produced the pies, closing a loop.
	f.consume(f.run1, f.finished3)

	result, err := f.engine.Trace(context.Background(), f.tenantID, f.finished3, TraceDirectionForward, 0)
	require.NoError(t, err)

	depths := tracedIDs(result)
	assert.Contains(t, depths, f.finished1)
	// Each batch appears exactly once despite the cycle.
	assert.Len(t, result.Batches, len(depths))
}

func TestTraceEngine_UnknownRoot(t *testing.T) {
	f := newTraceFixture(t)

	_, err := f.engine.Trace(context.Background(), f.tenantID, uuid.New(), TraceDirectionForward, 0)
	assert.ErrorIs(t, err, shared.ErrBatchNotFound)
}

func TestTraceEngine_InvalidDirection(t *testing.T) {
	f := newTraceFixture(t)

	_, err := f.engine.Trace(context.Background(), f.tenantID, f.flour, TraceDirection("sideways"), 0)
	assert.Error(t, err)
}

func TestTraceEngine_TenantIsolation(t *testing.T) {
	f := newTraceFixture(t)

	_, err := f.engine.Trace(context.Background(), uuid.New(), f.flour, TraceDirectionForward, 0)
	assert.ErrorIs(t, err, shared.ErrBatchNotFound)
}

func TestTraceEngine_SkipsDanglingEdges(t *testing.T) {
	f := newTraceFixture(t)
	// Edge pointing at a batch that no longer resolves.
	f.consume(f.run2, f.flour)
	f.output(f.run2, uuid.New())

	result, err := f.engine.Trace(context.Background(), f.tenantID, f.flour, TraceDirectionForward, 0)
	require.NoError(t, err)
	assert.Len(t, result.Batches, 4)
}
