package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	traceapp "github.com/foodtrace/backend/internal/application/traceability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain books RAW -> (production) -> OUT and dispatches part of
// OUT to a customer. Returns the raw input batch and the output batch.
func buildChain(t *testing.T, env *testEnv) (*traceapp.BatchResponse, *traceapp.BatchResponse) {
	t.Helper()
	raw := env.receiveBatch(t, "CHAIN-RAW", "100")
	productionID := uuid.New()

	w := env.do(t, http.MethodPost, "/api/v1/lineage/consumptions", RecordConsumptionRequest{
		ProductionBatchID: productionID.String(),
		InputBatchID:      raw.ID.String(),
		Quantity:          decimal.NewFromInt(60),
		RecordedBy:        "tester",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/lineage/outputs", RecordOutputRequest{
		ProductionBatchID: productionID.String(),
		StockItemID:       uuid.New().String(),
		BatchCode:         "CHAIN-OUT",
		Unit:              "kg",
		Quantity:          decimal.NewFromInt(40),
		RecordedBy:        "tester",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var output traceapp.OutputResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &output))

	w = env.do(t, http.MethodPost, "/api/v1/lineage/dispatches", RecordDispatchRequest{
		BatchID:      output.Batch.ID.String(),
		CustomerID:   uuid.New().String(),
		Quantity:     decimal.NewFromInt(10),
		DispatchDate: "2026-08-30",
		RecordedBy:   "tester",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	return raw, &output.Batch
}

// extendChain feeds an existing batch into a further production run
// yielding a new output batch
func extendChain(t *testing.T, env *testEnv, input *traceapp.BatchResponse, code string, quantity int64) *traceapp.BatchResponse {
	t.Helper()
	productionID := uuid.New()

	w := env.do(t, http.MethodPost, "/api/v1/lineage/consumptions", RecordConsumptionRequest{
		ProductionBatchID: productionID.String(),
		InputBatchID:      input.ID.String(),
		Quantity:          decimal.NewFromInt(quantity),
		RecordedBy:        "tester",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/lineage/outputs", RecordOutputRequest{
		ProductionBatchID: productionID.String(),
		StockItemID:       uuid.New().String(),
		BatchCode:         code,
		Unit:              "kg",
		Quantity:          decimal.NewFromInt(quantity),
		RecordedBy:        "tester",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var output traceapp.OutputResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &output))
	return &output.Batch
}

func traceBatch(t *testing.T, env *testEnv, batchID uuid.UUID, query string) traceapp.TraceResponse {
	t.Helper()
	w := env.do(t, http.MethodGet, "/api/v1/batches/"+batchID.String()+"/trace"+query, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result traceapp.TraceResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	return result
}

func TestTraceHandler_Forward(t *testing.T) {
	env := newTestEnv(t)
	raw, output := buildChain(t, env)

	result := traceBatch(t, env, raw.ID, "")

	assert.Equal(t, raw.ID, result.RootBatchID)
	assert.False(t, result.Truncated)
	require.Len(t, result.Batches, 2)
	assert.Equal(t, raw.ID, result.Batches[0].Batch.ID)
	assert.Equal(t, 0, result.Batches[0].Depth)
	assert.Equal(t, output.ID, result.Batches[1].Batch.ID)
	assert.Equal(t, 1, result.Batches[1].Depth)
	require.Len(t, result.Dispatches, 1)
	assert.Equal(t, output.ID, result.Dispatches[0].StockBatchID)
}

func TestTraceHandler_Backward(t *testing.T) {
	env := newTestEnv(t)
	raw, output := buildChain(t, env)

	result := traceBatch(t, env, output.ID, "?direction=backward")

	require.Len(t, result.Batches, 2)
	assert.Equal(t, output.ID, result.Batches[0].Batch.ID)
	assert.Equal(t, raw.ID, result.Batches[1].Batch.ID)
	assert.Empty(t, result.Dispatches)
}

func TestTraceHandler_DepthGuardTruncates(t *testing.T) {
	env := newTestEnv(t)
	raw, output := buildChain(t, env)
	final := extendChain(t, env, output, "CHAIN-FINAL", 20)

	result := traceBatch(t, env, raw.ID, "?max_depth=1")

	assert.True(t, result.Truncated)
	require.Len(t, result.Batches, 2)
	for _, traced := range result.Batches {
		assert.NotEqual(t, final.ID, traced.Batch.ID)
	}

	full := traceBatch(t, env, raw.ID, "")
	assert.False(t, full.Truncated)
	assert.Len(t, full.Batches, 3)
}

func TestTraceHandler_InvalidDirection(t *testing.T) {
	env := newTestEnv(t)
	raw := env.receiveBatch(t, "TRC-001", "10")

	w := env.do(t, http.MethodGet, "/api/v1/batches/"+raw.ID.String()+"/trace?direction=sideways", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTraceHandler_UnknownRoot(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/batches/"+uuid.New().String()+"/trace", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
