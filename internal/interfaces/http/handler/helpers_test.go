package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	traceapp "github.com/foodtrace/backend/internal/application/traceability"
	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/foodtrace/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore backs the in-memory repositories used by the handler tests
type fakeStore struct {
	batches      map[uuid.UUID]traceability.StockBatch
	batchCodes   map[string]uuid.UUID
	movements    []traceability.BatchMovement
	consumptions []traceability.ProductionConsumption
	outputs      []traceability.ProductionOutput
	dispatches   []traceability.DispatchRecord
	recalls      map[uuid.UUID]traceability.Recall
	recallCodes  map[string]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches:     make(map[uuid.UUID]traceability.StockBatch),
		batchCodes:  make(map[string]uuid.UUID),
		recalls:     make(map[uuid.UUID]traceability.Recall),
		recallCodes: make(map[string]uuid.UUID),
	}
}

func storeKey(tenantID uuid.UUID, code string) string {
	return tenantID.String() + "|" + strings.ToLower(code)
}

type fakeBatchRepo struct{ store *fakeStore }

var _ traceability.StockBatchRepository = (*fakeBatchRepo)(nil)

func (r *fakeBatchRepo) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*traceability.StockBatch, error) {
	b, ok := r.store.batches[id]
	if !ok || b.TenantID != tenantID {
		return nil, shared.ErrBatchNotFound
	}
	copied := b
	return &copied, nil
}

func (r *fakeBatchRepo) FindByBatchCode(_ context.Context, tenantID uuid.UUID, code string) (*traceability.StockBatch, error) {
	id, ok := r.store.batchCodes[storeKey(tenantID, code)]
	if !ok {
		return nil, shared.ErrBatchNotFound
	}
	b := r.store.batches[id]
	copied := b
	return &copied, nil
}

func (r *fakeBatchRepo) FindAllForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]traceability.StockBatch, error) {
	var out []traceability.StockBatch
	for _, b := range r.store.batches {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) CountForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) (int64, error) {
	batches, _ := r.FindAllForTenant(context.Background(), tenantID, shared.Filter{})
	return int64(len(batches)), nil
}

func (r *fakeBatchRepo) FindWithDatesBefore(_ context.Context, tenantID uuid.UUID, useByBefore, bestBeforeBefore time.Time) ([]traceability.StockBatch, error) {
	var out []traceability.StockBatch
	for _, b := range r.store.batches {
		if b.TenantID != tenantID || b.IsTerminal() {
			continue
		}
		if b.UseByDate != nil && !b.UseByDate.After(useByBefore) {
			out = append(out, b)
			continue
		}
		if b.BestBeforeDate != nil && !b.BestBeforeDate.After(bestBeforeBefore) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) FindExpiredSystemWide(_ context.Context, asOf time.Time, limit int) ([]traceability.StockBatch, error) {
	var out []traceability.StockBatch
	for _, b := range r.store.batches {
		if b.Status != traceability.BatchStatusActive && b.Status != traceability.BatchStatusQuarantined {
			continue
		}
		if b.UseByDate != nil && traceability.DaysUntil(*b.UseByDate, asOf) < 0 {
			out = append(out, b)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) CountReceivedOn(_ context.Context, tenantID, stockItemID uuid.UUID, day time.Time) (int64, error) {
	var n int64
	for _, b := range r.store.batches {
		if b.TenantID == tenantID && b.StockItemID == stockItemID && traceability.DaysUntil(b.CreatedAt, day) == 0 {
			n++
		}
	}
	return n, nil
}

func (r *fakeBatchRepo) Create(_ context.Context, batch *traceability.StockBatch) error {
	key := storeKey(batch.TenantID, batch.BatchCode)
	if _, exists := r.store.batchCodes[key]; exists {
		return shared.ErrDuplicateBatchCode
	}
	r.store.batchCodes[key] = batch.ID
	r.store.batches[batch.ID] = *batch
	return nil
}

func (r *fakeBatchRepo) SaveWithVersion(_ context.Context, batch *traceability.StockBatch) error {
	existing, ok := r.store.batches[batch.ID]
	if !ok {
		return shared.ErrBatchNotFound
	}
	if existing.Version != batch.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.store.batches[batch.ID] = *batch
	return nil
}

type fakeMovementRepo struct{ store *fakeStore }

var _ traceability.BatchMovementRepository = (*fakeMovementRepo)(nil)

func (r *fakeMovementRepo) Append(_ context.Context, movement *traceability.BatchMovement) error {
	r.store.movements = append(r.store.movements, *movement)
	return nil
}

func (r *fakeMovementRepo) FindByBatch(_ context.Context, tenantID, batchID uuid.UUID, _ shared.Filter) ([]traceability.BatchMovement, error) {
	var out []traceability.BatchMovement
	for _, m := range r.store.movements {
		if m.TenantID == tenantID && m.BatchID == batchID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) CountByBatch(_ context.Context, tenantID, batchID uuid.UUID) (int64, error) {
	movements, _ := r.FindByBatch(context.Background(), tenantID, batchID, shared.Filter{})
	return int64(len(movements)), nil
}

func (r *fakeMovementRepo) SumDeltas(_ context.Context, tenantID, batchID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, m := range r.store.movements {
		if m.TenantID == tenantID && m.BatchID == batchID {
			sum = sum.Add(m.QuantityDelta)
		}
	}
	return sum, nil
}

type fakeLineageRepo struct{ store *fakeStore }

var _ traceability.LineageRepository = (*fakeLineageRepo)(nil)

func (r *fakeLineageRepo) ConsumptionsByInputBatch(_ context.Context, tenantID, inputBatchID uuid.UUID) ([]traceability.ProductionConsumption, error) {
	var out []traceability.ProductionConsumption
	for _, c := range r.store.consumptions {
		if c.TenantID == tenantID && c.InputBatchID == inputBatchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeLineageRepo) ConsumptionsByProductionBatch(_ context.Context, tenantID, productionBatchID uuid.UUID) ([]traceability.ProductionConsumption, error) {
	var out []traceability.ProductionConsumption
	for _, c := range r.store.consumptions {
		if c.TenantID == tenantID && c.ProductionBatchID == productionBatchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeLineageRepo) OutputsByProductionBatch(_ context.Context, tenantID, productionBatchID uuid.UUID) ([]traceability.ProductionOutput, error) {
	var out []traceability.ProductionOutput
	for _, o := range r.store.outputs {
		if o.TenantID == tenantID && o.ProductionBatchID == productionBatchID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeLineageRepo) OutputsByOutputBatch(_ context.Context, tenantID, outputBatchID uuid.UUID) ([]traceability.ProductionOutput, error) {
	var out []traceability.ProductionOutput
	for _, o := range r.store.outputs {
		if o.TenantID == tenantID && o.OutputBatchID == outputBatchID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeLineageRepo) DispatchesByBatch(_ context.Context, tenantID, batchID uuid.UUID) ([]traceability.DispatchRecord, error) {
	var out []traceability.DispatchRecord
	for _, d := range r.store.dispatches {
		if d.TenantID == tenantID && d.StockBatchID == batchID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeLineageRepo) AddConsumption(_ context.Context, edge *traceability.ProductionConsumption) error {
	r.store.consumptions = append(r.store.consumptions, *edge)
	return nil
}

func (r *fakeLineageRepo) AddOutput(_ context.Context, edge *traceability.ProductionOutput) error {
	r.store.outputs = append(r.store.outputs, *edge)
	return nil
}

func (r *fakeLineageRepo) AddDispatch(_ context.Context, record *traceability.DispatchRecord) error {
	r.store.dispatches = append(r.store.dispatches, *record)
	return nil
}

func (r *fakeLineageRepo) FindDispatchByID(_ context.Context, tenantID, id uuid.UUID) (*traceability.DispatchRecord, error) {
	for _, d := range r.store.dispatches {
		if d.TenantID == tenantID && d.ID == id {
			copied := d
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

type fakeRecallRepo struct{ store *fakeStore }

var _ traceability.RecallRepository = (*fakeRecallRepo)(nil)

func (r *fakeRecallRepo) Create(_ context.Context, recall *traceability.Recall) error {
	key := storeKey(recall.TenantID, recall.RecallCode)
	if _, exists := r.store.recallCodes[key]; exists {
		return shared.ErrDuplicateRecallCode
	}
	r.store.recallCodes[key] = recall.ID
	r.store.recalls[recall.ID] = *recall
	return nil
}

func (r *fakeRecallRepo) FindByCode(_ context.Context, tenantID uuid.UUID, recallCode string) (*traceability.Recall, error) {
	id, ok := r.store.recallCodes[storeKey(tenantID, recallCode)]
	if !ok {
		return nil, shared.ErrRecallNotFound
	}
	recall := r.store.recalls[id]
	copied := recall
	return &copied, nil
}

func (r *fakeRecallRepo) FindAllForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]traceability.Recall, error) {
	var out []traceability.Recall
	for _, recall := range r.store.recalls {
		if recall.TenantID == tenantID {
			out = append(out, recall)
		}
	}
	return out, nil
}

func (r *fakeRecallRepo) Save(_ context.Context, recall *traceability.Recall) error {
	existing, ok := r.store.recalls[recall.ID]
	if !ok {
		return shared.ErrRecallNotFound
	}
	if existing.Version != recall.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.store.recalls[recall.ID] = *recall
	return nil
}

// testEnv wires real application services over the in-memory store
type testEnv struct {
	store    *fakeStore
	tenantID uuid.UUID
	engine   *gin.Engine

	batchService   *traceapp.BatchService
	lineageService *traceapp.LineageService
	traceService   *traceapp.TraceService
	recallService  *traceapp.RecallService
	expiryService  *traceapp.ExpirySweepService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newFakeStore()
	batchRepo := &fakeBatchRepo{store: store}
	movementRepo := &fakeMovementRepo{store: store}
	lineageRepo := &fakeLineageRepo{store: store}
	recallRepo := &fakeRecallRepo{store: store}
	scope := traceapp.NewNoOpTransactionScope(batchRepo, movementRepo, lineageRepo, recallRepo)
	logger := zap.NewNop()

	env := &testEnv{
		store:          store,
		tenantID:       uuid.New(),
		batchService:   traceapp.NewBatchService(scope, logger),
		lineageService: traceapp.NewLineageService(scope, logger),
		traceService:   traceapp.NewTraceService(batchRepo, lineageRepo, logger),
		recallService:  traceapp.NewRecallService(scope, batchRepo, lineageRepo, logger),
		expiryService:  traceapp.NewExpirySweepService(scope, batchRepo, traceapp.DefaultExpiryConfig(), logger),
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	api := engine.Group("/api/v1")
	api.Use(middleware.RequireTenant())
	NewBatchHandler(env.batchService, env.expiryService).RegisterRoutes(api)
	NewLineageHandler(env.lineageService).RegisterRoutes(api)
	NewTraceHandler(env.traceService).RegisterRoutes(api)
	NewRecallHandler(env.recallService).RegisterRoutes(api)
	env.engine = engine

	return env
}

// do performs a request against the test engine with the tenant header set
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", e.tenantID.String())
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// envelope mirrors the response wrapper for decoding in assertions
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Total    int64 `json:"total"`
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
	} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// receiveBatch books a batch through the API and returns its response
func (e *testEnv) receiveBatch(t *testing.T, code string, quantity string) *traceapp.BatchResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/batches", ReceiveBatchRequest{
		StockItemID: uuid.New().String(),
		BatchCode:   code,
		Unit:        "kg",
		Quantity:    decimal.RequireFromString(quantity),
		ReceivedBy:  "tester",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decodeEnvelope(t, w)
	var batch traceapp.BatchResponse
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	return &batch
}
