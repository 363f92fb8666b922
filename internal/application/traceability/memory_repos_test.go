package traceability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// errInjected simulates an infrastructure failure mid-transaction
var errInjected = errors.New("injected storage failure")

func mustDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// memStore is the shared backing state for the in-memory repositories.
// memScope snapshots it before each Execute and restores it on error,
// giving the tests real rollback semantics.
type memStore struct {
	batches      map[uuid.UUID]traceability.StockBatch
	batchCodes   map[string]uuid.UUID
	movements    []traceability.BatchMovement
	consumptions []traceability.ProductionConsumption
	outputs      []traceability.ProductionOutput
	dispatches   []traceability.DispatchRecord
	recalls      map[uuid.UUID]traceability.Recall
	recallCodes  map[string]uuid.UUID

	failMovementAppend bool
	failAddConsumption bool
	failAddDispatch    bool
}

func newMemStore() *memStore {
	return &memStore{
		batches:     make(map[uuid.UUID]traceability.StockBatch),
		batchCodes:  make(map[string]uuid.UUID),
		recalls:     make(map[uuid.UUID]traceability.Recall),
		recallCodes: make(map[string]uuid.UUID),
	}
}

func (s *memStore) clone() *memStore {
	c := newMemStore()
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.batchCodes {
		c.batchCodes[k] = v
	}
	for k, v := range s.recalls {
		c.recalls[k] = v
	}
	for k, v := range s.recallCodes {
		c.recallCodes[k] = v
	}
	c.movements = append([]traceability.BatchMovement(nil), s.movements...)
	c.consumptions = append([]traceability.ProductionConsumption(nil), s.consumptions...)
	c.outputs = append([]traceability.ProductionOutput(nil), s.outputs...)
	c.dispatches = append([]traceability.DispatchRecord(nil), s.dispatches...)
	c.failMovementAppend = s.failMovementAppend
	c.failAddConsumption = s.failAddConsumption
	c.failAddDispatch = s.failAddDispatch
	return c
}

func codeKey(tenantID uuid.UUID, code string) string {
	return tenantID.String() + "|" + strings.ToLower(code)
}

// memScope implements TransactionScope with snapshot/restore rollback
type memScope struct {
	mu    sync.Mutex
	store *memStore
}

func newMemScope(store *memStore) *memScope {
	return &memScope{store: store}
}

func (s *memScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.store.clone()
	if err := fn(memRepos{store: s.store}); err != nil {
		*s.store = *snapshot
		return err
	}
	return nil
}

type memRepos struct {
	store *memStore
}

func (r memRepos) BatchRepo() traceability.StockBatchRepository {
	return &memBatchRepo{store: r.store}
}

func (r memRepos) MovementRepo() traceability.BatchMovementRepository {
	return &memMovementRepo{store: r.store}
}

func (r memRepos) LineageRepo() traceability.LineageRepository {
	return &memLineageRepo{store: r.store}
}

func (r memRepos) RecallRepo() traceability.RecallRepository {
	return &memRecallRepo{store: r.store}
}

var _ TransactionScope = (*memScope)(nil)
var _ TransactionalRepositories = memRepos{}

type memBatchRepo struct {
	store *memStore
}

var _ traceability.StockBatchRepository = (*memBatchRepo)(nil)

func (r *memBatchRepo) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*traceability.StockBatch, error) {
	b, ok := r.store.batches[id]
	if !ok || b.TenantID != tenantID {
		return nil, shared.ErrBatchNotFound
	}
	copied := b
	return &copied, nil
}

func (r *memBatchRepo) FindByBatchCode(_ context.Context, tenantID uuid.UUID, code string) (*traceability.StockBatch, error) {
	id, ok := r.store.batchCodes[codeKey(tenantID, code)]
	if !ok {
		return nil, shared.ErrBatchNotFound
	}
	b := r.store.batches[id]
	copied := b
	return &copied, nil
}

func (r *memBatchRepo) FindAllForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]traceability.StockBatch, error) {
	var out []traceability.StockBatch
	for _, b := range r.store.batches {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memBatchRepo) CountForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) (int64, error) {
	var n int64
	for _, b := range r.store.batches {
		if b.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (r *memBatchRepo) FindWithDatesBefore(_ context.Context, tenantID uuid.UUID, useByBefore, bestBeforeBefore time.Time) ([]traceability.StockBatch, error) {
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

func (r *memBatchRepo) FindExpiredSystemWide(_ context.Context, asOf time.Time, limit int) ([]traceability.StockBatch, error) {
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

func (r *memBatchRepo) CountReceivedOn(_ context.Context, tenantID, stockItemID uuid.UUID, day time.Time) (int64, error) {
	var n int64
	for _, b := range r.store.batches {
		if b.TenantID == tenantID && b.StockItemID == stockItemID && traceability.DaysUntil(b.CreatedAt, day) == 0 {
			n++
		}
	}
	return n, nil
}

func (r *memBatchRepo) Create(_ context.Context, batch *traceability.StockBatch) error {
	key := codeKey(batch.TenantID, batch.BatchCode)
	if _, exists := r.store.batchCodes[key]; exists {
		return shared.ErrDuplicateBatchCode
	}
	r.store.batchCodes[key] = batch.ID
	r.store.batches[batch.ID] = *batch
	return nil
}

func (r *memBatchRepo) SaveWithVersion(_ context.Context, batch *traceability.StockBatch) error {
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

type memMovementRepo struct {
	store *memStore
}

var _ traceability.BatchMovementRepository = (*memMovementRepo)(nil)

func (r *memMovementRepo) Append(_ context.Context, movement *traceability.BatchMovement) error {
	if r.store.failMovementAppend {
		return errInjected
	}
	r.store.movements = append(r.store.movements, *movement)
	return nil
}

func (r *memMovementRepo) FindByBatch(_ context.Context, tenantID, batchID uuid.UUID, _ shared.Filter) ([]traceability.BatchMovement, error) {
	var out []traceability.BatchMovement
	for _, m := range r.store.movements {
		if m.TenantID == tenantID && m.BatchID == batchID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMovementRepo) CountByBatch(_ context.Context, tenantID, batchID uuid.UUID) (int64, error) {
	movements, _ := r.FindByBatch(context.Background(), tenantID, batchID, shared.Filter{})
	return int64(len(movements)), nil
}

func (r *memMovementRepo) SumDeltas(_ context.Context, tenantID, batchID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, m := range r.store.movements {
		if m.TenantID == tenantID && m.BatchID == batchID {
			sum = sum.Add(m.QuantityDelta)
		}
	}
	return sum, nil
}

type memLineageRepo struct {
	store *memStore
}

var _ traceability.LineageRepository = (*memLineageRepo)(nil)

func (r *memLineageRepo) ConsumptionsByInputBatch(_ context.Context, tenantID, inputBatchID uuid.UUID) ([]traceability.ProductionConsumption, error) {
	var out []traceability.ProductionConsumption
	for _, c := range r.store.consumptions {
		if c.TenantID == tenantID && c.InputBatchID == inputBatchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memLineageRepo) ConsumptionsByProductionBatch(_ context.Context, tenantID, productionBatchID uuid.UUID) ([]traceability.ProductionConsumption, error) {
	var out []traceability.ProductionConsumption
	for _, c := range r.store.consumptions {
		if c.TenantID == tenantID && c.ProductionBatchID == productionBatchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memLineageRepo) OutputsByProductionBatch(_ context.Context, tenantID, productionBatchID uuid.UUID) ([]traceability.ProductionOutput, error) {
	var out []traceability.ProductionOutput
	for _, o := range r.store.outputs {
		if o.TenantID == tenantID && o.ProductionBatchID == productionBatchID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memLineageRepo) OutputsByOutputBatch(_ context.Context, tenantID, outputBatchID uuid.UUID) ([]traceability.ProductionOutput, error) {
	var out []traceability.ProductionOutput
	for _, o := range r.store.outputs {
		if o.TenantID == tenantID && o.OutputBatchID == outputBatchID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memLineageRepo) DispatchesByBatch(_ context.Context, tenantID, batchID uuid.UUID) ([]traceability.DispatchRecord, error) {
	var out []traceability.DispatchRecord
	for _, d := range r.store.dispatches {
		if d.TenantID == tenantID && d.StockBatchID == batchID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memLineageRepo) AddConsumption(_ context.Context, edge *traceability.ProductionConsumption) error {
	if r.store.failAddConsumption {
		return errInjected
	}
	r.store.consumptions = append(r.store.consumptions, *edge)
	return nil
}

func (r *memLineageRepo) AddOutput(_ context.Context, edge *traceability.ProductionOutput) error {
	r.store.outputs = append(r.store.outputs, *edge)
	return nil
}

func (r *memLineageRepo) AddDispatch(_ context.Context, record *traceability.DispatchRecord) error {
	if r.store.failAddDispatch {
		return errInjected
	}
	r.store.dispatches = append(r.store.dispatches, *record)
	return nil
}

func (r *memLineageRepo) FindDispatchByID(_ context.Context, tenantID, id uuid.UUID) (*traceability.DispatchRecord, error) {
	for _, d := range r.store.dispatches {
		if d.TenantID == tenantID && d.ID == id {
			copied := d
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

type memRecallRepo struct {
	store *memStore
}

var _ traceability.RecallRepository = (*memRecallRepo)(nil)

func (r *memRecallRepo) Create(_ context.Context, recall *traceability.Recall) error {
	key := codeKey(recall.TenantID, recall.RecallCode)
	if _, exists := r.store.recallCodes[key]; exists {
		return shared.ErrDuplicateRecallCode
	}
	r.store.recallCodes[key] = recall.ID
	r.store.recalls[recall.ID] = *recall
	return nil
}

func (r *memRecallRepo) FindByCode(_ context.Context, tenantID uuid.UUID, recallCode string) (*traceability.Recall, error) {
	id, ok := r.store.recallCodes[codeKey(tenantID, recallCode)]
	if !ok {
		return nil, shared.ErrRecallNotFound
	}
	recall := r.store.recalls[id]
	copied := recall
	return &copied, nil
}

func (r *memRecallRepo) FindAllForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]traceability.Recall, error) {
	var out []traceability.Recall
	for _, recall := range r.store.recalls {
		if recall.TenantID == tenantID {
			out = append(out, recall)
		}
	}
	return out, nil
}

func (r *memRecallRepo) Save(_ context.Context, recall *traceability.Recall) error {
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

// memIdempotencyStore is a minimal idempotency store for tests
type memIdempotencyStore struct {
	keys map[string]bool
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{keys: make(map[string]bool)}
}

func (s *memIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *memIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	return s.keys[key], nil
}

func (s *memIdempotencyStore) Close() error { return nil }

var _ shared.IdempotencyStore = (*memIdempotencyStore)(nil)
