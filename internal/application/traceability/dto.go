package traceability

import (
	"time"

	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiveBatchInput carries the fields for booking a batch into stock.
// BatchCode may be empty, in which case the server generates one.
type ReceiveBatchInput struct {
	StockItemID          uuid.UUID
	SiteID               *uuid.UUID
	BatchCode            string
	Unit                 string
	Quantity             decimal.Decimal
	UseByDate            *time.Time
	BestBeforeDate       *time.Time
	TemperatureOnReceipt *decimal.Decimal
	ConditionNotes       string
	SourceDeliveryLineID *uuid.UUID
	ReceivedBy           string
}

// AdjustQuantityInput carries a signed manual correction. The optional
// reference links the correction to the record that prompted it.
type AdjustQuantityInput struct {
	Delta         decimal.Decimal
	Reason        string
	AdjustedBy    string
	ReferenceType string
	ReferenceID   *uuid.UUID
}

// RecordConsumptionInput records an input batch feeding a production run
type RecordConsumptionInput struct {
	ProductionBatchID uuid.UUID
	InputBatchID      uuid.UUID
	Quantity          decimal.Decimal
	RecordedBy        string
}

// RecordOutputInput records a production run yielding a new batch
type RecordOutputInput struct {
	ProductionBatchID uuid.UUID
	StockItemID       uuid.UUID
	SiteID            *uuid.UUID
	BatchCode         string
	Unit              string
	Quantity          decimal.Decimal
	UseByDate         *time.Time
	BestBeforeDate    *time.Time
	RecordedBy        string
}

// RecordDispatchInput records stock leaving to a customer
type RecordDispatchInput struct {
	BatchID         uuid.UUID
	CustomerID      uuid.UUID
	Quantity        decimal.Decimal
	DispatchDate    time.Time
	DeliveryNoteRef string
	RecordedBy      string
}

// InitiateRecallInput opens a recall case rooted at a batch
type InitiateRecallInput struct {
	RecallCode  string
	Title       string
	RecallType  traceability.RecallType
	Severity    traceability.RecallSeverity
	Reason      string
	RootBatchID uuid.UUID
	MaxDepth    int
	InitiatedBy string
}

// BatchResponse is the outward view of a stock batch
type BatchResponse struct {
	ID                   uuid.UUID                `json:"id"`
	BatchCode            string                   `json:"batch_code"`
	StockItemID          uuid.UUID                `json:"stock_item_id"`
	SiteID               *uuid.UUID               `json:"site_id,omitempty"`
	Unit                 string                   `json:"unit"`
	QuantityReceived     decimal.Decimal          `json:"quantity_received"`
	QuantityRemaining    decimal.Decimal          `json:"quantity_remaining"`
	Status               traceability.BatchStatus `json:"status"`
	UseByDate            *time.Time               `json:"use_by_date,omitempty"`
	BestBeforeDate       *time.Time               `json:"best_before_date,omitempty"`
	TemperatureOnReceipt *decimal.Decimal         `json:"temperature_on_receipt,omitempty"`
	ConditionNotes       string                   `json:"condition_notes,omitempty"`
	SourceDeliveryLineID *uuid.UUID               `json:"source_delivery_line_id,omitempty"`
	Version              int                      `json:"version"`
	CreatedAt            time.Time                `json:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at"`
}

// ToBatchResponse maps a batch aggregate to its response form
func ToBatchResponse(b *traceability.StockBatch) *BatchResponse {
	return &BatchResponse{
		ID:                   b.ID,
		BatchCode:            b.BatchCode,
		StockItemID:          b.StockItemID,
		SiteID:               b.SiteID,
		Unit:                 b.Unit,
		QuantityReceived:     b.QuantityReceived,
		QuantityRemaining:    b.QuantityRemaining,
		Status:               b.Status,
		UseByDate:            b.UseByDate,
		BestBeforeDate:       b.BestBeforeDate,
		TemperatureOnReceipt: b.TemperatureOnReceipt,
		ConditionNotes:       b.ConditionNotes,
		SourceDeliveryLineID: b.SourceDeliveryLineID,
		Version:              b.Version,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

// MovementResponse is the outward view of a ledger event
type MovementResponse struct {
	ID            uuid.UUID                 `json:"id"`
	BatchID       uuid.UUID                 `json:"batch_id"`
	MovementType  traceability.MovementType `json:"movement_type"`
	QuantityDelta decimal.Decimal           `json:"quantity_delta"`
	BalanceAfter  decimal.Decimal           `json:"balance_after"`
	ReferenceType string                    `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID                `json:"reference_id,omitempty"`
	Notes         string                    `json:"notes,omitempty"`
	CreatedBy     string                    `json:"created_by"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// ToMovementResponse maps a movement to its response form
func ToMovementResponse(m *traceability.BatchMovement) *MovementResponse {
	return &MovementResponse{
		ID:            m.ID,
		BatchID:       m.BatchID,
		MovementType:  m.MovementType,
		QuantityDelta: m.QuantityDelta,
		BalanceAfter:  m.BalanceAfter,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Notes:         m.Notes,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
	}
}

// ConsumptionResponse pairs a consumption edge with its ledger movement
type ConsumptionResponse struct {
	EdgeID            uuid.UUID        `json:"edge_id"`
	ProductionBatchID uuid.UUID        `json:"production_batch_id"`
	InputBatchID      uuid.UUID        `json:"input_batch_id"`
	QuantityConsumed  decimal.Decimal  `json:"quantity_consumed"`
	Movement          MovementResponse `json:"movement"`
}

// OutputResponse pairs an output edge with the batch it created
type OutputResponse struct {
	EdgeID            uuid.UUID       `json:"edge_id"`
	ProductionBatchID uuid.UUID       `json:"production_batch_id"`
	QuantityProduced  decimal.Decimal `json:"quantity_produced"`
	Batch             BatchResponse   `json:"batch"`
}

// DispatchResponse is the outward view of a dispatch record
type DispatchResponse struct {
	ID                 uuid.UUID       `json:"id"`
	StockBatchID       uuid.UUID       `json:"stock_batch_id"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	QuantityDispatched decimal.Decimal `json:"quantity_dispatched"`
	DispatchDate       time.Time       `json:"dispatch_date"`
	DeliveryNoteRef    string          `json:"delivery_note_ref,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ToDispatchResponse maps a dispatch record to its response form
func ToDispatchResponse(d *traceability.DispatchRecord) *DispatchResponse {
	return &DispatchResponse{
		ID:                 d.ID,
		StockBatchID:       d.StockBatchID,
		CustomerID:         d.CustomerID,
		QuantityDispatched: d.QuantityDispatched,
		DispatchDate:       d.DispatchDate,
		DeliveryNoteRef:    d.DeliveryNoteRef,
		CreatedAt:          d.CreatedAt,
	}
}

// TracedBatchResponse is one batch reached by a trace
type TracedBatchResponse struct {
	Batch           BatchResponse `json:"batch"`
	Depth           int           `json:"depth"`
	ViaProductionID *uuid.UUID    `json:"via_production_id,omitempty"`
}

// TraceResponse is the outward view of a trace result
type TraceResponse struct {
	RootBatchID uuid.UUID                   `json:"root_batch_id"`
	Direction   traceability.TraceDirection `json:"direction"`
	MaxDepth    int                         `json:"max_depth"`
	Truncated   bool                        `json:"truncated"`
	Batches     []TracedBatchResponse       `json:"batches"`
	Dispatches  []DispatchResponse          `json:"dispatches,omitempty"`
}

// ToTraceResponse maps a trace result to its response form
func ToTraceResponse(result *traceability.TraceResult) *TraceResponse {
	resp := &TraceResponse{
		RootBatchID: result.RootBatchID,
		Direction:   result.Direction,
		MaxDepth:    result.MaxDepth,
		Truncated:   result.Truncated,
		Batches:     make([]TracedBatchResponse, 0, len(result.Batches)),
	}
	for _, tb := range result.Batches {
		resp.Batches = append(resp.Batches, TracedBatchResponse{
			Batch:           *ToBatchResponse(tb.Batch),
			Depth:           tb.Depth,
			ViaProductionID: tb.ViaProductionID,
		})
	}
	for _, d := range result.Dispatches {
		dispatch := d
		resp.Dispatches = append(resp.Dispatches, *ToDispatchResponse(&dispatch))
	}
	return resp
}

// AffectedBatchResponse is one batch in a recall's cached cascade result
type AffectedBatchResponse struct {
	BatchID     uuid.UUID `json:"batch_id"`
	Depth       int       `json:"depth"`
	Quarantined bool      `json:"quarantined"`
}

// AffectedDispatchResponse is one customer shipment touched by a recall
type AffectedDispatchResponse struct {
	DispatchID uuid.UUID `json:"dispatch_id"`
	CustomerID uuid.UUID `json:"customer_id"`
}

// RecallResponse is the outward view of a recall case
type RecallResponse struct {
	ID                 uuid.UUID                   `json:"id"`
	RecallCode         string                      `json:"recall_code"`
	Title              string                      `json:"title"`
	RecallType         traceability.RecallType     `json:"recall_type"`
	Severity           traceability.RecallSeverity `json:"severity"`
	Reason             string                      `json:"reason"`
	RootBatchID        uuid.UUID                   `json:"root_batch_id"`
	Status             traceability.RecallStatus   `json:"status"`
	ActivatedAt        *time.Time                  `json:"activated_at,omitempty"`
	ClosedAt           *time.Time                  `json:"closed_at,omitempty"`
	CascadeTruncated   bool                        `json:"cascade_truncated"`
	AffectedBatches    []AffectedBatchResponse     `json:"affected_batches"`
	AffectedDispatches []AffectedDispatchResponse  `json:"affected_dispatches"`
	PendingCount       int                         `json:"pending_count"`
	CreatedAt          time.Time                   `json:"created_at"`
}

// ToRecallResponse maps a recall aggregate to its response form
func ToRecallResponse(r *traceability.Recall) *RecallResponse {
	resp := &RecallResponse{
		ID:                 r.ID,
		RecallCode:         r.RecallCode,
		Title:              r.Title,
		RecallType:         r.RecallType,
		Severity:           r.Severity,
		Reason:             r.Reason,
		RootBatchID:        r.RootBatchID,
		Status:             r.Status,
		ActivatedAt:        r.ActivatedAt,
		ClosedAt:           r.ClosedAt,
		CascadeTruncated:   r.CascadeTruncated,
		AffectedBatches:    make([]AffectedBatchResponse, 0, len(r.AffectedBatches)),
		AffectedDispatches: make([]AffectedDispatchResponse, 0, len(r.AffectedDispatches)),
		CreatedAt:          r.CreatedAt,
	}
	for _, b := range r.AffectedBatches {
		resp.AffectedBatches = append(resp.AffectedBatches, AffectedBatchResponse{
			BatchID:     b.BatchID,
			Depth:       b.Depth,
			Quarantined: b.Quarantined,
		})
		if !b.Quarantined {
			resp.PendingCount++
		}
	}
	for _, d := range r.AffectedDispatches {
		resp.AffectedDispatches = append(resp.AffectedDispatches, AffectedDispatchResponse{
			DispatchID: d.DispatchID,
			CustomerID: d.CustomerID,
		})
	}
	return resp
}

// ExpiringBatchResponse is one batch flagged by the expiry query
type ExpiringBatchResponse struct {
	Batch        BatchResponse               `json:"batch"`
	Severity     traceability.ExpirySeverity `json:"severity"`
	DaysUntilUse *int                        `json:"days_until_use_by,omitempty"`
	DaysUntilBB  *int                        `json:"days_until_best_before,omitempty"`
}

// LedgerVerification reports whether a batch projection matches the
// fold of its movement ledger
type LedgerVerification struct {
	BatchID           uuid.UUID       `json:"batch_id"`
	LedgerSum         decimal.Decimal `json:"ledger_sum"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	Consistent        bool            `json:"consistent"`
	MovementCount     int64           `json:"movement_count"`
}
