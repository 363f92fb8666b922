package handler

import (
	"strconv"
	"time"

	traceapp "github.com/foodtrace/backend/internal/application/traceability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// parseDate parses a date or datetime string
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseOptionalDate parses an optional date field, returning nil for ""
func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseOptionalUUID parses an optional UUID field, returning nil for ""
func parseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// BatchHandler handles stock batch endpoints
type BatchHandler struct {
	BaseHandler
	batchService  *traceapp.BatchService
	expiryService *traceapp.ExpirySweepService
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batchService *traceapp.BatchService, expiryService *traceapp.ExpirySweepService) *BatchHandler {
	return &BatchHandler{
		batchService:  batchService,
		expiryService: expiryService,
	}
}

// ReceiveBatchRequest books a new batch into stock
type ReceiveBatchRequest struct {
	StockItemID          string           `json:"stock_item_id" binding:"required,uuid"`
	SiteID               string           `json:"site_id" binding:"omitempty,uuid"`
	BatchCode            string           `json:"batch_code" binding:"omitempty,max=64"`
	Unit                 string           `json:"unit" binding:"required,max=20"`
	Quantity             decimal.Decimal  `json:"quantity" binding:"required"`
	UseByDate            string           `json:"use_by_date"`
	BestBeforeDate       string           `json:"best_before_date"`
	TemperatureOnReceipt *decimal.Decimal `json:"temperature_on_receipt"`
	ConditionNotes       string           `json:"condition_notes"`
	SourceDeliveryLineID string           `json:"source_delivery_line_id" binding:"omitempty,uuid"`
	ReceivedBy           string           `json:"received_by" binding:"required,max=100"`
}

// AdjustQuantityRequest applies a signed manual correction, optionally
// linked to the record that prompted it
type AdjustQuantityRequest struct {
	Delta         decimal.Decimal `json:"delta" binding:"required"`
	Reason        string          `json:"reason" binding:"required,max=255"`
	AdjustedBy    string          `json:"adjusted_by" binding:"required,max=100"`
	ReferenceType string          `json:"reference_type" binding:"omitempty,oneof=delivery_line production_batch dispatch recall"`
	ReferenceID   string          `json:"reference_id" binding:"omitempty,uuid"`
}

// HoldBatchRequest places a batch in quarantine
type HoldBatchRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// Receive books a new batch into stock
func (h *BatchHandler) Receive(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	var req ReceiveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	input, err := h.toReceiveInput(req)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	batch, err := h.batchService.ReceiveBatch(c.Request.Context(), tenantID, *input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, batch)
}

func (h *BatchHandler) toReceiveInput(req ReceiveBatchRequest) (*traceapp.ReceiveBatchInput, error) {
	stockItemID, err := uuid.Parse(req.StockItemID)
	if err != nil {
		return nil, err
	}
	siteID, err := parseOptionalUUID(req.SiteID)
	if err != nil {
		return nil, err
	}
	sourceLineID, err := parseOptionalUUID(req.SourceDeliveryLineID)
	if err != nil {
		return nil, err
	}
	useBy, err := parseOptionalDate(req.UseByDate)
	if err != nil {
		return nil, err
	}
	bestBefore, err := parseOptionalDate(req.BestBeforeDate)
	if err != nil {
		return nil, err
	}

	return &traceapp.ReceiveBatchInput{
		StockItemID:          stockItemID,
		SiteID:               siteID,
		BatchCode:            req.BatchCode,
		Unit:                 req.Unit,
		Quantity:             req.Quantity,
		UseByDate:            useBy,
		BestBeforeDate:       bestBefore,
		TemperatureOnReceipt: req.TemperatureOnReceipt,
		ConditionNotes:       req.ConditionNotes,
		SourceDeliveryLineID: sourceLineID,
		ReceivedBy:           req.ReceivedBy,
	}, nil
}

// GetByID returns a single batch
func (h *BatchHandler) GetByID(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}
	batchID, err := parseUUIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}

	batch, err := h.batchService.GetBatch(c.Request.Context(), tenantID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// List returns batches with pagination and optional filters
func (h *BatchHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	if status := c.Query("status"); status != "" {
		filter.Filters["status"] = status
	}
	if stockItemID := c.Query("stock_item_id"); stockItemID != "" {
		id, err := uuid.Parse(stockItemID)
		if err != nil {
			h.BadRequest(c, "Invalid stock_item_id")
			return
		}
		filter.Filters["stock_item_id"] = id
	}
	if siteID := c.Query("site_id"); siteID != "" {
		id, err := uuid.Parse(siteID)
		if err != nil {
			h.BadRequest(c, "Invalid site_id")
			return
		}
		filter.Filters["site_id"] = id
	}
	if c.Query("has_stock") == "true" {
		filter.Filters["has_stock"] = true
	}

	result, err := h.batchService.ListBatches(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// ListMovements returns a batch's ledger, oldest first by default
func (h *BatchHandler) ListMovements(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}
	batchID, err := parseUUIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.batchService.ListMovements(c.Request.Context(), tenantID, batchID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Adjust appends a manual correction movement
func (h *BatchHandler) Adjust(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}
	batchID, err := parseUUIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}

	var req AdjustQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	referenceID, err := parseOptionalUUID(req.ReferenceID)
	if err != nil {
		h.BadRequest(c, "Invalid reference_id")
		return
	}
	if referenceID != nil && req.ReferenceType == "" {
		h.BadRequest(c, "reference_type is required with reference_id")
		return
	}

	movement, err := h.batchService.AdjustQuantity(c.Request.Context(), tenantID, batchID, traceapp.AdjustQuantityInput{
		Delta:         req.Delta,
		Reason:        req.Reason,
		AdjustedBy:    req.AdjustedBy,
		ReferenceType: req.ReferenceType,
		ReferenceID:   referenceID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, movement)
}

// Hold places a batch in quarantine
func (h *BatchHandler) Hold(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}
	batchID, err := parseUUIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}

	var req HoldBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	batch, err := h.batchService.HoldBatch(c.Request.Context(), tenantID, batchID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// Release returns a quarantined batch to active
func (h *BatchHandler) Release(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}
	batchID, err := parseUUIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}

	batch, err := h.batchService.ReleaseBatch(c.Request.Context(), tenantID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// VerifyLedger folds the batch's ledger and compares it to the projection
func (h *BatchHandler) VerifyLedger(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}
	batchID, err := parseUUIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}

	verification, err := h.batchService.VerifyLedger(c.Request.Context(), tenantID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, verification)
}

// Expiring lists batches at or past their date thresholds
func (h *BatchHandler) Expiring(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	useByDays := intQuery(c, "use_by_days", -1)
	bestBeforeDays := intQuery(c, "best_before_days", -1)
	includeExpired := c.Query("include_expired") == "true"

	batches, err := h.expiryService.ExpiringBatches(c.Request.Context(), tenantID, useByDays, bestBeforeDays, includeExpired)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batches)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// RegisterRoutes registers batch routes
func (h *BatchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	batches := rg.Group("/batches")
	{
		batches.POST("", h.Receive)
		batches.GET("", h.List)
		batches.GET("/expiring", h.Expiring)
		batches.GET("/:id", h.GetByID)
		batches.GET("/:id/movements", h.ListMovements)
		batches.GET("/:id/ledger", h.VerifyLedger)
		batches.POST("/:id/adjust", h.Adjust)
		batches.POST("/:id/hold", h.Hold)
		batches.POST("/:id/release", h.Release)
	}
}
