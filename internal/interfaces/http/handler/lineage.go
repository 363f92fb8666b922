package handler

import (
	traceapp "github.com/foodtrace/backend/internal/application/traceability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineageHandler handles production and dispatch lineage endpoints
type LineageHandler struct {
	BaseHandler
	lineageService *traceapp.LineageService
}

// NewLineageHandler creates a new LineageHandler
func NewLineageHandler(lineageService *traceapp.LineageService) *LineageHandler {
	return &LineageHandler{lineageService: lineageService}
}

// RecordConsumptionRequest records an input batch feeding a production run
type RecordConsumptionRequest struct {
	ProductionBatchID string          `json:"production_batch_id" binding:"required,uuid"`
	InputBatchID      string          `json:"input_batch_id" binding:"required,uuid"`
	Quantity          decimal.Decimal `json:"quantity" binding:"required"`
	RecordedBy        string          `json:"recorded_by" binding:"required,max=100"`
}

// RecordOutputRequest records a production run yielding a new batch
type RecordOutputRequest struct {
	ProductionBatchID string          `json:"production_batch_id" binding:"required,uuid"`
	StockItemID       string          `json:"stock_item_id" binding:"required,uuid"`
	SiteID            string          `json:"site_id" binding:"omitempty,uuid"`
	BatchCode         string          `json:"batch_code" binding:"omitempty,max=64"`
	Unit              string          `json:"unit" binding:"required,max=20"`
	Quantity          decimal.Decimal `json:"quantity" binding:"required"`
	UseByDate         string          `json:"use_by_date"`
	BestBeforeDate    string          `json:"best_before_date"`
	RecordedBy        string          `json:"recorded_by" binding:"required,max=100"`
}

// RecordDispatchRequest records stock leaving to a customer
type RecordDispatchRequest struct {
	BatchID         string          `json:"batch_id" binding:"required,uuid"`
	CustomerID      string          `json:"customer_id" binding:"required,uuid"`
	Quantity        decimal.Decimal `json:"quantity" binding:"required"`
	DispatchDate    string          `json:"dispatch_date" binding:"required"`
	DeliveryNoteRef string          `json:"delivery_note_ref" binding:"omitempty,max=64"`
	RecordedBy      string          `json:"recorded_by" binding:"required,max=100"`
}

// RecordConsumption draws down an input batch into a production run
func (h *LineageHandler) RecordConsumption(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	var req RecordConsumptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	productionBatchID, err := uuid.Parse(req.ProductionBatchID)
	if err != nil {
		h.BadRequest(c, "Invalid production_batch_id")
		return
	}
	inputBatchID, err := uuid.Parse(req.InputBatchID)
	if err != nil {
		h.BadRequest(c, "Invalid input_batch_id")
		return
	}

	result, err := h.lineageService.RecordConsumption(c.Request.Context(), tenantID, traceapp.RecordConsumptionInput{
		ProductionBatchID: productionBatchID,
		InputBatchID:      inputBatchID,
		Quantity:          req.Quantity,
		RecordedBy:        req.RecordedBy,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// RecordOutput creates the output batch and its lineage edge
func (h *LineageHandler) RecordOutput(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	var req RecordOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	productionBatchID, err := uuid.Parse(req.ProductionBatchID)
	if err != nil {
		h.BadRequest(c, "Invalid production_batch_id")
		return
	}
	stockItemID, err := uuid.Parse(req.StockItemID)
	if err != nil {
		h.BadRequest(c, "Invalid stock_item_id")
		return
	}
	siteID, err := parseOptionalUUID(req.SiteID)
	if err != nil {
		h.BadRequest(c, "Invalid site_id")
		return
	}
	useBy, err := parseOptionalDate(req.UseByDate)
	if err != nil {
		h.BadRequest(c, "Invalid use_by_date")
		return
	}
	bestBefore, err := parseOptionalDate(req.BestBeforeDate)
	if err != nil {
		h.BadRequest(c, "Invalid best_before_date")
		return
	}

	result, err := h.lineageService.RecordOutput(c.Request.Context(), tenantID, traceapp.RecordOutputInput{
		ProductionBatchID: productionBatchID,
		StockItemID:       stockItemID,
		SiteID:            siteID,
		BatchCode:         req.BatchCode,
		Unit:              req.Unit,
		Quantity:          req.Quantity,
		UseByDate:         useBy,
		BestBeforeDate:    bestBefore,
		RecordedBy:        req.RecordedBy,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// RecordDispatch records stock leaving to a customer
func (h *LineageHandler) RecordDispatch(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	var req RecordDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		h.BadRequest(c, "Invalid batch_id")
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		h.BadRequest(c, "Invalid customer_id")
		return
	}
	dispatchDate, err := parseDate(req.DispatchDate)
	if err != nil {
		h.BadRequest(c, "Invalid dispatch_date")
		return
	}

	result, err := h.lineageService.RecordDispatch(c.Request.Context(), tenantID, traceapp.RecordDispatchInput{
		BatchID:         batchID,
		CustomerID:      customerID,
		Quantity:        req.Quantity,
		DispatchDate:    dispatchDate,
		DeliveryNoteRef: req.DeliveryNoteRef,
		RecordedBy:      req.RecordedBy,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// RegisterRoutes registers lineage routes
func (h *LineageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	lineage := rg.Group("/lineage")
	{
		lineage.POST("/consumptions", h.RecordConsumption)
		lineage.POST("/outputs", h.RecordOutput)
		lineage.POST("/dispatches", h.RecordDispatch)
	}
}
