package handler

import (
	traceapp "github.com/foodtrace/backend/internal/application/traceability"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RecallHandler handles recall case endpoints
type RecallHandler struct {
	BaseHandler
	recallService *traceapp.RecallService
}

// NewRecallHandler creates a new RecallHandler
func NewRecallHandler(recallService *traceapp.RecallService) *RecallHandler {
	return &RecallHandler{recallService: recallService}
}

// InitiateRecallRequest opens a recall case rooted at a batch
type InitiateRecallRequest struct {
	RecallCode  string `json:"recall_code" binding:"required,max=64"`
	Title       string `json:"title" binding:"required,max=200"`
	RecallType  string `json:"recall_type" binding:"required,oneof=recall withdrawal"`
	Severity    string `json:"severity" binding:"required,oneof=class_1 class_2 class_3"`
	Reason      string `json:"reason" binding:"required"`
	RootBatchID string `json:"root_batch_id" binding:"required,uuid"`
	MaxDepth    int    `json:"max_depth" binding:"omitempty,min=1"`
	InitiatedBy string `json:"initiated_by" binding:"required,max=100"`
}

// RerunCascadeRequest re-runs the cascade of an active recall
type RerunCascadeRequest struct {
	InitiatedBy string `json:"initiated_by" binding:"required,max=100"`
}

// Initiate opens a recall and runs the cascade
func (h *RecallHandler) Initiate(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	var req InitiateRecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	rootBatchID, err := uuid.Parse(req.RootBatchID)
	if err != nil {
		h.BadRequest(c, "Invalid root_batch_id")
		return
	}

	recall, err := h.recallService.InitiateRecall(c.Request.Context(), tenantID, traceapp.InitiateRecallInput{
		RecallCode:  req.RecallCode,
		Title:       req.Title,
		RecallType:  traceability.RecallType(req.RecallType),
		Severity:    traceability.RecallSeverity(req.Severity),
		Reason:      req.Reason,
		RootBatchID: rootBatchID,
		MaxDepth:    req.MaxDepth,
		InitiatedBy: req.InitiatedBy,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, recall)
}

// GetByCode returns a recall with its cached cascade result
func (h *RecallHandler) GetByCode(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	recall, err := h.recallService.GetRecall(c.Request.Context(), tenantID, c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, recall)
}

// List returns recalls with pagination and optional filters
func (h *RecallHandler) List(c *gin.Context) {
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
	if severity := c.Query("severity"); severity != "" {
		filter.Filters["severity"] = severity
	}

	result, err := h.recallService.ListRecalls(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Rerun re-runs the cascade to pick up downstream activity recorded
// after the recall was initiated
func (h *RecallHandler) Rerun(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	var req RerunCascadeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	recall, err := h.recallService.RerunCascade(c.Request.Context(), tenantID, c.Param("code"), req.InitiatedBy)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, recall)
}

// Close closes an active recall
func (h *RecallHandler) Close(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant")
		return
	}

	recall, err := h.recallService.CloseRecall(c.Request.Context(), tenantID, c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, recall)
}

// RegisterRoutes registers recall routes
func (h *RecallHandler) RegisterRoutes(rg *gin.RouterGroup) {
	recalls := rg.Group("/recalls")
	{
		recalls.POST("", h.Initiate)
		recalls.GET("", h.List)
		recalls.GET("/:code", h.GetByCode)
		recalls.POST("/:code/rerun", h.Rerun)
		recalls.POST("/:code/close", h.Close)
	}
}
