package handler

import (
	traceapp "github.com/foodtrace/backend/internal/application/traceability"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"github.com/gin-gonic/gin"
)

// TraceHandler handles lineage trace endpoints
type TraceHandler struct {
	BaseHandler
	traceService *traceapp.TraceService
}

// NewTraceHandler creates a new TraceHandler
func NewTraceHandler(traceService *traceapp.TraceService) *TraceHandler {
	return &TraceHandler{traceService: traceService}
}

// Trace walks the lineage graph from a batch. Query parameters:
// direction (forward|backward, default forward) and max_depth.
func (h *TraceHandler) Trace(c *gin.Context) {
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

	direction := traceability.TraceDirection(c.DefaultQuery("direction", string(traceability.TraceDirectionForward)))
	if !direction.IsValid() {
		h.BadRequest(c, "direction must be 'forward' or 'backward'")
		return
	}

	maxDepth := intQuery(c, "max_depth", 0)

	result, err := h.traceService.Trace(c.Request.Context(), tenantID, batchID, direction, maxDepth)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RegisterRoutes registers trace routes
func (h *TraceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/batches/:id/trace", h.Trace)
}
