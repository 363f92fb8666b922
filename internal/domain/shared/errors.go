package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound             = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists        = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput         = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict  = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState         = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientQuantity = NewDomainError("INSUFFICIENT_QUANTITY", "Insufficient remaining quantity in batch")
	ErrDuplicateBatchCode   = NewDomainError("DUPLICATE_BATCH_CODE", "Batch code already exists for this tenant")
	ErrBatchNotFound        = NewDomainError("BATCH_NOT_FOUND", "Stock batch not found")
	ErrRecallNotFound       = NewDomainError("RECALL_NOT_FOUND", "Recall not found")
	ErrDuplicateRecallCode  = NewDomainError("DUPLICATE_RECALL_CODE", "Recall code already exists for this tenant")
	ErrReferenceNotFound    = NewDomainError("REFERENCE_NOT_FOUND", "Movement reference could not be resolved")
	ErrGraphWriteFailure    = NewDomainError("GRAPH_WRITE_FAILURE", "Lineage edge and ledger event could not be committed together")
	ErrTraceDepthExceeded   = NewDomainError("TRACE_DEPTH_EXCEEDED", "Trace depth limit reached before the graph was exhausted")
)
