package traceability

import (
	"time"

	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// RecallType distinguishes a safety recall from a commercial withdrawal
type RecallType string

const (
	RecallTypeRecall     RecallType = "recall"
	RecallTypeWithdrawal RecallType = "withdrawal"
)

// IsValid checks if the recall type is a known value
func (t RecallType) IsValid() bool {
	return t == RecallTypeRecall || t == RecallTypeWithdrawal
}

// RecallSeverity follows the regulatory classification scheme
type RecallSeverity string

const (
	RecallSeverityClass1 RecallSeverity = "class_1"
	RecallSeverityClass2 RecallSeverity = "class_2"
	RecallSeverityClass3 RecallSeverity = "class_3"
)

// IsValid checks if the severity is a known value
func (s RecallSeverity) IsValid() bool {
	return s == RecallSeverityClass1 || s == RecallSeverityClass2 || s == RecallSeverityClass3
}

// RecallStatus represents the recall lifecycle
type RecallStatus string

const (
	RecallStatusDraft  RecallStatus = "draft"
	RecallStatusActive RecallStatus = "active"
	RecallStatusClosed RecallStatus = "closed"
)

// Recall is the aggregate root for a recall case. The affected batch
// and dispatch lists are a cached projection of a forward trace from
// the root batch; the lineage graph stays the source of truth and the
// cascade can be re-run to pick up later downstream activity.
type Recall struct {
	shared.TenantAggregateRoot
	RecallCode         string                   `gorm:"type:varchar(64);not null"`
	Title              string                   `gorm:"type:varchar(200);not null"`
	RecallType         RecallType               `gorm:"type:varchar(20);not null"`
	Severity           RecallSeverity           `gorm:"type:varchar(20);not null"`
	Reason             string                   `gorm:"type:text;not null"`
	RootBatchID        uuid.UUID                `gorm:"type:uuid;not null;index"`
	Status             RecallStatus             `gorm:"type:varchar(20);not null;default:'draft'"`
	ActivatedAt        *time.Time               `gorm:"type:timestamptz"`
	ClosedAt           *time.Time               `gorm:"type:timestamptz"`
	CascadeTruncated   bool                     `gorm:"not null;default:false"`
	AffectedBatches    []RecallAffectedBatch    `gorm:"foreignKey:RecallID"`
	AffectedDispatches []RecallAffectedDispatch `gorm:"foreignKey:RecallID"`
}

// TableName specifies the table name for GORM
func (Recall) TableName() string {
	return "recalls"
}

// RecallAffectedBatch caches one batch reached by the recall cascade,
// and whether the cascade managed to quarantine it.
type RecallAffectedBatch struct {
	shared.BaseEntity
	RecallID    uuid.UUID `gorm:"type:uuid;not null;index"`
	BatchID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Depth       int       `gorm:"not null"`
	Quarantined bool      `gorm:"not null;default:false"`
}

// TableName specifies the table name for GORM
func (RecallAffectedBatch) TableName() string {
	return "recall_affected_batches"
}

// RecallAffectedDispatch caches one dispatch record reached by the
// recall cascade, identifying a customer to notify.
type RecallAffectedDispatch struct {
	shared.BaseEntity
	RecallID   uuid.UUID `gorm:"type:uuid;not null;index"`
	DispatchID uuid.UUID `gorm:"type:uuid;not null;index"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// TableName specifies the table name for GORM
func (RecallAffectedDispatch) TableName() string {
	return "recall_affected_dispatches"
}

// NewRecall creates a recall case in draft status
func NewRecall(
	tenantID uuid.UUID,
	recallCode, title string,
	recallType RecallType,
	severity RecallSeverity,
	reason string,
	rootBatchID uuid.UUID,
) (*Recall, error) {
	if recallCode == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "recall code is required")
	}
	if title == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "recall title is required")
	}
	if !recallType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "unknown recall type: "+string(recallType))
	}
	if !severity.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "unknown recall severity: "+string(severity))
	}
	if reason == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "recall reason is required")
	}

	return &Recall{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RecallCode:          recallCode,
		Title:               title,
		RecallType:          recallType,
		Severity:            severity,
		Reason:              reason,
		RootBatchID:         rootBatchID,
		Status:              RecallStatusDraft,
	}, nil
}

// Activate transitions the recall out of draft once the cascade has
// run, replacing the cached affected lists with the latest trace
// result. Re-running the cascade on an already active recall refreshes
// the lists the same way. A cascade whose trace hit the depth guard
// records truncated, so a depth-limited affected list is never
// mistaken for a complete one.
func (r *Recall) Activate(batches []RecallAffectedBatch, dispatches []RecallAffectedDispatch, truncated bool) error {
	if r.Status == RecallStatusClosed {
		return shared.ErrInvalidState
	}
	if r.Status == RecallStatusDraft {
		now := time.Now()
		r.ActivatedAt = &now
		r.AddDomainEvent(NewRecallInitiatedEvent(r.TenantID, r.ID, r.RecallCode, r.RootBatchID, len(batches)))
	}
	r.Status = RecallStatusActive
	r.AffectedBatches = batches
	r.AffectedDispatches = dispatches
	r.CascadeTruncated = truncated
	r.UpdatedAt = time.Now()
	return nil
}

// Close transitions an active recall to closed
func (r *Recall) Close() error {
	if r.Status != RecallStatusActive {
		return shared.ErrInvalidState
	}
	now := time.Now()
	r.Status = RecallStatusClosed
	r.ClosedAt = &now
	r.UpdatedAt = now
	r.AddDomainEvent(NewRecallClosedEvent(r.TenantID, r.ID, r.RecallCode))
	return nil
}

// PendingBatches returns the affected batches the cascade failed to
// quarantine, which need manual follow-up or a re-run.
func (r *Recall) PendingBatches() []RecallAffectedBatch {
	var pending []RecallAffectedBatch
	for _, b := range r.AffectedBatches {
		if !b.Quarantined {
			pending = append(pending, b)
		}
	}
	return pending
}
