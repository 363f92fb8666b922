package persistence

import (
	"context"

	apptrace "github.com/foodtrace/backend/internal/application/traceability"
	"github.com/foodtrace/backend/internal/domain/traceability"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apptrace.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// BatchRepo returns the stock batch repository scoped to the current transaction.
func (r *gormTransactionalRepositories) BatchRepo() traceability.StockBatchRepository {
	return NewGormStockBatchRepository(r.tx)
}

// MovementRepo returns the movement ledger repository scoped to the current transaction.
func (r *gormTransactionalRepositories) MovementRepo() traceability.BatchMovementRepository {
	return NewGormBatchMovementRepository(r.tx)
}

// LineageRepo returns the lineage graph repository scoped to the current transaction.
func (r *gormTransactionalRepositories) LineageRepo() traceability.LineageRepository {
	return NewGormLineageRepository(r.tx)
}

// RecallRepo returns the recall repository scoped to the current transaction.
func (r *gormTransactionalRepositories) RecallRepo() traceability.RecallRepository {
	return NewGormRecallRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ apptrace.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ apptrace.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
