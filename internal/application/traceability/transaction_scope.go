package traceability

import (
	"context"

	"github.com/foodtrace/backend/internal/domain/traceability"
)

// TransactionScope provides transactional access to traceability repositories.
// When a function is executed within a transaction scope, all repository
// operations are part of the same database transaction and commit or roll
// back atomically. This is what guarantees that a lineage edge and its
// paired ledger movement are never persisted without each other.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all traceability
// repositories within a transaction. All repositories returned share the
// same underlying database transaction.
type TransactionalRepositories interface {
	// BatchRepo returns the stock batch repository scoped to the current transaction
	BatchRepo() traceability.StockBatchRepository
	// MovementRepo returns the movement ledger repository scoped to the current transaction
	MovementRepo() traceability.BatchMovementRepository
	// LineageRepo returns the lineage graph repository scoped to the current transaction
	LineageRepo() traceability.LineageRepository
	// RecallRepo returns the recall repository scoped to the current transaction
	RecallRepo() traceability.RecallRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. Useful for testing or when transaction support is not
// required.
type NoOpTransactionScope struct {
	batchRepo    traceability.StockBatchRepository
	movementRepo traceability.BatchMovementRepository
	lineageRepo  traceability.LineageRepository
	recallRepo   traceability.RecallRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	batchRepo traceability.StockBatchRepository,
	movementRepo traceability.BatchMovementRepository,
	lineageRepo traceability.LineageRepository,
	recallRepo traceability.RecallRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		batchRepo:    batchRepo,
		movementRepo: movementRepo,
		lineageRepo:  lineageRepo,
		recallRepo:   recallRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// BatchRepo returns the stock batch repository.
func (s *NoOpTransactionScope) BatchRepo() traceability.StockBatchRepository {
	return s.batchRepo
}

// MovementRepo returns the movement ledger repository.
func (s *NoOpTransactionScope) MovementRepo() traceability.BatchMovementRepository {
	return s.movementRepo
}

// LineageRepo returns the lineage graph repository.
func (s *NoOpTransactionScope) LineageRepo() traceability.LineageRepository {
	return s.lineageRepo
}

// RecallRepo returns the recall repository.
func (s *NoOpTransactionScope) RecallRepo() traceability.RecallRepository {
	return s.recallRepo
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
