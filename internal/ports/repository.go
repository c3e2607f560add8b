package ports

import (
	"context"

	"triggerBot/internal/domain"
)

// TargetRepository persists trade targets so the registry survives restarts.
type TargetRepository interface {
	// SaveTarget inserts or replaces a target by ID.
	SaveTarget(ctx context.Context, t *domain.Target) error
	// DeleteTarget removes a target. Deleting a missing target is not an error.
	DeleteTarget(ctx context.Context, id string) error
	// FindAllTargets returns all targets ordered by creation time ascending.
	FindAllTargets(ctx context.Context) ([]*domain.Target, error)
}

// ExecutionRepository persists the execution ledger.
type ExecutionRepository interface {
	// SaveExecution inserts or replaces an execution by ID.
	SaveExecution(ctx context.Context, e *domain.Execution) error
	// FindAllExecutions returns all executions ordered by timestamp descending.
	FindAllExecutions(ctx context.Context) ([]*domain.Execution, error)
}
