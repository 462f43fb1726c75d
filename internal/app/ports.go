package app

import (
	"context"
	"time"

	"learning-progress-engine/internal/domain"
)

// ScenarioRepository is the read-only lookup for immutable content templates
// (backed by postgres with a cache in front, see internal/infra).
type ScenarioRepository interface {
	FindByID(ctx context.Context, id string) (domain.Scenario, error)
	FindByMode(ctx context.Context, mode domain.Mode) ([]domain.Scenario, error)
}

// ProgramPatch is a partial program update. Nil fields are left untouched;
// Metadata is merged into the stored bag, never swapped wholesale. Version is
// the caller's expected version and backs the optimistic-concurrency check.
type ProgramPatch struct {
	Status           *domain.ProgramStatus
	CurrentTaskIndex *int
	Metadata         *domain.ProgramMetadata
	CompletedAt      *time.Time
	Version          int64
}

// ProgramRepository stores attempt instances.
type ProgramRepository interface {
	Create(ctx context.Context, program *domain.Program) error
	FindByID(ctx context.Context, id string) (domain.Program, error)
	FindByScenario(ctx context.Context, scenarioID string) ([]domain.Program, error)
	// Update applies the patch when the stored version matches
	// patch.Version, bumps the version, and returns the updated program.
	// A stale version yields ConflictError.
	Update(ctx context.Context, id string, patch ProgramPatch) (domain.Program, error)
}

// TaskRepository stores per-attempt task instances.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	// FindByProgram returns the program's tasks in canonical (taskIndex)
	// order.
	FindByProgram(ctx context.Context, programID string) ([]domain.Task, error)
	// UpdateStatus transitions a task guarded by its version.
	UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus, version int64) (domain.Task, error)
	// UpdateResult records a response outcome together with the status
	// transition, guarded by the task version.
	UpdateResult(ctx context.Context, taskID string, status domain.TaskStatus, result domain.TaskResult, version int64) (domain.Task, error)
}

// EvaluationRepository is append-only: evaluations are never updated or
// deleted once written.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *domain.Evaluation) error
	FindByTarget(ctx context.Context, targetType domain.TargetType, targetID string) ([]domain.Evaluation, error)
}

// RepoSet bundles the mutable-state repositories bound to one transaction.
type RepoSet interface {
	Programs() ProgramRepository
	Tasks() TaskRepository
	Evaluations() EvaluationRepository
}

// UnitOfWork runs fn against transaction-bound repositories: begin, run,
// commit on nil error, rollback and return the error otherwise. The
// transaction is closed on every exit path. Nesting Run inside fn fails.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context, repos RepoSet) error) error
}
