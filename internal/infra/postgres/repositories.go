package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"learning-progress-engine/internal/app"
	"learning-progress-engine/internal/domain"
)

// ProgramRepository stores programs in postgres. Every update is guarded by
// the version column: UPDATE ... WHERE version = ? with zero rows affected
// surfacing as ConflictError.
type ProgramRepository struct {
	db bun.IDB
}

func NewProgramRepository(db bun.IDB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

func (r *ProgramRepository) Create(ctx context.Context, program *domain.Program) error {
	if err := program.Metadata.Validate(""); err != nil {
		return &domain.RepositoryError{Op: "program.create", Err: err}
	}
	row, err := programToRow(*program)
	if err != nil {
		return &domain.RepositoryError{Op: "program.create", Err: err}
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return &domain.RepositoryError{Op: "program.create", Err: err}
	}
	return nil
}

func (r *ProgramRepository) FindByID(ctx context.Context, id string) (domain.Program, error) {
	var row programRow
	err := r.db.NewSelect().Model(&row).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Program{}, &domain.NotFoundError{Entity: "program", ID: id}
	}
	if err != nil {
		return domain.Program{}, &domain.RepositoryError{Op: "program.find", Err: err}
	}
	program, err := programFromRow(row)
	if err != nil {
		return domain.Program{}, &domain.RepositoryError{Op: "program.find", Err: err}
	}
	return program, nil
}

func (r *ProgramRepository) FindByScenario(ctx context.Context, scenarioID string) ([]domain.Program, error) {
	var rows []programRow
	err := r.db.NewSelect().Model(&rows).Where("p.scenario_id = ?", scenarioID).Order("p.id ASC").Scan(ctx)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "program.findByScenario", Err: err}
	}
	out := make([]domain.Program, 0, len(rows))
	for _, row := range rows {
		program, err := programFromRow(row)
		if err != nil {
			return nil, &domain.RepositoryError{Op: "program.findByScenario", Err: err}
		}
		out = append(out, program)
	}
	return out, nil
}

func (r *ProgramRepository) Update(ctx context.Context, id string, patch app.ProgramPatch) (domain.Program, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	if current.Version != patch.Version {
		return domain.Program{}, &domain.ConflictError{Entity: "program", ID: id, Version: patch.Version}
	}

	if patch.Status != nil {
		if !current.Status.CanTransitionTo(*patch.Status) {
			return domain.Program{}, &domain.InvalidStateError{Entity: "program", ID: id, State: string(current.Status), Op: "transition"}
		}
		current.Status = *patch.Status
	}
	if patch.CurrentTaskIndex != nil {
		if *patch.CurrentTaskIndex < 0 || *patch.CurrentTaskIndex > current.TotalTaskCount {
			return domain.Program{}, &domain.RepositoryError{Op: "program.update", Err: fmt.Errorf("task index %d out of range [0,%d]", *patch.CurrentTaskIndex, current.TotalTaskCount)}
		}
		current.CurrentTaskIndex = *patch.CurrentTaskIndex
	}
	if patch.Metadata != nil {
		merged := current.Metadata.Merge(*patch.Metadata)
		if err := merged.Validate(""); err != nil {
			return domain.Program{}, &domain.RepositoryError{Op: "program.update", Err: err}
		}
		current.Metadata = merged
	}
	if patch.CompletedAt != nil {
		current.CompletedAt = patch.CompletedAt
	}
	current.Version = patch.Version + 1

	row, err := programToRow(current)
	if err != nil {
		return domain.Program{}, &domain.RepositoryError{Op: "program.update", Err: err}
	}
	res, err := r.db.NewUpdate().Model(&row).WherePK().Where("p.version = ?", patch.Version).Exec(ctx)
	if err != nil {
		return domain.Program{}, &domain.RepositoryError{Op: "program.update", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Program{}, &domain.RepositoryError{Op: "program.update", Err: err}
	}
	if affected == 0 {
		return domain.Program{}, &domain.ConflictError{Entity: "program", ID: id, Version: patch.Version}
	}
	return current, nil
}

// TaskRepository stores task instances, version-guarded like programs.
type TaskRepository struct {
	db bun.IDB
}

func NewTaskRepository(db bun.IDB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	row, err := taskToRow(*task)
	if err != nil {
		return &domain.RepositoryError{Op: "task.create", Err: err}
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return &domain.RepositoryError{Op: "task.create", Err: err}
	}
	return nil
}

func (r *TaskRepository) FindByProgram(ctx context.Context, programID string) ([]domain.Task, error) {
	var rows []taskRow
	err := r.db.NewSelect().Model(&rows).Where("t.program_id = ?", programID).Order("t.task_index ASC").Scan(ctx)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "task.findByProgram", Err: err}
	}
	out := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		task, err := taskFromRow(row)
		if err != nil {
			return nil, &domain.RepositoryError{Op: "task.findByProgram", Err: err}
		}
		out = append(out, task)
	}
	return out, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus, version int64) (domain.Task, error) {
	return r.update(ctx, taskID, status, nil, version)
}

func (r *TaskRepository) UpdateResult(ctx context.Context, taskID string, status domain.TaskStatus, result domain.TaskResult, version int64) (domain.Task, error) {
	return r.update(ctx, taskID, status, &result, version)
}

func (r *TaskRepository) update(ctx context.Context, taskID string, status domain.TaskStatus, result *domain.TaskResult, version int64) (domain.Task, error) {
	var row taskRow
	err := r.db.NewSelect().Model(&row).Where("t.id = ?", taskID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, &domain.NotFoundError{Entity: "task", ID: taskID}
	}
	if err != nil {
		return domain.Task{}, &domain.RepositoryError{Op: "task.update", Err: err}
	}
	current, err := taskFromRow(row)
	if err != nil {
		return domain.Task{}, &domain.RepositoryError{Op: "task.update", Err: err}
	}
	if current.Version != version {
		return domain.Task{}, &domain.ConflictError{Entity: "task", ID: taskID, Version: version}
	}
	if !current.Status.CanTransitionTo(status) {
		return domain.Task{}, &domain.InvalidStateError{Entity: "task", ID: taskID, State: string(current.Status), Op: "transition"}
	}

	current.Status = status
	if result != nil {
		current.Result = *result
	}
	current.Version = version + 1

	updated, err := taskToRow(current)
	if err != nil {
		return domain.Task{}, &domain.RepositoryError{Op: "task.update", Err: err}
	}
	res, err := r.db.NewUpdate().Model(&updated).WherePK().Where("t.version = ?", version).Exec(ctx)
	if err != nil {
		return domain.Task{}, &domain.RepositoryError{Op: "task.update", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Task{}, &domain.RepositoryError{Op: "task.update", Err: err}
	}
	if affected == 0 {
		return domain.Task{}, &domain.ConflictError{Entity: "task", ID: taskID, Version: version}
	}
	return current, nil
}

// EvaluationRepository is append-only; there is deliberately no update or
// delete path.
type EvaluationRepository struct {
	db bun.IDB
}

func NewEvaluationRepository(db bun.IDB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) Create(ctx context.Context, evaluation *domain.Evaluation) error {
	row, err := evaluationToRow(*evaluation)
	if err != nil {
		return &domain.RepositoryError{Op: "evaluation.create", Err: err}
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return &domain.RepositoryError{Op: "evaluation.create", Err: err}
	}
	return nil
}

func (r *EvaluationRepository) FindByTarget(ctx context.Context, targetType domain.TargetType, targetID string) ([]domain.Evaluation, error) {
	var rows []evaluationRow
	err := r.db.NewSelect().Model(&rows).
		Where("e.target_type = ?", string(targetType)).
		Where("e.target_id = ?", targetID).
		Order("e.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "evaluation.findByTarget", Err: err}
	}
	out := make([]domain.Evaluation, 0, len(rows))
	for _, row := range rows {
		evaluation, err := evaluationFromRow(row)
		if err != nil {
			return nil, &domain.RepositoryError{Op: "evaluation.findByTarget", Err: err}
		}
		out = append(out, evaluation)
	}
	return out, nil
}
