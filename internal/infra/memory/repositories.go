package memory

import (
	"context"
	"fmt"
	"sort"

	"learning-progress-engine/internal/app"
	"learning-progress-engine/internal/domain"
)

// ProgramRepository is the in-memory implementation of app.ProgramRepository.
type ProgramRepository struct {
	store *Store
}

func NewProgramRepository(store *Store) *ProgramRepository {
	return &ProgramRepository{store: store}
}

func (r *ProgramRepository) Create(_ context.Context, program *domain.Program) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.programs[program.ID]; exists {
		return &domain.RepositoryError{Op: "program.create", Err: fmt.Errorf("duplicate id %q", program.ID)}
	}
	if err := program.Metadata.Validate(""); err != nil {
		return &domain.RepositoryError{Op: "program.create", Err: err}
	}
	r.store.programs[program.ID] = *program
	return nil
}

func (r *ProgramRepository) FindByID(_ context.Context, id string) (domain.Program, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	program, ok := r.store.programs[id]
	if !ok {
		return domain.Program{}, &domain.NotFoundError{Entity: "program", ID: id}
	}
	return program, nil
}

func (r *ProgramRepository) FindByScenario(_ context.Context, scenarioID string) ([]domain.Program, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Program
	for _, p := range r.store.programs {
		if p.ScenarioID == scenarioID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProgramRepository) Update(_ context.Context, id string, patch app.ProgramPatch) (domain.Program, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.programs[id]
	if !ok {
		return domain.Program{}, &domain.NotFoundError{Entity: "program", ID: id}
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
	current.Version++
	r.store.programs[id] = current
	return current, nil
}

// TaskRepository is the in-memory implementation of app.TaskRepository.
type TaskRepository struct {
	store *Store
}

func NewTaskRepository(store *Store) *TaskRepository {
	return &TaskRepository{store: store}
}

func (r *TaskRepository) Create(_ context.Context, task *domain.Task) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.tasks[task.ID]; exists {
		return &domain.RepositoryError{Op: "task.create", Err: fmt.Errorf("duplicate id %q", task.ID)}
	}
	r.store.tasks[task.ID] = *task
	return nil
}

func (r *TaskRepository) FindByProgram(_ context.Context, programID string) ([]domain.Task, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Task
	for _, t := range r.store.tasks {
		if t.ProgramID == programID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskIndex < out[j].TaskIndex })
	return out, nil
}

func (r *TaskRepository) UpdateStatus(_ context.Context, taskID string, status domain.TaskStatus, version int64) (domain.Task, error) {
	return r.update(taskID, status, nil, version)
}

func (r *TaskRepository) UpdateResult(_ context.Context, taskID string, status domain.TaskStatus, result domain.TaskResult, version int64) (domain.Task, error) {
	return r.update(taskID, status, &result, version)
}

func (r *TaskRepository) update(taskID string, status domain.TaskStatus, result *domain.TaskResult, version int64) (domain.Task, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.tasks[taskID]
	if !ok {
		return domain.Task{}, &domain.NotFoundError{Entity: "task", ID: taskID}
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
	current.Version++
	r.store.tasks[taskID] = current
	return current, nil
}

// EvaluationRepository is the in-memory implementation of
// app.EvaluationRepository. Inserts only; nothing here mutates a stored row.
type EvaluationRepository struct {
	store *Store
}

func NewEvaluationRepository(store *Store) *EvaluationRepository {
	return &EvaluationRepository{store: store}
}

func (r *EvaluationRepository) Create(_ context.Context, evaluation *domain.Evaluation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, e := range r.store.evaluations {
		if e.ID == evaluation.ID {
			return &domain.RepositoryError{Op: "evaluation.create", Err: fmt.Errorf("duplicate id %q", evaluation.ID)}
		}
	}
	r.store.evaluations = append(r.store.evaluations, *evaluation)
	return nil
}

func (r *EvaluationRepository) FindByTarget(_ context.Context, targetType domain.TargetType, targetID string) ([]domain.Evaluation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Evaluation
	for _, e := range r.store.evaluations {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out, nil
}
