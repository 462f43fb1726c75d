package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"learning-progress-engine/internal/app"
	"learning-progress-engine/internal/domain"
)

func TestUnitOfWorkCommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	uow := NewUnitOfWork(store)

	err := uow.Run(ctx, func(ctx context.Context, repos app.RepoSet) error {
		return repos.Programs().Create(ctx, testProgram("p1"))
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := NewRepoSet(store).Programs().FindByID(ctx, "p1"); err != nil {
		t.Fatalf("committed program missing: %v", err)
	}
}

func TestUnitOfWorkRollsBackAllWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	uow := NewUnitOfWork(store)

	if err := NewRepoSet(store).Programs().Create(ctx, testProgram("p0")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := errors.New("boom")
	err := uow.Run(ctx, func(ctx context.Context, repos app.RepoSet) error {
		if err := repos.Programs().Create(ctx, testProgram("p1")); err != nil {
			return err
		}
		if err := repos.Tasks().Create(ctx, &domain.Task{ID: "t1", ProgramID: "p1", Status: domain.TaskPending, Version: 1}); err != nil {
			return err
		}
		abandoned := domain.ProgramAbandoned
		if _, err := repos.Programs().Update(ctx, "p0", app.ProgramPatch{Status: &abandoned, Version: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	repos := NewRepoSet(store)
	if _, err := repos.Programs().FindByID(ctx, "p1"); !domain.IsNotFound(err) {
		t.Fatalf("rolled-back program still present: %v", err)
	}
	tasks, _ := repos.Tasks().FindByProgram(ctx, "p1")
	if len(tasks) != 0 {
		t.Fatalf("rolled-back tasks still present: %d", len(tasks))
	}
	p0, _ := repos.Programs().FindByID(ctx, "p0")
	if p0.Status != domain.ProgramActive || p0.Version != 1 {
		t.Fatalf("pre-existing program mutated: %+v", p0)
	}
}

func TestUnitOfWorkRejectsNesting(t *testing.T) {
	ctx := context.Background()
	uow := NewUnitOfWork(NewStore())

	err := uow.Run(ctx, func(ctx context.Context, repos app.RepoSet) error {
		return uow.Run(ctx, func(ctx context.Context, repos app.RepoSet) error {
			return nil
		})
	})
	if !errors.Is(err, ErrTransactionOpen) {
		t.Fatalf("expected ErrTransactionOpen, got %v", err)
	}
}

func TestProgramUpdateVersionGuard(t *testing.T) {
	ctx := context.Background()
	repos := NewRepoSet(NewStore())
	if err := repos.Programs().Create(ctx, testProgram("p1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	index := 0
	if _, err := repos.Programs().Update(ctx, "p1", app.ProgramPatch{CurrentTaskIndex: &index, Version: 99}); !domain.IsConflict(err) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	updated, err := repos.Programs().Update(ctx, "p1", app.ProgramPatch{CurrentTaskIndex: &index, Version: 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version %d, want 2", updated.Version)
	}
}

func TestTaskUpdateRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	repos := NewRepoSet(NewStore())
	task := &domain.Task{ID: "t1", ProgramID: "p1", Status: domain.TaskPending, Version: 1}
	if err := repos.Tasks().Create(ctx, task); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := repos.Tasks().UpdateStatus(ctx, "t1", domain.TaskCompleted, 1); !domain.IsInvalidState(err) {
		t.Fatalf("pending->completed: expected invalid state, got %v", err)
	}
	if _, err := repos.Tasks().UpdateStatus(ctx, "t1", domain.TaskActive, 1); err != nil {
		t.Fatalf("pending->active: %v", err)
	}
}

func testProgram(id string) *domain.Program {
	return &domain.Program{
		ID:             id,
		ScenarioID:     "s1",
		UserID:         "u1",
		Status:         domain.ProgramActive,
		TotalTaskCount: 1,
		StartedAt:      time.Now(),
		Version:        1,
	}
}
