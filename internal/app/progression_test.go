package app_test

import (
	"context"
	"testing"
	"time"

	"learning-progress-engine/internal/app"
	"learning-progress-engine/internal/domain"
	"learning-progress-engine/internal/infra/memory"
)

func TestActivateNextActivatesFirstPending(t *testing.T) {
	ctx := context.Background()
	repos := seedProgression(t, []domain.TaskStatus{domain.TaskCompleted, domain.TaskCompleted, domain.TaskPending})

	svc := app.NewProgressionService(3)
	res, err := svc.ActivateNext(ctx, repos, "p1", []string{"t0", "t1", "t2"}, domain.ProgramMetadata{})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if res.NextTaskID == nil || *res.NextTaskID != "t2" || res.NextTaskIndex != 2 || res.ProgramCompleted {
		t.Fatalf("got %+v, want next t2 at index 2", res)
	}

	tasks, _ := repos.Tasks().FindByProgram(ctx, "p1")
	if tasks[2].Status != domain.TaskActive {
		t.Fatalf("t2 status %s, want active", tasks[2].Status)
	}

	program, _ := repos.Programs().FindByID(ctx, "p1")
	if program.CurrentTaskIndex != 2 {
		t.Fatalf("program index %d, want 2", program.CurrentTaskIndex)
	}
	if program.Metadata.CurrentTaskID == nil || *program.Metadata.CurrentTaskID != "t2" {
		t.Fatalf("metadata current task %v, want t2", program.Metadata.CurrentTaskID)
	}
}

func TestActivateNextIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repos := seedProgression(t, []domain.TaskStatus{domain.TaskCompleted, domain.TaskPending, domain.TaskPending})
	svc := app.NewProgressionService(3)

	first, err := svc.ActivateNext(ctx, repos, "p1", []string{"t0", "t1", "t2"}, domain.ProgramMetadata{})
	if err != nil {
		t.Fatalf("first activate: %v", err)
	}
	tasksAfterFirst, _ := repos.Tasks().FindByProgram(ctx, "p1")

	second, err := svc.ActivateNext(ctx, repos, "p1", []string{"t0", "t1", "t2"}, domain.ProgramMetadata{})
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if *first.NextTaskID != *second.NextTaskID || first.NextTaskIndex != second.NextTaskIndex || first.ProgramCompleted != second.ProgramCompleted {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}

	tasksAfterSecond, _ := repos.Tasks().FindByProgram(ctx, "p1")
	if tasksAfterFirst[1].Version != tasksAfterSecond[1].Version {
		t.Fatalf("active task was rewritten: version %d -> %d", tasksAfterFirst[1].Version, tasksAfterSecond[1].Version)
	}
}

func TestActivateNextDetectsCompletion(t *testing.T) {
	ctx := context.Background()
	repos := seedProgression(t, []domain.TaskStatus{domain.TaskCompleted, domain.TaskCompleted, domain.TaskCompleted})
	svc := app.NewProgressionService(3)

	res, err := svc.ActivateNext(ctx, repos, "p1", []string{"t0", "t1", "t2"}, domain.ProgramMetadata{})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if res.NextTaskID != nil || res.NextTaskIndex != 3 || !res.ProgramCompleted {
		t.Fatalf("got %+v, want completion at index 3", res)
	}

	// Detecting completion never flips the program status.
	program, _ := repos.Programs().FindByID(ctx, "p1")
	if program.Status != domain.ProgramActive {
		t.Fatalf("program status %s, want active", program.Status)
	}
}

func TestActivateNextCountsSkippedInPrefix(t *testing.T) {
	ctx := context.Background()
	repos := seedProgression(t, []domain.TaskStatus{domain.TaskCompleted, domain.TaskSkipped, domain.TaskPending})
	svc := app.NewProgressionService(3)

	res, err := svc.ActivateNext(ctx, repos, "p1", []string{"t0", "t1", "t2"}, domain.ProgramMetadata{})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if res.NextTaskID == nil || *res.NextTaskID != "t2" || res.NextTaskIndex != 2 {
		t.Fatalf("got %+v, want t2 at index 2", res)
	}
}

func TestActivateNextEmptyProgram(t *testing.T) {
	ctx := context.Background()
	repos := seedProgression(t, nil)
	svc := app.NewProgressionService(3)

	res, err := svc.ActivateNext(ctx, repos, "p1", nil, domain.ProgramMetadata{})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if res.NextTaskID != nil || res.NextTaskIndex != 0 || !res.ProgramCompleted {
		t.Fatalf("got %+v, want vacuous completion", res)
	}
}

func TestActivateNextIgnoresUnknownIDs(t *testing.T) {
	ctx := context.Background()
	repos := seedProgression(t, []domain.TaskStatus{domain.TaskCompleted, domain.TaskPending})
	svc := app.NewProgressionService(3)

	res, err := svc.ActivateNext(ctx, repos, "p1", []string{"t0", "ghost", "t1"}, domain.ProgramMetadata{})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if res.NextTaskID == nil || *res.NextTaskID != "t1" || res.NextTaskIndex != 1 {
		t.Fatalf("got %+v, want t1 at index 1", res)
	}
}

func TestActivateNextSurfacesConflictAfterRetries(t *testing.T) {
	ctx := context.Background()
	repos := seedProgression(t, []domain.TaskStatus{domain.TaskPending})
	conflicting := &conflictingRepoSet{RepoSet: repos}
	svc := app.NewProgressionService(2)

	_, err := svc.ActivateNext(ctx, conflicting, "p1", []string{"t0"}, domain.ProgramMetadata{})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if conflicting.updates != 2 {
		t.Fatalf("expected 2 attempts, got %d", conflicting.updates)
	}
}

// seedProgression builds a store with one active program and tasks t0..tn in
// the given statuses.
func seedProgression(t *testing.T, statuses []domain.TaskStatus) app.RepoSet {
	t.Helper()
	ctx := context.Background()
	repos := memory.NewRepoSet(memory.NewStore())

	program := &domain.Program{
		ID:             "p1",
		ScenarioID:     "s1",
		UserID:         "u1",
		Status:         domain.ProgramActive,
		TotalTaskCount: len(statuses),
		StartedAt:      time.Now(),
		Version:        1,
	}
	if err := repos.Programs().Create(ctx, program); err != nil {
		t.Fatalf("create program: %v", err)
	}
	for i, status := range statuses {
		task := &domain.Task{
			ID:        taskID(i),
			ProgramID: "p1",
			TaskIndex: i,
			Status:    status,
			Type:      "question",
			Version:   1,
		}
		if err := repos.Tasks().Create(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}
	return repos
}

func taskID(i int) string {
	return "t" + string(rune('0'+i))
}

type conflictingRepoSet struct {
	app.RepoSet
	updates int
}

func (s *conflictingRepoSet) Programs() app.ProgramRepository {
	return &conflictingPrograms{inner: s.RepoSet.Programs(), set: s}
}

type conflictingPrograms struct {
	inner app.ProgramRepository
	set   *conflictingRepoSet
}

func (p *conflictingPrograms) Create(ctx context.Context, program *domain.Program) error {
	return p.inner.Create(ctx, program)
}

func (p *conflictingPrograms) FindByID(ctx context.Context, id string) (domain.Program, error) {
	return p.inner.FindByID(ctx, id)
}

func (p *conflictingPrograms) FindByScenario(ctx context.Context, scenarioID string) ([]domain.Program, error) {
	return p.inner.FindByScenario(ctx, scenarioID)
}

func (p *conflictingPrograms) Update(ctx context.Context, id string, patch app.ProgramPatch) (domain.Program, error) {
	p.set.updates++
	return domain.Program{}, &domain.ConflictError{Entity: "program", ID: id, Version: patch.Version}
}
