package memory

import (
	"context"
	"testing"
	"time"

	"learning-progress-engine/internal/domain"
)

func TestScenarioRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		ScenarioLoader: NewStaticScenarioLoader(map[string]domain.Scenario{
			"scn-1": {ID: "scn-1", Mode: domain.ModeAssessment},
		}),
	}
	repo := NewScenarioRepository(loader, time.Minute)

	if _, err := repo.FindByID(context.Background(), "scn-1"); err != nil {
		t.Fatalf("find scenario: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.FindByID(context.Background(), "scn-1"); err != nil {
		t.Fatalf("find scenario 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestStaticLoaderByMode(t *testing.T) {
	loader := NewStaticScenarioLoader(map[string]domain.Scenario{
		"scn-1": {ID: "scn-1", Mode: domain.ModeAssessment},
		"scn-2": {ID: "scn-2", Mode: domain.ModePBL},
	})

	pbl, err := loader.LoadScenariosByMode(context.Background(), domain.ModePBL)
	if err != nil {
		t.Fatalf("load by mode: %v", err)
	}
	if len(pbl) != 1 || pbl[0].ID != "scn-2" {
		t.Fatalf("expected scn-2 only, got %+v", pbl)
	}
}

type countingLoader struct {
	ScenarioLoader
	calls int
}

func (l *countingLoader) LoadScenario(ctx context.Context, id string) (domain.Scenario, error) {
	l.calls++
	return l.ScenarioLoader.LoadScenario(ctx, id)
}
