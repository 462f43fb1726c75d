package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"learning-progress-engine/internal/app"
	"learning-progress-engine/internal/config"
	"learning-progress-engine/internal/domain"
	"learning-progress-engine/internal/infra/memory"
	pginfra "learning-progress-engine/internal/infra/postgres"
	redisinfra "learning-progress-engine/internal/infra/redis"
)

// NewDemoCmd walks one program through its full lifecycle and prints the
// aggregate evaluation. With postgres/redis configured it exercises the real
// stack; without, it falls back to the in-memory one.
func NewDemoCmd(configPath *string) *cobra.Command {
	var scenarioID, userID string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scenario end to end and print the evaluation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), *configPath, scenarioID, userID)
		},
	}
	cmd.Flags().StringVar(&scenarioID, "scenario", SampleScenario().ID, "scenario to run")
	cmd.Flags().StringVar(&userID, "user", "demo-user", "user id for the attempt")
	return cmd
}

func runDemo(ctx context.Context, configPath, scenarioID, userID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	orchestrator, scenarios, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	scenario, err := scenarios.FindByID(ctx, scenarioID)
	if err != nil {
		return err
	}

	started, err := orchestrator.StartProgram(ctx, scenario.ID, userID)
	if err != nil {
		return err
	}
	log.Printf("started program %s with %d tasks", started.Program.ID, len(started.Tasks))

	for _, task := range started.Tasks {
		template, _ := scenario.TemplateAt(task.TaskIndex)
		result, err := orchestrator.SubmitTaskResponse(ctx, started.Program.ID, task.ID, app.TaskResponse{Answer: template.CorrectAnswer})
		if err != nil {
			return err
		}
		log.Printf("task %d: correct=%v xp=%d", task.TaskIndex, result.Correct, result.AwardedXP)
	}

	completed, err := orchestrator.CompleteProgram(ctx, started.Program.ID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(completed.Evaluation, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// buildEngine wires the orchestrator from config, preferring the configured
// backends and degrading to in-memory pieces for local runs.
func buildEngine(ctx context.Context, cfg config.Config) (*app.Orchestrator, app.ScenarioRepository, func(), error) {
	cleanup := func() {}

	var loader memory.ScenarioLoader = memory.NewStaticScenarioLoader(map[string]domain.Scenario{
		SampleScenario().ID: SampleScenario(),
	})

	var uow app.UnitOfWork = memory.NewUnitOfWork(memory.NewStore())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		loader = pginfra.NewScenarioLoader(pool)

		db := pginfra.Open(cfg.Postgres.URL)
		uow = pginfra.NewUnitOfWork(db)
		cleanup = func() {
			pool.Close()
			_ = db.Close()
		}
	}

	scenarioTTL := config.TTLDuration(cfg.Scenario.TTL, 10*time.Minute)
	var scenarios app.ScenarioRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		scenarios = redisinfra.NewScenarioRepository(client, loader, scenarioTTL)
	} else {
		scenarios = memory.NewScenarioRepository(loader, scenarioTTL)
	}

	progression := app.NewProgressionService(cfg.Progression.MaxRetries)
	orchestrator := app.NewOrchestrator(scenarios, uow, progression, app.NewScoringService())
	return orchestrator, scenarios, cleanup, nil
}
