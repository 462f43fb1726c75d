package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"learning-progress-engine/internal/config"
	"learning-progress-engine/internal/domain"
	"learning-progress-engine/internal/infra/postgres"
)

// NewSeedCmd loads scenario templates into postgres, either from a JSON file
// or a built-in sample. Meant for local development; real content arrives
// through the ingestion pipeline.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert scenario templates into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON file with an array of scenarios")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	scenarios := []domain.Scenario{SampleScenario()}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		scenarios = nil
		if err := json.Unmarshal(data, &scenarios); err != nil {
			return fmt.Errorf("parse scenarios: %w", err)
		}
	}

	db := postgres.Open(cfg.Postgres.URL)
	defer db.Close()

	for _, scenario := range scenarios {
		if !scenario.Mode.Valid() {
			return fmt.Errorf("scenario %q has unknown mode %q", scenario.ID, scenario.Mode)
		}
		data, err := json.Marshal(scenario)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO scenarios (id, mode, data) VALUES (?, ?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET mode=EXCLUDED.mode, data=EXCLUDED.data`,
			scenario.ID, string(scenario.Mode), string(data)); err != nil {
			return err
		}
		log.Printf("seeded scenario %s (%s, %d tasks)", scenario.ID, scenario.Mode, len(scenario.TaskTemplates))
	}
	return nil
}

// SampleScenario provides a minimal assessment template for local runs and
// integration tests.
func SampleScenario() domain.Scenario {
	return domain.Scenario{
		ID:    "scn-sample-assessment",
		Mode:  domain.ModeAssessment,
		Title: "Digital literacy check",
		TaskTemplates: []domain.TaskTemplate{
			{
				ID:            "tpl-1",
				Type:          "question",
				Title:         "Spotting phishing",
				Domain:        "engaging_with_ai",
				CorrectAnswer: "b",
				KSA: domain.KSAMapping{
					Knowledge: []string{"K1.1"},
					Skills:    []string{"S1.1"},
				},
			},
			{
				ID:            "tpl-2",
				Type:          "question",
				Title:         "Evaluating sources",
				Domain:        "engaging_with_ai",
				CorrectAnswer: "a",
				KSA: domain.KSAMapping{
					Knowledge: []string{"K1.1", "K2.1"},
					Attitudes: []string{"A1.1"},
				},
			},
			{
				ID:            "tpl-3",
				Type:          "question",
				Title:         "Responsible sharing",
				Domain:        "managing_with_ai",
				CorrectAnswer: "c",
				KSA: domain.KSAMapping{
					Skills:    []string{"S2.1"},
					Attitudes: []string{"A1.1"},
				},
			},
		},
	}
}
