package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"learning-progress-engine/internal/domain"
)

// ScenarioLoader loads scenario JSONB from Postgres. Scenarios are written by
// the content pipeline; this side only ever reads.
type ScenarioLoader struct {
	pool *pgxpool.Pool
}

func NewScenarioLoader(pool *pgxpool.Pool) *ScenarioLoader {
	return &ScenarioLoader{pool: pool}
}

func (l *ScenarioLoader) LoadScenario(ctx context.Context, id string) (domain.Scenario, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM scenarios WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scenario{}, &domain.NotFoundError{Entity: "scenario", ID: id}
	}
	if err != nil {
		return domain.Scenario{}, &domain.RepositoryError{Op: "scenario.load", Err: err}
	}
	var scenario domain.Scenario
	if err := json.Unmarshal(raw, &scenario); err != nil {
		return domain.Scenario{}, &domain.RepositoryError{Op: "scenario.load", Err: fmt.Errorf("unmarshal scenario: %w", err)}
	}
	return scenario, nil
}

func (l *ScenarioLoader) LoadScenariosByMode(ctx context.Context, mode domain.Mode) ([]domain.Scenario, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM scenarios WHERE mode=$1 ORDER BY id`, string(mode))
	if err != nil {
		return nil, &domain.RepositoryError{Op: "scenario.loadByMode", Err: err}
	}
	defer rows.Close()

	var out []domain.Scenario
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, &domain.RepositoryError{Op: "scenario.loadByMode", Err: err}
		}
		var scenario domain.Scenario
		if err := json.Unmarshal(raw, &scenario); err != nil {
			return nil, &domain.RepositoryError{Op: "scenario.loadByMode", Err: fmt.Errorf("unmarshal scenario: %w", err)}
		}
		out = append(out, scenario)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "scenario.loadByMode", Err: err}
	}
	return out, nil
}
