package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"learning-progress-engine/internal/domain"
)

type programRow struct {
	bun.BaseModel `bun:"table:programs,alias:p"`

	ID               string          `bun:"id,pk"`
	ScenarioID       string          `bun:"scenario_id,notnull"`
	UserID           string          `bun:"user_id,notnull"`
	Status           string          `bun:"status,notnull"`
	CurrentTaskIndex int             `bun:"current_task_index,notnull"`
	TotalTaskCount   int             `bun:"total_task_count,notnull"`
	Metadata         json.RawMessage `bun:"metadata,type:jsonb"`
	StartedAt        time.Time       `bun:"started_at,notnull"`
	CompletedAt      *time.Time      `bun:"completed_at"`
	Version          int64           `bun:"version,notnull"`
}

func programToRow(p domain.Program) (programRow, error) {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return programRow{}, fmt.Errorf("marshal program metadata: %w", err)
	}
	return programRow{
		ID:               p.ID,
		ScenarioID:       p.ScenarioID,
		UserID:           p.UserID,
		Status:           string(p.Status),
		CurrentTaskIndex: p.CurrentTaskIndex,
		TotalTaskCount:   p.TotalTaskCount,
		Metadata:         meta,
		StartedAt:        p.StartedAt,
		CompletedAt:      p.CompletedAt,
		Version:          p.Version,
	}, nil
}

func programFromRow(row programRow) (domain.Program, error) {
	p := domain.Program{
		ID:               row.ID,
		ScenarioID:       row.ScenarioID,
		UserID:           row.UserID,
		Status:           domain.ProgramStatus(row.Status),
		CurrentTaskIndex: row.CurrentTaskIndex,
		TotalTaskCount:   row.TotalTaskCount,
		StartedAt:        row.StartedAt,
		CompletedAt:      row.CompletedAt,
		Version:          row.Version,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &p.Metadata); err != nil {
			return domain.Program{}, fmt.Errorf("unmarshal program metadata: %w", err)
		}
	}
	return p, nil
}

type taskRow struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`

	ID        string          `bun:"id,pk"`
	ProgramID string          `bun:"program_id,notnull"`
	TaskIndex int             `bun:"task_index,notnull"`
	Status    string          `bun:"status,notnull"`
	Type      string          `bun:"type,notnull"`
	Content   json.RawMessage `bun:"content,type:jsonb,nullzero"`
	Result    json.RawMessage `bun:"result,type:jsonb"`
	Version   int64           `bun:"version,notnull"`
}

func taskToRow(t domain.Task) (taskRow, error) {
	result, err := json.Marshal(t.Result)
	if err != nil {
		return taskRow{}, fmt.Errorf("marshal task result: %w", err)
	}
	return taskRow{
		ID:        t.ID,
		ProgramID: t.ProgramID,
		TaskIndex: t.TaskIndex,
		Status:    string(t.Status),
		Type:      t.Type,
		Content:   t.Content,
		Result:    result,
		Version:   t.Version,
	}, nil
}

func taskFromRow(row taskRow) (domain.Task, error) {
	t := domain.Task{
		ID:        row.ID,
		ProgramID: row.ProgramID,
		TaskIndex: row.TaskIndex,
		Status:    domain.TaskStatus(row.Status),
		Type:      row.Type,
		Content:   row.Content,
		Version:   row.Version,
	}
	if len(row.Result) > 0 {
		if err := json.Unmarshal(row.Result, &t.Result); err != nil {
			return domain.Task{}, fmt.Errorf("unmarshal task result: %w", err)
		}
	}
	return t, nil
}

type evaluationRow struct {
	bun.BaseModel `bun:"table:evaluations,alias:e"`

	ID                string          `bun:"id,pk"`
	TargetType        string          `bun:"target_type,notnull"`
	TargetID          string          `bun:"target_id,notnull"`
	Score             int             `bun:"score,notnull"`
	DomainScores      json.RawMessage `bun:"domain_scores,type:jsonb"`
	KSAScores         json.RawMessage `bun:"ksa_scores,type:jsonb"`
	PerformanceBucket string          `bun:"performance_bucket,notnull"`
	CreatedAt         time.Time       `bun:"created_at,notnull"`
}

func evaluationToRow(e domain.Evaluation) (evaluationRow, error) {
	domains, err := json.Marshal(e.DomainScores)
	if err != nil {
		return evaluationRow{}, fmt.Errorf("marshal domain scores: %w", err)
	}
	ksa, err := json.Marshal(e.KSAScores)
	if err != nil {
		return evaluationRow{}, fmt.Errorf("marshal ksa scores: %w", err)
	}
	return evaluationRow{
		ID:                e.ID,
		TargetType:        string(e.TargetType),
		TargetID:          e.TargetID,
		Score:             e.Score,
		DomainScores:      domains,
		KSAScores:         ksa,
		PerformanceBucket: e.PerformanceBucket,
		CreatedAt:         e.CreatedAt,
	}, nil
}

func evaluationFromRow(row evaluationRow) (domain.Evaluation, error) {
	e := domain.Evaluation{
		ID:                row.ID,
		TargetType:        domain.TargetType(row.TargetType),
		TargetID:          row.TargetID,
		Score:             row.Score,
		PerformanceBucket: row.PerformanceBucket,
		CreatedAt:         row.CreatedAt,
	}
	if len(row.DomainScores) > 0 {
		if err := json.Unmarshal(row.DomainScores, &e.DomainScores); err != nil {
			return domain.Evaluation{}, fmt.Errorf("unmarshal domain scores: %w", err)
		}
	}
	if len(row.KSAScores) > 0 {
		if err := json.Unmarshal(row.KSAScores, &e.KSAScores); err != nil {
			return domain.Evaluation{}, fmt.Errorf("unmarshal ksa scores: %w", err)
		}
	}
	return e, nil
}
