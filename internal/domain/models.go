package domain

import (
	"encoding/json"
	"time"
)

// Mode identifies the learning mode a scenario belongs to.
type Mode string

const (
	ModeAssessment Mode = "assessment"
	ModePBL        Mode = "pbl"
	ModeDiscovery  Mode = "discovery"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	switch m {
	case ModeAssessment, ModePBL, ModeDiscovery:
		return true
	default:
		return false
	}
}

// ProgramStatus represents the lifecycle state of a program.
type ProgramStatus string

const (
	ProgramPending   ProgramStatus = "pending"
	ProgramActive    ProgramStatus = "active"
	ProgramCompleted ProgramStatus = "completed"
	ProgramAbandoned ProgramStatus = "abandoned"
)

// Valid returns true if the status is a known value.
func (s ProgramStatus) Valid() bool {
	switch s {
	case ProgramPending, ProgramActive, ProgramCompleted, ProgramAbandoned:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed.
func (s ProgramStatus) Terminal() bool {
	return s == ProgramCompleted || s == ProgramAbandoned
}

// CanTransitionTo reports whether the move is legal in the program state machine:
// pending -> active -> completed|abandoned.
func (s ProgramStatus) CanTransitionTo(next ProgramStatus) bool {
	switch s {
	case ProgramPending:
		return next == ProgramActive
	case ProgramActive:
		return next == ProgramCompleted || next == ProgramAbandoned
	default:
		return false
	}
}

// TaskStatus represents the lifecycle state of a task within a program.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskActive, TaskCompleted, TaskSkipped:
		return true
	default:
		return false
	}
}

// Terminal reports whether the task can no longer change state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// CanTransitionTo reports whether the move is legal in the task state machine:
// pending -> active -> completed|skipped.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskActive
	case TaskActive:
		return next == TaskCompleted || next == TaskSkipped
	default:
		return false
	}
}

// KSAMapping ties an item to the competency codes it exercises, split by
// the three KSA categories.
type KSAMapping struct {
	Knowledge []string `json:"knowledge,omitempty"`
	Skills    []string `json:"skills,omitempty"`
	Attitudes []string `json:"attitudes,omitempty"`
}

// TaskTemplate is one ordered step inside a scenario. CorrectAnswer is empty
// for steps that are not auto-gradable (typical for pbl/discovery content).
type TaskTemplate struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Title         string          `json:"title,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
	Domain        string          `json:"domain,omitempty"`
	CorrectAnswer string          `json:"correctAnswer,omitempty"`
	KSA           KSAMapping      `json:"ksa,omitempty"`
}

// Scenario is an immutable learning-content template. It is created by the
// content pipeline and never mutated at runtime.
type Scenario struct {
	ID            string         `json:"id"`
	Mode          Mode           `json:"mode"`
	Title         string         `json:"title,omitempty"`
	TaskTemplates []TaskTemplate `json:"taskTemplates"`
}

// TemplateAt returns the template for the given canonical index.
func (s Scenario) TemplateAt(index int) (TaskTemplate, bool) {
	if index < 0 || index >= len(s.TaskTemplates) {
		return TaskTemplate{}, false
	}
	return s.TaskTemplates[index], true
}

// Program is one user's attempt at a scenario. Version backs the optimistic
// concurrency guard on every update.
type Program struct {
	ID               string          `json:"id"`
	ScenarioID       string          `json:"scenarioId"`
	UserID           string          `json:"userId"`
	Status           ProgramStatus   `json:"status"`
	CurrentTaskIndex int             `json:"currentTaskIndex"`
	TotalTaskCount   int             `json:"totalTaskCount"`
	Metadata         ProgramMetadata `json:"metadata"`
	StartedAt        time.Time       `json:"startedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	Version          int64           `json:"version"`
}

// TaskResult holds the outcome recorded on a task when a response lands.
// Correct and Score stay nil for ungraded tasks.
type TaskResult struct {
	Answer      string     `json:"answer,omitempty"`
	Correct     *bool      `json:"correct,omitempty"`
	Score       *int       `json:"score,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

// Task is one unit of work within a program, materialized from a scenario
// template when the program is created.
type Task struct {
	ID        string          `json:"id"`
	ProgramID string          `json:"programId"`
	TaskIndex int             `json:"taskIndex"`
	Status    TaskStatus      `json:"status"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	Result    TaskResult      `json:"result"`
	Version   int64           `json:"version"`
}

// TargetType distinguishes task-level from program-level evaluations.
type TargetType string

const (
	TargetTask    TargetType = "task"
	TargetProgram TargetType = "program"
)

// CompetencyStat carries the evidence behind one competency code.
// Mastery is 0 (none), 1 (partial), or 2 (full).
type CompetencyStat struct {
	Category string   `json:"category"`
	Correct  int      `json:"correct"`
	Total    int      `json:"total"`
	Mastery  int      `json:"mastery"`
	ItemIDs  []string `json:"itemIds,omitempty"`
}

// KSAReport is the competency portion of an evaluation: one percentage per
// category plus per-code evidence.
type KSAReport struct {
	CategoryScores map[string]int            `json:"categoryScores"`
	Competencies   map[string]CompetencyStat `json:"competencies"`
}

// Evaluation is an immutable scored record for a task or a whole program.
// Rows are never updated or deleted after creation.
type Evaluation struct {
	ID                string         `json:"id"`
	TargetType        TargetType     `json:"targetType"`
	TargetID          string         `json:"targetId"`
	Score             int            `json:"score"`
	DomainScores      map[string]int `json:"domainScores"`
	KSAScores         KSAReport      `json:"ksaScores"`
	PerformanceBucket string         `json:"performanceBucket"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// GradedResponse is one item's graded outcome, the input unit for score
// aggregation.
type GradedResponse struct {
	ItemID        string
	UserAnswer    string
	CorrectAnswer string
	Domain        string
	KSA           KSAMapping
}

// IsCorrect reports whether the user answer matches exactly.
func (r GradedResponse) IsCorrect() bool {
	return r.UserAnswer == r.CorrectAnswer
}
