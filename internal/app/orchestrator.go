package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"learning-progress-engine/internal/domain"
)

// XP awarded per task outcome. Skipped tasks earn nothing.
const (
	xpTaskCompleted = 5
	xpCorrectAnswer = 5
)

// TaskResponse is a user's answer to the active task. Skip marks an explicit
// skip action; the answer is ignored in that case.
type TaskResponse struct {
	Answer string
	Skip   bool
}

// SubmitResult reports what one submission changed.
type SubmitResult struct {
	Task        domain.Task
	Correct     bool
	AwardedXP   int
	Evaluation  *domain.Evaluation
	Progression Progression
}

// StartResult reports the freshly materialized attempt.
type StartResult struct {
	Program     domain.Program
	Tasks       []domain.Task
	Progression Progression
}

// CompleteResult carries the finished program and its aggregate evaluation.
type CompleteResult struct {
	Program    domain.Program
	Evaluation domain.Evaluation
}

// Orchestrator is the public entry point of the engine. All mutation of
// program and task state flows through it so the progression invariants hold.
type Orchestrator struct {
	scenarios   ScenarioRepository
	uow         UnitOfWork
	progression *ProgressionService
	scoring     *ScoringService
	now         func() time.Time
	newID       func() string
}

func NewOrchestrator(scenarios ScenarioRepository, uow UnitOfWork, progression *ProgressionService, scoring *ScoringService) *Orchestrator {
	return &Orchestrator{
		scenarios:   scenarios,
		uow:         uow,
		progression: progression,
		scoring:     scoring,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// NewOrchestratorWithClock is test-only for deterministic timestamps and ids.
func NewOrchestratorWithClock(scenarios ScenarioRepository, uow UnitOfWork, progression *ProgressionService, scoring *ScoringService, now func() time.Time, newID func() string) *Orchestrator {
	o := NewOrchestrator(scenarios, uow, progression, scoring)
	o.now = now
	o.newID = newID
	return o
}

// StartProgram materializes a program and its tasks from the scenario's
// templates, walks the program through pending -> active, and activates the
// first task, all inside one transaction.
func (o *Orchestrator) StartProgram(ctx context.Context, scenarioID, userID string) (StartResult, error) {
	scenario, err := o.scenarios.FindByID(ctx, scenarioID)
	if err != nil {
		return StartResult{}, err
	}

	var result StartResult
	err = o.uow.Run(ctx, func(ctx context.Context, repos RepoSet) error {
		program := &domain.Program{
			ID:             o.newID(),
			ScenarioID:     scenario.ID,
			UserID:         userID,
			Status:         domain.ProgramPending,
			TotalTaskCount: len(scenario.TaskTemplates),
			Metadata:       domain.NewProgramMetadata(scenario.Mode),
			StartedAt:      o.now(),
			Version:        1,
		}
		if err := repos.Programs().Create(ctx, program); err != nil {
			return err
		}

		canonical := make([]string, 0, len(scenario.TaskTemplates))
		for i, tpl := range scenario.TaskTemplates {
			task := &domain.Task{
				ID:        o.newID(),
				ProgramID: program.ID,
				TaskIndex: i,
				Status:    domain.TaskPending,
				Type:      tpl.Type,
				Content:   tpl.Content,
				Version:   1,
			}
			if err := repos.Tasks().Create(ctx, task); err != nil {
				return err
			}
			canonical = append(canonical, task.ID)
		}

		active := domain.ProgramActive
		if _, err := repos.Programs().Update(ctx, program.ID, ProgramPatch{
			Status:  &active,
			Version: program.Version,
		}); err != nil {
			return err
		}

		progression, err := o.progression.ActivateNext(ctx, repos, program.ID, canonical, program.Metadata)
		if err != nil {
			return err
		}

		updated, err := repos.Programs().FindByID(ctx, program.ID)
		if err != nil {
			return err
		}
		tasks, err := repos.Tasks().FindByProgram(ctx, program.ID)
		if err != nil {
			return err
		}
		result = StartResult{Program: updated, Tasks: tasks, Progression: progression}
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}
	return result, nil
}

// SubmitTaskResponse records a response on the active task, grades it,
// writes the optional task evaluation, and advances the program, atomically.
// Submitting against a task that is not active (including resubmission to a
// terminal task) is rejected with InvalidStateError; a failed submit leaves
// no partial writes behind because everything runs in one unit of work.
func (o *Orchestrator) SubmitTaskResponse(ctx context.Context, programID, taskID string, response TaskResponse) (SubmitResult, error) {
	var result SubmitResult
	err := o.uow.Run(ctx, func(ctx context.Context, repos RepoSet) error {
		program, err := repos.Programs().FindByID(ctx, programID)
		if err != nil {
			return err
		}
		if program.Status != domain.ProgramActive {
			return &domain.InvalidStateError{Entity: "program", ID: programID, State: string(program.Status), Op: "submit response to"}
		}

		scenario, err := o.scenarios.FindByID(ctx, program.ScenarioID)
		if err != nil {
			return err
		}

		tasks, err := repos.Tasks().FindByProgram(ctx, programID)
		if err != nil {
			return err
		}
		task, ok := findTask(tasks, taskID)
		if !ok {
			return &domain.NotFoundError{Entity: "task", ID: taskID}
		}
		if task.Status != domain.TaskActive {
			return &domain.InvalidStateError{Entity: "task", ID: taskID, State: string(task.Status), Op: "submit response to"}
		}

		template, _ := scenario.TemplateAt(task.TaskIndex)
		gradable := template.CorrectAnswer != ""

		status := domain.TaskCompleted
		taskResult := domain.TaskResult{}
		awarded := 0
		correct := false
		submittedAt := o.now()
		if response.Skip {
			status = domain.TaskSkipped
		} else {
			taskResult.Answer = response.Answer
			taskResult.SubmittedAt = &submittedAt
			awarded = xpTaskCompleted
			if gradable {
				correct = response.Answer == template.CorrectAnswer
				taskResult.Correct = &correct
				score := 0
				if correct {
					score = 100
					awarded += xpCorrectAnswer
				}
				taskResult.Score = &score
			}
		}

		updatedTask, err := repos.Tasks().UpdateResult(ctx, task.ID, status, taskResult, task.Version)
		if err != nil {
			return err
		}

		var evaluation *domain.Evaluation
		if scenario.Mode == domain.ModeAssessment && gradable && !response.Skip {
			agg := o.scoring.Aggregate([]domain.GradedResponse{gradedResponse(updatedTask, template)})
			eval := o.scoring.BuildEvaluation(o.newID(), domain.TargetTask, task.ID, agg, o.now())
			if err := repos.Evaluations().Create(ctx, &eval); err != nil {
				return err
			}
			evaluation = &eval
		}

		meta := program.Metadata
		meta.XP += awarded
		if meta.Assessment != nil && !response.Skip && gradable {
			section := *meta.Assessment
			section.AnsweredCount++
			if correct {
				section.CorrectCount++
			}
			meta.Assessment = &section
		}

		progression, err := o.progression.ActivateNext(ctx, repos, programID, canonicalIDs(tasks), meta)
		if err != nil {
			return err
		}

		result = SubmitResult{
			Task:        updatedTask,
			Correct:     correct,
			AwardedXP:   awarded,
			Evaluation:  evaluation,
			Progression: progression,
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return result, nil
}

// CompleteProgram aggregates all gradable task results into exactly one
// program-level evaluation and transitions the program to completed. Every
// task must already be terminal, and a terminal program is rejected, so
// re-completion can never double-write evaluations or XP.
func (o *Orchestrator) CompleteProgram(ctx context.Context, programID string) (CompleteResult, error) {
	var result CompleteResult
	err := o.uow.Run(ctx, func(ctx context.Context, repos RepoSet) error {
		program, err := repos.Programs().FindByID(ctx, programID)
		if err != nil {
			return err
		}
		if program.Status != domain.ProgramActive {
			return &domain.InvalidStateError{Entity: "program", ID: programID, State: string(program.Status), Op: "complete"}
		}

		scenario, err := o.scenarios.FindByID(ctx, program.ScenarioID)
		if err != nil {
			return err
		}

		tasks, err := repos.Tasks().FindByProgram(ctx, programID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if !t.Status.Terminal() {
				return &domain.InvalidStateError{Entity: "task", ID: t.ID, State: string(t.Status), Op: "complete program over"}
			}
		}

		responses := make([]domain.GradedResponse, 0, len(tasks))
		for _, t := range tasks {
			template, ok := scenario.TemplateAt(t.TaskIndex)
			if !ok || template.CorrectAnswer == "" {
				continue
			}
			// A skipped task has no recorded answer and therefore
			// counts against every dimension it maps to.
			responses = append(responses, gradedResponse(t, template))
		}

		agg := o.scoring.Aggregate(responses)
		now := o.now()
		evaluation := o.scoring.BuildEvaluation(o.newID(), domain.TargetProgram, programID, agg, now)
		if err := repos.Evaluations().Create(ctx, &evaluation); err != nil {
			return err
		}

		completed := domain.ProgramCompleted
		updated, err := repos.Programs().Update(ctx, programID, ProgramPatch{
			Status:      &completed,
			CompletedAt: &now,
			Version:     program.Version,
		})
		if err != nil {
			return err
		}

		result = CompleteResult{Program: updated, Evaluation: evaluation}
		return nil
	})
	if err != nil {
		return CompleteResult{}, err
	}
	return result, nil
}

// AbandonProgram is the external abandon trigger of the program state
// machine. Only active programs can be abandoned.
func (o *Orchestrator) AbandonProgram(ctx context.Context, programID string) (domain.Program, error) {
	var program domain.Program
	err := o.uow.Run(ctx, func(ctx context.Context, repos RepoSet) error {
		current, err := repos.Programs().FindByID(ctx, programID)
		if err != nil {
			return err
		}
		if current.Status != domain.ProgramActive {
			return &domain.InvalidStateError{Entity: "program", ID: programID, State: string(current.Status), Op: "abandon"}
		}
		abandoned := domain.ProgramAbandoned
		program, err = repos.Programs().Update(ctx, programID, ProgramPatch{
			Status:  &abandoned,
			Version: current.Version,
		})
		return err
	})
	if err != nil {
		return domain.Program{}, err
	}
	return program, nil
}

func findTask(tasks []domain.Task, id string) (domain.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

func canonicalIDs(tasks []domain.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func gradedResponse(task domain.Task, template domain.TaskTemplate) domain.GradedResponse {
	return domain.GradedResponse{
		ItemID:        task.ID,
		UserAnswer:    task.Result.Answer,
		CorrectAnswer: template.CorrectAnswer,
		Domain:        template.Domain,
		KSA:           template.KSA,
	}
}
