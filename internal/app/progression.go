package app

import (
	"context"

	"learning-progress-engine/internal/domain"
)

// DefaultMaxRetries bounds how often a progression retries after losing an
// optimistic-concurrency race.
const DefaultMaxRetries = 3

// Progression reports the outcome of one activation step. NextTaskID is nil
// once the program has no tasks left.
type Progression struct {
	NextTaskID       *string `json:"nextTaskId"`
	NextTaskIndex    int     `json:"nextTaskIndex"`
	ProgramCompleted bool    `json:"programCompleted"`
}

// ProgressionService decides which task becomes active next and detects
// program completion. It never flips Program.Status; that belongs to the
// orchestrator.
type ProgressionService struct {
	maxRetries int
}

func NewProgressionService(maxRetries int) *ProgressionService {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &ProgressionService{maxRetries: maxRetries}
}

// ActivateNext advances the program to its next task:
//
//  1. Load the program's tasks and reorder them by canonicalTaskIDs
//     (ids absent from the list are ignored).
//  2. The terminal tasks form a contiguous prefix, so the prefix length is
//     both the completed count and the index of the next task.
//  3. Activate the task at that index, or report completion when the
//     sequence is exhausted (an empty sequence is vacuously complete).
//  4. Persist currentTaskIndex and the merged metadata on the program.
//
// The call is idempotent: when the next task is already active it is not
// re-activated and the same result is returned. Version conflicts on the
// program row are retried up to the configured bound, then surface as
// ConflictError.
func (s *ProgressionService) ActivateNext(ctx context.Context, repos RepoSet, programID string, canonicalTaskIDs []string, meta domain.ProgramMetadata) (Progression, error) {
	var result Progression
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		result, lastErr = s.activateOnce(ctx, repos, programID, canonicalTaskIDs, meta)
		if lastErr == nil || !domain.IsConflict(lastErr) {
			return result, lastErr
		}
	}
	return Progression{}, lastErr
}

func (s *ProgressionService) activateOnce(ctx context.Context, repos RepoSet, programID string, canonicalTaskIDs []string, meta domain.ProgramMetadata) (Progression, error) {
	program, err := repos.Programs().FindByID(ctx, programID)
	if err != nil {
		return Progression{}, err
	}

	tasks, err := repos.Tasks().FindByProgram(ctx, programID)
	if err != nil {
		return Progression{}, err
	}
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	sequence := make([]domain.Task, 0, len(canonicalTaskIDs))
	for _, id := range canonicalTaskIDs {
		if t, ok := byID[id]; ok {
			sequence = append(sequence, t)
		}
	}

	nextIndex := terminalPrefixLen(sequence)

	result := Progression{NextTaskIndex: nextIndex}
	if nextIndex < len(sequence) {
		next := sequence[nextIndex]
		if next.Status == domain.TaskPending {
			if _, err := repos.Tasks().UpdateStatus(ctx, next.ID, domain.TaskActive, next.Version); err != nil {
				return Progression{}, err
			}
		}
		// An already-active task is left alone; re-activating it would
		// break the at-most-one-active invariant under racing calls.
		result.NextTaskID = &next.ID
	} else {
		result.ProgramCompleted = true
	}

	patch := meta
	patch.CurrentTaskID = result.NextTaskID
	patch.CurrentTaskIndex = nextIndex
	if _, err := repos.Programs().Update(ctx, programID, ProgramPatch{
		CurrentTaskIndex: &nextIndex,
		Metadata:         &patch,
		Version:          program.Version,
	}); err != nil {
		return Progression{}, err
	}
	return result, nil
}

// terminalPrefixLen counts the contiguous run of terminal tasks at the head
// of the canonical sequence.
func terminalPrefixLen(sequence []domain.Task) int {
	n := 0
	for _, t := range sequence {
		if !t.Status.Terminal() {
			break
		}
		n++
	}
	return n
}
