package memory

import (
	"context"
	"errors"
	"sync"

	"learning-progress-engine/internal/app"
	"learning-progress-engine/internal/domain"
)

// ErrTransactionOpen is returned when Run is nested inside an open
// transaction.
var ErrTransactionOpen = errors.New("transaction already open")

// Store holds programs, tasks and evaluations in process. It backs the unit
// tests and local demos the same way a database does in production.
type Store struct {
	mu          sync.RWMutex
	programs    map[string]domain.Program
	tasks       map[string]domain.Task
	evaluations []domain.Evaluation
}

func NewStore() *Store {
	return &Store{
		programs: make(map[string]domain.Program),
		tasks:    make(map[string]domain.Task),
	}
}

type snapshot struct {
	programs    map[string]domain.Program
	tasks       map[string]domain.Task
	evaluations []domain.Evaluation
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		programs:    make(map[string]domain.Program, len(s.programs)),
		tasks:       make(map[string]domain.Task, len(s.tasks)),
		evaluations: append([]domain.Evaluation(nil), s.evaluations...),
	}
	for id, p := range s.programs {
		snap.programs[id] = p
	}
	for id, t := range s.tasks {
		snap.tasks[id] = t
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = snap.programs
	s.tasks = snap.tasks
	s.evaluations = snap.evaluations
}

// NewRepoSet exposes the store through the repository ports.
func NewRepoSet(store *Store) app.RepoSet {
	return repoSet{store: store}
}

type repoSet struct {
	store *Store
}

func (r repoSet) Programs() app.ProgramRepository       { return &ProgramRepository{store: r.store} }
func (r repoSet) Tasks() app.TaskRepository             { return &TaskRepository{store: r.store} }
func (r repoSet) Evaluations() app.EvaluationRepository { return &EvaluationRepository{store: r.store} }

type txMarker struct{}

// UnitOfWork gives the in-memory store real rollback semantics: writes made
// by fn are undone on error by restoring a pre-transaction snapshot.
// Transactions serialize; nesting fails like a second begin() would.
type UnitOfWork struct {
	store *Store
	txMu  sync.Mutex
}

func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, repos app.RepoSet) error) error {
	if ctx.Value(txMarker{}) != nil {
		return ErrTransactionOpen
	}
	u.txMu.Lock()
	defer u.txMu.Unlock()

	snap := u.store.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, struct{}{}), NewRepoSet(u.store)); err != nil {
		u.store.restore(snap)
		return err
	}
	return nil
}
