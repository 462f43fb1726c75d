package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"learning-progress-engine/internal/domain"
)

// ScenarioLoader fetches scenario templates from a backing store
// (e.g., postgres).
type ScenarioLoader interface {
	LoadScenario(ctx context.Context, id string) (domain.Scenario, error)
	LoadScenariosByMode(ctx context.Context, mode domain.Mode) ([]domain.Scenario, error)
}

// ScenarioRepository caches scenarios with TTL to avoid repeated DB hits.
// Scenarios are immutable, so staleness only matters for newly published
// content.
type ScenarioRepository struct {
	loader ScenarioLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedScenario
}

type cachedScenario struct {
	scenario  domain.Scenario
	expiresAt time.Time
}

func NewScenarioRepository(loader ScenarioLoader, ttl time.Duration) *ScenarioRepository {
	return &ScenarioRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedScenario),
	}
}

func (r *ScenarioRepository) FindByID(ctx context.Context, id string) (domain.Scenario, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[id]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.scenario, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[id]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.scenario, nil
		}
		r.mu.RUnlock()

		scenario, err := r.loader.LoadScenario(ctx, id)
		if err != nil {
			return domain.Scenario{}, err
		}

		r.mu.Lock()
		r.cache[id] = cachedScenario{
			scenario:  scenario,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return scenario, nil
	})
	if err != nil {
		return domain.Scenario{}, err
	}
	return result.(domain.Scenario), nil
}

// FindByMode bypasses the cache; mode listings are an infrequent browse path
// and caching the full catalog per mode is not worth the invalidation risk.
func (r *ScenarioRepository) FindByMode(ctx context.Context, mode domain.Mode) ([]domain.Scenario, error) {
	return r.loader.LoadScenariosByMode(ctx, mode)
}

func (r *ScenarioRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticScenarioLoader is a simple loader backed by an in-memory map (useful
// for tests/demos).
type StaticScenarioLoader struct {
	scenarios map[string]domain.Scenario
}

func NewStaticScenarioLoader(scenarios map[string]domain.Scenario) *StaticScenarioLoader {
	return &StaticScenarioLoader{scenarios: scenarios}
}

func (l *StaticScenarioLoader) LoadScenario(_ context.Context, id string) (domain.Scenario, error) {
	if scenario, ok := l.scenarios[id]; ok {
		return scenario, nil
	}
	return domain.Scenario{}, &domain.NotFoundError{Entity: "scenario", ID: id}
}

func (l *StaticScenarioLoader) LoadScenariosByMode(_ context.Context, mode domain.Mode) ([]domain.Scenario, error) {
	var out []domain.Scenario
	for _, s := range l.scenarios {
		if s.Mode == mode {
			out = append(out, s)
		}
	}
	return out, nil
}
