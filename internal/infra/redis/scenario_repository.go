package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"learning-progress-engine/internal/domain"
	"learning-progress-engine/internal/infra/memory"
)

// ScenarioRepository caches scenario templates in Redis and falls back to a
// loader on cache miss. Scenarios are stored whole:
// SET scenario:{id} {json} EX ttl
// Templates are immutable, so the cache never needs invalidation beyond TTL.
type ScenarioRepository struct {
	client *redis.Client
	loader memory.ScenarioLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewScenarioRepository(client *redis.Client, loader memory.ScenarioLoader, ttl time.Duration) *ScenarioRepository {
	return &ScenarioRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ScenarioRepository) FindByID(ctx context.Context, id string) (domain.Scenario, error) {
	key := r.key(id)

	if scenario, ok := r.fromCache(ctx, key); ok {
		return scenario, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if scenario, ok := r.fromCache(ctx, key); ok {
			return scenario, nil
		}

		scenario, err := r.loader.LoadScenario(ctx, id)
		if err != nil {
			return domain.Scenario{}, err
		}

		if data, err := json.Marshal(scenario); err == nil {
			// best-effort fill; a cache write failure is not a load failure
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return scenario, nil
	})
	if err != nil {
		return domain.Scenario{}, err
	}
	return result.(domain.Scenario), nil
}

// FindByMode goes straight to the loader; the browse path is rare enough
// that caching per-mode catalogs is not worth it.
func (r *ScenarioRepository) FindByMode(ctx context.Context, mode domain.Mode) ([]domain.Scenario, error) {
	return r.loader.LoadScenariosByMode(ctx, mode)
}

func (r *ScenarioRepository) fromCache(ctx context.Context, key string) (domain.Scenario, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.Scenario{}, false
	}
	var scenario domain.Scenario
	if err := json.Unmarshal(raw, &scenario); err != nil {
		return domain.Scenario{}, false
	}
	return scenario, true
}

func (r *ScenarioRepository) key(id string) string {
	return "scenario:" + id
}

func (r *ScenarioRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
