package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"livequiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// TemplateLoader fetches quiz templates from a backing store (e.g., Postgres).
type TemplateLoader interface {
	LoadTemplate(ctx context.Context, templateID string) (domain.QuizTemplate, error)
}

// TemplateRepository caches whole templates in Redis as JSON
// (SET quiz:template:{id} {json}) and falls back to a loader on cache miss.
// Sessions snapshot the template at creation, so the cache only has to be
// fresh enough for hosting, not for editing.
type TemplateRepository struct {
	client *redis.Client
	loader TemplateLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewTemplateRepository(client *redis.Client, loader TemplateLoader, ttl time.Duration) *TemplateRepository {
	return &TemplateRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, templateID string) (domain.QuizTemplate, error) {
	if template, ok := r.fromCache(ctx, templateID); ok {
		return template, nil
	}

	result, err, _ := r.sf.Do(templateID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if template, ok := r.fromCache(ctx, templateID); ok {
			return template, nil
		}

		template, err := r.loader.LoadTemplate(ctx, templateID)
		if err != nil {
			return domain.QuizTemplate{}, err
		}

		data, err := json.Marshal(template)
		if err != nil {
			return domain.QuizTemplate{}, fmt.Errorf("marshal template: %w", err)
		}
		_ = r.client.Set(ctx, r.key(templateID), data, r.ttlWithJitter()).Err()
		return template, nil
	})
	if err != nil {
		return domain.QuizTemplate{}, err
	}
	return result.(domain.QuizTemplate), nil
}

func (r *TemplateRepository) fromCache(ctx context.Context, templateID string) (domain.QuizTemplate, bool) {
	raw, err := r.client.Get(ctx, r.key(templateID)).Result()
	if err != nil {
		return domain.QuizTemplate{}, false
	}
	var template domain.QuizTemplate
	if err := json.Unmarshal([]byte(raw), &template); err != nil {
		return domain.QuizTemplate{}, false
	}
	return template, true
}

func (r *TemplateRepository) key(templateID string) string {
	return "quiz:template:" + templateID
}

func (r *TemplateRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
