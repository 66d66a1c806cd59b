package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"

	"github.com/hperssn/cadence/internal/domain"
)

const (
	cacheKey      = "cadence:stats:summary"
	generationKey = "cadence:stats:generation"
)

// Source is the read side of a session store.
type Source interface {
	ReadAll(ctx context.Context) ([]domain.SessionRecord, error)
}

// Service serves summaries, optionally memoised in redis. A nil redis client
// disables caching.
type Service struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
}

func NewService(source Source, redisClient *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{source: source, redis: redisClient, ttl: ttl}
}

// Summary returns the cached rollup or recomputes it from the source. Cache
// failures fall through to the source.
//
// Entries are keyed by a generation counter that Invalidate bumps, so a
// rollup computed before a mutation can never be served after it.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	key := ""
	if s.redis != nil {
		gen, err := s.redis.Get(ctx, generationKey).Int64()
		switch {
		case err == nil, errors.Is(err, redis.Nil):
			key = entryKey(gen)
		default:
			glog.Warningf("stats cache generation: %v", err)
		}
	}

	if key != "" {
		data, err := s.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var cached Summary
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
			glog.Warningf("stats cache: discarding corrupt entry")
		case !errors.Is(err, redis.Nil):
			glog.Warningf("stats cache get: %v", err)
		}
	}

	records, err := s.source.ReadAll(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summarize(records)

	if key != "" {
		data, _ := json.Marshal(summary)
		if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
			glog.Warningf("stats cache set: %v", err)
		}
	}
	return summary, nil
}

// Invalidate retires every cached rollup. Call it after every mutation.
func (s *Service) Invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Incr(ctx, generationKey).Err(); err != nil {
		glog.Warningf("stats cache invalidate: %v", err)
	}
}

func entryKey(gen int64) string {
	return fmt.Sprintf("%s:%d", cacheKey, gen)
}
