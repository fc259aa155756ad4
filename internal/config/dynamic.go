package config

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Source reads typed operator-tunable values. Missing or unparsable keys
// fall back to the supplied default.
type Source interface {
	GetInt(ctx context.Context, key string, def int) int
	GetFloat(ctx context.Context, key string, def float64) float64
	GetBool(ctx context.Context, key string, def bool) bool
}

type redisSource struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisSource returns a Source backed by redis string keys.
func NewRedisSource(rdb *redis.Client, log *slog.Logger) Source {
	if log == nil {
		log = slog.Default()
	}
	return &redisSource{rdb: rdb, log: log}
}

func (s *redisSource) get(ctx context.Context, key string) (string, bool) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.log.Warn("dynamic config read failed, using default", "key", key, "error", err)
		return "", false
	}
	return val, true
}

func (s *redisSource) GetInt(ctx context.Context, key string, def int) int {
	if raw, ok := s.get(ctx, key); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
		s.log.Warn("dynamic config value not an int, using default", "key", key, "value", raw)
	}
	return def
}

func (s *redisSource) GetFloat(ctx context.Context, key string, def float64) float64 {
	if raw, ok := s.get(ctx, key); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		s.log.Warn("dynamic config value not a float, using default", "key", key, "value", raw)
	}
	return def
}

func (s *redisSource) GetBool(ctx context.Context, key string, def bool) bool {
	if raw, ok := s.get(ctx, key); ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
		s.log.Warn("dynamic config value not a bool, using default", "key", key, "value", raw)
	}
	return def
}
