// Package redisclient builds the shared go-redis connection every process
// role (simulator, coordinator, predictor, twinctl) opens against the
// event-bus's backing Redis instance. Grounded in the teacher's
// internal/redisclient/client.go, ported onto go-redis v9.
package redisclient

import (
	"runtime"

	"github.com/redis/go-redis/v9"

	"github.com/gemelo-digital/urgencias-twin/internal/config"
)

// New returns a configured go-redis client with pooling and retries sized
// off cfg.Redis, following the teacher's per-CPU pool-size heuristic.
func New(cfg *config.Config) *redis.Client {
	poolSize := cfg.Redis.PoolSizeMultiplier * runtime.NumCPU()
	if poolSize <= 0 {
		poolSize = 10 * runtime.NumCPU()
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     poolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
}
