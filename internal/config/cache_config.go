package config

import (
	"os"
	"strconv"
	"time"
)

type CacheConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration
}

func NewCacheConfig() *CacheConfig {
	return &CacheConfig{
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,
		SnapshotTTL:   getEnvDuration("USAGE_CACHE_TTL", 30*time.Second),
	}
}

// Enabled reports whether a Redis endpoint was configured at all; the
// service runs uncached when it was not.
func (c *CacheConfig) Enabled() bool {
	return c.RedisHost != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
