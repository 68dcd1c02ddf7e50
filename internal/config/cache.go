package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware.
// Driver selects the backing store: "memory" keeps entries in process,
// "redis" shares them through Redis (falls back to memory when no client
// is available). MaxEntries only applies to the memory store.
type CacheConfig struct {
	Enabled      bool
	Driver       string
	Prefix       string
	MaxEntries   int
	MaxBodyBytes int
	ListTTL      time.Duration // GET /events
	InterestTTL  time.Duration // GET /events/interests
	ItemTTL      time.Duration // GET /events/:id
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Production gets a larger entry cap by default.
func LoadCacheConfig(production bool) CacheConfig {
	maxEntries := 100
	if production {
		maxEntries = 200
	}
	return CacheConfig{
		Enabled:      getenv("CACHE_ENABLED", "true") == "true",
		Driver:       strings.ToLower(getenv("CACHE_DRIVER", "memory")),
		Prefix:       getenv("CACHE_PREFIX", "cache"),
		MaxEntries:   atoi(getenv("CACHE_MAX_ENTRIES", strconv.Itoa(maxEntries))),
		MaxBodyBytes: atoi(getenv("CACHE_MAX_BODY_BYTES", "1048576")),
		ListTTL:      parseDur(getenv("CACHE_TTL_LIST", "5m")),
		InterestTTL:  parseDur(getenv("CACHE_TTL_INTERESTS", "3m")),
		ItemTTL:      parseDur(getenv("CACHE_TTL_ITEM", "10m")),
	}
}

// Helper functions reused from redis.go and ratelimit.go
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Minute
	}
	return d
}
