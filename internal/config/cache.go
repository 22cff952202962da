package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware, which
// fronts the public lot search and lot detail endpoints. When Enabled is
// false or no Redis client is configured, caching is disabled.
type CacheConfig struct {
	Enabled bool
	// Methods lists the HTTP methods to cache, upper-cased.
	Methods map[string]bool
	// TTL is the lifetime of a cached response.
	TTL time.Duration
	// KeyStrategy selects the request parts that make up the cache key:
	// route, method_route, method_route_query, path_query or route_query
	// (the default).
	KeyStrategy string
	// Prefix namespaces every key; PurgeCache deletes by this prefix.
	Prefix string
	// MaxBodyBytes caps the size of a response worth storing.
	MaxBodyBytes int
}

// LoadCacheConfig reads the CACHE_* environment variables, falling back to
// defaults for anything unset or unparsable. Lot writes purge the cache, so
// the TTL only bounds staleness caused by other instances.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "parking:cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

// parseMethods turns a comma separated list like "get, head" into a set of
// upper-cased methods. Empty entries are skipped.
func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
