package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 5 * time.Minute
)

// CacheConfig configures the tool result cache behaviour.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
	// ExcludeTools lists tool names that should never be cached.
	ExcludeTools []string
}

type cacheEntry struct {
	data     any
	storedAt time.Time
}

// cachedExecutor wraps an Executor with an LRU result cache keyed by
// (tool name + normalised arguments). Terminal tools and excluded tools
// bypass the cache; failed results are never stored.
type cachedExecutor struct {
	delegate Executor
	cache    *lru.Cache[string, cacheEntry]
	ttl      time.Duration
	exclude  map[string]bool
}

var _ Executor = (*cachedExecutor)(nil)

// NewCachedExecutor wraps delegate with an LRU result cache.
// Zero config values fall back to package defaults.
func NewCachedExecutor(delegate Executor, config CacheConfig) Executor {
	if delegate == nil {
		return nil
	}
	if config.MaxSize <= 0 {
		config.MaxSize = defaultCacheMaxSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](config.MaxSize)
	if err != nil {
		return delegate
	}
	exclude := make(map[string]bool, len(config.ExcludeTools))
	for _, name := range config.ExcludeTools {
		exclude[name] = true
	}
	return &cachedExecutor{delegate: delegate, cache: cache, ttl: config.TTL, exclude: exclude}
}

func (c *cachedExecutor) Get(name string) (Descriptor, bool) { return c.delegate.Get(name) }
func (c *cachedExecutor) List() []Descriptor                 { return c.delegate.List() }

func (c *cachedExecutor) shouldSkip(name string) bool {
	if c.exclude[name] {
		return true
	}
	if d, ok := c.delegate.Get(name); ok && d.Terminal {
		return true
	}
	return false
}

func (c *cachedExecutor) Execute(ctx context.Context, name string, args map[string]any) *ExecutionResult {
	if c.shouldSkip(name) {
		return c.delegate.Execute(ctx, name, args)
	}

	key := cacheKey(name, args)
	if entry, ok := c.cache.Get(key); ok {
		if time.Since(entry.storedAt) < c.ttl {
			return &ExecutionResult{Tool: name, OK: true, Data: entry.data, Cached: true}
		}
		c.cache.Remove(key)
	}

	result := c.delegate.Execute(ctx, name, args)
	if result != nil && result.OK {
		c.cache.Add(key, cacheEntry{data: result.Data, storedAt: time.Now()})
	}
	return result
}

// cacheKey produces a deterministic string key from tool name + arguments.
func cacheKey(name string, args map[string]any) string {
	return fmt.Sprintf("%s:%s", name, normalizeArgs(args))
}

// normalizeArgs serialises a map[string]any into a deterministic JSON string.
// json.Marshal sorts map keys, so only nested maps need converting to the
// same concrete type.
func normalizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(sortedMap(args))
	if err != nil {
		return "{}"
	}
	return string(data)
}

func sortedMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		if nested, ok := v.(map[string]any); ok {
			v = sortedMap(nested)
		}
		out[k] = v
	}
	return out
}
