// Package cached provides a redis read-through caching wrapper for lookups.
//
// The wrapper caches successful resolutions per (tenant, id) with a TTL, so
// restarting processes and sibling instances share warm names without
// re-querying the directory backend. Negative results are not cached: an ID
// the backend omits today may exist tomorrow.
package cached

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rbaliyan/resolve"
	"github.com/redis/go-redis/v9"
)

// Lookup wraps a resolve.Lookup with redis caching.
type Lookup struct {
	backend resolve.Lookup
	client  redis.UniversalClient
	opts    *options
}

// Ensure Lookup implements resolve.Lookup.
var _ resolve.Lookup = (*Lookup)(nil)

// New creates a cached lookup wrapping the given backend.
func New(backend resolve.Lookup, client redis.UniversalClient, opts ...Option) *Lookup {
	return &Lookup{
		backend: backend,
		client:  client,
		opts:    newOptions(opts...),
	}
}

// Lookup serves as many IDs as possible from the cache and forwards the
// rest to the backend in one call. Backend errors (including rate-limit
// signals) propagate unchanged so the engine's retry policy still applies;
// cache write failures are logged and ignored.
func (l *Lookup) Lookup(ctx context.Context, tenant string, ids []string) ([]resolve.Resolution, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = l.key(tenant, id)
	}

	var results []resolve.Resolution
	misses := ids

	values, err := l.client.MGet(ctx, keys...).Result()
	if err == nil {
		misses = misses[:0:0]
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				misses = append(misses, ids[i])
				continue
			}
			var r resolve.Resolution
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				misses = append(misses, ids[i])
				continue
			}
			results = append(results, r)
		}
		l.opts.logger.Debug("cache lookup", "tenant", tenant, "hits", len(results), "misses", len(misses))
	} else {
		// A broken cache degrades to a passthrough.
		l.opts.logger.Warn("cache read failed, falling through to backend", "error", err)
	}

	if len(misses) == 0 {
		return results, nil
	}

	fresh, err := l.backend.Lookup(ctx, tenant, misses)
	if err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		pipe := l.client.Pipeline()
		for _, r := range fresh {
			raw, err := json.Marshal(r)
			if err != nil {
				continue
			}
			pipe.Set(ctx, l.key(tenant, r.ID), raw, l.opts.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			l.opts.logger.Warn("cache write failed", "tenant", tenant, "error", err)
		}
	}

	return append(results, fresh...), nil
}

func (l *Lookup) key(tenant, id string) string {
	return fmt.Sprintf("%s:%s:%s", l.opts.keyPrefix, tenant, id)
}
