package cache

import "github.com/ledgerline/debtsync/internal/infra/observability"

// PrometheusHooks reports cache traffic to the debtsync_cache_* metrics.
func PrometheusHooks() Hooks {
	return Hooks{
		OnHit:        func(Key) { observability.CacheLookups.WithLabelValues("hit").Inc() },
		OnMiss:       func(Key) { observability.CacheLookups.WithLabelValues("miss").Inc() },
		OnStale:      func(Key) { observability.CacheLookups.WithLabelValues("stale").Inc() },
		OnInvalidate: func(Key) { observability.CacheInvalidations.Inc() },
		OnRefetch:    func(Key) { observability.CacheRefetches.Inc() },
		OnEvict:      func(Key) { observability.CacheEvictions.Inc() },
		OnError:      func(Key, error) { observability.CacheLookups.WithLabelValues("error").Inc() },
	}
}
