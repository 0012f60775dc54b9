package document

import (
	"context"
	"log/slog"
	"time"
)

// EvictCallback is called for every key the reaper drops.
type EvictCallback func(key string)

// StartReaper runs a background goroutine that periodically drops documents
// idle for longer than ttl. It stops when ctx is done.
func StartReaper(ctx context.Context, cache *Cache, ttl, interval time.Duration, onEvict EvictCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Document reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				reap(cache, ttl, onEvict)
			case <-ctx.Done():
				slog.Info("Document reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func reap(cache *Cache, ttl time.Duration, onEvict EvictCallback) {
	evicted := cache.Evict(ttl)
	if len(evicted) == 0 {
		return
	}
	for _, key := range evicted {
		slog.Debug("Document reaper evicted idle document", "tab", key)
		if onEvict != nil {
			onEvict(key)
		}
	}
	slog.Info("Document reaper cleanup completed", "evicted", len(evicted), "remaining", cache.Len())
}
