package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which one-off notifications were already sent.  A nil
// Redis client remembers nothing, so every notification counts as first.
type Deduper struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDeduper stores markers under prefix for ttl.
func NewDeduper(rdb *redis.Client, prefix string, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Key is the marker key for a notification kind and event.
func (d *Deduper) Key(kind string, eventID uint64) string {
	return fmt.Sprintf("%s:%s:%d", d.prefix, kind, eventID)
}

// First claims the marker and reports whether this caller was the first.
func (d *Deduper) First(ctx context.Context, kind string, eventID uint64) (bool, error) {
	if d == nil || d.rdb == nil {
		return true, nil
	}
	ok, err := d.rdb.SetNX(ctx, d.Key(kind, eventID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe %s: %w", kind, err)
	}
	return ok, nil
}

// Forget drops the marker so the notification can be sent again.
func (d *Deduper) Forget(ctx context.Context, kind string, eventID uint64) error {
	if d == nil || d.rdb == nil {
		return nil
	}
	return d.rdb.Del(ctx, d.Key(kind, eventID)).Err()
}
