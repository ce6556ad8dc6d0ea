package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDedupPrefix = "compliance:dedup"
	// DefaultRedisRetention bounds how long an idle watermark is kept.
	DefaultRedisRetention = 30 * 24 * time.Hour
)

// RedisDeduplicator shares watermarks between processes through Redis.
type RedisDeduplicator struct {
	client    *redis.Client
	intervals Intervals
	retention time.Duration
}

// NewRedisDeduplicator constructs the shared durable variant. retention is
// raised to at least the longest interval so a live watermark never expires early.
func NewRedisDeduplicator(client *redis.Client, intervals Intervals, retention time.Duration) *RedisDeduplicator {
	if retention <= 0 {
		retention = DefaultRedisRetention
	}
	if retention < intervals.Warning {
		retention = intervals.Warning
	}
	if retention < intervals.Breach {
		retention = intervals.Breach
	}
	return &RedisDeduplicator{client: client, intervals: intervals, retention: retention}
}

// MayFire implements Deduplicator.
func (d *RedisDeduplicator) MayFire(ctx context.Context, ticketID int64, class AlertClass, now time.Time) (bool, error) {
	if err := validClass(class); err != nil {
		return false, err
	}
	ms, err := d.client.Get(ctx, dedupKey(ticketID, class)).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, storageError("read watermark", err)
	}
	last := time.UnixMilli(ms)
	return allow(&last, now, d.intervals.For(class)), nil
}

// RecordFired implements Deduplicator.
func (d *RedisDeduplicator) RecordFired(ctx context.Context, ticketID int64, class AlertClass, now time.Time) error {
	if err := validClass(class); err != nil {
		return err
	}
	if err := d.client.Set(ctx, dedupKey(ticketID, class), now.UnixMilli(), d.retention).Err(); err != nil {
		return storageError("write watermark", err)
	}
	return nil
}

func dedupKey(ticketID int64, class AlertClass) string {
	return fmt.Sprintf("%s:%d:%s", redisDedupPrefix, ticketID, class)
}
