package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cargodesk/cargodesk/internal/support"
)

// AlertClass identifies an independently throttled alert stream.
type AlertClass string

const (
	AlertWarning AlertClass = "warning"
	AlertBreach  AlertClass = "breach"
)

// Intervals are the minimum gaps between two firings of the same class.
type Intervals struct {
	Warning time.Duration
	Breach  time.Duration
}

// DefaultIntervals returns the stock re-notify policy.
func DefaultIntervals() Intervals {
	return Intervals{Warning: 3 * time.Hour, Breach: 6 * time.Hour}
}

// For returns the interval configured for class.
func (i Intervals) For(class AlertClass) time.Duration {
	if class == AlertBreach {
		return i.Breach
	}
	return i.Warning
}

// Deduplicator decides whether an alert may fire and records firings. The two
// classes are tracked independently per ticket.
type Deduplicator interface {
	MayFire(ctx context.Context, ticketID int64, class AlertClass, now time.Time) (bool, error)
	RecordFired(ctx context.Context, ticketID int64, class AlertClass, now time.Time) error
}

// SnapshotDeduplicator decides from the watermarks loaded with the ticket,
// saving a read per ticket. The scheduler prefers it when available.
type SnapshotDeduplicator interface {
	Deduplicator
	MayFireTicket(ctx context.Context, t support.Ticket, class AlertClass, now time.Time) (bool, error)
}

// Strategy names a Deduplicator backing store.
type Strategy string

const (
	StrategyMemory Strategy = "memory"
	StrategyTicket Strategy = "ticket"
	StrategyRedis  Strategy = "redis"
)

// DedupDeps carries the backing stores a strategy may need.
type DedupDeps struct {
	Tickets WatermarkStore
	Redis   *redis.Client
}

// NewDeduplicator builds the Deduplicator selected by strategy.
func NewDeduplicator(strategy Strategy, intervals Intervals, deps DedupDeps) (Deduplicator, error) {
	switch strategy {
	case StrategyMemory, "":
		return NewMemoryDeduplicator(intervals), nil
	case StrategyTicket:
		if deps.Tickets == nil {
			return nil, errors.New("compliance: ticket strategy requires a watermark store")
		}
		return NewTicketDeduplicator(intervals, deps.Tickets), nil
	case StrategyRedis:
		if deps.Redis == nil {
			return nil, errors.New("compliance: redis strategy requires a redis client")
		}
		return NewRedisDeduplicator(deps.Redis, intervals, DefaultRedisRetention), nil
	default:
		return nil, fmt.Errorf("compliance: unknown dedup strategy %q", strategy)
	}
}

// allow applies the re-notify rule. A missing watermark is infinitely old.
func allow(last *time.Time, now time.Time, interval time.Duration) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= interval
}

func validClass(class AlertClass) error {
	switch class {
	case AlertWarning, AlertBreach:
		return nil
	default:
		return fmt.Errorf("compliance: unknown alert class %q", class)
	}
}
