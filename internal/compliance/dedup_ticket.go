package compliance

import (
	"context"
	"time"

	"github.com/cargodesk/cargodesk/internal/support"
)

// WatermarkStore persists dedup watermarks on the ticket record.
type WatermarkStore interface {
	Watermark(ctx context.Context, ticketID int64, kind support.WatermarkKind) (*time.Time, error)
	UpdateDedupWatermark(ctx context.Context, ticketID int64, kind support.WatermarkKind, at time.Time) error
}

// TicketDeduplicator stores watermarks on the ticket row so they survive restarts.
type TicketDeduplicator struct {
	intervals Intervals
	store     WatermarkStore
}

// NewTicketDeduplicator constructs the durable variant.
func NewTicketDeduplicator(intervals Intervals, store WatermarkStore) *TicketDeduplicator {
	return &TicketDeduplicator{intervals: intervals, store: store}
}

// MayFire implements Deduplicator. It reads the watermark from the store.
func (d *TicketDeduplicator) MayFire(ctx context.Context, ticketID int64, class AlertClass, now time.Time) (bool, error) {
	if err := validClass(class); err != nil {
		return false, err
	}
	last, err := d.store.Watermark(ctx, ticketID, watermarkKind(class))
	if err != nil {
		return false, storageError("read watermark", err)
	}
	return allow(last, now, d.intervals.For(class)), nil
}

// MayFireTicket implements SnapshotDeduplicator using the watermark already on t.
func (d *TicketDeduplicator) MayFireTicket(_ context.Context, t support.Ticket, class AlertClass, now time.Time) (bool, error) {
	if err := validClass(class); err != nil {
		return false, err
	}
	return allow(t.Watermark(watermarkKind(class)), now, d.intervals.For(class)), nil
}

// RecordFired implements Deduplicator.
func (d *TicketDeduplicator) RecordFired(ctx context.Context, ticketID int64, class AlertClass, now time.Time) error {
	if err := validClass(class); err != nil {
		return err
	}
	if err := d.store.UpdateDedupWatermark(ctx, ticketID, watermarkKind(class), now); err != nil {
		return storageError("write watermark", err)
	}
	return nil
}

func watermarkKind(class AlertClass) support.WatermarkKind {
	if class == AlertBreach {
		return support.WatermarkBreach
	}
	return support.WatermarkWarn
}
