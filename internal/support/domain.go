package support

import (
	"errors"
	"time"
)

// ErrNotFound indicates that the ticket does not exist.
var ErrNotFound = errors.New("support: ticket not found")

// Status enumerates ticket lifecycle states.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// IsActive reports whether the ticket is still being worked.
func (s Status) IsActive() bool {
	return s == StatusOpen || s == StatusInProgress
}

// Ticket is the compliance-relevant snapshot of a support ticket.
type Ticket struct {
	ID                   int64
	Subject              string
	Status               Status
	CreatedAt            time.Time
	FirstResponseAt      *time.Time
	ResolvedAt           *time.Time
	AssignedToUserID     *int64
	RequesterUserID      int64
	LastWarnNotifiedAt   *time.Time
	LastBreachNotifiedAt *time.Time
}

// WatermarkKind selects one of the two persisted dedup watermarks.
type WatermarkKind string

const (
	WatermarkWarn   WatermarkKind = "warn"
	WatermarkBreach WatermarkKind = "breach"
)

// Watermark returns the last-notified instant for kind as loaded with the ticket.
func (t Ticket) Watermark(kind WatermarkKind) *time.Time {
	switch kind {
	case WatermarkWarn:
		return t.LastWarnNotifiedAt
	case WatermarkBreach:
		return t.LastBreachNotifiedAt
	default:
		return nil
	}
}
