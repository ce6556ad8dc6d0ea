// Package compliance evaluates support tickets against SLA thresholds and
// drives deduplicated alerting for the ones falling behind.
package compliance

import (
	"time"

	"github.com/cargodesk/cargodesk/internal/support"
)

// State is the outcome of evaluating a ticket against the SLA thresholds.
type State int

const (
	StateOK State = iota
	StateWarning
	StateBreached
)

// String renders the state for logs and metrics.
func (s State) String() string {
	switch s {
	case StateWarning:
		return "warning"
	case StateBreached:
		return "breached"
	default:
		return "ok"
	}
}

// Thresholds configures both SLA clocks. WarningFactor is the fraction of a
// limit after which the ticket is considered at risk.
type Thresholds struct {
	FirstResponseLimit time.Duration
	ResolutionLimit    time.Duration
	WarningFactor      float64
}

// DefaultThresholds returns the stock SLA policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FirstResponseLimit: 60 * time.Minute,
		ResolutionLimit:    72 * time.Hour,
		WarningFactor:      0.8,
	}
}

// Evaluate classifies a ticket at now. It is pure: the result depends only on
// the ticket timestamps, now and th.
func Evaluate(t support.Ticket, now time.Time, th Thresholds) State {
	state := StateOK
	if t.FirstResponseAt == nil {
		state = maxState(state, classify(now.Sub(t.CreatedAt), th.FirstResponseLimit, th.WarningFactor))
	}
	end := now
	if t.ResolvedAt != nil {
		end = *t.ResolvedAt
	}
	return maxState(state, classify(end.Sub(t.CreatedAt), th.ResolutionLimit, th.WarningFactor))
}

func classify(age, limit time.Duration, factor float64) State {
	if limit <= 0 {
		return StateOK
	}
	switch {
	case age > limit:
		return StateBreached
	case float64(age) > float64(limit)*factor:
		return StateWarning
	default:
		return StateOK
	}
}

func maxState(a, b State) State {
	if b > a {
		return b
	}
	return a
}
