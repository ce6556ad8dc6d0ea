package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cargodesk/cargodesk/internal/compliance"
	"github.com/cargodesk/cargodesk/internal/notify"
)

// ComplianceCLI runs one dry-run SLA evaluation pass. Notifications are only
// logged and nothing is recorded.
type ComplianceCLI struct {
	tickets    compliance.TicketSource
	thresholds compliance.Thresholds
	routes     compliance.Routes
	clock      func() time.Time
}

// NewComplianceCLI constructs the CLI.
func NewComplianceCLI(tickets compliance.TicketSource, thresholds compliance.Thresholds, routes compliance.Routes) (*ComplianceCLI, error) {
	if tickets == nil {
		return nil, errors.New("sla-check: ticket source required")
	}
	return &ComplianceCLI{
		tickets:    tickets,
		thresholds: thresholds,
		routes:     routes,
		clock:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// SLACheckOptions defines available flags for the sla-check command.
type SLACheckOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CheckCommand evaluates every open ticket and prints per-state counts. It
// exits 10 when at least one ticket is breached.
func (c *ComplianceCLI) CheckCommand(ctx context.Context, opts SLACheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	scheduler, err := compliance.NewScheduler(compliance.SchedulerConfig{
		Tickets:    c.tickets,
		Dedup:      compliance.NewMemoryDeduplicator(compliance.DefaultIntervals()),
		Dispatcher: notify.LogDispatcher{Logger: logger},
		Thresholds: c.thresholds,
		Routes:     c.routes,
		Logger:     logger,
		Clock:      c.clock,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "sla-check: %v\n", err)
		return 1
	}
	summary, err := scheduler.Tick(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "sla-check: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "sla-check: encode json: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "open tickets: %d\n", summary.Loaded)
		_, _ = fmt.Fprintf(opts.Stdout, "  ok:       %d\n", summary.OK)
		_, _ = fmt.Fprintf(opts.Stdout, "  warning:  %d\n", summary.Warning)
		_, _ = fmt.Fprintf(opts.Stdout, "  breached: %d\n", summary.Breached)
	}
	if summary.Breached > 0 {
		return 10
	}
	return 0
}
