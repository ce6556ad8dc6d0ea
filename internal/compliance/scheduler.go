package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	jobmetrics "github.com/cargodesk/cargodesk/internal/jobs"
	"github.com/cargodesk/cargodesk/internal/notify"
	"github.com/cargodesk/cargodesk/internal/support"
)

// JobName labels the SLA sweep in logs and metrics.
const JobName = "compliance:sla_scan"

// DefaultTicketTimeout bounds the processing of a single ticket.
const DefaultTicketTimeout = 30 * time.Second

// TicketSource loads the tickets a tick evaluates.
type TicketSource interface {
	FindOpenTickets(ctx context.Context) ([]support.Ticket, error)
}

// Dispatcher delivers notifications to a user or to every member of a role.
type Dispatcher interface {
	SendToUser(ctx context.Context, userID int64, n notify.Notification) error
	BroadcastToRole(ctx context.Context, role string, n notify.Notification) error
}

// Routes names the role groups alerts are broadcast to.
type Routes struct {
	StaffRole   string
	ManagerRole string
	AdminRole   string
}

// DefaultRoutes returns the seeded role names.
func DefaultRoutes() Routes {
	return Routes{StaffRole: "staff", ManagerRole: "manager", AdminRole: "admin"}
}

// TickSummary reports what one tick did.
type TickSummary struct {
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Loaded      int           `json:"loaded"`
	OK          int           `json:"ok"`
	Warning     int           `json:"warning"`
	Breached    int           `json:"breached"`
	Fired       int           `json:"fired"`
	Suppressed  int           `json:"suppressed"`
	Failed      int           `json:"failed"`
	LoadFailure string        `json:"load_failure,omitempty"`
}

// StatusSnapshot is a point-in-time copy of a MonitorState.
type StatusSnapshot struct {
	Armed       bool        `json:"armed"`
	LastRunAt   time.Time   `json:"last_run_at"`
	LastSummary TickSummary `json:"last_summary"`
}

// MonitorState is the monitor's owned status: whether it is armed and when it last ran.
type MonitorState struct {
	mu        sync.RWMutex
	armed     bool
	lastRunAt time.Time
	last      TickSummary
}

// NewMonitorState returns a disarmed state.
func NewMonitorState() *MonitorState {
	return &MonitorState{}
}

// SetArmed flips the armed flag.
func (s *MonitorState) SetArmed(armed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = armed
}

// Snapshot copies the current status.
func (s *MonitorState) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusSnapshot{Armed: s.armed, LastRunAt: s.lastRunAt, LastSummary: s.last}
}

func (s *MonitorState) recordRun(at time.Time, summary TickSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = at
	s.last = summary
}

// SchedulerConfig collects the dependencies of a Scheduler.
type SchedulerConfig struct {
	Tickets       TicketSource
	Dedup         Deduplicator
	Dispatcher    Dispatcher
	Thresholds    Thresholds
	Routes        Routes
	TicketTimeout time.Duration
	State         *MonitorState
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
	Clock         func() time.Time
}

// Scheduler runs evaluation passes over open tickets. Passes never overlap.
type Scheduler struct {
	tickets       TicketSource
	dedup         Deduplicator
	dispatcher    Dispatcher
	thresholds    Thresholds
	routes        Routes
	ticketTimeout time.Duration
	state         *MonitorState
	logger        *slog.Logger
	metrics       *jobmetrics.Metrics
	clock         func() time.Time
	running       atomic.Bool
}

// NewScheduler validates cfg and builds a Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Tickets == nil {
		return nil, errors.New("compliance: ticket source required")
	}
	if cfg.Dedup == nil {
		return nil, errors.New("compliance: deduplicator required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("compliance: dispatcher required")
	}
	if cfg.TicketTimeout <= 0 {
		cfg.TicketTimeout = DefaultTicketTimeout
	}
	defaults := DefaultRoutes()
	if cfg.Routes.StaffRole == "" {
		cfg.Routes.StaffRole = defaults.StaffRole
	}
	if cfg.Routes.ManagerRole == "" {
		cfg.Routes.ManagerRole = defaults.ManagerRole
	}
	if cfg.Routes.AdminRole == "" {
		cfg.Routes.AdminRole = defaults.AdminRole
	}
	if cfg.State == nil {
		cfg.State = NewMonitorState()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		tickets:       cfg.Tickets,
		dedup:         cfg.Dedup,
		dispatcher:    cfg.Dispatcher,
		thresholds:    cfg.Thresholds,
		routes:        cfg.Routes,
		ticketTimeout: cfg.TicketTimeout,
		state:         cfg.State,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		clock:         cfg.Clock,
	}, nil
}

// State exposes the owned status object.
func (s *Scheduler) State() *MonitorState {
	return s.state
}

// Status returns a snapshot of the monitor status.
func (s *Scheduler) Status() StatusSnapshot {
	return s.state.Snapshot()
}

// Tick runs one evaluation pass. Per-ticket failures are logged and counted but
// never abort the pass; only a failure to load tickets is returned.
func (s *Scheduler) Tick(ctx context.Context) (TickSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log().Warn("tick skipped, previous tick still running")
		return TickSummary{}, ErrTickInProgress
	}
	defer s.running.Store(false)

	now := s.clock()
	summary := TickSummary{StartedAt: now}
	tracker := s.metrics.Track(JobName)
	logger := s.log()

	tickets, err := s.tickets.FindOpenTickets(ctx)
	if err != nil {
		err = storageError("load open tickets", err)
		logger.Error("load open tickets", slog.Any("error", err))
		summary.LoadFailure = err.Error()
		summary.Duration = time.Since(now)
		s.state.recordRun(now, summary)
		return summary, tracker.End(err)
	}
	summary.Loaded = len(tickets)

	for _, t := range tickets {
		if ctx.Err() != nil {
			logger.Warn("tick interrupted", slog.Any("error", ctx.Err()))
			break
		}
		// Resolved and closed tickets are left alone even if a stale snapshot slips through.
		if !t.Status.IsActive() {
			continue
		}
		res := s.processWithTimeout(ctx, t, now)
		switch res.state {
		case StateOK:
			summary.OK++
		case StateWarning:
			summary.Warning++
		case StateBreached:
			summary.Breached++
		}
		class := classFor(res.state)
		switch {
		case res.err != nil:
			summary.Failed++
			s.metrics.AddAlert(string(class), jobmetrics.OutcomeFailed)
			logger.Error("ticket compliance",
				slog.Int64("ticket_id", t.ID),
				slog.String("state", res.state.String()),
				slog.Any("error", res.err),
			)
		case res.fired:
			summary.Fired++
			s.metrics.AddAlert(string(class), jobmetrics.OutcomeFired)
		case res.state != StateOK:
			summary.Suppressed++
			s.metrics.AddAlert(string(class), jobmetrics.OutcomeSuppressed)
		}
	}

	s.metrics.AddEvaluated(StateOK.String(), summary.OK)
	s.metrics.AddEvaluated(StateWarning.String(), summary.Warning)
	s.metrics.AddEvaluated(StateBreached.String(), summary.Breached)
	summary.Duration = time.Since(now)
	s.state.recordRun(now, summary)
	logger.Info("completed sla scan",
		slog.Int("loaded", summary.Loaded),
		slog.Int("warning", summary.Warning),
		slog.Int("breached", summary.Breached),
		slog.Int("fired", summary.Fired),
		slog.Int("suppressed", summary.Suppressed),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration),
	)
	return summary, tracker.End(nil)
}

type ticketResult struct {
	state State
	fired bool
	err   error
}

// processWithTimeout bounds a ticket even when a collaborator ignores ctx.
func (s *Scheduler) processWithTimeout(ctx context.Context, t support.Ticket, now time.Time) ticketResult {
	tctx, cancel := context.WithTimeout(ctx, s.ticketTimeout)
	defer cancel()
	done := make(chan ticketResult, 1)
	go func() {
		done <- s.processTicket(tctx, t, now)
	}()
	select {
	case res := <-done:
		return res
	case <-tctx.Done():
		return ticketResult{state: Evaluate(t, now, s.thresholds), err: fmt.Errorf("compliance: ticket %d: %w", t.ID, tctx.Err())}
	}
}

func (s *Scheduler) processTicket(ctx context.Context, t support.Ticket, now time.Time) ticketResult {
	state := Evaluate(t, now, s.thresholds)
	if state == StateOK {
		return ticketResult{state: state}
	}
	class := classFor(state)
	ok, err := s.mayFire(ctx, t, class, now)
	if err != nil {
		return ticketResult{state: state, err: err}
	}
	if !ok {
		return ticketResult{state: state}
	}
	if err := s.dispatch(ctx, t, class, now); err != nil {
		return ticketResult{state: state, err: err}
	}
	// The tick has already given up on this ticket and may have released the
	// overlap guard. Leave the watermark alone so the next tick owns it.
	if err := ctx.Err(); err != nil {
		return ticketResult{state: state, err: fmt.Errorf("compliance: ticket %d: %w", t.ID, err)}
	}
	if err := s.dedup.RecordFired(ctx, t.ID, class, now); err != nil {
		return ticketResult{state: state, fired: true, err: err}
	}
	return ticketResult{state: state, fired: true}
}

func (s *Scheduler) mayFire(ctx context.Context, t support.Ticket, class AlertClass, now time.Time) (bool, error) {
	if sd, ok := s.dedup.(SnapshotDeduplicator); ok {
		return sd.MayFireTicket(ctx, t, class, now)
	}
	return s.dedup.MayFire(ctx, t.ID, class, now)
}

// dispatch delivers one logical firing. A breach goes to both the manager and
// admin groups; if either broadcast fails the firing is not recorded and the
// next tick retries it.
func (s *Scheduler) dispatch(ctx context.Context, t support.Ticket, class AlertClass, now time.Time) error {
	n := buildNotification(t, class, now)
	if class == AlertWarning {
		if t.AssignedToUserID != nil {
			if err := s.dispatcher.SendToUser(ctx, *t.AssignedToUserID, n); err != nil {
				return dispatchError(fmt.Sprintf("user %d", *t.AssignedToUserID), err)
			}
			return nil
		}
		if err := s.dispatcher.BroadcastToRole(ctx, s.routes.StaffRole, n); err != nil {
			return dispatchError("role "+s.routes.StaffRole, err)
		}
		return nil
	}
	var errs []error
	for _, role := range []string{s.routes.ManagerRole, s.routes.AdminRole} {
		if err := s.dispatcher.BroadcastToRole(ctx, role, n); err != nil {
			errs = append(errs, dispatchError("role "+role, err))
		}
	}
	return errors.Join(errs...)
}

func buildNotification(t support.Ticket, class AlertClass, now time.Time) notify.Notification {
	data := map[string]any{
		"ticket_id":         t.ID,
		"subject":           t.Subject,
		"status":            string(t.Status),
		"requester_user_id": t.RequesterUserID,
	}
	if t.AssignedToUserID != nil {
		data["assigned_to_user_id"] = *t.AssignedToUserID
	}
	if class == AlertBreach {
		data["state"] = StateBreached.String()
		return notify.New(notify.KindSLABreach,
			fmt.Sprintf("SLA breached: %s", t.Subject),
			fmt.Sprintf("Ticket #%d has breached its SLA.", t.ID),
			data, now)
	}
	data["state"] = StateWarning.String()
	return notify.New(notify.KindSLAWarning,
		fmt.Sprintf("SLA at risk: %s", t.Subject),
		fmt.Sprintf("Ticket #%d is approaching its SLA limit.", t.ID),
		data, now)
}

func classFor(state State) AlertClass {
	if state == StateBreached {
		return AlertBreach
	}
	return AlertWarning
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("job", JobName))
	}
	return slog.Default().With(slog.String("job", JobName))
}
