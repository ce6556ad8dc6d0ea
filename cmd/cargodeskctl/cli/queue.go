package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/cargodesk/cargodesk/jobs"
)

// QueueCLI wraps inspection helpers for the notification queue.
type QueueCLI struct {
	inspector *asynq.Inspector
	queue     string
}

// NewQueueCLI initialises the CLI helpers against the given Redis instance.
func NewQueueCLI(redisOpts asynq.RedisClientOpt, queue string) (*QueueCLI, error) {
	if queue == "" {
		queue = jobs.QueueNotifications
	}
	inspector := asynq.NewInspector(redisOpts)
	return &QueueCLI{inspector: inspector, queue: queue}, nil
}

// Close releases underlying resources.
func (c *QueueCLI) Close() error {
	if c == nil || c.inspector == nil {
		return nil
	}
	return c.inspector.Close()
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the notification queue.
func (c *QueueCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("queue cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(c.queue)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: c.queue}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListRetry returns deliveries waiting for another attempt.
func (c *QueueCLI) ListRetry(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("queue cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListRetryTasks(c.queue, asynq.PageSize(size), asynq.Page(1))
}

// QueueOptions defines available flags for the queue command.
type QueueOptions struct {
	ShowRetry bool
	Stdout    io.Writer
	Stderr    io.Writer
}

// Command prints queue statistics and, optionally, pending retries.
func (c *QueueCLI) Command(ctx context.Context, opts QueueOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "queue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	if !opts.ShowRetry {
		return 0
	}
	tasks, err := c.ListRetry(ctx, 20)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "queue: %v\n", err)
		return 1
	}
	for _, t := range tasks {
		_, _ = fmt.Fprintf(opts.Stdout, "  %s %s retried=%d last_err=%q\n", t.ID, t.Type, t.Retried, t.LastErr)
	}
	return 0
}
