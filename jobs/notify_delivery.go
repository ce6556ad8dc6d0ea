package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cargodesk/cargodesk/internal/jobs"
	"github.com/cargodesk/cargodesk/internal/notify"
)

// Publisher pushes a notification to the realtime fan-out layer.
type Publisher interface {
	SendToUser(ctx context.Context, userID int64, n notify.Notification) error
	BroadcastToRole(ctx context.Context, role string, n notify.Notification) error
}

// NotifyDeliveryJob drains notify tasks into the Publisher.
type NotifyDeliveryJob struct {
	Publisher Publisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewNotifyDeliveryJob initialises the delivery handlers.
func NewNotifyDeliveryJob(publisher Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyDeliveryJob {
	return &NotifyDeliveryJob{Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handlers returns the worker registrations for both task types.
func (j *NotifyDeliveryJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskNotifyUser, Handler: j.HandleUser},
		{Type: TaskNotifyRole, Handler: j.HandleRole},
	}
}

// HandleUser processes TaskNotifyUser tasks.
func (j *NotifyDeliveryJob) HandleUser(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Publisher == nil {
		return errors.New("notify delivery: handler not configured")
	}
	var payload NotifyUserPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UserID <= 0 {
		j.logger().Warn("drop malformed notify task", slog.String("type", t.Type()))
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskNotifyUser)
	err := j.Publisher.SendToUser(ctx, payload.UserID, payload.Notification)
	if err != nil {
		j.logger().Error("deliver user notification",
			slog.Int64("user_id", payload.UserID),
			slog.String("notification_id", payload.Notification.ID),
			slog.Any("error", err),
		)
	}
	return tracker.End(err)
}

// HandleRole processes TaskNotifyRole tasks.
func (j *NotifyDeliveryJob) HandleRole(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Publisher == nil {
		return errors.New("notify delivery: handler not configured")
	}
	var payload NotifyRolePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Role == "" {
		j.logger().Warn("drop malformed notify task", slog.String("type", t.Type()))
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskNotifyRole)
	err := j.Publisher.BroadcastToRole(ctx, payload.Role, payload.Notification)
	if err != nil {
		j.logger().Error("deliver role notification",
			slog.String("role", payload.Role),
			slog.String("notification_id", payload.Notification.ID),
			slog.Any("error", err),
		)
	}
	return tracker.End(err)
}

func (j *NotifyDeliveryJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
