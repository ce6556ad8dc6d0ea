// Package notify defines outbound notifications and the sinks that deliver them.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification for routing on the client side.
type Kind string

const (
	KindSLAWarning Kind = "sla_warning"
	KindSLABreach  Kind = "sla_breach"
)

// Notification is the routing-relevant content of an outbound message.
type Notification struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// New stamps a notification with a fresh ID and creation time.
func New(kind Kind, title, message string, data map[string]any, now time.Time) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: now.UTC(),
	}
}

// LogDispatcher only logs what would have been delivered.
type LogDispatcher struct {
	Logger *slog.Logger
}

// SendToUser logs a user-targeted notification.
func (d LogDispatcher) SendToUser(_ context.Context, userID int64, n Notification) error {
	d.logger().Info("notify user",
		slog.Int64("user_id", userID),
		slog.String("kind", string(n.Kind)),
		slog.String("title", n.Title),
		slog.String("notification_id", n.ID),
	)
	return nil
}

// BroadcastToRole logs a role-broadcast notification.
func (d LogDispatcher) BroadcastToRole(_ context.Context, role string, n Notification) error {
	d.logger().Info("notify role",
		slog.String("role", role),
		slog.String("kind", string(n.Kind)),
		slog.String("title", n.Title),
		slog.String("notification_id", n.ID),
	)
	return nil
}

func (d LogDispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
