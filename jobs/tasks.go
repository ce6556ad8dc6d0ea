package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/cargodesk/cargodesk/internal/notify"
)

const (
	// QueueNotifications is the default queue for outbound notifications.
	QueueNotifications = "notifications"
	// TaskNotifyUser delivers a notification to one user.
	TaskNotifyUser = "notify:user"
	// TaskNotifyRole broadcasts a notification to every holder of a role.
	TaskNotifyRole = "notify:role"
)

// NotifyUserPayload is the body of a TaskNotifyUser task.
type NotifyUserPayload struct {
	UserID       int64               `json:"user_id"`
	Notification notify.Notification `json:"notification"`
}

// NotifyRolePayload is the body of a TaskNotifyRole task.
type NotifyRolePayload struct {
	Role         string              `json:"role"`
	Notification notify.Notification `json:"notification"`
}

// NewNotifyUserTask constructs an Asynq task.
func NewNotifyUserTask(payload NotifyUserPayload) (*asynq.Task, error) {
	if payload.UserID <= 0 {
		return nil, fmt.Errorf("jobs: invalid user id %d", payload.UserID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyUser, data), nil
}

// NewNotifyRoleTask constructs an Asynq task.
func NewNotifyRoleTask(payload NotifyRolePayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.Role) == "" {
		return nil, errors.New("jobs: role required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyRole, data), nil
}

// taskID makes one logical delivery idempotent across enqueue retries.
func taskID(n notify.Notification, target string) string {
	return n.ID + ":" + target
}
