package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cargodesk/cargodesk/internal/notify"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	ids   map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var id, queue string
	for _, opt := range opts {
		switch opt.Type() {
		case asynq.TaskIDOpt:
			id = opt.Value().(string)
		case asynq.QueueOpt:
			queue = opt.Value().(string)
		}
	}
	if f.ids[id] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.ids[id] = true
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: id, Queue: queue, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func newTestClient() (*Client, *fakeEnqueuer) {
	fake := &fakeEnqueuer{ids: make(map[string]bool)}
	return &Client{client: fake, queue: QueueNotifications, maxRetry: 5}, fake
}

func sampleNotification() notify.Notification {
	return notify.New(notify.KindSLABreach, "SLA breached: Lost pallet", "Ticket #4 has breached its SLA.",
		map[string]any{"ticket_id": 4}, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
}

func TestClientEnqueuesNotifyTasks(t *testing.T) {
	client, fake := newTestClient()
	n := sampleNotification()
	ctx := context.Background()

	require.NoError(t, client.SendToUser(ctx, 42, n))
	require.NoError(t, client.BroadcastToRole(ctx, "manager", n))
	require.NoError(t, client.BroadcastToRole(ctx, "admin", n))
	require.Len(t, fake.tasks, 3)

	var user NotifyUserPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &user))
	require.Equal(t, TaskNotifyUser, fake.tasks[0].Type())
	require.Equal(t, int64(42), user.UserID)
	require.Equal(t, n.ID, user.Notification.ID)

	var role NotifyRolePayload
	require.NoError(t, json.Unmarshal(fake.tasks[2].Payload(), &role))
	require.Equal(t, TaskNotifyRole, fake.tasks[2].Type())
	require.Equal(t, "admin", role.Role)
}

func TestClientTreatsDuplicateDeliveryAsSent(t *testing.T) {
	client, fake := newTestClient()
	n := sampleNotification()

	require.NoError(t, client.BroadcastToRole(context.Background(), "manager", n))
	require.NoError(t, client.BroadcastToRole(context.Background(), "manager", n))
	require.Len(t, fake.tasks, 1)
}

func TestClientReportsEnqueueFailure(t *testing.T) {
	client, fake := newTestClient()
	fake.err = errors.New("redis: connection refused")

	err := client.SendToUser(context.Background(), 1, sampleNotification())
	require.Error(t, err)
	require.ErrorIs(t, err, fake.err)

	require.Error(t, client.SendToUser(context.Background(), 0, sampleNotification()))
	require.Error(t, client.BroadcastToRole(context.Background(), " ", sampleNotification()))
}

func TestNotifyDeliveryPublishesToChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, notify.UserChannel(7), notify.RoleChannel("manager"))
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	job := NewNotifyDeliveryJob(notify.NewRedisPublisher(rdb), nil, nil)
	n := sampleNotification()

	userTask, err := NewNotifyUserTask(NotifyUserPayload{UserID: 7, Notification: n})
	require.NoError(t, err)
	require.NoError(t, job.HandleUser(ctx, userTask))

	roleTask, err := NewNotifyRoleTask(NotifyRolePayload{Role: "manager", Notification: n})
	require.NoError(t, err)
	require.NoError(t, job.HandleRole(ctx, roleTask))

	seen := map[string]notify.Notification{}
	for i := 0; i < 2; i++ {
		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)
		var got notify.Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		seen[msg.Channel] = got
	}
	require.Equal(t, n.ID, seen["notifications:user:7"].ID)
	require.Equal(t, notify.KindSLABreach, seen["notifications:role:manager"].Kind)
}

func TestNotifyDeliverySkipsMalformedPayload(t *testing.T) {
	job := NewNotifyDeliveryJob(notify.LogDispatcher{}, nil, nil)

	err := job.HandleUser(context.Background(), asynq.NewTask(TaskNotifyUser, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.HandleRole(context.Background(), asynq.NewTask(TaskNotifyRole, []byte(`{"role":""}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	_, err := NewWorker(WorkerConfig{RedisOpts: opts})
	require.Error(t, err)

	job := NewNotifyDeliveryJob(notify.LogDispatcher{}, nil, nil)
	w, err := NewWorker(WorkerConfig{RedisOpts: opts, Handlers: job.Handlers()})
	require.NoError(t, err)
	require.NotNil(t, w)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, "", nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"notifications","pending":0}`, rec.Body.String())
}
