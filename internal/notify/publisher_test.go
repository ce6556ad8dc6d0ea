package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherRoutesByChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	sub := client.Subscribe(ctx, UserChannel(12), RoleChannel("manager"))
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client)
	now := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, pub.SendToUser(ctx, 12, New(KindSLAWarning, "SLA warning", "ticket 4 at risk", map[string]any{"ticket_id": 4}, now)))
	require.NoError(t, pub.BroadcastToRole(ctx, "manager", New(KindSLABreach, "SLA breach", "ticket 5 breached", nil, now)))

	ch := sub.Channel()
	got := map[string]Notification{}
	for len(got) < 2 {
		select {
		case msg := <-ch:
			var n Notification
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
			got[msg.Channel] = n
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for messages, got %d", len(got))
		}
	}
	require.Equal(t, KindSLAWarning, got["notifications:user:12"].Kind)
	require.Equal(t, KindSLABreach, got["notifications:role:manager"].Kind)
	require.NotEmpty(t, got["notifications:role:manager"].ID)
	require.Equal(t, now, got["notifications:user:12"].CreatedAt)
}
