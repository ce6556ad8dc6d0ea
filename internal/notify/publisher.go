package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "notifications"

// UserChannel is the pub/sub channel carrying one user's notifications.
func UserChannel(userID int64) string {
	return channelPrefix + ":user:" + strconv.FormatInt(userID, 10)
}

// RoleChannel is the pub/sub channel carrying a role broadcast.
func RoleChannel(role string) string {
	return channelPrefix + ":role:" + role
}

// RedisPublisher fans notifications out over Redis pub/sub; connected
// websocket gateways subscribe to the channels of their sessions.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher constructs the publisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// SendToUser publishes to the user's channel.
func (p *RedisPublisher) SendToUser(ctx context.Context, userID int64, n Notification) error {
	return p.publish(ctx, UserChannel(userID), n)
}

// BroadcastToRole publishes to the role's channel.
func (p *RedisPublisher) BroadcastToRole(ctx context.Context, role string, n Notification) error {
	return p.publish(ctx, RoleChannel(role), n)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode: %w", err)
	}
	if err := p.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("notify: publish %s: %w", channel, err)
	}
	return nil
}
