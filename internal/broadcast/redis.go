package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisChannel is the Pub/Sub channel every engine process publishes
// domain events to and subscribes on, so a fleet of paper-trading
// processes observes the same liquidation/settlement/update stream.
const RedisChannel = "crossengine.events"

// RedisBroadcaster publishes domain events over Redis Pub/Sub. It
// implements Broadcaster.
type RedisBroadcaster struct {
	rdb *redis.Client
	ctx context.Context
}

// NewRedisBroadcaster wraps an existing Redis client.
func NewRedisBroadcaster(ctx context.Context, rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, ctx: ctx}
}

// redisEnvelope is the wire shape published on RedisChannel.
type redisEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Emit publishes event+payload to RedisChannel. Publish failures are
// logged, not surfaced — a broadcaster outage must never roll back an
// engine mutation that already succeeded.
func (r *RedisBroadcaster) Emit(event string, payload any) {
	data, err := json.Marshal(redisEnvelope{Event: event, Payload: payload})
	if err != nil {
		slog.Error("broadcast: marshal failed", "event", event, "err", err)
		return
	}
	if err := r.rdb.Publish(r.ctx, RedisChannel, data).Err(); err != nil {
		slog.Error("broadcast: redis publish failed", "event", event, "err", err)
	}
}

// Subscribe returns a Redis subscription on RedisChannel, for a second
// process (or the same process, for symmetry with the in-proc WSHub) to
// observe the event stream.
func Subscribe(ctx context.Context, rdb *redis.Client) *redis.PubSub {
	return rdb.Subscribe(ctx, RedisChannel)
}
