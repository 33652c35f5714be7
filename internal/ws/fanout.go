package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Fanout delivers a frame to every connection joined to a room, wherever
// that connection lives. exceptID names a connection to skip.
type Fanout interface {
	Publish(ctx context.Context, roomID string, f Frame, exceptID string) error
}

// LocalFanout delivers straight to the in-process hub.
type LocalFanout struct {
	hub *Hub
}

func NewLocalFanout(hub *Hub) *LocalFanout {
	return &LocalFanout{hub: hub}
}

func (l *LocalFanout) Publish(_ context.Context, roomID string, f Frame, exceptID string) error {
	l.hub.Deliver(roomID, f, exceptID)
	return nil
}

// redisEnvelope is what travels over the pub/sub channel.
type redisEnvelope struct {
	Room   string          `json:"room"`
	Event  string          `json:"event"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisFanout publishes frames on a Redis channel shared by every instance;
// Run delivers what arrives to the local hub.
type RedisFanout struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	log     zerolog.Logger
}

func NewRedisFanout(client redis.UniversalClient, channel string, hub *Hub, log zerolog.Logger) *RedisFanout {
	return &RedisFanout{
		client:  client,
		channel: channel,
		hub:     hub,
		log:     log.With().Str("component", "redis-fanout").Str("channel", channel).Logger(),
	}
}

func (r *RedisFanout) Publish(ctx context.Context, roomID string, f Frame, exceptID string) error {
	payload, err := json.Marshal(redisEnvelope{
		Room:   roomID,
		Event:  f.Event,
		Except: exceptID,
		Frame:  f.Bytes,
	})
	if err != nil {
		return fmt.Errorf("encode fanout envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Run subscribes to the channel and blocks until ctx is cancelled.
func (r *RedisFanout) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	r.log.Info().Msg("subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisFanout) deliver(payload string) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn().Err(err).Msg("discarding malformed fanout envelope")
		return
	}
	r.hub.Deliver(env.Room, Frame{Event: env.Event, Bytes: env.Frame}, env.Except)
}

// Ping checks connectivity to Redis.
func (r *RedisFanout) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
