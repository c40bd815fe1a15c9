package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/saffronhouse/orders-backend/pkg/logger"
)

type pubSub interface {
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
}

// envelope is the frame relayed between API instances.
type envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RedisBridge publishes events through a redis channel and relays every
// message it receives into the local hub, so rooms span all API instances.
type RedisBridge struct {
	redis   pubSub
	hub     *Hub
	channel string
	logg    *logger.Logger
}

func NewRedisBridge(redis pubSub, hub *Hub, channel string, logg *logger.Logger) (*RedisBridge, error) {
	if redis == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub required")
	}
	if channel == "" {
		return nil, fmt.Errorf("bridge channel required")
	}
	return &RedisBridge{redis: redis, hub: hub, channel: channel, logg: logg}, nil
}

// Publish sends the event to redis. If redis is unavailable the event is
// delivered to local subscribers only.
func (b *RedisBridge) Publish(ctx context.Context, room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logg.Error(b.logg.WithField(ctx, "event", event), "encode realtime payload", err)
		return
	}
	body, err := json.Marshal(envelope{Room: room, Event: event, Data: data})
	if err != nil {
		b.logg.Error(b.logg.WithField(ctx, "event", event), "encode realtime envelope", err)
		return
	}
	if err := b.redis.Publish(ctx, b.channel, body); err != nil {
		b.logg.Warn(b.logg.WithFields(ctx, map[string]any{"event": event, "room": room, "error": err.Error()}), "redis publish failed, delivering locally")
		b.hub.Deliver(room, Message{Event: event, Data: data})
	}
}

// Run subscribes to the bridge channel and relays until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub, err := b.redis.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("subscribe realtime channel: %w", err)
	}
	defer func() { _ = sub.Close() }()

	b.logg.Info(b.logg.WithField(ctx, "channel", b.channel), "realtime redis bridge started")
	b.relay(ctx, sub.Channel())
	return nil
}

func (b *RedisBridge) relay(ctx context.Context, messages <-chan *goredis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.relayOne(ctx, msg)
		}
	}
}

func (b *RedisBridge) relayOne(ctx context.Context, msg *goredis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Room == "" || env.Event == "" {
		b.logg.Warn(b.logg.WithField(ctx, "channel", msg.Channel), "dropping malformed realtime envelope")
		return
	}
	b.hub.Deliver(env.Room, Message{Event: env.Event, Data: env.Data})
}
