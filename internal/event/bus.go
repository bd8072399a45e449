package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// DefaultTopic is the topic (or Redis stream) carrying chat events.
const DefaultTopic = "chatsync.updates"

const (
	metaSessionID = "session_id"
	metaType      = "event_type"
)

// subscriberBuffer bounds how far a slow observer may lag before events
// are dropped for it.
const subscriberBuffer = 64

// Bus publishes chat events to every current subscriber.
type Bus struct {
	pub   message.Publisher
	sub   message.Subscriber
	topic string
	log   zerolog.Logger

	mu     sync.Mutex
	closed bool
	redis  *redis.Client
}

// NewBus creates an in-process bus backed by watermill's gochannel.
func NewBus() *Bus {
	log := logging.Component("event")
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 100,
			// Keeps per-subscriber delivery in publish order.
			BlockPublishUntilSubscriberAck: true,
		},
		newLogger(log),
	)
	return &Bus{pub: pubsub, sub: pubsub, topic: DefaultTopic, log: log}
}

// NewRedisBus creates a bus backed by a Redis stream at cfg.RedisAddr.
// Subscribers read in fan-out mode, without a consumer group.
func NewRedisBus(cfg types.EventBusConfig) (*Bus, error) {
	log := logging.Component("event")
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	marshaler := redisstream.DefaultMarshallerUnmarshaller{}
	logger := newLogger(log)

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create redis publisher: %w", err)
	}

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: marshaler,
	}, logger)
	if err != nil {
		pub.Close()
		client.Close()
		return nil, fmt.Errorf("create redis subscriber: %w", err)
	}

	topic := cfg.Stream
	if topic == "" {
		topic = DefaultTopic
	}
	log.Info().Str("addr", cfg.RedisAddr).Str("stream", topic).Msg("using redis event bus")
	return &Bus{pub: pub, sub: sub, topic: topic, log: log, redis: client}, nil
}

// Open returns a Redis bus when cfg names an address, otherwise an
// in-process bus.
func Open(cfg types.EventBusConfig) (*Bus, error) {
	if cfg.RedisAddr == "" {
		return NewBus(), nil
	}
	return NewRedisBus(cfg)
}

// Publish sends e to all current subscribers.
func (b *Bus) Publish(e Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaSessionID, e.SessionID())
	msg.Metadata.Set(metaType, string(e.Type))
	return b.pub.Publish(b.topic, msg)
}

// PublishUpdate publishes u as a ChatUpdated event, logging failures.
func (b *Bus) PublishUpdate(u types.Update) {
	if err := b.Publish(Event{Type: ChatUpdated, Update: u}); err != nil {
		b.log.Warn().Err(err).Str("sessionID", u.SessionID).Msg("publish update failed")
	}
}

// Subscribe returns a channel of events for sessionID, or for every chat
// when sessionID is empty. The channel is closed when ctx is done or the
// bus is closed. Events are dropped for a subscriber that falls more than
// a small buffer behind.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, error) {
	msgs, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			if sessionID != "" && msg.Metadata.Get(metaSessionID) != sessionID {
				msg.Ack()
				continue
			}

			var e Event
			err := json.Unmarshal(msg.Payload, &e)
			msg.Ack()
			if err != nil {
				b.log.Warn().Err(err).Str("uuid", msg.UUID).Msg("dropping undecodable event")
				continue
			}

			select {
			case out <- e:
			case <-ctx.Done():
				return
			default:
				b.log.Warn().Str("sessionID", e.SessionID()).Msg("observer lagging, dropping event")
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down and closes every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.pub.Close()
	// The gochannel pub/sub is a single object; redis has separate halves.
	if b.redis != nil {
		if serr := b.sub.Close(); err == nil {
			err = serr
		}
		if rerr := b.redis.Close(); err == nil {
			err = rerr
		}
	}
	return err
}
