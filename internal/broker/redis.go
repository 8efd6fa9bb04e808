package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const outboxSize = 1024

var ErrOutboxFull = errors.New("broker: outbox full")

// Redis relays envelopes through a Redis pub/sub channel so every server
// instance pushes to its own connections. Local subscribers only see what
// comes back from Redis, including this instance's own publishes.
type Redis struct {
	client  *redis.Client
	channel string
	outbox  chan []byte

	handlers handlers
}

// NewRedis connects to url and verifies the server answers.
func NewRedis(url, channel string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return newRedis(c, channel), nil
}

func newRedis(c *redis.Client, channel string) *Redis {
	return &Redis{
		client:  c,
		channel: channel,
		outbox:  make(chan []byte, outboxSize),
	}
}

// Publish queues the envelope; the Run loop performs the network write.
func (b *Redis) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case b.outbox <- data:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (b *Redis) Subscribe(h Handler) {
	b.handlers.add(h)
}

func (b *Redis) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription so our own first publishes come back.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}
	incoming := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil

		case data := <-b.outbox:
			if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
				log.Printf("broker: publish error: %v", err)
			}

		case msg, ok := <-incoming:
			if !ok {
				return errors.New("redis: subscription closed")
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("broker: dropping malformed envelope: %v", err)
				continue
			}
			b.handlers.dispatch(env)
		}
	}
}

func (b *Redis) Close() error {
	return b.client.Close()
}
