package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"couple-todo-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroker publishes snapshots on a Redis channel so every server instance
// can push them to its own websocket sessions
type RedisBroker struct {
	*fanout
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisClient initializes a redis client
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisBroker subscribes to channel and starts dispatching messages.
// It returns once the subscription is confirmed by the server.
func NewRedisBroker(ctx context.Context, client *redis.Client, channel string) (*RedisBroker, error) {
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBroker{
		fanout:  newFanout(),
		client:  client,
		channel: channel,
		pubsub:  pubsub,
		cancel:  cancel,
	}

	b.wg.Add(1)
	go b.run(runCtx)

	return b, nil
}

func (b *RedisBroker) run(ctx context.Context) {
	defer b.wg.Done()
	messages := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var snapshot models.TaskSnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
				log.Error().Err(err).Str("channel", b.channel).Msg("Failed to decode snapshot")
				continue
			}
			b.deliver(&snapshot)
		}
	}
}

// Publish sends snapshot to every instance, this one included
func (b *RedisBroker) Publish(ctx context.Context, snapshot *models.TaskSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Subscribe registers handler for snapshots received from the channel
func (b *RedisBroker) Subscribe(handler Handler) func() {
	return b.subscribe(handler)
}

// Close stops the dispatcher and releases the subscription
func (b *RedisBroker) Close() error {
	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
