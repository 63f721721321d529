package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// eventTTL bounds how long event hashes linger after publication.
const eventTTL = 7 * 24 * time.Hour

// RedisPublisher writes events to Redis. It is safe for concurrent use.
type RedisPublisher struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisPublisher connects a publisher scoped to namespace.
func NewRedisPublisher(opts *redis.Options, namespace string) (*RedisPublisher, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &RedisPublisher{rdb: redis.NewClient(opts), namespace: namespace}, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// Ping verifies Redis connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Publish stores the event hash and broadcasts it.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if e.ID == "" || e.Type == "" {
		return errors.New("event requires id and type")
	}
	key := EventKey(p.namespace, e.ID)
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, key, toHash(e))
	pipe.Expire(ctx, key, eventTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write event to Redis: %w", err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, EventsChannel(p.namespace), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Get reads a stored event. It returns redis.Nil when the event is unknown
// or has expired.
func (p *RedisPublisher) Get(ctx context.Context, id string) (Event, error) {
	h, err := p.rdb.HGetAll(ctx, EventKey(p.namespace, id)).Result()
	if err != nil {
		return Event{}, fmt.Errorf("failed to read event from Redis: %w", err)
	}
	if len(h) == 0 {
		return Event{}, redis.Nil
	}
	return fromHash(h)
}

// Subscription streams broadcast events until closed.
type Subscription struct {
	events <-chan Event
	errors <-chan error
	cancel context.CancelFunc
}

// Events returns the event stream.
func (s *Subscription) Events() <-chan Event { return s.events }

// Errors returns decode failures.
func (s *Subscription) Errors() <-chan error { return s.errors }

// Close stops the subscription.
func (s *Subscription) Close() error {
	s.cancel()
	return nil
}

// Subscribe listens for events in the publisher's namespace. Delivery is
// at-most-once; slow consumers may miss events.
func (p *RedisPublisher) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := p.rdb.Subscribe(ctx, EventsChannel(p.namespace))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	eventsCh := make(chan Event, 10)
	errorsCh := make(chan error, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(eventsCh)
		defer close(errorsCh)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					select {
					case errorsCh <- fmt.Errorf("failed to unmarshal event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}
				select {
				case eventsCh <- e:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: eventsCh, errors: errorsCh, cancel: cancel}, nil
}
