package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// redisClient is the subset of pkg/redis.Client used by the Redis store.
type redisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Publish(ctx context.Context, channel string, message any) error
	StorageKey(key string) string
}

type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
}

// Redis persists documents in Redis and broadcasts changes over a Pub/Sub
// channel so every process sharing the instance observes them.
type Redis struct {
	client  redisClient
	channel string
	logg    *logger.Logger
	hub     *hub

	mu      sync.Mutex
	cancel  context.CancelFunc
	pubsub  *goredis.PubSub
	stopped chan struct{}
}

// NewRedis builds a Redis-backed store publishing changes on channel.
func NewRedis(client redisClient, channel string, logg *logger.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if channel == "" {
		return nil, errors.New("change channel required")
	}
	return &Redis{
		client:  client,
		channel: channel,
		logg:    logg,
		hub:     newHub(),
	}, nil
}

// Start subscribes to the change channel and dispatches remote writes until
// Close is called.
func (r *Redis) Start(ctx context.Context, sub subscriber) error {
	ps, err := sub.Subscribe(ctx, r.channel)
	if err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancel = cancel
	r.pubsub = ps
	r.stopped = make(chan struct{})
	stopped := r.stopped
	r.mu.Unlock()

	go func() {
		defer close(stopped)
		ch := ps.Channel()
		for {
			select {
			case <-loopCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.handleMessage(loopCtx, msg.Payload)
			}
		}
	}()
	return nil
}

func (r *Redis) handleMessage(ctx context.Context, payload string) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		if r.logg != nil {
			r.logg.Warn(r.logg.WithField(ctx, "payload_bytes", len(payload)), "storage.change.decode_failed")
		}
		return
	}
	if change.Key == "" {
		return
	}
	r.hub.dispatch(change)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.client.StorageKey(key))
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, origin string) error {
	if err := r.client.Set(ctx, r.client.StorageKey(key), string(value), 0); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return r.publish(ctx, Change{Key: key, Value: value, Origin: origin})
}

func (r *Redis) Delete(ctx context.Context, key, origin string) error {
	if err := r.client.Del(ctx, r.client.StorageKey(key)); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return r.publish(ctx, Change{Key: key, Deleted: true, Origin: origin})
}

func (r *Redis) Subscribe(key, origin string, fn Listener) func() {
	return r.hub.subscribe(key, origin, fn)
}

// publish failures are logged, not returned: the document write already
// succeeded and other processes converge on their next read.
func (r *Redis) publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, string(payload)); err != nil && r.logg != nil {
		r.logg.Error(r.logg.WithField(ctx, "key", change.Key), "storage.change.publish_failed", err)
	}
	return nil
}

// Close stops the subscription loop and every local subscription.
func (r *Redis) Close() error {
	r.mu.Lock()
	cancel, ps, stopped := r.cancel, r.pubsub, r.stopped
	r.cancel, r.pubsub = nil, nil
	r.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
	}
	if ps != nil {
		err = ps.Close()
	}
	if stopped != nil {
		<-stopped
	}
	r.hub.closeAll()
	return err
}
