// Package redis implements broker.Broker on Redis Streams so several relay
// processes can share one upstream subscription.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/tradestream-go/broker"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr      = "localhost:6379"
	defaultKeyPrefix = "tradestream:broker:"
)

// Config for the Redis broker. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: TRADESTREAM_BROKER_KEY_PREFIX
	KeyPrefix string `env:"TRADESTREAM_BROKER_KEY_PREFIX,default=tradestream:broker:"`
	// MaxLen approximately bounds each topic stream; 0 keeps everything.
	// ENV: TRADESTREAM_BROKER_MAXLEN
	MaxLen int64 `env:"TRADESTREAM_BROKER_MAXLEN,default=0"`
}

// Broker is a Redis Streams-backed broker.Broker.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	maxLen    int64
	block     time.Duration
}

// New connects to cfg.RedisAddr and verifies the connection.
func New(cfg Config) (*Broker, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = defaultAddr
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, cfg), nil
}

// ConfigFromEnv populates Config using envdecode.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("redis broker config: %w", err)
	}
	return cfg, nil
}

// NewFromEnv builds a Broker from ConfigFromEnv.
func NewFromEnv() (*Broker, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// NewWithClient wraps an existing client. cfg.RedisAddr is ignored.
func NewWithClient(client redis.UniversalClient, cfg Config) *Broker {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Broker{
		client:    client,
		keyPrefix: prefix,
		maxLen:    cfg.MaxLen,
		block:     500 * time.Millisecond,
	}
}

// Close closes the Redis client.
func (b *Broker) Close() error { return b.client.Close() }

func (b *Broker) streamKey(topic string) string { return b.keyPrefix + "stream:" + topic }

// Publish implements broker.Broker.Publish using XADD.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: b.streamKey(topic),
		Values: map[string]any{"d": data},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("redis broker: publish to %s: %w", topic, err)
	}
	return id, nil
}

// Subscribe implements broker.Broker.Subscribe using blocking XREAD.
func (b *Broker) Subscribe(ctx context.Context, topic string, lastEventID string, handler broker.MessageHandler) error {
	key := b.streamKey(topic)
	start := lastEventID
	if start == "" {
		// Pin "$" to a concrete ID so messages published between two reads
		// are not skipped.
		tail, err := b.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis broker: read tail of %s: %w", topic, err)
		}
		start = "0-0"
		if len(tail) > 0 {
			start = tail[0].ID
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := b.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, start}, Count: 16, Block: b.block}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if strings.Contains(err.Error(), "Invalid stream ID") {
				return fmt.Errorf("%w: %q", broker.ErrUnknownEventID, lastEventID)
			}
			return fmt.Errorf("redis broker: read %s: %w", topic, err)
		}
		for _, s := range res {
			for _, m := range s.Messages {
				start = m.ID
				var payload []byte
				switch v := m.Values["d"].(type) {
				case string:
					payload = []byte(v)
				case []byte:
					payload = v
				default:
					continue
				}
				if err := handler(ctx, broker.MessageEnvelope{ID: m.ID, Data: payload}); err != nil {
					return err
				}
			}
		}
	}
}

// Cleanup implements broker.Broker.Cleanup by deleting the topic stream.
func (b *Broker) Cleanup(ctx context.Context, topic string) error {
	if err := b.client.Del(ctx, b.streamKey(topic)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis broker: cleanup %s: %w", topic, err)
	}
	return nil
}

var _ broker.Broker = (*Broker)(nil)
