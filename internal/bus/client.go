package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/breaker"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

const outboxBound = 10_000

// Client is the event bus client described in spec §4.1: topic-scoped
// publish/subscribe over Redis Streams, with schema validation on produce
// and at-least-once, offset-preserving delivery per (topic, consumer
// group) on subscribe. Grounded in
// original_source/backend/common/kafka_client.py's KafkaClient contract.
type Client struct {
	rdb      *redis.Client
	registry *SchemaRegistry
	log      *zap.Logger
	cb       *breaker.CircuitBreaker

	mu      sync.Mutex
	outbox  map[string][]outboxEntry // bounded per-topic retry buffer
	dropped map[string]int64         // overflow counter per topic
}

type outboxEntry struct {
	payload []byte
	key     string
}

// New builds a bus client over an already-configured Redis connection.
func New(rdb *redis.Client, registry *SchemaRegistry, log *zap.Logger) *Client {
	return &Client{
		rdb:      rdb,
		registry: registry,
		log:      log,
		cb:       breaker.New(1*time.Minute, 30*time.Second, 0.5, 10),
		outbox:   make(map[string][]outboxEntry),
		dropped:  make(map[string]int64),
	}
}

// EnsureTopics idempotently creates the Redis stream and a consumer group
// per name that does not already exist. It never deletes a stream.
func (c *Client) EnsureTopics(ctx context.Context, groupID string, names []string) error {
	for _, name := range names {
		err := c.rdb.XGroupCreateMkStream(ctx, name, groupID, "$").Err()
		if err != nil && !isBusyGroupErr(err) {
			return fmt.Errorf("ensure topic %s: %w", name, err)
		}
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 8 && err.Error()[:8] == "BUSYGROU"
}

// Produce marshals payload to canonical JSON, validates it against the
// topic's registered schema when opts.Validate is true, and appends it to
// the topic's stream. On bus unavailability it retries with bounded
// exponential backoff (max 3 attempts) through the circuit breaker, then
// spills into a bounded in-memory outbox (oldest dropped on overflow, with
// a counter) rather than losing the message silently.
func (c *Client) Produce(ctx context.Context, topic string, payload any, opts ProduceOptions) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrInvalidPayload, err)
	}
	if opts.Validate {
		if err := c.registry.Validate(topic, data); err != nil {
			return err
		}
	}

	if !c.cb.Allow() {
		c.spill(topic, data, opts.Key)
		obs.BusProduceFailed.WithLabelValues(topic).Inc()
		return fmt.Errorf("%w: circuit open for topic %s", domain.ErrBusUnavailable, topic)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(50 * time.Millisecond)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		fields := map[string]any{"payload": data, "key": opts.Key}
		err = c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: topic, Values: fields}).Err()
		if err == nil {
			c.cb.Record(true)
			obs.BusProduced.WithLabelValues(topic).Inc()
			c.drainOutbox(ctx, topic)
			return nil
		}
		lastErr = err
	}
	c.cb.Record(false)
	c.spill(topic, data, opts.Key)
	obs.BusProduceFailed.WithLabelValues(topic).Inc()
	return fmt.Errorf("%w: %v", domain.ErrBusUnavailable, lastErr)
}

func (c *Client) spill(topic string, payload []byte, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := c.outbox[topic]
	if len(buf) >= outboxBound {
		buf = buf[1:]
		c.dropped[topic]++
		if c.log != nil {
			c.log.Warn("bus outbox overflow, dropping oldest", zap.String("topic", topic), zap.Int64("dropped_total", c.dropped[topic]))
		}
	}
	c.outbox[topic] = append(buf, outboxEntry{payload: payload, key: key})
}

// drainOutbox opportunistically flushes queued messages for a topic once
// the bus has proven reachable again via a successful produce.
func (c *Client) drainOutbox(ctx context.Context, topic string) {
	c.mu.Lock()
	buf := c.outbox[topic]
	c.outbox[topic] = nil
	c.mu.Unlock()
	for _, entry := range buf {
		fields := map[string]any{"payload": entry.payload, "key": entry.key}
		if err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: topic, Values: fields}).Err(); err != nil {
			c.spill(topic, entry.payload, entry.key)
			return
		}
		obs.BusProduced.WithLabelValues(topic).Inc()
	}
}

// OutboxDropped reports how many messages have been dropped from a topic's
// outbox due to overflow, for metrics/diagnostics.
func (c *Client) OutboxDropped(topic string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped[topic]
}

// Subscribe starts a consumer-group reader over the given topics and
// delivers messages on the returned channel until ctx is cancelled. Each
// consumer group sees every message at least once; decode errors are
// skipped and the offset still advances, per §4.1's failure policy.
func (c *Client) Subscribe(ctx context.Context, topics []string, groupID, consumerName string) (<-chan Message, error) {
	if err := c.EnsureTopics(ctx, groupID, topics); err != nil {
		return nil, err
	}
	out := make(chan Message, 64)
	go c.consumeLoop(ctx, topics, groupID, consumerName, out)
	return out, nil
}

func (c *Client) consumeLoop(ctx context.Context, topics []string, groupID, consumerName string, out chan<- Message) {
	defer close(out)
	streams := make([]string, 0, len(topics)*2)
	for _, t := range topics {
		streams = append(streams, t)
	}
	ids := make([]string, len(topics))
	for i := range ids {
		ids[i] = ">"
	}
	streams = append(streams, ids...)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    groupID,
			Consumer: consumerName,
			Streams:  streams,
			Count:    32,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			if c.log != nil {
				c.log.Warn("bus consume error", zap.Error(err))
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				payload, _ := msg.Values["payload"].(string)
				key, _ := msg.Values["key"].(string)
				if payload == "" {
					// decode error: skip message but still advance the offset.
					c.rdb.XAck(ctx, stream.Stream, groupID, msg.ID)
					obs.BusConsumeSkipped.WithLabelValues(stream.Stream).Inc()
					continue
				}
				// A stream entry ID is "<ms>-<seq>", ms being when the
				// producer's XADD appended it.
				producedAt := time.Now()
				if ms, err := strconv.ParseInt(strings.SplitN(msg.ID, "-", 2)[0], 10, 64); err == nil {
					producedAt = time.UnixMilli(ms)
				}
				out <- Message{
					Topic:             stream.Stream,
					Key:               key,
					Payload:           []byte(payload),
					Offset:            msg.ID,
					ProducerTimestamp: producedAt,
					ackID:             msg.ID,
				}
				obs.BusConsumed.WithLabelValues(stream.Stream).Inc()
			}
		}
	}
}

// Ack acknowledges a delivered message against the consumer group that
// received it, advancing that group's offset for the stream entry.
func (c *Client) Ack(ctx context.Context, groupID string, msg Message) error {
	return c.rdb.XAck(ctx, msg.Topic, groupID, msg.ackID).Err()
}
