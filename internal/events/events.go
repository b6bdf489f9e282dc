// Package events publishes lobby lifecycle events to a Redis list so an
// external consumer (stats, replay, moderation) can drain them without the
// server keeping any durable state itself. The feed is strictly
// fire-and-forget: authoritative lobby state never leaves process memory,
// and a dead or absent Redis never fails a client action.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list events are pushed to.
const DefaultQueueName = "zonezero_events"

// Record is one lobby event as it appears on the queue.
type Record struct {
	LobbyID   string         `json:"lobby_id"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Publisher pushes Records onto a Redis list. A nil Publisher is valid and
// drops everything, which is how the server runs when REDIS_ADDR is unset.
type Publisher struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// NewFromEnv builds a Publisher from REDIS_ADDR, REDIS_DB and
// EVENTS_QUEUE_NAME. It returns (nil, nil) when REDIS_ADDR is unset, and an
// error when Redis is configured but unreachable.
func NewFromEnv(log *logrus.Logger) (*Publisher, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   getEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return &Publisher{
		rdb:   rdb,
		queue: getEnv("EVENTS_QUEUE_NAME", DefaultQueueName),
		log:   log,
	}, nil
}

// Publish queues the record asynchronously. Failures are logged and
// swallowed; the action path never waits on Redis.
func (p *Publisher) Publish(rec Record) {
	if p == nil {
		return
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		data, err := json.Marshal(rec)
		if err != nil {
			p.log.Warnf("events: marshal %s: %v", rec.Action, err)
			return
		}
		if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
			p.log.Warnf("events: rpush %s: %v", rec.Action, err)
		}
	}()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
