package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/voice2blog/courier/internal/config"
)

// RedisQueue keeps delayed messages in a zset scored by their available-at time (unix ms) and
// ready messages in a list. Received messages are moved to a processing list until acked or
// nacked. Entries left in processing by a crashed consumer are not reclaimed.
//
// Redis keys used:
//   - <key>:delayed (zset)     score=available_at_ms, member=<uuid>|message json
//   - <key>:ready (list)       message json
//   - <key>:processing (list)  message json, removed on ack
type RedisQueue struct {
	rdb          *redis.Client
	delayedKey   string
	readyKey     string
	processing   string
	pollInterval time.Duration
	promoteLimit int64
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{
		rdb:          rdb,
		delayedKey:   key + ":delayed",
		readyKey:     key + ":ready",
		processing:   key + ":processing",
		pollInterval: time.Second,
		promoteLimit: 100,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message, delay time.Duration) error {
	b, err := Encode(msg)
	if err != nil {
		return err
	}

	if delay <= 0 {
		if err := q.rdb.LPush(ctx, q.readyKey, b).Err(); err != nil {
			return fmt.Errorf("failed to push message: %w", err)
		}
		return nil
	}

	if err := q.rdb.ZAdd(ctx, q.delayedKey, q.delayed(b, delay)).Err(); err != nil {
		return fmt.Errorf("failed to schedule message: %w", err)
	}
	return nil
}

func (q *RedisQueue) delayed(payload []byte, delay time.Duration) redis.Z {
	return redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: delayedMember(payload),
	}
}

// delayedMember tags payload with a unique token so the same body scheduled twice keeps two
// entries and two due times.
func delayedMember(payload []byte) string {
	return uuid.NewString() + "|" + string(payload)
}

func payloadOf(member string) string {
	if _, payload, ok := strings.Cut(member, "|"); ok {
		return payload
	}
	return member
}

// PromoteDue moves delayed messages whose time has come onto the ready list.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.rdb.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: q.promoteLimit,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to fetch due messages: %w", err)
	}

	promoted := 0
	for _, member := range due {
		// Remove first so two consumers never promote the same message.
		removed, err := q.rdb.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to remove due message: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.readyKey, payloadOf(member)).Err(); err != nil {
			return promoted, fmt.Errorf("failed to promote message: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if _, err := q.PromoteDue(ctx, time.Now()); err != nil {
			return nil, err
		}

		raw, err := q.rdb.BLMove(ctx, q.readyKey, q.processing, "RIGHT", "LEFT", q.pollInterval).Result()
		if errors.Is(err, redis.Nil) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to pop message: %w", err)
		}

		ack := func(ctx context.Context) error {
			return q.rdb.LRem(ctx, q.processing, 1, raw).Err()
		}
		nack := func(ctx context.Context, delay time.Duration) error {
			_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LRem(ctx, q.processing, 1, raw)
				pipe.ZAdd(ctx, q.delayedKey, q.delayed([]byte(raw), delay))
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to requeue message: %w", err)
			}
			return nil
		}

		msg, err := Decode([]byte(raw))
		if err != nil {
			_ = ack(ctx)
			return nil, err
		}
		return &Delivery{Message: msg, Ack: ack, Nack: nack}, nil
	}
}

func (q *RedisQueue) Close() error { return q.rdb.Close() }
