package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// promoteDue moves tasks whose delay has elapsed from the delayed set onto the
// ready list. Running it as a script keeps the move atomic across workers.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, member in ipairs(due) do
	redis.call('RPUSH', KEYS[2], member)
	redis.call('ZREM', KEYS[1], member)
end
return #due
`)

// RedisQueue is a FIFO list plus a sorted set of delayed tasks scored by due time.
type RedisQueue struct {
	client      *redis.Client
	ready       string
	delayed     string
	pollTimeout time.Duration
}

func NewRedisQueue(client *redis.Client, name string, pollTimeout time.Duration) *RedisQueue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{
		client:      client,
		ready:       name,
		delayed:     name + ":delayed",
		pollTimeout: pollTimeout,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	raw, err := encode(task)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.ready, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

func (q *RedisQueue) EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, task)
	}
	raw, err := encode(task)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayed, redis.Z{Score: due, Member: raw}).Err(); err != nil {
		return fmt.Errorf("enqueue delayed task: %w", err)
	}
	return nil
}

// Dequeue blocks for up to the poll timeout. Tasks that fail to decode are
// dropped and logged.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := promoteDue.Run(ctx, q.client, []string{q.delayed, q.ready}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("promote delayed tasks: %w", err)
	}

	res, err := q.client.BLPop(ctx, q.pollTimeout, q.ready).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}

	// BLPOP returns [key, value].
	task, err := decode([]byte(res[1]))
	if err != nil {
		slog.Error("dropping undecodable task", "queue", q.ready, "error", err)
		return nil, ErrEmpty
	}
	return NewDelivery(task, nil), nil
}

// Len returns the number of ready and delayed tasks.
func (q *RedisQueue) Len(ctx context.Context) (ready int64, delayed int64, err error) {
	ready, err = q.client.LLen(ctx, q.ready).Result()
	if err != nil {
		return 0, 0, err
	}
	delayed, err = q.client.ZCard(ctx, q.delayed).Result()
	return ready, delayed, err
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }

var _ Queue = (*RedisQueue)(nil)
