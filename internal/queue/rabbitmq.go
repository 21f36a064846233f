package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// RabbitQueue publishes tasks to a durable queue and consumes them with manual
// acks. Delayed tasks go to a per-delay holding queue whose messages
// dead-letter back into the main queue when their TTL expires.
type RabbitQueue struct {
	conn        *amqp091.Connection
	channel     *amqp091.Channel
	name        string
	pollTimeout time.Duration
	deliveries  <-chan amqp091.Delivery

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitQueue connects and starts consuming. prefetch bounds unacked
// deliveries held by this process.
func NewRabbitQueue(url, name string, pollTimeout time.Duration, prefetch int) (*RabbitQueue, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(name, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("consume queue: %w", err)
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RabbitQueue{
		conn:        conn,
		channel:     ch,
		name:        name,
		pollTimeout: pollTimeout,
		deliveries:  deliveries,
		declared:    map[string]bool{},
	}, nil
}

func (q *RabbitQueue) Enqueue(ctx context.Context, task Task) error {
	return q.publish(ctx, q.name, task)
}

func (q *RabbitQueue) EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, task)
	}
	holding, err := q.declareDelayQueue(delay)
	if err != nil {
		return err
	}
	return q.publish(ctx, holding, task)
}

func (q *RabbitQueue) declareDelayQueue(delay time.Duration) (string, error) {
	ms := delay.Milliseconds()
	name := q.name + ".delay." + strconv.FormatInt(ms, 10)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[name] {
		return name, nil
	}
	_, err := q.channel.QueueDeclare(name, true, false, false, false, amqp091.Table{
		"x-message-ttl":             ms,
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.name,
		"x-expires":                 ms*2 + 60_000,
	})
	if err != nil {
		return "", fmt.Errorf("declare delay queue: %w", err)
	}
	q.declared[name] = true
	return name, nil
}

func (q *RabbitQueue) publish(ctx context.Context, routingKey string, task Task) error {
	body, err := encode(task)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.channel.PublishWithContext(ctx, "", routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue waits up to the poll timeout for a delivery. Undecodable messages
// are rejected without requeue.
func (q *RabbitQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	timer := time.NewTimer(q.pollTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrEmpty
	case msg, ok := <-q.deliveries:
		if !ok {
			return nil, fmt.Errorf("dequeue task: %w", amqp091.ErrClosed)
		}
		task, err := decode(msg.Body)
		if err != nil {
			slog.Error("rejecting undecodable task", "queue", q.name, "error", err)
			_ = msg.Reject(false)
			return nil, ErrEmpty
		}
		return NewDelivery(task, func() error { return msg.Ack(false) }), nil
	}
}

// Close terminates the connection.
func (q *RabbitQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		slog.Warn("close channel", "error", err)
	}
	return q.conn.Close()
}

var _ Queue = (*RabbitQueue)(nil)
