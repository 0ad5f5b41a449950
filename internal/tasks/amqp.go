package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rabbitmq/amqp091-go"
)

// bindingKey matches every task kind produced by the bridge.
const bindingKey = "telegram.#"

// amqpChannel is the subset of *amqp091.Channel used by the queue.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// AMQPQueue publishes tasks to a topic exchange and consumes them from a
// durable queue, so forwarding survives restarts and can be shared by
// several bridge instances. Failed tasks are dropped, never requeued.
type AMQPQueue struct {
	conn     *amqp091.Connection
	pubMu    sync.Mutex
	pub      amqpChannel
	sub      amqpChannel
	exchange string
	queue    string
	router   *Router
	workers  int
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// DialAMQP connects to the broker and declares the exchange, queue and binding.
func DialAMQP(url, exchange, queue string, router *Router, workers int) (*AMQPQueue, error) {
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}
	if err := pub.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	sub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open consume channel: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	if err := sub.Qos(workers, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	q, err := sub.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := sub.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}

	log.Printf("[Tasks AMQP] Connected: exchange=%s queue=%s workers=%d", exchange, q.Name, workers)
	aq := newAMQPQueue(pub, sub, exchange, q.Name, router, workers)
	aq.conn = conn
	return aq, nil
}

func newAMQPQueue(pub, sub amqpChannel, exchange, queue string, router *Router, workers int) *AMQPQueue {
	return &AMQPQueue{
		pub:      pub,
		sub:      sub,
		exchange: exchange,
		queue:    queue,
		router:   router,
		workers:  workers,
	}
}

// Enqueue publishes the task as a persistent JSON message routed by its kind.
func (q *AMQPQueue) Enqueue(ctx context.Context, task Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	err = q.pub.PublishWithContext(ctx, q.exchange, task.Kind, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    task.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish task %s (%s): %w", task.ID, task.Kind, err)
	}
	return nil
}

// Run consumes tasks until ctx is done or the delivery channel closes.
func (q *AMQPQueue) Run(ctx context.Context) error {
	deliveries, err := q.sub.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", q.queue, err)
	}

	done := make(chan struct{})
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for d := range deliveries {
				q.handle(d)
			}
		}()
	}
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		if q.closed.Load() {
			return nil
		}
		return fmt.Errorf("delivery channel for %s closed", q.queue)
	}
}

func (q *AMQPQueue) handle(d amqp091.Delivery) {
	var task Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		log.Printf("[Tasks AMQP] Dropping undecodable message %s: %v", d.MessageId, err)
		sentry.CaptureException(fmt.Errorf("decode task message %s: %w", d.MessageId, err))
		_ = d.Nack(false, false)
		return
	}

	if err := q.router.Process(context.Background(), task); err != nil {
		sentry.CaptureException(fmt.Errorf("task %s (%s): %w", task.ID, task.Kind, err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close stops consuming, waits for running tasks and closes the connection.
func (q *AMQPQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	var firstErr error
	if err := q.sub.Close(); err != nil {
		firstErr = err
	}
	q.wg.Wait()
	if err := q.pub.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
