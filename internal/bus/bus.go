// Package bus bridges RabbitMQ to the trigger pipeline: it is the
// concrete form of "inject_message signals arriving from a topic"
// (spec.md's expansion of §6's external interfaces), grounded on the
// teacher's internal/queue task queue but carrying a message signal
// instead of an async job.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/value"
)

// InboundMessage is one inject_message delivery: the game it targets,
// the message name and payload a waiting EvSignal{SigMessage} is keyed
// on.
type InboundMessage struct {
	GameID  string      `json:"game_id"`
	Name    string      `json:"name"`
	Payload value.Value `json:"payload"`
}

// Handler applies one InboundMessage to its game's trigger pipeline.
type Handler func(ctx context.Context, msg InboundMessage) error

// Config configures the bus connection.
type Config struct {
	URL       string
	QueueName string
	Prefetch  int
	Logger    *zap.Logger
}

// Bus manages a single RabbitMQ queue of InboundMessage deliveries.
type Bus struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger

	mu         sync.RWMutex
	handler    Handler
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New dials RabbitMQ and declares the durable queue (plus its
// dead-letter queue for deliveries no handler could apply).
func New(cfg Config) (*Bus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bus: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: set QoS: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: declare queue: %w", err)
	}

	dlqName := cfg.QueueName + "_dlq"
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: declare dlq: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		conn:       conn,
		channel:    ch,
		queueName:  cfg.QueueName,
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
	}, nil
}

// Publish enqueues msg for eventual delivery to Start's handler — used
// by inter-process or inter-game senders, not by the in-process
// trigger pipeline itself (which calls runtime.TriggerMessage directly).
func (b *Bus) Publish(ctx context.Context, msg InboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}
	return b.channel.PublishWithContext(ctx, "", b.queueName, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Start begins consuming deliveries and applying each through handler
// on its own goroutine loop.
func (b *Bus) Start(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()

	msgs, err := b.channel.Consume(b.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("bus: start consuming: %w", err)
	}
	go b.loop(ctx, msgs)
	return nil
}

func (b *Bus) loop(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			b.deliver(ctx, d)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, d amqp.Delivery) {
	var msg InboundMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		b.logger.Error("bus: malformed delivery", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler == nil {
		b.logger.Error("bus: no handler registered", zap.String("game", msg.GameID))
		_ = d.Nack(false, true)
		return
	}

	if err := handler(ctx, msg); err != nil {
		b.logger.Warn("bus: handler error, routing to dead-letter queue",
			zap.String("game", msg.GameID), zap.String("message", msg.Name), zap.Error(err))
		_ = b.channel.PublishWithContext(ctx, "", b.queueName+"_dlq", false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        d.Body,
		})
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (b *Bus) Close() error {
	b.cancelFunc()
	if err := b.channel.Close(); err != nil {
		return err
	}
	return b.conn.Close()
}

func (b *Bus) HealthCheck() error {
	if b.conn.IsClosed() {
		return fmt.Errorf("bus: connection closed")
	}
	return nil
}
