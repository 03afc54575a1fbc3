package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	rabbitReconnectDelay = 5 * time.Second
	rabbitReInitDelay    = 2 * time.Second
)

// RabbitMQBroker subscribes via a fanout exchange per subject pattern,
// one anonymous queue per Subscribe call, with automatic reconnection.
type RabbitMQBroker struct {
	url  string
	log  *slog.Logger
	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel
	done chan struct{}
}

func NewRabbitMQBroker(url string, log *slog.Logger) (*RabbitMQBroker, error) {
	b := &RabbitMQBroker{url: url, log: log, done: make(chan struct{})}
	conn, ch, err := dialRabbit(url)
	if err != nil {
		return nil, fmt.Errorf("broker: connect to rabbitmq: %w", err)
	}
	b.conn, b.ch = conn, ch
	go b.monitor()
	log.Info("connected to rabbitmq", "url", url)
	return b, nil
}

func dialRabbit(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func (b *RabbitMQBroker) monitor() {
	for {
		b.mu.RLock()
		conn := b.conn
		b.mu.RUnlock()

		closeCh := conn.NotifyClose(make(chan *amqp.Error))
		select {
		case <-b.done:
			return
		case reason, ok := <-closeCh:
			if !ok {
				return
			}
			b.log.Warn("rabbitmq connection lost, reconnecting", "reason", reason)
		}

		for {
			select {
			case <-b.done:
				return
			case <-time.After(rabbitReconnectDelay):
			}
			conn, ch, err := dialRabbit(b.url)
			if err != nil {
				b.log.Error("rabbitmq reconnect failed", "error", err)
				continue
			}
			b.mu.Lock()
			b.conn, b.ch = conn, ch
			b.mu.Unlock()
			b.log.Info("rabbitmq reconnected")
			break
		}
	}
}

// Subscribe declares a fanout exchange named after subjectPattern,
// binds an exclusive queue, and dispatches deliveries to h. RabbitMQ's
// exchange/queue model has no native wildcard-subject matching the way
// NATS subjects do, so the spec's "<stream>.<deviceId>" pattern maps
// onto one exchange per stream with all device ids fanned into it.
func (b *RabbitMQBroker) Subscribe(ctx context.Context, subjectPattern string, h Handler) error {
	b.mu.RLock()
	ch := b.ch
	b.mu.RUnlock()

	if err := ch.ExchangeDeclare(subjectPattern, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker: declare exchange %q: %w", subjectPattern, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("broker: declare queue for %q: %w", subjectPattern, err)
	}
	if err := ch.QueueBind(q.Name, "", subjectPattern, false, nil); err != nil {
		return fmt.Errorf("broker: bind queue for %q: %w", subjectPattern, err)
	}
	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker: consume %q: %w", subjectPattern, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				delivery := msg
				h(ctx, Delivery{
					Subject: subjectPattern,
					Data:    delivery.Body,
					Ack:     func() { _ = delivery.Ack(false) },
					Nack:    func() { _ = delivery.Nack(false, true) },
				})
			}
		}
	}()

	b.log.Info("subscribed to rabbitmq exchange", "exchange", subjectPattern)
	return nil
}

func (b *RabbitMQBroker) Close() error {
	close(b.done)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
