package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"biztrack/internal/log"
)

const (
	publishTimeout    = 5 * time.Second
	maxPublishRetries = 3
	maxBackoff        = 30 * time.Second
)

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

type connection interface {
	Channel() (channel, error)
	Close() error
}

type amqpConnection struct {
	*amqp091.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	return c.Connection.Channel()
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// AMQPPublisher publishes persistent JSON messages to a direct exchange.
// A publish that fails on a broken connection reconnects and retries.
type AMQPPublisher struct {
	url      string
	exchange string
	queue    string
	logger   *log.Logger

	dial  func(url string) (connection, error)
	sleep func(time.Duration)

	mu   sync.Mutex
	conn connection
	ch   channel
}

func NewAMQPPublisher(url, exchange, queue string, logger *log.Logger) (*AMQPPublisher, error) {
	return newAMQPPublisher(url, exchange, queue, logger, dialAMQP)
}

func newAMQPPublisher(url, exchange, queue string, logger *log.Logger, dial func(string) (connection, error)) (*AMQPPublisher, error) {
	if logger == nil {
		logger = log.Discard()
	}
	p := &AMQPPublisher{
		url:      url,
		exchange: exchange,
		queue:    queue,
		logger:   logger.WithComponent(log.ComponentEvents),
		dial:     dial,
		sleep:    time.Sleep,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials and declares the topology. Callers hold mu or own p exclusively.
func (p *AMQPPublisher) connect() error {
	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(ch, p.exchange, p.queue); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	p.conn, p.ch = conn, ch
	return nil
}

func setup(ch channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// routing key is the queue name
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) PublishRecordChanged(ctx context.Context, msg RecordChanged) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxPublishRetries; attempt++ {
		if attempt > 0 {
			p.sleep(exponentialBackoff(attempt - 1))
			if err := p.reconnect(); err != nil {
				lastErr = err
				p.logger.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt, log.FieldError, err.Error())
				continue
			}
		}

		lastErr = p.publish(ctx, body)
		if lastErr == nil {
			p.logger.DebugContext(ctx, "Published record change",
				log.FieldResource, msg.Entity,
				log.FieldRecordID, msg.ID,
				log.FieldOperation, msg.Operation)
			return nil
		}
		if !isConnectionError(lastErr) {
			break
		}
	}
	return fmt.Errorf("publish message: %w", lastErr)
}

func (p *AMQPPublisher) publish(ctx context.Context, body []byte) error {
	if p.ch == nil {
		return amqp091.ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(ctx, p.exchange, p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *AMQPPublisher) reconnect() error {
	p.closeLocked()
	return p.connect()
}

// Consume hands every message on the queue to handler until ctx ends.
// Malformed messages are dropped; handler failures are requeued.
func (p *AMQPPublisher) Consume(ctx context.Context, handler func(RecordChanged) error) error {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil {
		return amqp091.ErrClosed
	}

	deliveries, err := ch.Consume(p.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	p.logger.InfoContext(ctx, "Consuming record changes", "queue", p.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			msg, err := RecordChangedFromJSON(d.Body)
			if err != nil {
				p.logger.WarnContext(ctx, "Dropping malformed message", log.FieldError, err.Error())
				_ = d.Nack(false, false)
				continue
			}
			if err := handler(msg); err != nil {
				p.logger.WarnContext(ctx, "Handler failed, requeueing",
					log.FieldRecordID, msg.ID,
					log.FieldError, err.Error())
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *AMQPPublisher) closeLocked() error {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		if err != nil && !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
	}
	return nil
}

// exponentialBackoff doubles from one second, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
