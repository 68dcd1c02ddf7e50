package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/metrics"
)

// Publisher sends change notifications. Errors are returned so callers may
// ignore them; they never abort the write that triggered the publish.
type Publisher interface {
	Publish(ctx context.Context, ev EventChanged) error
	Close() error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, EventChanged) error { return nil }
func (NopPublisher) Close() error                                { return nil }

const dialTimeout = 5 * time.Second

// AMQPPublisher keeps one connection and channel open and redials lazily
// after the broker drops them.
type AMQPPublisher struct {
	url   string
	queue string
	log   zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url, queue string, logger zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:   url,
		queue: queue,
		log:   logger.With().Str("component", "publisher").Logger(),
	}
}

// NewPublisher returns a NopPublisher for an empty url.
func NewPublisher(url, queue string, logger zerolog.Logger) Publisher {
	if url == "" {
		return NopPublisher{}
	}
	return NewAMQPPublisher(url, queue, logger)
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev EventChanged) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.At,
		Type:         ev.Action,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// one retry on a fresh connection
	for attempt := 0; attempt < 2; attempt++ {
		var ch *amqp.Channel
		ch, err = p.channel()
		if err == nil {
			err = ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
			if err == nil {
				metrics.QueuePublished.WithLabelValues(ev.Action, "ok").Inc()
				return nil
			}
		}
		p.reset()
	}
	metrics.QueuePublished.WithLabelValues(ev.Action, "error").Inc()
	p.log.Warn().Err(err).Str("action", ev.Action).Str("event_id", ev.EventID).Msg("publish failed")
	return err
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
