package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/metrics"
)

// ActivityConsumer appends each change notification as one line to
// <dir>/activity.log.
type ActivityConsumer struct {
	url   string
	queue string
	dir   string
	log   zerolog.Logger
}

func NewActivityConsumer(url, queue, dir string, logger zerolog.Logger) *ActivityConsumer {
	return &ActivityConsumer{
		url:   url,
		queue: queue,
		dir:   dir,
		log:   logger.With().Str("component", "activity-consumer").Logger(),
	}
}

// Run reconnects with exponential backoff until ctx is cancelled.
func (c *ActivityConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *ActivityConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info().Str("queue", c.queue).Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.log.Error().Err(err).Msg("handle message failed")
				metrics.QueueConsumed.WithLabelValues("rejected").Inc()
				_ = d.Nack(false, false) // no requeue, avoids a poison loop
				continue
			}
			metrics.QueueConsumed.WithLabelValues("ok").Inc()
			_ = d.Ack(false)
		}
	}
}

func (c *ActivityConsumer) handleMessage(body []byte) error {
	var ev EventChanged
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Action == "" {
		return errors.New("missing action")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, "activity.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev EventChanged) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", ev.At.UTC().Format(time.RFC3339), ev.Action)
	if ev.Action == ActionSwept {
		fmt.Fprintf(&b, " | count=%d", ev.Count)
	} else {
		fmt.Fprintf(&b, " | event_id=%s | owner_id=%s | title=%q", ev.EventID, ev.OwnerID, ev.Title)
		if !ev.OccursAt.IsZero() {
			fmt.Fprintf(&b, " | occurs_at=%s", ev.OccursAt.UTC().Format(time.RFC3339))
		}
	}
	b.WriteByte('\n')
	return b.String()
}
