// Package events publishes audit events for appointment mutations. One event
// is emitted per logical user action, after the mutation has been persisted,
// so downstream consumers never observe an action that was rolled back.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditEvent describes one completed user action on an appointment series.
type AuditEvent struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	SeriesID      string    `json:"seriesId"`
	Scope         string    `json:"scope,omitempty"`
	AffectedCount int       `json:"affectedCount"`
	Actor         string    `json:"actor"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Emitter delivers audit events. Delivery failures must not fail the user
// action that produced the event.
type Emitter interface {
	Emit(ctx context.Context, event AuditEvent)
}

// LogEmitter writes audit events to the structured log. It backs deployments
// without a message broker and every test.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(ctx context.Context, event AuditEvent) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit event",
		slog.String("event_id", event.ID),
		slog.String("action", event.Action),
		slog.String("series_id", event.SeriesID),
		slog.String("scope", event.Scope),
		slog.Int("affected_count", event.AffectedCount),
		slog.String("actor", event.Actor),
	)
}

// AMQPPublisher publishes audit events to a fanout exchange on RabbitMQ.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NewAMQPPublisher dials the broker, opens a channel and declares the durable
// fanout exchange the events are published to.
func NewAMQPPublisher(uri, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

// Emit implements Emitter. Publish failures are logged and swallowed so the
// originating mutation still succeeds.
func (p *AMQPPublisher) Emit(ctx context.Context, event AuditEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal audit event", slog.String("event_id", event.ID), slog.Any("error", err))
		return
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Timestamp:   event.OccurredAt,
		Body:        body,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "publish audit event", slog.String("event_id", event.ID), slog.Any("error", err))
	}
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
