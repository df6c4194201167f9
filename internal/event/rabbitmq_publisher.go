package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publisherAppID = "circulation-engine"

type AuditPublisher interface {
	PublishAuditEntry(ctx context.Context, entry AuditEntry) error
}

type RabbitMQAuditPublisher struct {
	conn         *amqp.Connection
	exchangeName string
	logger       *slog.Logger
}

func NewRabbitMQAuditPublisher(conn *amqp.Connection, exchangeName string, logger *slog.Logger) (AuditPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection cannot be nil")
	}
	if exchangeName == "" {
		return nil, fmt.Errorf("RabbitMQ exchange name cannot be empty")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	tempCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open temporary channel for exchange declaration: %w", err)
	}
	defer tempCh.Close()

	err = tempCh.ExchangeDeclare(
		exchangeName,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}
	logger.Info("Ensured RabbitMQ exchange exists", "exchange", exchangeName, "type", amqp.ExchangeTopic)

	return &RabbitMQAuditPublisher{
		conn:         conn,
		exchangeName: exchangeName,
		logger:       logger.With("component", "RabbitMQAuditPublisher", "exchange", exchangeName),
	}, nil
}

func (p *RabbitMQAuditPublisher) PublishAuditEntry(ctx context.Context, entry AuditEntry) error {
	routingKey := "audit." + entry.Action
	logCtx := p.logger.With(slog.String("routingKey", routingKey), slog.String("action", entry.Action))

	channel, err := p.conn.Channel()
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to open RabbitMQ channel", slog.Any("error", err))
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	body, err := json.Marshal(entry)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to marshal audit entry to JSON", slog.Any("error", err))
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	logCtx.DebugContext(ctx, "Publishing audit entry", "bodySize", len(body))

	err = channel.PublishWithContext(
		ctx,
		p.exchangeName,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
			AppId:        publisherAppID,
		},
	)

	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to publish audit entry to RabbitMQ", slog.Any("error", err))
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}

	logCtx.InfoContext(ctx, "Successfully published audit entry")
	return nil
}

// NoopAuditPublisher logs audit entries instead of publishing them. Used
// when the broker is disabled in configuration.
type NoopAuditPublisher struct {
	logger *slog.Logger
}

func NewNoopAuditPublisher(logger *slog.Logger) AuditPublisher {
	return &NoopAuditPublisher{logger: logger.With("component", "NoopAuditPublisher")}
}

func (p *NoopAuditPublisher) PublishAuditEntry(ctx context.Context, entry AuditEntry) error {
	p.logger.InfoContext(ctx, "Audit entry",
		slog.String("action", entry.Action),
		slog.String("actor", entry.Actor),
		slog.String("target_type", entry.TargetType),
		slog.String("target_id", entry.TargetID),
	)
	return nil
}
