package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/metrics"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes snapshot envelopes to the default exchange.
type AMQPPublisher struct {
	conn       *amqp.Connection
	channel    amqpChannel
	routingKey string
	service    string
	logger     *zap.Logger
}

// NewAMQP dials url and opens a channel.
func NewAMQP(url, routingKey, service string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := newAMQP(channel, routingKey, service, logger)
	p.conn = conn
	return p, nil
}

func newAMQP(ch amqpChannel, routingKey, service string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if routingKey == "" {
		routingKey = model.EventTypeSnapshotSaved
	}
	return &AMQPPublisher{channel: ch, routingKey: routingKey, service: service, logger: logger}
}

func (p *AMQPPublisher) NotifySnapshotSaved(ctx context.Context, evt model.SnapshotSavedEvent) error {
	env, err := model.NewSnapshotSavedEnvelope(p.service, evt)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed", zap.Error(err))
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		"",           // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.ID.String(),
			CorrelationId: env.CorrelationID.String(),
			Type:          env.EventType,
			AppId:         p.service,
			Timestamp:     env.Timestamp,
			Body:          body,
		},
	)
	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("routing_key", p.routingKey),
			zap.Error(err))
		metrics.IncEvent("amqp", "error")
		return err
	}

	p.logger.Info("publisher.publish_success",
		zap.String("routing_key", p.routingKey),
		zap.Int("asset_count", evt.AssetCount))
	metrics.IncEvent("amqp", "ok")
	return nil
}

func (p *AMQPPublisher) HealthCheck(context.Context) error {
	if p.conn == nil {
		return nil
	}
	if p.conn.IsClosed() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
