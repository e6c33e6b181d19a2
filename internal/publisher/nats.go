// Package publisher announces saved snapshots on a message broker.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/metrics"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

// jetStream is the part of nats.JetStreamContext the publisher needs.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes canonical envelopes through JetStream.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetStream
	subject string
	service string
	logger  *zap.Logger
}

// NewNATS connects to url and enables JetStream.
func NewNATS(url, subject, service string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name(service))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to enable JetStream: %w", err)
	}
	p := newNATS(js, subject, service, logger)
	p.nc = nc
	return p, nil
}

func newNATS(js jetStream, subject, service string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subject == "" {
		subject = model.TopicSnapshotSaved
	}
	return &NATSPublisher{js: js, subject: subject, service: service, logger: logger}
}

// NotifySnapshotSaved publishes an asset.snapshot.saved envelope.
func (p *NATSPublisher) NotifySnapshotSaved(ctx context.Context, evt model.SnapshotSavedEvent) error {
	env, err := model.NewSnapshotSavedEnvelope(p.service, evt)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}
	return p.PublishEnvelope(ctx, p.subject, env)
}

// PublishEnvelope serializes env and publishes it on subject, or the default subject when empty.
func (p *NATSPublisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"event_id":       []string{env.ID.String()},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncEvent("nats", "error")
		return err
	}

	p.logger.Info("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("event_type", env.EventType),
		zap.Duration("took", time.Since(start)))
	metrics.IncEvent("nats", "ok")
	return nil
}

// HealthCheck reports whether the NATS connection is up.
func (p *NATSPublisher) HealthCheck(context.Context) error {
	if p.nc == nil {
		return nil
	}
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected: %s", p.nc.Status())
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil && !p.nc.IsClosed() {
		p.nc.Close()
	}
	return nil
}
