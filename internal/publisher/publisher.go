package publisher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/pkg/config"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

// Notifier is a broker-backed snapshot notifier.
type Notifier interface {
	NotifySnapshotSaved(ctx context.Context, evt model.SnapshotSavedEvent) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// FromConfig builds the notifier selected by EVENTS_DRIVER.
// It returns nil, nil when notifications are disabled.
func FromConfig(cfg *config.Config, logger *zap.Logger) (Notifier, error) {
	switch cfg.EventsDriver {
	case "", config.EventsNone:
		return nil, nil
	case config.EventsNATS:
		p, err := NewNATS(cfg.NATSURL, cfg.NATSSubject, cfg.ServiceName, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.EventsAMQP:
		p, err := NewAMQP(cfg.AMQPURL, cfg.AMQPRoutingKey, cfg.ServiceName, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
	}
}
