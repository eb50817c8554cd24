package events

import (
	"context"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/logger"
)

type Config struct {
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

// NewEventPublisher connects to RabbitMQ when a URL is configured and
// otherwise returns a publisher that only logs at debug level.
func NewEventPublisher(cfg Config, appSource string, log logger.Logger, publisherConfig *PublisherConfig) (interfaces.EventPublisher, error) {
	if cfg.RabbitMQURL == "" {
		log.Info("RABBITMQ_URL not set, processing events will not be published")
		return &noopPublisher{log: log}, nil
	}
	return NewRabbitMQPublisher(cfg.RabbitMQURL, appSource, log, publisherConfig)
}

type noopPublisher struct {
	log logger.Logger
}

func (p *noopPublisher) PublishEmailProcessed(_ context.Context, event dto.EmailProcessed) error {
	p.log.Debugf("email %s processed with status %s", event.ExternalMessageID, event.Status)
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}
