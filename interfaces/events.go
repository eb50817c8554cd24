package interfaces

import (
	"context"

	"github.com/imsportal/filingstack/dto"
)

type EventPublisher interface {
	PublishEmailProcessed(ctx context.Context, event dto.EmailProcessed) error
	Close() error
}
