package interfaces

import (
	"context"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/internal/models"
)

type EmailProcessor interface {
	Tick(ctx context.Context) (*dto.TickSummary, error)
	ProcessInstanceNow(ctx context.Context, instanceID string) (*dto.TickSummary, error)
	RetryMessage(ctx context.Context, externalMessageID string) (*models.ProcessingLog, error)
	Status() dto.ProcessorStatus
}
