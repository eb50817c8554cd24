package interfaces

import (
	"context"
	"time"

	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/models"
)

type InstanceRepository interface {
	Create(ctx context.Context, instance *models.Instance) (string, error)
	GetByID(ctx context.Context, id string) (*models.Instance, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Instance, error)
	GetByCustomDomain(ctx context.Context, label string) (*models.Instance, error)
	List(ctx context.Context, limit, offset int) ([]*models.Instance, error)
	Update(ctx context.Context, instance *models.Instance) error
	UpdateEmailStatus(ctx context.Context, id string, status enum.EmailStatus) error
	Delete(ctx context.Context, id string) error
}

type EmailConfigurationRepository interface {
	Create(ctx context.Context, config *models.EmailConfiguration) (string, error)
	GetByID(ctx context.Context, id string) (*models.EmailConfiguration, error)
	GetByEmailAddress(ctx context.Context, address string) (*models.EmailConfiguration, error)
	GetByInstanceAndPrefix(ctx context.Context, instanceID, prefix string) (*models.EmailConfiguration, error)
	GetDefaultForInstance(ctx context.Context, instanceID string) (*models.EmailConfiguration, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.EmailConfiguration, error)
	// ListProcessable returns active configurations of the given type whose
	// instance has an active email status.
	ListProcessable(ctx context.Context, configType enum.ConfigType) ([]*models.EmailConfiguration, error)
	Update(ctx context.Context, config *models.EmailConfiguration) error
	Delete(ctx context.Context, id string) error
	AdvanceWatermark(ctx context.Context, configIDs []string, ts time.Time) error
	SetLastError(ctx context.Context, configID string, message string) error
	UpdateTestStatus(ctx context.Context, configID string, status enum.TestStatus, message string) error
}

type ProcessingLogFilter struct {
	InstanceID string
	Status     enum.ProcessingStatus
	Limit      int
	Offset     int
}

type ProcessingLogRepository interface {
	Exists(ctx context.Context, externalMessageID string) (bool, error)
	Upsert(ctx context.Context, entry *models.ProcessingLog) (string, error)
	GetByExternalMessageID(ctx context.Context, externalMessageID string) (*models.ProcessingLog, error)
	List(ctx context.Context, filter ProcessingLogFilter) ([]*models.ProcessingLog, int64, error)
}

// DeduplicationStore guards against processing a message twice and moves
// per-configuration watermarks forward.
type DeduplicationStore interface {
	HasProcessed(ctx context.Context, externalMessageID string) (bool, error)
	RecordAttempt(ctx context.Context, entry *models.ProcessingLog) (string, error)
	AdvanceWatermark(ctx context.Context, configIDs []string, ts time.Time) error
}
