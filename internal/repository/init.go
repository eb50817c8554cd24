package repository

import (
	"gorm.io/gorm"

	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/models"
)

type Repositories struct {
	InstanceRepository           interfaces.InstanceRepository
	EmailConfigurationRepository interfaces.EmailConfigurationRepository
	ProcessingLogRepository      interfaces.ProcessingLogRepository
	DeduplicationStore           interfaces.DeduplicationStore
}

func InitRepositories(db *gorm.DB) *Repositories {
	instances := NewInstanceRepository(db)
	configs := NewEmailConfigurationRepository(db)
	logs := NewProcessingLogRepository(db)

	return &Repositories{
		InstanceRepository:           instances,
		EmailConfigurationRepository: configs,
		ProcessingLogRepository:      logs,
		DeduplicationStore:           NewDeduplicationStore(logs, configs),
	}
}

// Migrate creates or updates the tables owned by this service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Instance{},
		&models.EmailConfiguration{},
		&models.ProcessingLog{},
	)
}
