package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

type emailConfigurationRepository struct {
	db *gorm.DB
}

func NewEmailConfigurationRepository(db *gorm.DB) interfaces.EmailConfigurationRepository {
	return &emailConfigurationRepository{db: db}
}

func (r *emailConfigurationRepository) Create(ctx context.Context, config *models.EmailConfiguration) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if config == nil {
		err := errors.New("email configuration cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	tracing.TagInstance(span, config.InstanceID)
	normalizeConfiguration(config)

	var err error
	if config.IsDefault {
		// only one default per instance
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.EmailConfiguration{}).
				Where("instance_id = ? AND is_default = ?", config.InstanceID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
			return tx.Create(config).Error
		})
	} else {
		err = r.db.WithContext(ctx).Create(config).Error
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return "", fmt.Errorf("failed to create email configuration: %w", err)
	}

	tracing.TagEntity(span, config.ID)
	return config.ID, nil
}

func (r *emailConfigurationRepository) GetByID(ctx context.Context, id string) (*models.EmailConfiguration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	return r.first(ctx, span, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *emailConfigurationRepository) GetByEmailAddress(ctx context.Context, address string) (*models.EmailConfiguration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.GetByEmailAddress")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("email_address", address)

	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, nil
	}
	return r.first(ctx, span, r.db.WithContext(ctx).Where("LOWER(email_address) = ?", address))
}

func (r *emailConfigurationRepository) GetByInstanceAndPrefix(ctx context.Context, instanceID, prefix string) (*models.EmailConfiguration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.GetByInstanceAndPrefix")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagInstance(span, instanceID)
	span.SetTag("prefix", prefix)

	return r.first(ctx, span, r.db.WithContext(ctx).
		Where("instance_id = ? AND LOWER(email_prefix) = ?", instanceID, strings.ToLower(prefix)).
		Order("created_at ASC"))
}

func (r *emailConfigurationRepository) GetDefaultForInstance(ctx context.Context, instanceID string) (*models.EmailConfiguration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.GetDefaultForInstance")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagInstance(span, instanceID)

	return r.first(ctx, span, r.db.WithContext(ctx).
		Where("instance_id = ? AND is_default = ?", instanceID, true).
		Order("created_at ASC"))
}

func (r *emailConfigurationRepository) first(ctx context.Context, span opentracing.Span, query *gorm.DB) (*models.EmailConfiguration, error) {
	var config models.EmailConfiguration
	err := query.First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get email configuration: %w", err)
	}
	return &config, nil
}

func (r *emailConfigurationRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.EmailConfiguration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.ListByInstance")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagInstance(span, instanceID)

	var configs []*models.EmailConfiguration
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("created_at ASC").
		Find(&configs).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list email configurations: %w", err)
	}

	return configs, nil
}

func (r *emailConfigurationRepository) ListProcessable(ctx context.Context, configType enum.ConfigType) ([]*models.EmailConfiguration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.ListProcessable")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("config_type", configType.String())

	var configs []*models.EmailConfiguration
	err := r.db.WithContext(ctx).
		Joins("JOIN instances ON instances.id = email_configurations.instance_id").
		Where("email_configurations.config_type = ?", configType).
		Where("email_configurations.is_active = ?", true).
		Where("instances.email_status = ?", enum.EmailStatusActive).
		Preload("Instance").
		Order("email_configurations.created_at ASC").
		Find(&configs).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list processable configurations: %w", err)
	}

	span.SetTag("result.count", len(configs))
	return configs, nil
}

// Update saves admin editable fields. The watermark is never written here.
func (r *emailConfigurationRepository) Update(ctx context.Context, config *models.EmailConfiguration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if config == nil || config.ID == "" {
		err := errors.New("email configuration ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, config.ID)
	normalizeConfiguration(config)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if config.IsDefault {
			if err := tx.Model(&models.EmailConfiguration{}).
				Where("instance_id = ? AND id <> ? AND is_default = ?", config.InstanceID, config.ID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}

		result := tx.Model(&models.EmailConfiguration{}).
			Where("id = ?", config.ID).
			Updates(map[string]interface{}{
				"addressing_mode":            config.AddressingMode,
				"email_address":              config.EmailAddress,
				"email_prefix":               config.EmailPrefix,
				"is_default":                 config.IsDefault,
				"is_active":                  config.IsActive,
				"client_id_ciphertext":       config.ClientID.Ciphertext,
				"client_id_nonce":            config.ClientID.Nonce,
				"client_secret_ciphertext":   config.ClientSecret.Ciphertext,
				"client_secret_nonce":        config.ClientSecret.Nonce,
				"azure_tenant_id_ciphertext": config.AzureTenantID.Ciphertext,
				"azure_tenant_id_nonce":      config.AzureTenantID.Nonce,
				"control_number_patterns":    config.ControlNumberPatterns,
				"include_attachments":        config.IncludeAttachments,
				"default_folder_id":          config.DefaultFolderID,
				"updated_at":                 utils.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("email configuration %s: %w", config.ID, apperrors.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update email configuration: %w", err)
	}

	return nil
}

func (r *emailConfigurationRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).Delete(&models.EmailConfiguration{}, "id = ?", id)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete email configuration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("email configuration %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

// AdvanceWatermark moves last_processed_at forward for every id in one
// statement. GREATEST keeps a concurrent writer from pulling it back and
// treats a NULL watermark as unset.
func (r *emailConfigurationRepository) AdvanceWatermark(ctx context.Context, configIDs []string, ts time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.AdvanceWatermark")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("config_ids", strings.Join(configIDs, ","))
	span.SetTag("watermark", ts.UTC().Format(time.RFC3339Nano))

	if len(configIDs) == 0 || ts.IsZero() {
		return nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.EmailConfiguration{}).
		Where("id IN ?", configIDs).
		UpdateColumn("last_processed_at", gorm.Expr("GREATEST(last_processed_at, ?)", ts.UTC())).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to advance watermark: %w", err)
	}

	return nil
}

// SetLastError records a source level failure. An empty message clears it.
func (r *emailConfigurationRepository) SetLastError(ctx context.Context, configID string, message string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.SetLastError")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, configID)

	var lastErrorAt interface{}
	if message != "" {
		lastErrorAt = utils.Now()
	}

	err := r.db.WithContext(ctx).
		Model(&models.EmailConfiguration{}).
		Where("id = ?", configID).
		UpdateColumns(map[string]interface{}{
			"last_error":    message,
			"last_error_at": lastErrorAt,
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to set last error: %w", err)
	}

	return nil
}

func (r *emailConfigurationRepository) UpdateTestStatus(ctx context.Context, configID string, status enum.TestStatus, message string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailConfigurationRepository.UpdateTestStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, configID)
	span.SetTag("test_status", status.String())

	err := r.db.WithContext(ctx).
		Model(&models.EmailConfiguration{}).
		Where("id = ?", configID).
		UpdateColumns(map[string]interface{}{
			"last_test_status": status,
			"last_test_error":  message,
			"last_tested_at":   utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update test status: %w", err)
	}

	return nil
}

func normalizeConfiguration(config *models.EmailConfiguration) {
	if config.EmailAddress != nil {
		config.EmailAddress = utils.StringPtrOrNil(strings.ToLower(strings.TrimSpace(*config.EmailAddress)))
	}
	config.EmailPrefix = strings.ToLower(strings.TrimSpace(config.EmailPrefix))
}
