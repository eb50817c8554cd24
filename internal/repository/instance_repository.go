package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

type instanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) interfaces.InstanceRepository {
	return &instanceRepository{db: db}
}

func (r *instanceRepository) Create(ctx context.Context, instance *models.Instance) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "instanceRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if instance == nil {
		err := errors.New("instance cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	normalizeLabels(instance)

	if err := r.db.WithContext(ctx).Create(instance).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", fmt.Errorf("failed to create instance: %w", err)
	}

	tracing.TagEntity(span, instance.ID)
	return instance.ID, nil
}

func (r *instanceRepository) GetByID(ctx context.Context, id string) (*models.Instance, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "instanceRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	return r.first(ctx, span, "id = ?", id)
}

func (r *instanceRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Instance, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "instanceRepository.GetBySubdomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("subdomain", subdomain)

	if subdomain == "" {
		return nil, nil
	}
	return r.first(ctx, span, "LOWER(subdomain) = ?", strings.ToLower(subdomain))
}

func (r *instanceRepository) GetByCustomDomain(ctx context.Context, label string) (*models.Instance, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "instanceRepository.GetByCustomDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("custom_domain", label)

	if label == "" {
		return nil, nil
	}
	return r.first(ctx, span, "LOWER(custom_domain) = ?", strings.ToLower(label))
}

func (r *instanceRepository) first(ctx context.Context, span opentracing.Span, query string, args ...interface{}) (*models.Instance, error) {
	var instance models.Instance
	err := r.db.WithContext(ctx).Where(query, args...).First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return &instance, nil
}

func (r *instanceRepository) List(ctx context.Context, limit, offset int) ([]*models.Instance, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "instanceRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("limit", limit)
	span.SetTag("offset", offset)

	if limit <= 0 {
		limit = 50
	}

	var instances []*models.Instance
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Limit(limit).
		Offset(offset).
		Find(&instances).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	return instances, nil
}

func (r *instanceRepository) Update(ctx context.Context, instance *models.Instance) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "instanceRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if instance == nil || instance.ID == "" {
		err := errors.New("instance ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, instance.ID)
	normalizeLabels(instance)

	result := r.db.WithContext(ctx).
		Model(&models.Instance{}).
		Where("id = ?", instance.ID).
		Updates(map[string]interface{}{
			"name":                    instance.Name,
			"ims_base_url":            instance.IMSBaseURL,
			"ims_username":            instance.IMSUsername,
			"ims_password_ciphertext": instance.IMSPassword.Ciphertext,
			"ims_password_nonce":      instance.IMSPassword.Nonce,
			"subdomain":               instance.Subdomain,
			"custom_domain":           instance.CustomDomain,
			"email_status":            instance.EmailStatus,
			"updated_at":              utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update instance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("instance %s: %w", instance.ID, apperrors.ErrNotFound)
	}

	return nil
}

func (r *instanceRepository) UpdateEmailStatus(ctx context.Context, id string, status enum.EmailStatus) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "instanceRepository.UpdateEmailStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.SetTag("email_status", status.String())

	err := r.db.WithContext(ctx).
		Model(&models.Instance{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"email_status": status,
			"updated_at":   utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update instance email status: %w", err)
	}

	return nil
}

// Delete removes the instance. Configurations cascade in the database.
func (r *instanceRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "instanceRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).Delete(&models.Instance{}, "id = ?", id)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete instance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("instance %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func normalizeLabels(instance *models.Instance) {
	if instance.Subdomain != nil {
		instance.Subdomain = utils.StringPtrOrNil(strings.ToLower(strings.TrimSpace(*instance.Subdomain)))
	}
	if instance.CustomDomain != nil {
		instance.CustomDomain = utils.StringPtrOrNil(strings.ToLower(strings.TrimSpace(*instance.CustomDomain)))
	}
}
