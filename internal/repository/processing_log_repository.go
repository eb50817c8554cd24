package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

const defaultLogPageSize = 50

type processingLogRepository struct {
	db *gorm.DB
}

func NewProcessingLogRepository(db *gorm.DB) interfaces.ProcessingLogRepository {
	return &processingLogRepository{db: db}
}

func (r *processingLogRepository) Exists(ctx context.Context, externalMessageID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processingLogRepository.Exists")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("external_message_id", externalMessageID)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessingLog{}).
		Where("external_message_id = ?", externalMessageID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, fmt.Errorf("failed to check processing log: %w", err)
	}

	return count > 0, nil
}

// Upsert inserts the entry or overwrites the mutable columns of the row that
// already holds its external message id. Attempts grows each time the row is
// put back into processing. The id of the stored row is returned.
func (r *processingLogRepository) Upsert(ctx context.Context, entry *models.ProcessingLog) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processingLogRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if entry == nil || entry.ExternalMessageID == "" {
		err := errors.New("processing log external message id cannot be empty")
		tracing.TraceErr(span, err)
		return "", err
	}
	span.SetTag("external_message_id", entry.ExternalMessageID)
	span.SetTag("status", entry.Status.String())

	if entry.Attempts == 0 {
		entry.Attempts = 1
	}

	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "external_message_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"mailbox":                gorm.Expr("EXCLUDED.mailbox"),
					"instance_id":            gorm.Expr("EXCLUDED.instance_id"),
					"email_configuration_id": gorm.Expr("EXCLUDED.email_configuration_id"),
					"addressing_mode":        gorm.Expr("EXCLUDED.addressing_mode"),
					"subject":                gorm.Expr("EXCLUDED.subject"),
					"from_address":           gorm.Expr("EXCLUDED.from_address"),
					"to_addresses":           gorm.Expr("EXCLUDED.to_addresses"),
					"received_at":            gorm.Expr("EXCLUDED.received_at"),
					"control_number":         gorm.Expr("EXCLUDED.control_number"),
					"status":                 gorm.Expr("EXCLUDED.status"),
					"error_message":          gorm.Expr("EXCLUDED.error_message"),
					"attachment_count":       gorm.Expr("EXCLUDED.attachment_count"),
					"filed_document_ids":     gorm.Expr("EXCLUDED.filed_document_ids"),
					"filing_details":         gorm.Expr("EXCLUDED.filing_details"),
					"attempts": gorm.Expr(
						"CASE WHEN EXCLUDED.status = ? THEN email_processing_logs.attempts + 1 ELSE email_processing_logs.attempts END",
						enum.ProcessingInProgress),
					"updated_at": utils.Now(),
				}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "id"}}},
		).
		Create(entry).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return "", fmt.Errorf("failed to upsert processing log: %w", err)
	}

	tracing.TagEntity(span, entry.ID)
	return entry.ID, nil
}

func (r *processingLogRepository) GetByExternalMessageID(ctx context.Context, externalMessageID string) (*models.ProcessingLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processingLogRepository.GetByExternalMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("external_message_id", externalMessageID)

	var entry models.ProcessingLog
	err := r.db.WithContext(ctx).
		Where("external_message_id = ?", externalMessageID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get processing log: %w", err)
	}

	return &entry, nil
}

func (r *processingLogRepository) List(ctx context.Context, filter interfaces.ProcessingLogFilter) ([]*models.ProcessingLog, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processingLogRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagInstance(span, filter.InstanceID)

	query := r.db.WithContext(ctx).Model(&models.ProcessingLog{})
	if filter.InstanceID != "" {
		query = query.Where("instance_id = ?", filter.InstanceID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, fmt.Errorf("failed to count processing logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLogPageSize
	}

	var entries []*models.ProcessingLog
	err := query.
		Order("received_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&entries).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, fmt.Errorf("failed to list processing logs: %w", err)
	}

	return entries, total, nil
}
