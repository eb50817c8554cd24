package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/tracing"
)

// deduplicationStore answers "have we seen this message" from the
// processing log and keeps watermarks on the email configurations.
type deduplicationStore struct {
	logs    interfaces.ProcessingLogRepository
	configs interfaces.EmailConfigurationRepository
}

func NewDeduplicationStore(logs interfaces.ProcessingLogRepository, configs interfaces.EmailConfigurationRepository) interfaces.DeduplicationStore {
	return &deduplicationStore{logs: logs, configs: configs}
}

func (s *deduplicationStore) HasProcessed(ctx context.Context, externalMessageID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deduplicationStore.HasProcessed")
	defer span.Finish()

	seen, err := s.logs.Exists(ctx, externalMessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	span.SetTag("result.seen", seen)
	return seen, nil
}

func (s *deduplicationStore) RecordAttempt(ctx context.Context, entry *models.ProcessingLog) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deduplicationStore.RecordAttempt")
	defer span.Finish()

	id, err := s.logs.Upsert(ctx, entry)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return id, nil
}

func (s *deduplicationStore) AdvanceWatermark(ctx context.Context, configIDs []string, ts time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deduplicationStore.AdvanceWatermark")
	defer span.Finish()

	if err := s.configs.AdvanceWatermark(ctx, configIDs, ts); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
