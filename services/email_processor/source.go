package email_processor

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/crypto"
	"github.com/imsportal/filingstack/internal/enum"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

const (
	sourceManaged      = "managed"
	sourceClientHosted = "client_hosted"

	// Largest page the mailbox APIs accept.
	maxPageSize = 1000
)

// source is one mailbox read during a pass together with the configurations
// whose watermark it moves.
type source struct {
	kind    string
	mailbox string
	client  interfaces.MailboxClient
	configs []*models.EmailConfiguration
	since   time.Time
	// When set only messages routed to this instance are touched.
	instanceID string
	// Client hosted mailboxes belong to one configuration and bypass the
	// address router.
	fixedRoute *dto.RoutingResult
}

func (s *source) configIDs() []string {
	ids := make([]string, 0, len(s.configs))
	for _, c := range s.configs {
		ids = append(ids, c.ID)
	}
	return ids
}

func newSourceSummary(src *source) *dto.SourceSummary {
	return &dto.SourceSummary{
		Mailbox:  src.mailbox,
		Outcomes: map[enum.ProcessingStatus]int{},
	}
}

func (p *Processor) allSources(ctx context.Context, summary *dto.TickSummary) ([]*source, error) {
	configRepository := p.repos.EmailConfigurationRepository

	managed, err := configRepository.ListProcessable(ctx, enum.ConfigManaged)
	if err != nil {
		return nil, fmt.Errorf("failed to list managed configurations: %w", err)
	}
	hosted, err := configRepository.ListProcessable(ctx, enum.ConfigClientHosted)
	if err != nil {
		return nil, fmt.Errorf("failed to list client hosted configurations: %w", err)
	}

	var sources []*source
	if src := p.managedSource(managed, ""); src != nil {
		sources = append(sources, src)
	}
	for _, config := range hosted {
		src, err := p.clientHostedSource(config.Instance, config)
		if err != nil {
			summary.Sources = append(summary.Sources, p.sourceUnavailable(ctx, config, err))
			continue
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func (p *Processor) instanceSources(ctx context.Context, instanceID string, summary *dto.TickSummary) ([]*source, error) {
	instance, err := p.repos.InstanceRepository.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("instance %s: %w", instanceID, apperrors.ErrNotFound)
	}
	if !instance.IsEmailActive() {
		return nil, fmt.Errorf("instance %s email status is %s: %w", instanceID, instance.EmailStatus, apperrors.ErrInvalidInput)
	}

	configs, err := p.repos.EmailConfigurationRepository.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations of instance %s: %w", instanceID, err)
	}

	var managed []*models.EmailConfiguration
	var sources []*source
	for _, config := range configs {
		if !config.IsActive {
			continue
		}
		config.Instance = instance
		if !config.IsClientHosted() {
			managed = append(managed, config)
			continue
		}
		src, err := p.clientHostedSource(instance, config)
		if err != nil {
			summary.Sources = append(summary.Sources, p.sourceUnavailable(ctx, config, err))
			continue
		}
		sources = append(sources, src)
	}

	if src := p.managedSource(managed, instanceID); src != nil {
		sources = append([]*source{src}, sources...)
	}
	return sources, nil
}

func (p *Processor) managedSource(configs []*models.EmailConfiguration, instanceID string) *source {
	if p.services.ManagedMailbox == nil || len(configs) == 0 {
		return nil
	}
	return &source{
		kind:       sourceManaged,
		mailbox:    p.services.ManagedMailboxName,
		client:     p.services.ManagedMailbox,
		configs:    configs,
		since:      p.watermark(configs),
		instanceID: instanceID,
	}
}

func (p *Processor) clientHostedSource(instance *models.Instance, config *models.EmailConfiguration) (*source, error) {
	if p.services.ClientMailboxes == nil {
		return nil, fmt.Errorf("client hosted mailboxes are not enabled: %w", apperrors.ErrConfiguration)
	}
	if instance == nil {
		return nil, fmt.Errorf("configuration %s has no instance: %w", config.ID, apperrors.ErrConfiguration)
	}
	mailbox := config.Address()
	if mailbox == "" {
		return nil, fmt.Errorf("configuration %s has no mailbox address: %w", config.ID, apperrors.ErrConfiguration)
	}

	creds, err := crypto.DecryptClientCredentials(p.services.Cipher, config)
	if err != nil {
		return nil, err
	}

	return &source{
		kind:    sourceClientHosted,
		mailbox: mailbox,
		client:  p.services.ClientMailboxes.ForCredentials(creds),
		configs: []*models.EmailConfiguration{config},
		since:   p.watermark([]*models.EmailConfiguration{config}),
		fixedRoute: &dto.RoutingResult{
			Instance:       instance,
			Configuration:  config,
			AddressingMode: config.AddressingMode,
			MatchedAddress: mailbox,
			MatchedPrefix:  config.EmailPrefix,
		},
	}, nil
}

func (p *Processor) retrySource(ctx context.Context, entry *models.ProcessingLog) (*source, error) {
	if entry.EmailConfigurationID != nil {
		config, err := p.repos.EmailConfigurationRepository.GetByID(ctx, *entry.EmailConfigurationID)
		if err != nil {
			return nil, err
		}
		if config != nil && config.IsClientHosted() {
			instance, err := p.repos.InstanceRepository.GetByID(ctx, config.InstanceID)
			if err != nil {
				return nil, err
			}
			return p.clientHostedSource(instance, config)
		}
	}

	if p.services.ManagedMailbox == nil {
		return nil, fmt.Errorf("managed mailbox is not enabled: %w", apperrors.ErrConfiguration)
	}
	return &source{
		kind:    sourceManaged,
		mailbox: entry.Mailbox,
		client:  p.services.ManagedMailbox,
	}, nil
}

// watermark is the oldest watermark among configs. Configurations that were
// never processed start InitialLookback ago.
func (p *Processor) watermark(configs []*models.EmailConfiguration) time.Time {
	floor := p.now().Add(-p.cfg.InitialLookback)
	var since time.Time
	for i, config := range configs {
		current := utils.GetOrDefault(config.LastProcessedAt, floor)
		if i == 0 || current.Before(since) {
			since = current
		}
	}
	return since.UTC()
}

// processSource pages through the mailbox from the source watermark. After
// each page the watermark moves to the newest message of the prefix that
// was durably recorded. A listing or watermark failure aborts the source.
// Last errors are cleared only when every listed message was recorded.
func (p *Processor) processSource(ctx context.Context, src *source) *dto.SourceSummary {
	ctx = utils.SetMailboxInContext(ctx, src.mailbox)
	if src.instanceID != "" {
		ctx = utils.SetInstanceInContext(ctx, src.instanceID)
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.processSource")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	summary := newSourceSummary(src)
	since := src.since
	summary.WatermarkFrom = utils.TimePtr(since)

	top := p.cfg.BatchSize
	for page := 0; page < p.cfg.MaxPagesPerTick; page++ {
		messages, err := src.client.ListMessages(ctx, src.mailbox, &since, top)
		if err != nil {
			tracing.TraceErr(span, err)
			p.sourceFailed(ctx, src, summary, fmt.Errorf("list messages: %w", err))
			return summary
		}
		summary.Fetched += len(messages)
		if p.metrics != nil {
			p.metrics.MessagesFetched.WithLabelValues(src.kind).Add(float64(len(messages)))
		}

		advanceTo, complete, interrupted := p.processPage(ctx, src, messages, summary)
		if interrupted {
			p.log.Warnf("processing of mailbox %s interrupted, watermark left at %s", src.mailbox, since.Format(time.RFC3339))
			return summary
		}

		if advanceTo.After(since) {
			if err := p.advance(ctx, src, advanceTo); err != nil {
				tracing.TraceErr(span, err)
				p.sourceFailed(ctx, src, summary, err)
				return summary
			}
			summary.WatermarkTo = utils.TimePtr(advanceTo)
		}

		if !complete {
			// a message was left unrecorded, so earlier errors may still stand
			return summary
		}
		if len(messages) < top {
			break
		}
		if !advanceTo.After(since) {
			// A full page of messages stamped exactly at the watermark.
			if top >= maxPageSize {
				p.log.Warnf("mailbox %s has more than %d messages received at %s", src.mailbox, maxPageSize, since.Format(time.RFC3339))
				break
			}
			top = min(top*2, maxPageSize)
			continue
		}
		since = advanceTo
		top = p.cfg.BatchSize
	}

	p.clearLastErrors(ctx, src)
	return summary
}

// processPage handles messages oldest first. advanceTo is the newest
// receivedAt of the leading run of recorded messages; complete reports
// whether every message was recorded.
func (p *Processor) processPage(ctx context.Context, src *source, messages []dto.MailboxMessage, summary *dto.SourceSummary) (advanceTo time.Time, complete bool, interrupted bool) {
	complete = true
	for _, message := range messages {
		if ctx.Err() != nil {
			return advanceTo, false, true
		}
		_, recorded := p.handleMessage(ctx, src, message, summary, false)
		if !recorded {
			complete = false
		}
		if complete {
			advanceTo = utils.MaxTime(&advanceTo, message.ReceivedAt)
		}
	}
	return advanceTo, complete, false
}

func (p *Processor) advance(ctx context.Context, src *source, ts time.Time) error {
	ids := src.configIDs()
	if len(ids) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if err := p.repos.DeduplicationStore.AdvanceWatermark(ctx, ids, ts); err != nil {
		return fmt.Errorf("advance watermark to %s: %w", ts.Format(time.RFC3339), err)
	}
	if p.metrics != nil {
		p.metrics.WatermarkLag.WithLabelValues(src.mailbox).Set(p.now().Sub(ts).Seconds())
	}
	return nil
}

func (p *Processor) sourceFailed(ctx context.Context, src *source, summary *dto.SourceSummary, err error) {
	summary.Error = err.Error()
	p.log.Errorf("mailbox %s failed: %v", src.mailbox, err)
	if p.metrics != nil {
		p.metrics.SourceFailures.WithLabelValues(src.kind).Inc()
	}
	for _, config := range src.configs {
		if setErr := p.repos.EmailConfigurationRepository.SetLastError(ctx, config.ID, err.Error()); setErr != nil {
			p.log.Errorf("failed to set last error on configuration %s: %v", config.ID, setErr)
		}
	}
}

// sourceUnavailable reports a client hosted configuration that could not be
// turned into a source.
func (p *Processor) sourceUnavailable(ctx context.Context, config *models.EmailConfiguration, err error) dto.SourceSummary {
	src := &source{kind: sourceClientHosted, mailbox: config.Address(), configs: []*models.EmailConfiguration{config}}
	summary := newSourceSummary(src)
	p.sourceFailed(ctx, src, summary, err)
	return *summary
}

func (p *Processor) clearLastErrors(ctx context.Context, src *source) {
	for _, config := range src.configs {
		if config.LastError == "" {
			continue
		}
		if err := p.repos.EmailConfigurationRepository.SetLastError(ctx, config.ID, ""); err != nil {
			p.log.Warnf("failed to clear last error on configuration %s: %v", config.ID, err)
		}
	}
}
