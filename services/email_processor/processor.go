package email_processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/logger"
	"github.com/imsportal/filingstack/internal/metrics"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

// Services are the collaborators the processor drives.
type Services struct {
	// Shared catch-all mailbox read with system credentials.
	ManagedMailbox     interfaces.MailboxClient
	ManagedMailboxName string
	// Builds clients for client hosted mailboxes.
	ClientMailboxes interfaces.MailboxClientFactory
	Router          interfaces.AddressRouter
	Extractor       interfaces.ControlNumberExtractor
	Filing          interfaces.FilingGateway
	Cipher          interfaces.CredentialCipher
	Events          interfaces.EventPublisher
}

type Processor struct {
	cfg      Config
	repos    *repository.Repositories
	services Services
	metrics  *metrics.Metrics
	log      logger.Logger

	mu       sync.Mutex
	running  bool
	lastTick *dto.TickSummary

	now func() time.Time
}

func NewProcessor(cfg Config, repos *repository.Repositories, services Services, m *metrics.Metrics, log logger.Logger) *Processor {
	return &Processor{
		cfg:      cfg.withDefaults(),
		repos:    repos,
		services: services,
		metrics:  m,
		log:      log,
		now:      utils.Now,
	}
}

var _ interfaces.EmailProcessor = (*Processor)(nil)

// Tick runs one pass over every mailbox source. A tick that starts while
// another pass is running does nothing.
func (p *Processor) Tick(ctx context.Context) (*dto.TickSummary, error) {
	if !p.tryStart() {
		p.log.Info("email processing pass already running, skipping tick")
		if p.metrics != nil {
			p.metrics.TicksSkipped.Inc()
		}
		return nil, nil
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.Tick")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	summary := &dto.TickSummary{StartedAt: p.now()}
	defer p.finish(summary)

	sources, err := p.allSources(ctx, summary)
	if err != nil {
		tracing.TraceErr(span, err)
		return summary, err
	}

	p.run(ctx, sources, summary)
	span.SetTag("result.sources", len(summary.Sources))
	return summary, nil
}

// ProcessInstanceNow runs the same pass restricted to one instance. Managed
// mailbox messages that belong to other instances, or that failed to route,
// are left for the regular tick. Unroutable messages are logged as usual.
func (p *Processor) ProcessInstanceNow(ctx context.Context, instanceID string) (*dto.TickSummary, error) {
	if !p.tryStart() {
		return nil, apperrors.ErrProcessingInProgress
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.ProcessInstanceNow")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInstance(span, instanceID)

	summary := &dto.TickSummary{StartedAt: p.now(), InstanceID: instanceID}
	defer p.finish(summary)

	sources, err := p.instanceSources(ctx, instanceID, summary)
	if err != nil {
		tracing.TraceErr(span, err)
		return summary, err
	}

	p.run(ctx, sources, summary)
	return summary, nil
}

// RetryMessage reruns routing, extraction and filing for a message whose
// processing log entry is in error state. The same entry is updated.
func (p *Processor) RetryMessage(ctx context.Context, externalMessageID string) (*models.ProcessingLog, error) {
	if !p.tryStart() {
		return nil, apperrors.ErrProcessingInProgress
	}
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.RetryMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, externalMessageID)

	entry, err := p.repos.ProcessingLogRepository.GetByExternalMessageID(ctx, externalMessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("processing log for message %s: %w", externalMessageID, apperrors.ErrNotFound)
	}
	if entry.Status != enum.ProcessingError {
		return entry, fmt.Errorf("message %s has status %s: %w", externalMessageID, entry.Status, apperrors.ErrNotRetryable)
	}

	src, err := p.retrySource(ctx, entry)
	if err != nil {
		tracing.TraceErr(span, err)
		return entry, err
	}

	message := dto.MailboxMessage{
		ID:         entry.ExternalMessageID,
		Subject:    entry.Subject,
		From:       entry.FromAddress,
		To:         entry.ToAddresses,
		ReceivedAt: entry.ReceivedAt,
	}
	summary := newSourceSummary(src)
	retried, recorded := p.handleMessage(ctx, src, message, summary, true)
	if !recorded {
		err = fmt.Errorf("retry of message %s could not be recorded", externalMessageID)
		tracing.TraceErr(span, err)
		return entry, err
	}
	if retried == nil {
		return entry, nil
	}
	span.SetTag("result.status", retried.Status)
	return retried, nil
}

func (p *Processor) Status() dto.ProcessorStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return dto.ProcessorStatus{Running: p.running, LastTick: p.lastTick}
}

func (p *Processor) tryStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Processor) finish(summary *dto.TickSummary) {
	summary.FinishedAt = p.now()
	if p.metrics != nil {
		p.metrics.TickDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.lastTick = summary
}

// run processes sources one after another. A failing source never blocks
// the ones after it.
func (p *Processor) run(ctx context.Context, sources []*source, summary *dto.TickSummary) {
	for _, src := range sources {
		if ctx.Err() != nil {
			p.log.Warnf("email processing pass interrupted before mailbox %s", src.mailbox)
			return
		}
		sourceSummary := p.processSource(ctx, src)
		summary.Sources = append(summary.Sources, *sourceSummary)
	}
}
