package email_processor

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/internal/enum"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

const unroutableMessage = "no recipient matched an active email configuration"

// handleMessage moves one message through dedup, routing, extraction and
// filing. recorded is true when nothing is left to do for the message from
// this source's point of view: it was seen before, it now has a terminal
// processing log row, or it belongs to another instance whose own managed
// watermark still sits before it. The message runs on a context detached
// from ctx so a shutdown never abandons it mid-filing.
func (p *Processor) handleMessage(ctx context.Context, src *source, message dto.MailboxMessage, summary *dto.SourceSummary, retry bool) (entry *models.ProcessingLog, recorded bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.MessageTimeout)
	defer cancel()

	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.handleMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, message.ID)
	tracing.TagMailbox(span, src.mailbox)

	if !retry {
		seen, err := p.repos.DeduplicationStore.HasProcessed(ctx, message.ID)
		if err != nil {
			tracing.TraceErr(span, err)
			p.log.Errorf("dedup check for message %s failed: %v", message.ID, err)
			return nil, false
		}
		if seen {
			summary.AlreadySeen++
			span.SetTag("result.seen", true)
			return nil, true
		}
	}

	entry = newLogEntry(src, message)

	route, err := p.route(ctx, src, message)
	switch {
	case err != nil:
		tracing.TraceErr(span, err)
		if src.instanceID != "" {
			// The owner is unknown, so the row is left to the regular tick.
			return nil, false
		}
		entry.Status = enum.ProcessingError
		entry.ErrorMessage = err.Error()
		return p.complete(ctx, entry, summary)
	case route == nil:
		entry.Status = enum.ProcessingUnroutable
		entry.ErrorMessage = unroutableMessage
		return p.complete(ctx, entry, summary)
	case src.instanceID != "" && route.Instance.ID != src.instanceID:
		span.SetTag("result.foreign", true)
		return nil, !route.Configuration.IsClientHosted()
	}

	tracing.TagInstance(span, route.Instance.ID)
	entry.InstanceID = utils.StringPtr(route.Instance.ID)
	entry.EmailConfigurationID = utils.StringPtr(route.Configuration.ID)
	entry.AddressingMode = route.AddressingMode.String()

	controlNumber, found := p.services.Extractor.Extract(message.Subject, route.Configuration.ControlNumberPatterns)
	if !found {
		entry.Status = enum.ProcessingSkipped
		entry.ErrorMessage = apperrors.ErrExtractionMiss.Error()
		return p.complete(ctx, entry, summary)
	}
	entry.ControlNumber = utils.StringPtr(controlNumber)

	// No filing without a durable record of the attempt.
	entry.Status = enum.ProcessingInProgress
	id, err := p.repos.DeduplicationStore.RecordAttempt(ctx, entry)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("failed to record processing of message %s: %v", message.ID, err)
		return nil, false
	}
	entry.ID = id

	p.file(ctx, src, route, entry, message)
	return p.complete(ctx, entry, summary)
}

func (p *Processor) route(ctx context.Context, src *source, message dto.MailboxMessage) (*dto.RoutingResult, error) {
	if src.fixedRoute != nil {
		return src.fixedRoute, nil
	}
	return p.services.Router.Route(ctx, message.Recipients())
}

// file fetches the full message and hands it to the filing gateway. The
// outcome is written to entry.
func (p *Processor) file(ctx context.Context, src *source, route *dto.RoutingResult, entry *models.ProcessingLog, message dto.MailboxMessage) {
	content, err := src.client.GetMessage(ctx, src.mailbox, message.ID, route.Configuration.IncludeAttachments)
	if err != nil {
		entry.Status = enum.ProcessingError
		entry.ErrorMessage = fmt.Sprintf("fetch message: %v", err)
		return
	}
	entry.AttachmentCount = countAttachments(content)

	result, err := p.services.Filing.File(ctx, route.Instance, route.Configuration, content, *entry.ControlNumber)
	if result != nil {
		entry.FiledDocumentIDs = result.DocumentIDs()
		entry.FilingDetails = models.JSONMap{"documents": result.Documents}
	}
	if err != nil {
		entry.Status = enum.ProcessingError
		entry.ErrorMessage = err.Error()
		return
	}
	entry.Status = enum.ProcessingFiled
	entry.ErrorMessage = ""
}

// complete writes the terminal row and reports the outcome.
func (p *Processor) complete(ctx context.Context, entry *models.ProcessingLog, summary *dto.SourceSummary) (*models.ProcessingLog, bool) {
	id, err := p.repos.DeduplicationStore.RecordAttempt(ctx, entry)
	if err != nil {
		p.log.Errorf("failed to record %s outcome of message %s: %v", entry.Status, entry.ExternalMessageID, err)
		return nil, false
	}
	entry.ID = id

	summary.Outcomes[entry.Status]++
	if p.metrics != nil {
		p.metrics.MessagesProcessed.WithLabelValues(entry.Status.String()).Inc()
	}
	if entry.Status == enum.ProcessingError {
		p.log.Warnf("message %s from %s failed: %s", entry.ExternalMessageID, entry.Mailbox, entry.ErrorMessage)
	} else {
		p.log.Infof("message %s from %s: %s", entry.ExternalMessageID, entry.Mailbox, entry.Status)
	}

	p.publish(ctx, entry)
	return entry, true
}

func (p *Processor) publish(ctx context.Context, entry *models.ProcessingLog) {
	if p.services.Events == nil {
		return
	}
	event := dto.EmailProcessed{
		ExternalMessageID: entry.ExternalMessageID,
		ProcessingLogID:   entry.ID,
		InstanceID:        utils.GetOrDefault(entry.InstanceID, ""),
		ConfigurationID:   utils.GetOrDefault(entry.EmailConfigurationID, ""),
		Status:            entry.Status,
		ControlNumber:     utils.GetOrDefault(entry.ControlNumber, ""),
		DocumentIDs:       entry.FiledDocumentIDs,
		Error:             entry.ErrorMessage,
	}
	if err := p.services.Events.PublishEmailProcessed(ctx, event); err != nil {
		p.log.Warnf("failed to publish processing event for message %s: %v", entry.ExternalMessageID, err)
	}
}

func newLogEntry(src *source, message dto.MailboxMessage) *models.ProcessingLog {
	return &models.ProcessingLog{
		ExternalMessageID: message.ID,
		Mailbox:           src.mailbox,
		Subject:           message.Subject,
		FromAddress:       message.From,
		ToAddresses:       message.Recipients(),
		ReceivedAt:        message.ReceivedAt.UTC(),
		Status:            enum.ProcessingPending,
	}
}

func countAttachments(content *dto.MessageContent) int {
	count := 0
	for _, attachment := range content.Attachments {
		if attachment.Fileable() {
			count++
		}
	}
	return count
}
