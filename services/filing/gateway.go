package filing

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/logger"
	"github.com/imsportal/filingstack/internal/metrics"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

const bodyTimestampLayout = "20060102_150405"

type filingGateway struct {
	ims     interfaces.IMSClient
	cipher  interfaces.CredentialCipher
	archive interfaces.StorageService
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewFilingGateway files messages through client. archive may be nil.
func NewFilingGateway(client interfaces.IMSClient, cipher interfaces.CredentialCipher, archive interfaces.StorageService, m *metrics.Metrics, log logger.Logger) interfaces.FilingGateway {
	return &filingGateway{
		ims:     client,
		cipher:  cipher,
		archive: archive,
		metrics: m,
		log:     log,
	}
}

// File logs in once, files the body document and then every attachment when
// the configuration asks for them. Nothing is retried. On failure the
// documents filed so far are returned with an error naming the failed step.
func (g *filingGateway) File(ctx context.Context, instance *models.Instance, config *models.EmailConfiguration, message *dto.MessageContent, controlNumber string) (*dto.FilingResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "filingGateway.File")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInstance(span, instance.ID)
	tracing.TagEntity(span, message.ID)
	span.SetTag("control_number", controlNumber)

	start := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.FilingDuration.Observe(time.Since(start).Seconds())
		}
	}()

	result := &dto.FilingResult{}

	control, err := strconv.Atoi(controlNumber)
	if err != nil {
		err = fmt.Errorf("invalid control number %q: %w", controlNumber, apperrors.ErrInvalidInput)
		tracing.TraceErr(span, err)
		return result, err
	}

	password, err := g.cipher.Decrypt(instance.IMSPassword)
	if err != nil {
		err = fmt.Errorf("decrypt ims password: %w: %v", apperrors.ErrConfiguration, err)
		tracing.TraceErr(span, err)
		return result, err
	}

	session, err := g.ims.Login(ctx, instance.IMSBaseURL, instance.IMSUsername, password)
	if err != nil {
		err = fmt.Errorf("ims login: %w", err)
		tracing.TraceErr(span, err)
		return result, err
	}

	body := BodyDocument(message, control, config.DefaultFolderID)
	documentID, err := g.ims.InsertAssociatedDocument(ctx, session, body)
	if err != nil {
		err = fmt.Errorf("file body document: %w", err)
		tracing.TraceErr(span, err)
		return result, err
	}
	result.Documents = append(result.Documents, dto.FiledDocument{Name: body.Name, DocumentID: documentID, IsBody: true})
	g.countDocument("body")
	g.archiveDocument(ctx, instance.ID, controlNumber, documentID, body)

	if !config.IncludeAttachments {
		return result, nil
	}

	for _, attachment := range message.Attachments {
		if !attachment.Fileable() {
			continue
		}
		doc := AttachmentDocument(message, attachment, control, config.DefaultFolderID)
		documentID, err := g.ims.InsertAssociatedDocument(ctx, session, doc)
		if err != nil {
			err = fmt.Errorf("file attachment %s: %w", doc.Name, err)
			tracing.TraceErr(span, err)
			return result, err
		}
		result.Documents = append(result.Documents, dto.FiledDocument{Name: doc.Name, DocumentID: documentID})
		g.countDocument("attachment")
		g.archiveDocument(ctx, instance.ID, controlNumber, documentID, doc)
	}

	span.SetTag("result.documents", len(result.Documents))
	return result, nil
}

func (g *filingGateway) countDocument(kind string) {
	if g.metrics != nil {
		g.metrics.DocumentsFiled.WithLabelValues(kind).Inc()
	}
}

// archiveDocument copies a filed document to object storage. Failures are
// only logged.
func (g *filingGateway) archiveDocument(ctx context.Context, instanceID, controlNumber, documentID string, doc dto.IMSDocument) {
	if g.archive == nil {
		return
	}
	key := fmt.Sprintf("%s/%s/%s-%s", instanceID, controlNumber, documentID, doc.Name)
	if err := g.archive.Upload(ctx, key, doc.Content, doc.ContentType); err != nil {
		if g.metrics != nil {
			g.metrics.ArchiveFailures.Inc()
		}
		g.log.Warnf("failed to archive document %s for instance %s: %v", doc.Name, instanceID, err)
	}
}

// BodyDocument renders the message as Email_<control>_<yyyyMMdd_HHmmss>.<ext>
// with a From/To/Subject/Received header block above the body.
func BodyDocument(message *dto.MessageContent, control int, folderID string) dto.IMSDocument {
	received := message.ReceivedAt.UTC()
	isHTML := message.BodyContentType == dto.BodyHTML

	ext, contentType := "txt", "text/plain; charset=utf-8"
	if isHTML {
		ext, contentType = "html", "text/html; charset=utf-8"
	}

	headers := [][2]string{
		{"From", message.From},
		{"To", strings.Join(message.To, ", ")},
	}
	if len(message.Cc) > 0 {
		headers = append(headers, [2]string{"Cc", strings.Join(message.Cc, ", ")})
	}
	headers = append(headers,
		[2]string{"Subject", message.Subject},
		[2]string{"Received", received.Format(time.RFC1123Z)},
	)

	var buf bytes.Buffer
	if isHTML {
		buf.WriteString("<div style=\"font-family:sans-serif;border-bottom:1px solid #ccc;margin-bottom:12px;padding-bottom:8px\">\n")
		for _, h := range headers {
			fmt.Fprintf(&buf, "<div><b>%s:</b> %s</div>\n", h[0], html.EscapeString(h[1]))
		}
		buf.WriteString("</div>\n")
	} else {
		for _, h := range headers {
			fmt.Fprintf(&buf, "%s: %s\n", h[0], h[1])
		}
		buf.WriteString("\n")
	}
	buf.WriteString(message.Body)

	return dto.IMSDocument{
		Name:          fmt.Sprintf("Email_%d_%s.%s", control, received.Format(bodyTimestampLayout), ext),
		Content:       buf.Bytes(),
		ContentType:   contentType,
		Description:   describe(message),
		ControlNumber: control,
		FolderID:      folderID,
	}
}

func AttachmentDocument(message *dto.MessageContent, attachment dto.Attachment, control int, folderID string) dto.IMSDocument {
	name := strings.TrimSpace(attachment.Name)
	if name == "" {
		name = fmt.Sprintf("attachment.%s", utils.GetFileExtensionFromContentType(attachment.ContentType))
	}
	return dto.IMSDocument{
		Name:          name,
		Content:       attachment.Content,
		ContentType:   attachment.ContentType,
		Description:   "Attachment: " + describe(message),
		ControlNumber: control,
		FolderID:      folderID,
	}
}

func describe(message *dto.MessageContent) string {
	description := "Email from " + message.From
	if message.Subject != "" {
		description += ": " + message.Subject
	}
	return description
}
