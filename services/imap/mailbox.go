package imap

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/imsportal/filingstack/dto"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

const messageIDPrefix = "imap"

// ListMessages searches the configured folder. SINCE only has day
// granularity, so results are filtered on INTERNALDATE afterwards.
func (c *IMAPClient) ListMessages(ctx context.Context, mailbox string, since *time.Time, top int) ([]dto.MailboxMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.ListMessages")
	defer span.Finish()
	tracing.SetDefaultExternalAPISpanTags(ctx, span)
	tracing.TagMailbox(span, mailbox)

	c.mu.Lock()
	defer c.mu.Unlock()

	imapClient, status, err := c.selectFolder(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	if since != nil {
		criteria.Since = since.UTC()
	}
	uids, err := imapClient.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("%w: error searching messages: %v", apperrors.ErrTransientIO, err)
	}
	span.SetTag("search.count", len(uids))
	if len(uids) == 0 {
		return []dto.MailboxMessage{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		imap.FetchBodyStructure,
		imap.FetchUid,
	}

	fetched, err := fetch(imapClient, seqSet, items)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	messages := make([]dto.MailboxMessage, 0, len(fetched))
	for _, msg := range fetched {
		if since != nil && msg.InternalDate.Before(*since) {
			continue
		}
		messages = append(messages, summary(status.UidValidity, msg))
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})
	if top > 0 && len(messages) > top {
		messages = messages[:top]
	}
	span.SetTag("result.count", len(messages))

	return messages, nil
}

func (c *IMAPClient) GetMessage(ctx context.Context, mailbox, id string, expandAttachments bool) (*dto.MessageContent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.GetMessage")
	defer span.Finish()
	tracing.SetDefaultExternalAPISpanTags(ctx, span)
	tracing.TagMailbox(span, mailbox)
	tracing.TagEntity(span, id)

	uidValidity, uid, err := parseMessageID(id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	imapClient, status, err := c.selectFolder(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if status.UidValidity != uidValidity {
		err := fmt.Errorf("message %s: uid validity changed to %d: %w", id, status.UidValidity, apperrors.ErrNotFound)
		tracing.TraceErr(span, err)
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		imap.FetchBodyStructure,
		imap.FetchUid,
		section.FetchItem(),
	}

	fetched, err := fetch(imapClient, seqSet, items)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(fetched) == 0 {
		err := fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
		tracing.TraceErr(span, err)
		return nil, err
	}

	msg := fetched[0]
	literal := msg.GetBody(&imap.BodySectionName{})
	if literal == nil {
		err := errors.Errorf("message %s has no body", id)
		tracing.TraceErr(span, err)
		return nil, err
	}

	content, err := parseContent(literal, expandAttachments)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	content.MailboxMessage = summary(status.UidValidity, msg)

	return content, nil
}

func (c *IMAPClient) selectFolder(ctx context.Context) (*client.Client, *imap.MailboxStatus, error) {
	imapClient, err := c.getClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	status, err := imapClient.Select(c.cfg.Folder, true)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to select %s: %v", apperrors.ErrTransientIO, c.cfg.Folder, err)
	}
	return imapClient, status, nil
}

func fetch(imapClient *client.Client, seqSet *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, error) {
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.UidFetch(seqSet, items, messages)
	}()

	var fetched []*imap.Message
	for msg := range messages {
		fetched = append(fetched, msg)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: error fetching messages: %v", apperrors.ErrTransientIO, err)
	}
	return fetched, nil
}

func summary(uidValidity uint32, msg *imap.Message) dto.MailboxMessage {
	m := dto.MailboxMessage{
		ID:             formatMessageID(uidValidity, msg.Uid),
		ReceivedAt:     msg.InternalDate.UTC(),
		HasAttachments: hasAttachments(msg.BodyStructure),
	}
	if env := msg.Envelope; env != nil {
		m.Subject = env.Subject
		if from := envelopeAddresses(env.From); len(from) > 0 {
			m.From = from[0]
		}
		m.To = envelopeAddresses(env.To)
		m.Cc = envelopeAddresses(env.Cc)
	}
	return m
}

func envelopeAddresses(addresses []*imap.Address) []string {
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if a == nil {
			continue
		}
		if address := utils.NormalizeAddress(a.Address()); address != "" {
			out = append(out, address)
		}
	}
	return out
}

func hasAttachments(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	if strings.EqualFold(bs.Disposition, "attachment") {
		return true
	}
	for _, part := range bs.Parts {
		if hasAttachments(part) {
			return true
		}
	}
	return false
}

// Message ids are imap:<uidvalidity>:<uid> so they stay unique when the
// server renumbers the folder.
func formatMessageID(uidValidity, uid uint32) string {
	return fmt.Sprintf("%s:%d:%d", messageIDPrefix, uidValidity, uid)
}

func parseMessageID(id string) (uint32, uint32, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[0] != messageIDPrefix {
		return 0, 0, fmt.Errorf("invalid imap message id %q: %w", id, apperrors.ErrInvalidInput)
	}
	uidValidity, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid imap message id %q: %w", id, apperrors.ErrInvalidInput)
	}
	uid, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil || uid == 0 {
		return 0, 0, fmt.Errorf("invalid imap message id %q: %w", id, apperrors.ErrInvalidInput)
	}
	return uint32(uidValidity), uint32(uid), nil
}
