package imap

import (
	"io"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/imsportal/filingstack/dto"
)

// parseContent reads a raw RFC 822 message into body and attachments.
func parseContent(r io.Reader, expandAttachments bool) (*dto.MessageContent, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse message")
	}

	content := &dto.MessageContent{
		Body:            env.Text,
		BodyContentType: dto.BodyText,
	}
	if env.HTML != "" {
		content.Body = env.HTML
		content.BodyContentType = dto.BodyHTML
	}

	if !expandAttachments {
		return content, nil
	}
	for _, part := range env.Attachments {
		content.Attachments = append(content.Attachments, dto.Attachment{
			Name:        part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
			Content:     part.Content,
		})
	}
	for _, part := range env.Inlines {
		content.Attachments = append(content.Attachments, dto.Attachment{
			Name:        part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
			Content:     part.Content,
			IsInline:    true,
		})
	}
	return content, nil
}
