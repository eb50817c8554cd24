package dto

import "time"

// MailboxMessage is the summary returned when listing a mailbox.
type MailboxMessage struct {
	ID             string    `json:"id"`
	Subject        string    `json:"subject"`
	From           string    `json:"from"`
	To             []string  `json:"to"`
	Cc             []string  `json:"cc"`
	ReceivedAt     time.Time `json:"receivedAt"`
	HasAttachments bool      `json:"hasAttachments"`
}

// Recipients returns To followed by Cc.
func (m MailboxMessage) Recipients() []string {
	recipients := make([]string, 0, len(m.To)+len(m.Cc))
	recipients = append(recipients, m.To...)
	return append(recipients, m.Cc...)
}

type BodyContentType string

const (
	BodyHTML BodyContentType = "html"
	BodyText BodyContentType = "text"
)

// MessageContent is a fully fetched message.
type MessageContent struct {
	MailboxMessage
	Body            string          `json:"body"`
	BodyContentType BodyContentType `json:"bodyContentType"`
	Attachments     []Attachment    `json:"attachments"`
}

type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"`
	IsInline    bool   `json:"isInline"`
}

// Fileable reports whether the attachment is filed as its own document.
// Inline parts and empty payloads are not.
func (a Attachment) Fileable() bool {
	return !a.IsInline && len(a.Content) > 0
}
