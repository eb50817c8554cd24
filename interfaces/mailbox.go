package interfaces

import (
	"context"
	"time"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/internal/models"
)

type MailboxClient interface {
	// ListMessages returns at most top messages received at or after since,
	// oldest first. A nil since lists from the start of the mailbox.
	ListMessages(ctx context.Context, mailbox string, since *time.Time, top int) ([]dto.MailboxMessage, error)
	GetMessage(ctx context.Context, mailbox, id string, expandAttachments bool) (*dto.MessageContent, error)
}

// MailboxClientFactory builds clients for client hosted mailboxes.
type MailboxClientFactory interface {
	ForCredentials(creds models.ClientCredentials) MailboxClient
}
