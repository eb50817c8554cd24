package interfaces

import (
	"context"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/internal/models"
)

type IMSSession struct {
	BaseURL string
	Token   string
}

type IMSClient interface {
	Login(ctx context.Context, baseURL, username, password string) (*IMSSession, error)
	InsertAssociatedDocument(ctx context.Context, session *IMSSession, doc dto.IMSDocument) (string, error)
}

type FilingGateway interface {
	File(ctx context.Context, instance *models.Instance, config *models.EmailConfiguration, message *dto.MessageContent, controlNumber string) (*dto.FilingResult, error)
}
