package storage

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/imsportal/filingstack/interfaces"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/services/storage/aws_client"
)

type Config struct {
	Enabled         bool   `env:"ARCHIVE_ENABLED" envDefault:"false"`
	Provider        string `env:"ARCHIVE_PROVIDER" envDefault:"r2"`
	BucketName      string `env:"ARCHIVE_BUCKET"`
	KeyPrefix       string `env:"ARCHIVE_KEY_PREFIX" envDefault:"filed"`
	Region          string `env:"ARCHIVE_REGION" envDefault:"us-east-1"`
	R2AccountID     string `env:"ARCHIVE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"ARCHIVE_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ARCHIVE_ACCESS_KEY_SECRET"`
}

// NewStorageServiceFromConfig returns nil when archiving is disabled.
func NewStorageServiceFromConfig(cfg *Config) (interfaces.StorageService, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("ARCHIVE_BUCKET is required when archiving is enabled: %w", apperrors.ErrConfiguration)
	}

	var (
		client aws_client.S3Client
		err    error
	)
	switch cfg.Provider {
	case "r2":
		client, err = aws_client.NewR2Client(cfg.R2AccountID, cfg.AccessKeyID, cfg.AccessKeySecret)
	case "s3":
		client, err = aws_client.NewS3Client(&aws.Config{
			Region:      aws.String(cfg.Region),
			Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
		})
	default:
		return nil, fmt.Errorf("unknown archive provider %q: %w", cfg.Provider, apperrors.ErrConfiguration)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}

	return NewStorageService(client, cfg.BucketName, cfg.KeyPrefix), nil
}
