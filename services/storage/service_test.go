package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/imsportal/filingstack/internal/errors"
)

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) Upload(ctx context.Context, input *s3manager.UploadInput) error {
	return m.Called(ctx, input).Error(0)
}

func (m *mockS3Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	args := m.Called(ctx, bucket, key)
	content, _ := args.Get(0).([]byte)
	return content, args.Error(1)
}

func (m *mockS3Client) Delete(ctx context.Context, bucket, key string) error {
	return m.Called(ctx, bucket, key).Error(0)
}

func TestArchiveStorageService_Upload(t *testing.T) {
	// Arrange
	client := &mockS3Client{}
	var uploaded *s3manager.UploadInput
	client.On("Upload", mock.Anything, mock.AnythingOfType("*s3manager.UploadInput")).
		Run(func(args mock.Arguments) {
			uploaded = args.Get(1).(*s3manager.UploadInput)
		}).
		Return(nil)
	service := NewStorageService(client, "archive", "/filed/")

	// Act
	err := service.Upload(context.Background(), "/inst_1/12345/body.html", []byte("<p>hi</p>"), "")

	// Assert
	require.NoError(t, err)
	client.AssertExpectations(t)
	require.NotNil(t, uploaded)
	body, _ := io.ReadAll(uploaded.Body)
	assert.Equal(t, "archive", aws.StringValue(uploaded.Bucket))
	assert.Equal(t, "filed/inst_1/12345/body.html", aws.StringValue(uploaded.Key))
	assert.Equal(t, "application/octet-stream", aws.StringValue(uploaded.ContentType))
	assert.Equal(t, "<p>hi</p>", string(body))
}

func TestArchiveStorageService_DownloadAndDelete(t *testing.T) {
	client := &mockS3Client{}
	client.On("Download", mock.Anything, "archive", "a/b.pdf").Return([]byte("pdf"), nil)
	client.On("Delete", mock.Anything, "archive", "a/b.pdf").Return(errors.New("denied"))
	service := NewStorageService(client, "archive", "")

	content, err := service.Download(context.Background(), "a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), content)

	assert.EqualError(t, service.Delete(context.Background(), "a/b.pdf"), "denied")
}

func TestNewStorageServiceFromConfig(t *testing.T) {
	service, err := NewStorageServiceFromConfig(&Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, service)

	_, err = NewStorageServiceFromConfig(&Config{Enabled: true})
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))

	_, err = NewStorageServiceFromConfig(&Config{Enabled: true, BucketName: "b", Provider: "gcs"})
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))

	service, err = NewStorageServiceFromConfig(&Config{
		Enabled:         true,
		Provider:        "r2",
		BucketName:      "b",
		R2AccountID:     "acct",
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, service)
}
