package storage

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/services/storage/aws_client"
)

// ArchiveStorageService keeps a copy of every filed document under
// <prefix>/<key> in one bucket.
type ArchiveStorageService struct {
	client     aws_client.S3Client
	bucketName string
	keyPrefix  string
}

func NewStorageService(client aws_client.S3Client, bucketName, keyPrefix string) interfaces.StorageService {
	return &ArchiveStorageService{
		client:     client,
		bucketName: bucketName,
		keyPrefix:  strings.Trim(keyPrefix, "/"),
	}
}

func (s *ArchiveStorageService) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.keyPrefix == "" {
		return key
	}
	return path.Join(s.keyPrefix, key)
}

func (s *ArchiveStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("size", len(data))

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	err := s.client.Upload(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *ArchiveStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	content, err := s.client.Download(ctx, s.bucketName, s.objectKey(key))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return content, nil
}

func (s *ArchiveStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveStorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.client.Delete(ctx, s.bucketName, s.objectKey(key)); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
