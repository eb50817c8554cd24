package aws_client

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
)

// NewR2Client creates an S3Client for Cloudflare R2. R2 only accepts
// path-style addressing and the "auto" region.
func NewR2Client(accountID, accessKeyID, accessKeySecret string) (S3Client, error) {
	return NewS3Client(&aws.Config{
		Endpoint:         aws.String("https://" + accountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
}
