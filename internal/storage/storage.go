package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectClient is the part of the S3 API the snapshot store relies on.
// *s3.Client satisfies it.
type ObjectClient interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options conveys where snapshots live.
type Options struct {
	Bucket    string
	KeyPrefix string
}

const (
	usersObject    = "users.json"
	accountsObject = "accounts.json"
)
