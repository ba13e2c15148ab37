package output

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the object storage the JSON files are published to.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// S3Publisher uploads written files to an S3-compatible bucket so a static
// front end can read them.
type S3Publisher struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

// NewS3Publisher creates the client. No request is made until Publish.
func NewS3Publisher(cfg S3Config) (*S3Publisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &S3Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		region: cfg.Region,
	}, nil
}

// Publish uploads the local file under prefix/<base name>, creating the
// bucket on first use.
func (p *S3Publisher) Publish(ctx context.Context, filePath string) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", p.bucket, err)
		}
	}

	object := p.objectName(filePath)
	_, err = p.client.FPutObject(ctx, p.bucket, object, filePath, minio.PutObjectOptions{
		ContentType:  "application/json",
		CacheControl: "no-cache",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", object, err)
	}
	return nil
}

func (p *S3Publisher) objectName(filePath string) string {
	return path.Join(p.prefix, filepath.Base(filePath))
}
