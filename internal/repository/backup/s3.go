// Package backup archives collection snapshots to S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ObjectPutter is the subset of the S3 client used for archiving.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the archive destination.
type Config struct {
	Bucket string
	Prefix string
	Region string
}

// Archiver writes timestamped JSON objects under a bucket prefix.
type Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewS3Archiver builds an archiver on the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg Config, logger *zap.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewArchiver(s3.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewArchiver wraps an existing client.
func NewArchiver(client ObjectPutter, cfg Config, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Archive uploads payload as <prefix>/<name>-<UTC timestamp>.json and returns
// the object key.
func (a *Archiver) Archive(ctx context.Context, name string, payload []byte) (string, error) {
	key := path.Join(a.prefix, fmt.Sprintf("%s-%s.json", name, a.now().UTC().Format("20060102T150405Z")))
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.Info("snapshot archived", zap.String("bucket", a.bucket), zap.String("key", key), zap.Int("bytes", len(payload)))
	return key, nil
}
