// Package storage archives quarantined payloads in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	infraconfig "github.com/marketsync/backend/internal/infrastructure/config"
)

var (
	ErrObjectNotFound = errors.New("archived object not found")
	errEmptyKey       = errors.New("storage key is required")
)

const defaultRegion = "us-east-1"

var _ integration.PayloadArchive = (*S3PayloadArchive)(nil)

// S3PayloadArchive writes raw payloads of quarantined records to a bucket,
// under an optional key prefix. Works against AWS S3 and MinIO alike.
type S3PayloadArchive struct {
	client *s3.Client
	bucket string
	prefix string
	log    *zap.Logger
}

type S3PayloadArchiveOption func(*S3PayloadArchive)

func WithLogger(log *zap.Logger) S3PayloadArchiveOption {
	return func(s *S3PayloadArchive) { s.log = log }
}

// NewS3PayloadArchive builds the client from cfg. Without a static key pair
// the default AWS credential chain is used.
func NewS3PayloadArchive(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3PayloadArchiveOption) (*S3PayloadArchive, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("storage configuration is required")
	case cfg.Bucket == "":
		return nil, errors.New("storage bucket is required")
	case (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == ""):
		return nil, errors.New("storage access key id and secret access key must be set together")
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	load := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		load = append(load, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(endpoint)
		// MinIO and friends reject the default flexible checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	a := &S3PayloadArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (s *S3PayloadArchive) Bucket() string { return s.bucket }

func (s *S3PayloadArchive) key(k string) *string {
	return aws.String(path.Join(s.prefix, k))
}

// EnsureBucket creates the bucket unless it already exists.
func (s *S3PayloadArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.log.Info("Created payload bucket", zap.String("bucket", s.bucket))
	return nil
}

func (s *S3PayloadArchive) Put(ctx context.Context, key string, payload []byte) error {
	if key == "" {
		return errEmptyKey
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           s.key(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.log.Debug("Archived payload", zap.String("key", key), zap.Int("bytes", len(payload)))
	return nil
}

// Get returns ErrObjectNotFound when nothing is stored under key.
func (s *S3PayloadArchive) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(key),
	})
	if isNotFound(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// isNotFound matches the typed S3 errors and, for stores that only send a
// status, any API error coded NotFound or NoSuchKey.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var (
		notFound *types.NotFound
		noKey    *types.NoSuchKey
		noBucket *types.NoSuchBucket
		apiErr   smithy.APIError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noKey), errors.As(err, &noBucket):
		return true
	case errors.As(err, &apiErr):
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchBucket"
	}
	return false
}
