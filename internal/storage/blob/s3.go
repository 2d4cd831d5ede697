// Package blob uploads listing photos and service documents to an
// S3-compatible object store, addressed by path.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/karsell/intake/internal/shared"
)

// Config holds the object-store connection settings.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for MinIO / DO Spaces / R2
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL is prepended to paths by PublicURL. When empty, the
	// endpoint/bucket pair is used.
	PublicBaseURL string
}

// Store wraps an S3 client for path-addressed uploads.
type Store struct {
	client *s3.Client
	cfg    Config
}

// New builds a Store from the given configuration.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: blob bucket not configured", shared.ErrorConfiguration)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &Store{client: client, cfg: cfg}, nil
}

// ObjectPath builds the storage path for an uploaded file:
// {entityID}/{category}/{generatedID}.{ext}.
func ObjectPath(entityID, category, filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s/%s.%s", entityID, category, uuid.NewString(), ext)
}

// Upload writes data under key. With overwrite disabled an existing object
// is preserved.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string, overwrite bool) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if !overwrite {
		input.IfNoneMatch = aws.String("*")
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return ClassifyError(err)
	}
	return nil
}

// PublicURL returns the public address of an uploaded object.
func (s *Store) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
