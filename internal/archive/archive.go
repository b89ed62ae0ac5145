// Package archive stores raw provider payloads so a reconciliation run can be
// replayed or debugged after the fact.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/config"
)

// Archiver stores one raw payload
type Archiver interface {
	Archive(ctx context.Context, sport, name string, body []byte) error
}

// Nop discards everything
type Nop struct{}

func (Nop) Archive(context.Context, string, string, []byte) error { return nil }

// Uploader is the part of the S3 client the archiver needs
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes payloads to an S3-compatible bucket
type S3Archiver struct {
	client Uploader
	bucket string
	now    func() time.Time
}

// NewS3Archiver wraps an uploader
func NewS3Archiver(client Uploader, bucket string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		now:    time.Now,
	}
}

// New builds the archiver for cfg: S3 when a bucket is configured, Nop
// otherwise.
func New(ctx context.Context, cfg *config.Config) (Archiver, error) {
	if !cfg.ArchiveEnabled() {
		return Nop{}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveRegion),
	}
	if cfg.ArchiveAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.ArchiveAccessKeyID, cfg.ArchiveSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ArchiveEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ArchiveEndpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().
		Str("bucket", cfg.ArchiveBucket).
		Str("endpoint", cfg.ArchiveEndpoint).
		Msg("Raw payload archive enabled")

	return NewS3Archiver(client, cfg.ArchiveBucket), nil
}

// Key returns the object key for a payload fetched at t
func Key(sport, name string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("raw/%s/%s/%s-%s.json",
		sport,
		t.Format("2006-01-02"),
		slug.Make(name),
		t.Format("150405"),
	)
}

func (a *S3Archiver) Archive(ctx context.Context, sport, name string, body []byte) error {
	if len(body) == 0 {
		return nil
	}

	key := Key(sport, name, a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}

	log.Debug().
		Str("key", key).
		Int("bytes", len(body)).
		Msg("Archived raw payload")

	return nil
}
