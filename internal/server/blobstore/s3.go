package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	sc "github.com/dmitrijs2005/lostfound/internal/server/config"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/google/uuid"
)

const keyPrefix = "lost-and-found"

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}

	now = time.Now
)

// S3Store keeps blobs in a single bucket. The blob id is the object key.
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3Store builds the S3 client from static credentials. Nothing is sent
// over the network until the first Put or Delete.
func NewS3Store(ctx context.Context, cfg *sc.Config) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		}
		// MinIO and most S3-compatible servers expect bucket-in-path addressing
		o.UsePathStyle = true
	})

	return &S3Store{
		client:  client,
		bucket:  cfg.S3Bucket,
		baseURL: publicBaseURL(cfg),
	}, nil
}

func publicBaseURL(cfg *sc.Config) string {
	if cfg.S3PublicBaseURL != "" {
		return strings.TrimRight(cfg.S3PublicBaseURL, "/")
	}
	return strings.TrimRight(cfg.S3BaseEndpoint, "/") + "/" + cfg.S3Bucket
}

// NewStorageKey returns a unique, date-partitioned object key keeping the
// original file extension.
func NewStorageKey(filename string) string {
	d := now().UTC()
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%d/%02d/%02d/%v%s", keyPrefix, d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

func (s *S3Store) Put(ctx context.Context, upload models.Upload) (models.Blob, error) {
	key := NewStorageKey(upload.Filename)

	_, err := putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(upload.Data),
		ContentLength: aws.Int64(int64(len(upload.Data))),
		ContentType:   aws.String(upload.ContentType),
	})
	if err != nil {
		return models.Blob{}, fmt.Errorf("put object: %w", err)
	}

	return models.Blob{ID: key, URL: s.baseURL + "/" + key}, nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	_, err := deleteObject(s.client, ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %q: %w", id, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
