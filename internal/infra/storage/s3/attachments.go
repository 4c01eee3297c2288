package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domainchat "nestly/internal/domain/chat"
)

// AttachmentStore uploads message attachments to an S3-compatible bucket and
// returns the reference stored on the message.
type AttachmentStore interface {
	Upload(ctx context.Context, name string, reader io.Reader, contentType string, size int64) (domainchat.Attachment, error)
}

// Client wraps a MinIO/S3 client.
type Client struct {
	bucket         string
	publicBaseURL  string
	client         *minio.Client
	logger         *slog.Logger
	bucketInitOnce sync.Once
	bucketInitErr  error
}

// NewClient configures an attachment store using the provided endpoint and
// credentials.
func NewClient(endpoint string, useSSL bool, accessKey, secretKey, bucket, publicBaseURL string, logger *slog.Logger) (*Client, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), opts)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	base := strings.TrimSpace(publicBaseURL)
	if base == "" {
		base = cleanEndpoint
	}
	return &Client{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		client:        minioClient,
		logger:        logger,
	}, nil
}

// Upload stores the content under a generated key and returns the attachment
// reference to embed in the message.
func (c *Client) Upload(ctx context.Context, name string, reader io.Reader, contentType string, size int64) (domainchat.Attachment, error) {
	if reader == nil {
		return domainchat.Attachment{}, errors.New("s3: reader is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "attachment"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := c.ensureBucket(ctx); err != nil {
		return domainchat.Attachment{}, err
	}

	id := uuid.NewString()
	key := "attachments/" + id + "/" + sanitizeObjectName(name)
	info, err := c.client.PutObject(ctx, c.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return domainchat.Attachment{}, fmt.Errorf("s3: put object: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug("attachment stored", "bucket", c.bucket, "key", key, "size", info.Size)
	}
	return domainchat.Attachment{
		ID:          id,
		Name:        name,
		URL:         c.objectURL(key),
		ContentType: contentType,
		Size:        info.Size,
	}, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	c.bucketInitOnce.Do(func() {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			c.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			c.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
		}
	})
	return c.bucketInitErr
}

func (c *Client) objectURL(key string) string {
	return c.publicBaseURL + "/" + c.bucket + "/" + key
}

func parseEndpoint(raw string) string {
	if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return raw
}

func sanitizeObjectName(name string) string {
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return name
}

var _ AttachmentStore = (*Client)(nil)
