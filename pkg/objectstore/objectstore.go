package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes how to reach the S3-compatible backing store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string // defaults to us-east-1
	UseSSL    bool
}

// Client is a typed get/put/head/download/upload adapter over one
// bucket of an S3-compatible object store.
type Client struct {
	mc     *minio.Client
	bucket string
	region string
}

// New creates a Client against cfg.Endpoint using signature v4.
func New(cfg Config) (*Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}

	return &Client{mc: mc, bucket: cfg.Bucket, region: region}, nil
}

// ProjectKey builds a key rooted at projects/{canonicalID}/{rel}.
func ProjectKey(canonicalID, rel string) string {
	return path.Join("projects", canonicalID, rel)
}

// GetBytes fetches the full contents of key.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(err)
	}
	// GetObject does not itself fail on a missing key; the error only
	// surfaces on the first read.
	if _, statErr := obj.Stat(); statErr != nil {
		return nil, classify(statErr)
	}
	return data, nil
}

// PutBytes writes body to key, replacing any existing object.
func (c *Client) PutBytes(ctx context.Context, key string, body []byte) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		log.WithComponent("objectstore").Error().Err(err).Str("key", key).Msg("put failed")
		return classify(err)
	}
	return nil
}

// ObjectInfo is the subset of object metadata callers need.
type ObjectInfo struct {
	Size         int64
	ETag         string
	LastModified string
}

// Head returns metadata for key without downloading its body.
func (c *Client) Head(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := c.mc.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, classify(err)
	}
	return ObjectInfo{
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
	}, nil
}

// Download fetches key to a local file at path, overwriting it.
func (c *Client) Download(ctx context.Context, key, path string) error {
	if err := c.mc.FGetObject(ctx, c.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return classify(err)
	}
	return nil
}

// Upload puts the local file at path to key.
func (c *Client) Upload(ctx context.Context, path, key string) error {
	_, err := c.mc.FPutObject(ctx, c.bucket, key, path, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Exists reports whether key is present, classifying ErrNotFound as a
// plain false rather than an error.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Head(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}
