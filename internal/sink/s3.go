package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/johndauphine/chfile/internal/logging"
)

// S3Config locates a bucket on an S3-compatible object store.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether an endpoint and bucket are configured.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// S3 uploads payloads as objects.
type S3 struct {
	client      *minio.Client
	bucket      string
	prefix      string
	compression Compression
}

// NewS3 creates an uploader. Endpoint may be a bare host:port or an
// http(s) URL; an https scheme forces TLS.
func NewS3(cfg S3Config, c Compression) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}

	host := cfg.Endpoint
	secure := cfg.UseSSL
	if strings.Contains(cfg.Endpoint, "://") {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint: %w", err)
		}
		host = u.Host
		if u.Scheme == "https" {
			secure = true
		}
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/"), compression: c}, nil
}

// Key returns the object key name is stored under.
func (s *S3) Key(name string) string {
	return path.Join(s.prefix, path.Base(name)+s.compression.Ext())
}

// Save uploads data and returns its s3:// location.
func (s *S3) Save(ctx context.Context, name string, data []byte) (string, error) {
	payload, err := s.compression.Encode(data)
	if err != nil {
		return "", err
	}
	key := s.Key(name)
	contentType := "text/csv"
	if s.compression != CompressNone {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, key, err)
	}
	loc := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	logging.Debug("Uploaded %d bytes to %s", len(payload), loc)
	return loc, nil
}
