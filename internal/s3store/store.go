// Package s3store reads and writes pipeline artifacts addressed by
// s3://bucket/key URIs.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"idp/internal/logger"
)

// Store is the narrow blob-storage interface the core components depend on.
type Store interface {
	ReadBytes(ctx context.Context, uri string) ([]byte, error)
	ReadText(ctx context.Context, uri string) (string, error)
	ReadJSON(ctx context.Context, uri string, out any) error
	WriteBytes(ctx context.Context, uri string, data []byte, contentType string) error
	WriteJSON(ctx context.Context, uri string, value any) error
}

// S3Store implements Store against Amazon S3.
type S3Store struct {
	client *s3.Client
	log    zerolog.Logger
}

// New creates an S3-backed store using the default AWS credential chain.
func New(ctx context.Context, region string) (*S3Store, error) {
	const op = "New"

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3store: %s: failed to load AWS config: %w", op, err)
	}
	return NewWithDeps(s3.NewFromConfig(cfg)), nil
}

// NewWithDeps creates a store with an explicit SDK client.
func NewWithDeps(client *s3.Client) *S3Store {
	return &S3Store{
		client: client,
		log:    logger.WithComponent("s3store"),
	}
}

// ParseURI splits an s3://bucket/key URI into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid URI %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("unsupported URI scheme %q (expected s3)", u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("URI %q is missing bucket or key", uri)
	}
	return u.Host, key, nil
}

// URI joins a bucket and key back into an s3:// URI.
func URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// ReadBytes fetches the object at uri.
func (s *S3Store) ReadBytes(ctx context.Context, uri string) ([]byte, error) {
	const op = "ReadBytes"

	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("s3store: %s: %w", op, err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: %s %s: %w", op, uri, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3store: %s %s: read body: %w", op, uri, err)
	}
	return data, nil
}

// ReadText fetches the object at uri as a UTF-8 string.
func (s *S3Store) ReadText(ctx context.Context, uri string) (string, error) {
	data, err := s.ReadBytes(ctx, uri)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadJSON fetches and unmarshals the object at uri.
func (s *S3Store) ReadJSON(ctx context.Context, uri string, out any) error {
	data, err := s.ReadBytes(ctx, uri)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("s3store: ReadJSON %s: decode: %w", uri, err)
	}
	return nil
}

// WriteBytes stores data at uri with the given content type.
func (s *S3Store) WriteBytes(ctx context.Context, uri string, data []byte, contentType string) error {
	const op = "WriteBytes"

	bucket, key, err := ParseURI(uri)
	if err != nil {
		return fmt.Errorf("s3store: %s: %w", op, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3store: %s %s: %w", op, uri, err)
	}

	s.log.Debug().
		Str("uri", uri).
		Int("bytes", len(data)).
		Str("content_type", contentType).
		Msg("Wrote object")
	return nil
}

// WriteJSON marshals value with indentation and stores it at uri.
func (s *S3Store) WriteJSON(ctx context.Context, uri string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("s3store: WriteJSON %s: encode: %w", uri, err)
	}
	return s.WriteBytes(ctx, uri, data, "application/json")
}
