// Package snapshot stores screenshots. A destination is either a local
// path or an s3://bucket/key URL.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink stores one encoded image.
type Sink interface {
	Put(ctx context.Context, data []byte, meta Metadata) error
	String() string
}

// Metadata travels with a stored image.
type Metadata struct {
	ContentType string
	SessionID   string
	Target      string
	Digest      string
}

func (m Metadata) fields() map[string]string {
	out := make(map[string]string, 3)
	if m.SessionID != "" {
		out["session-id"] = m.SessionID
	}
	if m.Target != "" {
		out["target"] = m.Target
	}
	if m.Digest != "" {
		out["blake3"] = m.Digest
	}
	return out
}

// Open returns the sink for dest.
//
//nolint:ireturn // factory function returns interface by design
func Open(ctx context.Context, dest string) (Sink, error) {
	if !strings.HasPrefix(dest, "s3://") {
		return &FileSink{Path: dest}, nil
	}

	bucket, key, err := ParseS3URL(dest)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("RDPC_S3_ENDPOINT"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
			o.UsePathStyle = true
		}
	})
	return NewS3Sink(client, bucket, key), nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("parse %q: want s3://bucket/key", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("parse %q: missing object key", raw)
	}
	return u.Host, key, nil
}

// FileSink writes to a local path through a temp file and rename, so a
// reader never sees a partial image.
type FileSink struct {
	Path string
}

func (s *FileSink) Put(_ context.Context, data []byte, _ Metadata) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".rdpc-snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // G302: screenshots are not secret
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("rename to %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileSink) String() string { return s.Path }

// PutObjectAPI is the subset of the S3 client used by S3Sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads to one object.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	key    string
}

// NewS3Sink creates a sink writing bucket/key.
func NewS3Sink(client PutObjectAPI, bucket, key string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, key: key}
}

func (s *S3Sink) Put(ctx context.Context, data []byte, meta Metadata) error {
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		Metadata:      meta.fields(),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", s, err)
	}
	return nil
}

func (s *S3Sink) String() string { return "s3://" + s.bucket + "/" + s.key }
