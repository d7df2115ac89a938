// Package blobstore adapts the external object-storage service: a
// presigned-URL issuer plus a download/delete blob store, backed by S3 (or
// an S3-compatible endpoint such as MinIO for local/dev).
package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Store is the blob store adapter. Object naming convention (see
// ObjectName): {uploads_prefix}/{token}/{sanitized_filename}, where token
// is a fresh UUID drawn when the upload slot is issued; it is not the
// document id.
type Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	ttl      time.Duration
	prefix   string
}

// New builds a Store from the process's AWS credential chain and the
// resolved blob-store configuration. With no bucket configured the Store
// runs in local-only mode: presigned uploads are unavailable and blob
// references are resolved as local filesystem paths instead.
func New(ctx context.Context, cfg *config.BlobStoreConfig) (*Store, error) {
	if cfg.Bucket == "" {
		return &Store{ttl: cfg.PresignTTL, prefix: cfg.UploadsPrefix}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading AWS config: %v", pipeline.ErrUpstream, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     cfg.PresignTTL,
		prefix:  cfg.UploadsPrefix,
	}, nil
}

// ObjectName builds the uploads/{token}/{filename} object name for a new
// upload slot.
func ObjectName(prefix, documentOrToken, sanitizedFilename string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, documentOrToken, sanitizedFilename)
}

// Enabled reports whether the S3 backend is configured. When false, C10's
// generate-url path must reject requests and only the streamed direct
// upload path is available.
func (s *Store) Enabled() bool { return s.client != nil }

// Prefix returns the configured uploads prefix for object naming.
func (s *Store) Prefix() string { return s.prefix }

// PresignPut issues a time-limited PUT credential for a direct client
// upload (C10 create_upload_slot).
func (s *Store) PresignPut(ctx context.Context, objectName, contentType string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("%w: blob store is not configured", pipeline.ErrUpstream)
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectName),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("%w: presigning put: %v", pipeline.ErrUpstream, err)
	}
	return req.URL, nil
}

// Download fetches the blob into a fresh temp file and returns its path.
// Callers own cleanup of the returned path. An absolute objectName is a
// local-path blob reference from the direct upload path: it is copied (not
// moved) so the caller's cleanup never destroys the only durable copy
// before a retry.
func (s *Store) Download(ctx context.Context, objectName string) (string, error) {
	if filepath.IsAbs(objectName) {
		return copyLocal(objectName)
	}
	if s.client == nil {
		return "", fmt.Errorf("%w: blob store is not configured and %s is not a local path", pipeline.ErrUpstream, objectName)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("%w: downloading %s: %v", pipeline.ErrUpstream, objectName, err)
	}
	defer out.Body.Close()

	f, err := os.CreateTemp("", "roofpipeline-blob-*.pdf")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file: %v", pipeline.ErrInternal, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("%w: writing temp file: %v", pipeline.ErrUpstream, err)
	}
	return f.Name(), nil
}

func copyLocal(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening local blob %s: %v", pipeline.ErrUpstream, path, err)
	}
	defer src.Close()

	f, err := os.CreateTemp("", "roofpipeline-blob-*.pdf")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file: %v", pipeline.ErrInternal, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("%w: copying local blob: %v", pipeline.ErrUpstream, err)
	}
	return f.Name(), nil
}

// Delete removes a blob: the local file for an absolute reference,
// otherwise the S3 object. No pipeline path calls it, so documents that
// end FAILED or CANCELLED keep their blobs.
func (s *Store) Delete(ctx context.Context, objectName string) error {
	if filepath.IsAbs(objectName) {
		if err := os.Remove(objectName); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: deleting local blob %s: %v", pipeline.ErrUpstream, objectName, err)
		}
		return nil
	}
	if s.client == nil {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return fmt.Errorf("%w: deleting %s: %v", pipeline.ErrUpstream, objectName, err)
	}
	return nil
}

// Healthy reports whether the bucket is reachable, for the aggregate health
// endpoint. Local-only mode is always
// healthy (there is no remote dependency to probe).
func (s *Store) Healthy(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("%w: head bucket: %v", pipeline.ErrUpstream, err)
	}
	return nil
}
