// Package storage mirrors run artifacts (evidence, reports) to an
// S3-compatible object store. Mirroring is optional and best-effort: the
// local filesystem layout under runs/ stays authoritative.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config contains object-store connection settings
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

// ArtifactStore wraps the MinIO client
type ArtifactStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// New creates an artifact store and ensures the bucket exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*ArtifactStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	store := &ArtifactStore{client: client, bucket: cfg.BucketName, logger: logger}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *ArtifactStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
	}
	return nil
}

// Upload uploads one object and returns its S3-style URI.
func (s *ArtifactStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	reader := bytes.NewReader(data)

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading object: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Download downloads one object.
func (s *ArtifactStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting object: %w", err)
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

// MirrorRun walks the run directory and uploads every artifact under the
// runs/<run_id>/ prefix. Individual upload failures are logged and skipped.
func (s *ArtifactStore) MirrorRun(ctx context.Context, runID, runDir string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			s.logger.Warn("artifact unreadable, skipping", zap.String("path", path), zap.Error(readErr))
			return nil
		}

		rel, relErr := filepath.Rel(runDir, path)
		if relErr != nil {
			return relErr
		}
		key := "runs/" + runID + "/" + filepath.ToSlash(rel)

		if _, upErr := s.Upload(ctx, key, data, contentTypeFor(path)); upErr != nil {
			s.logger.Warn("artifact upload failed", zap.String("key", key), zap.Error(upErr))
			return nil
		}
		uploaded++
		return nil
	})
	return uploaded, err
}

// ListRun lists the mirrored object keys of one run.
func (s *ArtifactStore) ListRun(ctx context.Context, runID string) ([]string, error) {
	var keys []string

	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    "runs/" + runID + "/",
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, object.Err
		}
		keys = append(keys, object.Key)
	}

	return keys, nil
}

// PresignedURL returns a presigned download URL for one object.
func (s *ArtifactStore) PresignedURL(ctx context.Context, key string) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucket, key, 0, nil)
	if err != nil {
		return "", fmt.Errorf("generating presigned URL: %w", err)
	}
	return url.String(), nil
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
