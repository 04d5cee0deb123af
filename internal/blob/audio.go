package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/edumint/edumint-backend/internal/config"
	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/logger"
)

// AudioStore is the blob-store boundary for rendered audio files. Blob names
// are always prefixed with the owning package id, which is what makes
// prefix deletion and orphan cleanup possible.
type AudioStore interface {
	Upload(ctx context.Context, blobName string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, blobName string) error
	// DeletePrefix removes every blob under the given prefix. Missing blobs
	// are not an error; the operation is idempotent.
	DeletePrefix(ctx context.Context, prefix string) error
	PublicURL(blobName string) string
}

type audioStore struct {
	log       *logger.Logger
	client    *storage.Client
	bucket    string
	cdnDomain string
}

func NewAudioStore(ctx context.Context, cfg config.Config, log *logger.Logger) (AudioStore, error) {
	if strings.TrimSpace(cfg.AudioBucketName) == "" {
		return nil, fmt.Errorf("missing AUDIO_GCS_BUCKET_NAME")
	}
	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "AudioStore")
	serviceLog.Info("Audio blob store initialized", "bucket", cfg.AudioBucketName, "cdn_domain", cfg.AudioCDNDomain)
	return &audioStore{
		log:       serviceLog,
		client:    client,
		bucket:    cfg.AudioBucketName,
		cdnDomain: strings.TrimSpace(cfg.AudioCDNDomain),
	}, nil
}

func (s *audioStore) Upload(ctx context.Context, blobName string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(blobName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", errs.Storagef("upload blob %s: %v", blobName, err)
	}
	if err := w.Close(); err != nil {
		return "", errs.Storagef("finalize blob %s: %v", blobName, err)
	}
	s.log.Info("uploaded audio blob", "blob_name", blobName, "size_bytes", len(data), "content_type", contentType)
	return s.PublicURL(blobName), nil
}

func (s *audioStore) Delete(ctx context.Context, blobName string) error {
	err := s.client.Bucket(s.bucket).Object(blobName).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return errs.Storagef("delete blob %s: %v", blobName, err)
	}
	return nil
}

func (s *audioStore) DeletePrefix(ctx context.Context, prefix string) error {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var deleted int
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return errs.Storagef("list blobs under %s: %v", prefix, err)
		}
		if err := s.Delete(ctx, attrs.Name); err != nil {
			return err
		}
		deleted++
	}
	if deleted > 0 {
		s.log.Info("deleted audio blobs", "prefix", prefix, "count", deleted)
	}
	return nil
}

func (s *audioStore) PublicURL(blobName string) string {
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimRight(s.cdnDomain, "/"), blobName)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, blobName)
}
