// Package gcs mirrors chat artifacts to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

// Config captures the destination bucket and object prefix.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// Mirror uploads finished CSV artifacts to a bucket.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Name identifies the mirror in logs.
func (m *Mirror) Name() string { return "gcs" }

// ObjectName returns the object path used for an artifact file.
func (m *Mirror) ObjectName(artifactPath string) string {
	base := filepath.Base(artifactPath)
	if m.prefix == "" {
		return base
	}
	return path.Join(m.prefix, base)
}

// Mirror uploads the artifact file, records its digest as metadata and
// returns the gs:// URI of the object.
func (m *Mirror) Mirror(ctx context.Context, job crawler.CrawlJob, _ []crawler.MessageRecord, artifact crawler.Artifact) (string, error) {
	if strings.TrimSpace(artifact.Path) == "" {
		return "", fmt.Errorf("artifact path is required")
	}
	f, err := os.Open(artifact.Path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	err = m.put(ctx, m.ObjectName(artifact.Path), f, map[string]string{
		"title":              job.Title,
		"scheduled_duration": job.ScheduledDuration,
		"sha256":             artifact.SHA256,
	})
	if err != nil {
		return "", err
	}
	return m.URI(artifact.Path), nil
}

// URI returns the gs:// location an artifact is mirrored to.
func (m *Mirror) URI(artifactPath string) string {
	return fmt.Sprintf("gs://%s/%s", m.bucket, m.ObjectName(artifactPath))
}

func (m *Mirror) put(ctx context.Context, name string, r io.Reader, metadata map[string]string) error {
	writer := m.client.Bucket(m.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "text/csv; charset=utf-8"
	writer.Metadata = metadata
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer %s: %w", name, err)
	}
	return nil
}
