// Package export writes per-job chat artifacts and fans them out to
// optional mirrors.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

// DefaultPrefix starts every artifact file name.
const DefaultPrefix = "Chat"

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}._ -]+`)

// CSVConfig controls where artifacts are written.
type CSVConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// CSVExporter writes one CSV file per job with a fixed header.
type CSVExporter struct {
	dir    string
	prefix string
	hasher crawler.Hasher
}

// NewCSV creates the output directory if needed and returns an exporter.
func NewCSV(cfg CSVConfig, hasher crawler.Hasher) (*CSVExporter, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create output directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat output directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("output path %s is not a directory", cfg.Dir)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CSVExporter{dir: cfg.Dir, prefix: prefix, hasher: hasher}, nil
}

// keyDigestLen is how much of the job key digest disambiguates a rewritten
// title.
const keyDigestLen = 8

// FileName returns the artifact file name for job. A title that had to be
// rewritten to be path safe also carries a digest of the job key, so two
// titles that sanitize alike never share a file.
func (e *CSVExporter) FileName(job crawler.CrawlJob) (string, error) {
	title := sanitize(job.Title)
	if title != job.Title {
		digest, err := e.hasher.Hash([]byte(job.Key()))
		if err != nil {
			return "", fmt.Errorf("hash job key: %w", err)
		}
		title += "_" + digest[:min(keyDigestLen, len(digest))]
	}
	name := strings.Join([]string{sanitize(e.prefix), title, sanitize(job.ScheduledDuration)}, "_")
	return name + ".csv", nil
}

func sanitize(name string) string {
	name = strings.ReplaceAll(name, "..", "_")
	name = unsafeName.ReplaceAllString(name, "_")
	return strings.TrimSpace(name)
}

// Export writes records in order under the fixed header. Zero records
// still produce a header-only file. The file is written to a temporary
// name and renamed into place.
func (e *CSVExporter) Export(_ context.Context, job crawler.CrawlJob, records []crawler.MessageRecord) (crawler.Artifact, error) {
	name, err := e.FileName(job)
	if err != nil {
		return crawler.Artifact{}, err
	}
	path := filepath.Join(e.dir, name)
	cleanDir := filepath.Clean(e.dir)
	if !strings.HasPrefix(filepath.Clean(path), cleanDir+string(filepath.Separator)) {
		return crawler.Artifact{}, fmt.Errorf("artifact path escapes output directory")
	}

	tmp, err := os.CreateTemp(e.dir, ".chat-*.csv")
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(crawler.ExportColumns); err != nil {
		_ = tmp.Close()
		return crawler.Artifact{}, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec.Row()); err != nil {
			_ = tmp.Close()
			return crawler.Artifact{}, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return crawler.Artifact{}, fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return crawler.Artifact{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return crawler.Artifact{}, fmt.Errorf("rename artifact: %w", err)
	}

	digest, err := e.hasher.HashFile(path)
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("hash artifact: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return crawler.Artifact{
		Path:   path,
		URI:    "file://" + filepath.ToSlash(abs),
		Rows:   len(records),
		SHA256: digest,
	}, nil
}
