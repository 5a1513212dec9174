// Package jobsource reads the list of broadcasts to capture.
package jobsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

// DefaultFilePrefix selects the job file when the configured path is a
// directory.
const DefaultFilePrefix = "VideoURL"

var columnAliases = map[string][]string{
	"title":    {"title"},
	"url":      {"video_url", "source_url", "url"},
	"duration": {"time", "scheduled_duration", "duration"},
}

// CSVSource yields jobs from a CSV file with a header row.
type CSVSource struct {
	path   string
	closer io.Closer
	reader *csv.Reader
	index  map[string]int
	line   int
}

// Resolve returns path itself for a file, or the first file in the
// directory whose name starts with prefix.
func Resolve(path, prefix string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat job path: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("read job dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no file starting with %q in %s", prefix, path)
	}
	sort.Strings(names)
	return filepath.Join(path, names[0]), nil
}

// Open resolves path and opens it as a CSVSource.
func Open(path, prefix string) (*CSVSource, error) {
	resolved, err := Resolve(path, prefix)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("open job file: %w", err)
	}
	src, err := newSource(resolved, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	src.closer = f
	return src, nil
}

// NewReader reads jobs from r. name is used in error messages only.
func NewReader(name string, r io.Reader) (*CSVSource, error) {
	return newSource(name, r)
}

func newSource(name string, r io.Reader) (*CSVSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header", name)
		}
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &CSVSource{path: name, reader: reader, index: index, line: 1}, nil
}

func headerIndex(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := positions[h]; !dup {
			positions[h] = i
		}
	}
	index := make(map[string]int, len(columnAliases))
	for key, aliases := range columnAliases {
		found := false
		for _, alias := range aliases {
			if pos, ok := positions[alias]; ok {
				index[key] = pos
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("header missing column %q (accepted: %s)", key, strings.Join(aliases, ", "))
		}
	}
	return index, nil
}

// Path is the file the source reads.
func (s *CSVSource) Path() string { return s.path }

// Next returns the next job, or io.EOF once the file is exhausted. Blank
// rows are skipped. An unusable row yields a *crawler.InvalidJobError and
// the following call continues with the next row.
func (s *CSVSource) Next() (crawler.CrawlJob, error) {
	for {
		row, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return crawler.CrawlJob{}, io.EOF
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return crawler.CrawlJob{}, &crawler.InvalidJobError{Source: s.path, Line: parseErr.StartLine, Reason: parseErr.Err.Error()}
			}
			return crawler.CrawlJob{}, fmt.Errorf("%s: read row: %w", s.path, err)
		}
		s.line, _ = s.reader.FieldPos(0)
		if blank(row) {
			continue
		}
		job := crawler.CrawlJob{
			Title:             field(row, s.index["title"]),
			SourceURL:         field(row, s.index["url"]),
			ScheduledDuration: field(row, s.index["duration"]),
		}
		if job.SourceURL == "" {
			return crawler.CrawlJob{}, &crawler.InvalidJobError{Source: s.path, Line: s.line, Reason: "empty url"}
		}
		return job, nil
	}
}

// Close closes the underlying file when the source owns it.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ReadAll drains src. Invalid rows are skipped and returned joined with
// the jobs that could be read; any other error stops the read.
func ReadAll(src crawler.JobSource) ([]crawler.CrawlJob, error) {
	var (
		jobs    []crawler.CrawlJob
		invalid []error
	)
	for {
		job, err := src.Next()
		if errors.Is(err, io.EOF) {
			return jobs, errors.Join(invalid...)
		}
		if crawler.IsInvalidJob(err) {
			invalid = append(invalid, err)
			continue
		}
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
