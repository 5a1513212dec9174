package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/hash/sha256"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVExporterWritesHeaderAndRowsInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exp, err := NewCSV(CSVConfig{Dir: dir}, sha256.New())
	require.NoError(t, err)

	job := crawler.CrawlJob{Title: "Late night, stream", ScheduledDuration: "1:02:03"}
	records := []crawler.MessageRecord{
		{Timestamp: "0:02", AuthorName: "bob", MessageText: "second, with comma", AvatarURL: "b"},
		{Timestamp: "0:01", AuthorName: "alice", MessageText: "first", AvatarURL: ""},
	}
	artifact, err := exp.Export(context.Background(), job, records)
	require.NoError(t, err)

	assert.Equal(t, 2, artifact.Rows)
	keyDigest, err := sha256.New().Hash([]byte(job.Key()))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Chat_Late night_ stream_"+keyDigest[:8]+"_1_02_03.csv"), artifact.Path)
	assert.Contains(t, artifact.URI, "file://")
	assert.Len(t, artifact.SHA256, 64)

	rows := readCSV(t, artifact.Path)
	require.Equal(t, [][]string{
		{"time_stamp", "author_name", "message", "img"},
		{"0:02", "bob", "second, with comma", "b"},
		{"0:01", "alice", "first", ""},
	}, rows)

	digest, err := sha256.New().HashFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, digest, artifact.SHA256)
}

func TestCSVExporterHeaderOnlyForZeroRecords(t *testing.T) {
	t.Parallel()

	exp, err := NewCSV(CSVConfig{Dir: t.TempDir(), Prefix: "Replay"}, sha256.New())
	require.NoError(t, err)

	artifact, err := exp.Export(context.Background(), crawler.CrawlJob{Title: "empty", ScheduledDuration: "5"}, nil)
	require.NoError(t, err)
	assert.Zero(t, artifact.Rows)
	assert.Equal(t, "Replay_empty_5.csv", filepath.Base(artifact.Path))
	assert.Equal(t, [][]string{{"time_stamp", "author_name", "message", "img"}}, readCSV(t, artifact.Path))
}

func TestCSVExporterSanitizesTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exp, err := NewCSV(CSVConfig{Dir: dir}, sha256.New())
	require.NoError(t, err)

	artifact, err := exp.Export(context.Background(), crawler.CrawlJob{Title: "../../etc/passwd", ScheduledDuration: "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(artifact.Path))
}

func TestNewCSVValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCSV(CSVConfig{}, sha256.New())
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = NewCSV(CSVConfig{Dir: file}, sha256.New())
	require.ErrorContains(t, err, "not a directory")

	nested := filepath.Join(t.TempDir(), "a", "b")
	_, err = NewCSV(CSVConfig{Dir: nested}, sha256.New())
	require.NoError(t, err)
	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCSVExporterKeepsDistinctTitlesApart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exp, err := NewCSV(CSVConfig{Dir: dir}, sha256.New())
	require.NoError(t, err)

	slash := crawler.CrawlJob{Title: "Q&A / live", ScheduledDuration: "1:00"}
	colon := crawler.CrawlJob{Title: "Q&A : live", ScheduledDuration: "1:00"}
	plain := crawler.CrawlJob{Title: "plain title", ScheduledDuration: "1:00"}

	first, err := exp.Export(context.Background(), slash, []crawler.MessageRecord{{Timestamp: "0:01", AuthorName: "a", MessageText: "slash"}})
	require.NoError(t, err)
	second, err := exp.Export(context.Background(), colon, []crawler.MessageRecord{{Timestamp: "0:01", AuthorName: "a", MessageText: "colon"}})
	require.NoError(t, err)
	require.NotEqual(t, first.Path, second.Path)

	assert.Equal(t, "slash", readCSV(t, first.Path)[1][2])
	assert.Equal(t, "colon", readCSV(t, second.Path)[1][2])

	name, err := exp.FileName(plain)
	require.NoError(t, err)
	assert.Equal(t, "Chat_plain title_1_00.csv", name)
}

type stubExporter struct {
	artifact crawler.Artifact
	err      error
}

func (s stubExporter) Export(context.Context, crawler.CrawlJob, []crawler.MessageRecord) (crawler.Artifact, error) {
	return s.artifact, s.err
}

type recordingMirror struct {
	name string
	uri  string
	err  error

	mu   sync.Mutex
	seen []crawler.Artifact
}

func (m *recordingMirror) Name() string { return m.name }

func (m *recordingMirror) Mirror(_ context.Context, _ crawler.CrawlJob, _ []crawler.MessageRecord, a crawler.Artifact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, a)
	if m.err != nil {
		return "", m.err
	}
	return m.uri, nil
}

func TestPipelineRunsEveryMirror(t *testing.T) {
	t.Parallel()

	artifact := crawler.Artifact{Path: "/out/a.csv", Rows: 1}
	ok := &recordingMirror{name: "gcs", uri: "gs://bucket/a.csv"}
	unaddressed := &recordingMirror{name: "postgres"}
	failing := &recordingMirror{name: "backup", uri: "gs://backup/a.csv", err: errors.New("connection refused")}
	p := NewPipeline(stubExporter{artifact: artifact}, zap.NewNop(), ok, unaddressed, failing)

	got, err := p.Export(context.Background(), crawler.CrawlJob{Title: "t"}, nil)
	require.NoError(t, err)
	assert.Equal(t, artifact.Path, got.Path)
	assert.Equal(t, map[string]string{"gcs": "gs://bucket/a.csv"}, got.MirrorURIs)
	assert.Equal(t, []crawler.Artifact{artifact}, ok.seen)
	assert.Equal(t, []crawler.Artifact{artifact}, unaddressed.seen)
	assert.Equal(t, []crawler.Artifact{artifact}, failing.seen)
}

func TestPipelineWithoutAddressedMirrorsKeepsArtifact(t *testing.T) {
	t.Parallel()

	artifact := crawler.Artifact{Path: "/out/a.csv", Rows: 1}
	p := NewPipeline(stubExporter{artifact: artifact}, nil, &recordingMirror{name: "postgres"})

	got, err := p.Export(context.Background(), crawler.CrawlJob{Title: "t"}, nil)
	require.NoError(t, err)
	assert.Equal(t, artifact, got)
}

func TestPipelineSkipsMirrorsWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	m := &recordingMirror{name: "gcs"}
	p := NewPipeline(stubExporter{err: errors.New("disk full")}, nil, m)

	_, err := p.Export(context.Background(), crawler.CrawlJob{Title: "t"}, nil)
	require.ErrorContains(t, err, "disk full")
	assert.Empty(t, m.seen)
}
