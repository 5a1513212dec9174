package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

func newTestMirror(t *testing.T, handler http.Handler, cfg Config) *Mirror {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	m, err := New(client, cfg)
	require.NoError(t, err)
	return m
}

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "Chat_stream_1_00.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestMirrorUploadsArtifact(t *testing.T) {
	t.Parallel()

	body := "time_stamp,author_name,message,img\n0:01,a,hi,x\n"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/chat-bucket/o")
		assert.Equal(t, "replays/Chat_stream_1_00.csv", r.URL.Query().Get("name"))

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(data), body)
		assert.Contains(t, string(data), `"sha256":"abc"`)

		fmt.Fprintln(w, `{"name":"replays/Chat_stream_1_00.csv","bucket":"chat-bucket"}`)
	})

	m := newTestMirror(t, handler, Config{Bucket: "chat-bucket", Prefix: "/replays/"})
	artifact := crawler.Artifact{Path: writeArtifact(t, body), SHA256: "abc"}

	uri, err := m.Mirror(context.Background(), crawler.CrawlJob{Title: "stream", ScheduledDuration: "1:00"}, nil, artifact)
	require.NoError(t, err)
	assert.Equal(t, "gs://chat-bucket/replays/Chat_stream_1_00.csv", uri)
}

func TestMirrorSurfacesServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	m := newTestMirror(t, handler, Config{Bucket: "chat-bucket"})

	uri, err := m.Mirror(context.Background(), crawler.CrawlJob{}, nil, crawler.Artifact{Path: writeArtifact(t, "x")})
	require.Error(t, err)
	assert.Empty(t, uri)
}

func TestMirrorRequiresArtifact(t *testing.T) {
	t.Parallel()

	m := &Mirror{bucket: "b"}
	_, err := m.Mirror(context.Background(), crawler.CrawlJob{}, nil, crawler.Artifact{})
	require.ErrorContains(t, err, "artifact path")
	_, err = m.Mirror(context.Background(), crawler.CrawlJob{}, nil, crawler.Artifact{Path: "/does/not/exist"})
	require.ErrorContains(t, err, "open artifact")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = New(&storage.Client{}, Config{})
	require.ErrorContains(t, err, "bucket")

	m, err := New(&storage.Client{}, Config{Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "x.csv", m.ObjectName("/tmp/x.csv"))
	assert.Equal(t, "gcs", m.Name())
}
