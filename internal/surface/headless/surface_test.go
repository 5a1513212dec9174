package headless

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Selectors: Selectors{PlayButton: "#custom-play"}}.withDefaults()
	assert.Equal(t, 45*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 10*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.MenuWait)
	assert.Equal(t, "#custom-play", cfg.Selectors.PlayButton)
	assert.Equal(t, "#chatframe", cfg.Selectors.ChatFrame)
	assert.Equal(t, []string{"Replay", "다시보기"}, cfg.Selectors.ReplayTitles)
}

func TestAllocatorOptionsIncludeExecPath(t *testing.T) {
	t.Parallel()

	plain := NewFactory(Config{Headless: true})
	withPath := NewFactory(Config{Headless: true, ExecPath: "/opt/chrome/chrome", UserAgent: "ua"})
	assert.Len(t, withPath.allocatorOptions(), len(plain.allocatorOptions())+2)
}

func TestScriptsQuoteSelectors(t *testing.T) {
	t.Parallel()

	sel := DefaultSelectors()
	sel.ChatFrame = `iframe[name="chat"]`

	script := chatElementsScript(sel)
	assert.Contains(t, script, `"iframe[name=\"chat\"]"`)
	assert.Contains(t, script, `"yt-live-chat-text-message-renderer"`)
	assert.Contains(t, script, `"#author-name"`)

	ended := playbackEndedScript(sel)
	assert.Contains(t, ended, `["Replay","다시보기"]`)
	assert.Contains(t, ended, `".ytp-play-button"`)

	click := frameClickScript(sel, "#show-more", true)
	assert.Contains(t, click, `if (true && el.offsetParent === null)`)

	assert.True(t, strings.Contains(playbackRateScript(3.3), "playbackRate = 3.3;"))
}

func TestDecodeElements(t *testing.T) {
	t.Parallel()

	raw := `[{"timestamp":"0:01","author_name":"alice","message":"hi","avatar_url":""},` +
		`{"timestamp":"0:02","author_name":null,"message":"yo","avatar_url":"https://img"}]`
	elements, err := decodeElements(&raw)
	require.NoError(t, err)
	require.Len(t, elements, 2)

	rec, err := elements[0].Parse()
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.AuthorName)
	assert.Empty(t, rec.AvatarURL)

	_, err = elements[1].Parse()
	require.ErrorContains(t, err, "author-name")
}

func TestDecodeElementsErrors(t *testing.T) {
	t.Parallel()

	_, err := decodeElements(nil)
	require.ErrorContains(t, err, "chat frame not available")

	bad := "{"
	_, err = decodeElements(&bad)
	require.ErrorContains(t, err, "decode chat elements")
}

func TestSurfaceCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	s := &Surface{
		browserCancel: func() { calls++ },
		allocCancel:   func() { calls++ },
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 2, calls)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected child to be canceled")
	}
}

// chromePath returns a local Chrome binary or skips the test.
func chromePath(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no chrome binary on PATH")
	return ""
}

func TestSurfaceOutlivesAcquireContext(t *testing.T) {
	t.Parallel()

	path := chromePath(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><video></video></body></html>"))
	}))
	defer srv.Close()

	acquireCtx, cancelAcquire := context.WithTimeout(context.Background(), 30*time.Second)
	cfg := Config{Headless: true, ExecPath: path, NoSandbox: os.Geteuid() == 0}
	surface, err := NewFactory(cfg).Acquire(acquireCtx)
	cancelAcquire()
	require.NoError(t, err)
	defer surface.Close() //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, surface.Navigate(ctx, srv.URL))
	require.NoError(t, surface.SetPlaybackRate(ctx, 2))
	require.NoError(t, surface.Navigate(ctx, srv.URL))

	require.NoError(t, surface.Close())
	require.Error(t, surface.Navigate(ctx, srv.URL))
}
