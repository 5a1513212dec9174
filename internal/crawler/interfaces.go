package crawler

import (
	"context"
	"time"
)

// Surface is the browser automation capability a capture session drives.
// Implementations are not safe for concurrent use; one session owns one
// surface for its whole lifetime.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Mute(ctx context.Context) error
	DisableAutoplay(ctx context.Context) error
	SetPlaybackRate(ctx context.Context, rate float64) error
	// EnterChat locates the chat frame and scopes later chat queries to it.
	EnterChat(ctx context.Context) error
	ShowTimestamps(ctx context.Context) error
	ExpandChat(ctx context.Context) error
	PlaybackEnded(ctx context.Context) (bool, error)
	TogglePlayback(ctx context.Context) error
	ChatElements(ctx context.Context) ([]ChatElement, error)
	Close() error
}

// SurfaceFactory acquires a fresh, exclusively owned Surface.
type SurfaceFactory interface {
	Acquire(ctx context.Context) (Surface, error)
}

// Capturer runs one complete capture session for a job. Every call is an
// independent session with its own surface and store; attempt is 1-based
// and only used for logging.
type Capturer interface {
	Capture(ctx context.Context, job CrawlJob, attempt int) ([]MessageRecord, error)
}

// Exporter persists the final records of a job.
type Exporter interface {
	Export(ctx context.Context, job CrawlJob, records []MessageRecord) (Artifact, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
	HashFile(path string) (string, error)
}

// Clock returns the current time and performs cancellable waits.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// JobSource yields jobs one at a time and returns io.EOF when exhausted.
type JobSource interface {
	Next() (CrawlJob, error)
}
