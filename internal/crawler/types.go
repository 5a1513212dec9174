// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"
)

// CrawlJob describes one broadcast whose chat replay should be captured.
type CrawlJob struct {
	Title             string `json:"title" mapstructure:"title"`
	SourceURL         string `json:"source_url" mapstructure:"source_url"`
	ScheduledDuration string `json:"scheduled_duration" mapstructure:"scheduled_duration"`
}

// Key identifies the job for output naming.
func (j CrawlJob) Key() string {
	return j.Title + "_" + j.ScheduledDuration
}

// MessageRecord is one observed chat line. Records compare equal when all
// four fields match, which is what the DedupStore keys on.
type MessageRecord struct {
	Timestamp   string `json:"time_stamp"`
	AuthorName  string `json:"author_name"`
	MessageText string `json:"message"`
	AvatarURL   string `json:"img"`
}

// Row returns the record in export column order.
func (m MessageRecord) Row() []string {
	return []string{m.Timestamp, m.AuthorName, m.MessageText, m.AvatarURL}
}

// ExportColumns is the fixed header of every per-job artifact.
var ExportColumns = []string{"time_stamp", "author_name", "message", "img"}

// ChatElement is the raw snapshot of one rendered chat line. A nil field
// means the corresponding node was not present when the element was read.
type ChatElement struct {
	Timestamp  *string `json:"timestamp"`
	AuthorName *string `json:"author_name"`
	Message    *string `json:"message"`
	AvatarURL  *string `json:"avatar_url"`
}

// Parse converts the element into a MessageRecord. Every field must be
// present; the avatar source may be empty when the image has not loaded.
func (e ChatElement) Parse() (MessageRecord, error) {
	fields := []struct {
		name string
		val  *string
	}{
		{"timestamp", e.Timestamp},
		{"author-name", e.AuthorName},
		{"message", e.Message},
		{"img", e.AvatarURL},
	}
	for _, f := range fields {
		if f.val == nil {
			return MessageRecord{}, &ElementParseError{Field: f.name}
		}
	}
	return MessageRecord{
		Timestamp:   *e.Timestamp,
		AuthorName:  *e.AuthorName,
		MessageText: *e.Message,
		AvatarURL:   *e.AvatarURL,
	}, nil
}

// SessionState is a CaptureSession lifecycle state.
type SessionState string

// Capture session states.
const (
	StateInit          SessionState = "INIT"
	StateStarting      SessionState = "STARTING"
	StatePolling       SessionState = "POLLING"
	StatePausedForScan SessionState = "PAUSED_FOR_SCAN"
	StateClosed        SessionState = "CLOSED"
	StateFailed        SessionState = "FAILED"
)

// Artifact describes the exported output of one job.
type Artifact struct {
	Path   string
	URI    string
	Rows   int
	SHA256 string
	// MirrorURIs maps a mirror name to the location it copied the
	// artifact to. Mirrors that failed or have no addressable copy are
	// absent.
	MirrorURIs map[string]string
}

// CompletionEvent is published once per finished job.
type CompletionEvent struct {
	RunID             string            `json:"run_id"`
	Title             string            `json:"title"`
	ScheduledDuration string            `json:"scheduled_duration"`
	Attempts          int               `json:"attempts"`
	Records           int               `json:"records"`
	Exhausted         bool              `json:"exhausted"`
	ArtifactURI       string            `json:"artifact_uri"`
	MirrorURIs        map[string]string `json:"mirror_uris,omitempty"`
	SHA256            string            `json:"sha256"`
	FinishedAt        time.Time         `json:"finished_at"`
}
