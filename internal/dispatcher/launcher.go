package dispatcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/worker"
)

// handle is closed over by both launchers.
type handle struct {
	job  crawler.CrawlJob
	done chan struct{}
	err  error
}

func newHandle(job crawler.CrawlJob) *handle {
	return &handle{job: job, done: make(chan struct{})}
}

func (h *handle) Job() crawler.CrawlJob { return h.job }

func (h *handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *handle) Wait() error {
	<-h.done
	return h.err
}

func (h *handle) finish(err error) {
	h.err = err
	close(h.done)
}

// ProcessLauncher runs each job in a child process, normally the current
// binary's capture command.
type ProcessLauncher struct {
	// Path is the executable; empty means os.Executable().
	Path string
	// ConfigPath is forwarded as --config when set.
	ConfigPath string
	Stdout     io.Writer
	Stderr     io.Writer
	Logger     *zap.Logger
}

// CaptureArgs returns the command line used for job.
func (l *ProcessLauncher) CaptureArgs(job crawler.CrawlJob) []string {
	args := []string{
		"capture",
		"--title", job.Title,
		"--url", job.SourceURL,
		"--duration", job.ScheduledDuration,
	}
	if l.ConfigPath != "" {
		args = append(args, "--config", l.ConfigPath)
	}
	return args
}

// Launch starts the child process.
func (l *ProcessLauncher) Launch(ctx context.Context, job crawler.CrawlJob) (Handle, error) {
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}
	cmd := exec.CommandContext(ctx, path, l.CaptureArgs(job)...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}
	if l.Logger != nil {
		l.Logger.Debug("worker process started", zap.String("title", job.Title), zap.Int("pid", cmd.Process.Pid))
	}

	h := newHandle(job)
	go func() {
		err := cmd.Wait()
		if err != nil {
			err = fmt.Errorf("worker process %d: %w", cmd.Process.Pid, err)
		}
		h.finish(err)
	}()
	return h, nil
}

// JobRunner runs one job to completion.
type JobRunner interface {
	Run(ctx context.Context, job crawler.CrawlJob) (worker.Report, error)
}

// InProcessLauncher runs each job on its own goroutine. Every capture
// session still launches its own browser process.
type InProcessLauncher struct {
	Runner JobRunner
}

// Launch starts the goroutine. A panicking job is reported as a failure
// of that job only.
func (l *InProcessLauncher) Launch(ctx context.Context, job crawler.CrawlJob) (Handle, error) {
	if l.Runner == nil {
		return nil, fmt.Errorf("in-process launcher has no runner")
	}
	h := newHandle(job)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("worker panic: %v", r)
			}
			h.finish(err)
		}()
		_, err = l.Runner.Run(ctx, job)
	}()
	return h, nil
}
