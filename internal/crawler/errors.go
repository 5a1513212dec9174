package crawler

import (
	"errors"
	"fmt"
)

// InvalidJobError reports one unusable row of the job list. The source can
// keep reading past it.
type InvalidJobError struct {
	Source string
	Line   int
	Reason string
}

func (e *InvalidJobError) Error() string {
	return fmt.Sprintf("%s line %d: %s", e.Source, e.Line, e.Reason)
}

// IsInvalidJob reports whether err carries an InvalidJobError.
func IsInvalidJob(err error) bool {
	var target *InvalidJobError
	return errors.As(err, &target)
}

// MalformedDurationError reports a scheduled duration that cannot be parsed.
// It is fatal to the job and never retried.
type MalformedDurationError struct {
	Input  string
	Reason string
}

func (e *MalformedDurationError) Error() string {
	return fmt.Sprintf("malformed duration %q: %s", e.Input, e.Reason)
}

// ElementParseError reports a rendered chat element missing a required node.
type ElementParseError struct {
	Field string
}

func (e *ElementParseError) Error() string {
	return fmt.Sprintf("chat element missing %q", e.Field)
}

// TransientAdjustmentError wraps a failed presentation adjustment. It is
// logged and never escalated.
type TransientAdjustmentError struct {
	Action string
	Err    error
}

func (e *TransientAdjustmentError) Error() string {
	return fmt.Sprintf("adjustment %s failed: %v", e.Action, e.Err)
}

func (e *TransientAdjustmentError) Unwrap() error {
	return e.Err
}

// SessionFatalError aborts a capture session; accumulated records are discarded.
type SessionFatalError struct {
	Epoch int
	Err   error
}

func (e *SessionFatalError) Error() string {
	return fmt.Sprintf("session aborted at epoch %d: %v", e.Epoch, e.Err)
}

func (e *SessionFatalError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is reported when a job used every capture attempt
// without a non-empty result.
type RetryExhaustedError struct {
	Job      CrawlJob
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("job %q exhausted %d capture attempts", e.Job.Title, e.Attempts)
}

// IsMalformedDuration reports whether err carries a MalformedDurationError.
func IsMalformedDuration(err error) bool {
	var target *MalformedDurationError
	return errors.As(err, &target)
}
