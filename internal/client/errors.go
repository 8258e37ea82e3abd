package client

import (
	"errors"
	"fmt"
)

// ErrEmptyPrompt is returned when a task is submitted without prompt text
var ErrEmptyPrompt = errors.New("prompt must not be empty")

// SubmissionError reports a failed task creation: transport failure, non-2xx
// status, or a response without a task id.
type SubmissionError struct {
	Kind       TaskKind
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil && e.StatusCode == 0 {
		return fmt.Sprintf("create %s task: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("create %s task (status %d): %v: %s", e.Kind, e.StatusCode, e.Err, e.Body)
	}
	return fmt.Sprintf("create %s task failed (status %d): %s", e.Kind, e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError reports a failed status query. The poll loop does not retry it.
type PollError struct {
	Kind       TaskKind
	TaskID     string
	StatusCode int
	Body       string
	Err        error
}

func (e *PollError) Error() string {
	if e.Err != nil && e.StatusCode == 0 {
		return fmt.Sprintf("poll %s task %s: %v", e.Kind, e.TaskID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("poll %s task %s (status %d): %v: %s", e.Kind, e.TaskID, e.StatusCode, e.Err, e.Body)
	}
	return fmt.Sprintf("poll %s task %s failed (status %d): %s", e.Kind, e.TaskID, e.StatusCode, e.Body)
}

func (e *PollError) Unwrap() error { return e.Err }

// TimeoutError reports a task that produced no output before the deadline.
// LastStatus and LastPayload come from the final status response.
type TimeoutError struct {
	Kind        TaskKind
	TaskID      string
	Timeout     string
	LastStatus  string
	LastPayload string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for %s task %s, last status=%s, data=%s",
		e.Timeout, e.Kind, e.TaskID, e.LastStatus, e.LastPayload)
}

// DownloadError reports a failed artifact fetch or write
type DownloadError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s failed (status %d): %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
