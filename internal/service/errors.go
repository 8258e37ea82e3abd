package service

import (
	"context"
	"errors"

	"github.com/adreel/api/internal/client"
)

// Error codes reported to API callers and websocket subscribers
const (
	CodeSubmissionFailed  = "SUBMISSION_FAILED"
	CodePollFailed        = "POLL_FAILED"
	CodeGenerationTimeout = "GENERATION_TIMEOUT"
	CodeDownloadFailed    = "DOWNLOAD_FAILED"
	CodeGenerationFailed  = "GENERATION_FAILED"
)

// ErrorCode classifies a pipeline error
func ErrorCode(err error) string {
	var (
		submitErr   *client.SubmissionError
		pollErr     *client.PollError
		timeoutErr  *client.TimeoutError
		downloadErr *client.DownloadError
	)
	switch {
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return CodeGenerationTimeout
	case errors.As(err, &submitErr):
		return CodeSubmissionFailed
	case errors.As(err, &pollErr):
		return CodePollFailed
	case errors.As(err, &downloadErr):
		return CodeDownloadFailed
	default:
		return CodeGenerationFailed
	}
}
