package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adreel/api/internal/config"
)

// TaskKind distinguishes the two vendor task endpoints
type TaskKind string

const (
	TaskKindImage TaskKind = "image"
	TaskKindVideo TaskKind = "video"
)

// DefaultPollInterval is used when a PollConfig leaves Interval unset
const DefaultPollInterval = 2 * time.Second

const apiKeyHeader = "x-freepik-api-key"

// MediaGenerator defines the vendor operations the pipeline depends on
type MediaGenerator interface {
	CreateImageTask(ctx context.Context, apiKey string, req *ImageTaskRequest) (string, error)
	CreateVideoTask(ctx context.Context, apiKey string, req *VideoTaskRequest) (string, error)
	PollImageTask(ctx context.Context, apiKey, taskID string, cfg PollConfig) ([]string, error)
	PollVideoTask(ctx context.Context, apiKey, taskID string, cfg PollConfig) (string, error)
}

// FreepikClient implements MediaGenerator for the Freepik AI API
type FreepikClient struct {
	httpClient    *http.Client
	imageEndpoint string
	videoEndpoint string
	logger        *zap.Logger
}

// GenerationTask is one vendor-side job as seen by the latest status query.
// Status is advisory; only Outputs decides completion.
type GenerationTask struct {
	TaskID  string
	Kind    TaskKind
	Status  string
	Outputs []string
}

// Done reports whether the task has produced output
func (t *GenerationTask) Done() bool {
	return len(t.Outputs) > 0
}

// ImageTaskRequest is the body for image task creation. Reference images are
// forwarded verbatim.
type ImageTaskRequest struct {
	Prompt          string            `json:"prompt"`
	ReferenceImages []json.RawMessage `json:"reference_images,omitempty"`
}

// VideoTaskRequest is the body for image-to-video task creation
type VideoTaskRequest struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
	Duration string `json:"duration"`
}

// PollConfig bounds a poll loop
type PollConfig struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (p PollConfig) withDefaults() PollConfig {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	return p
}

// taskEnvelope is the only response shape accepted from either endpoint
type taskEnvelope struct {
	Data *struct {
		TaskID    string   `json:"task_id"`
		Status    string   `json:"status"`
		Generated []string `json:"generated"`
	} `json:"data"`
}

// NewFreepikClient creates a new Freepik API client
func NewFreepikClient(cfg *config.FreepikConfig, logger *zap.Logger) *FreepikClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FreepikClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		imageEndpoint: cfg.ImageEndpoint(),
		videoEndpoint: cfg.VideoEndpoint(),
		logger:        logger.With(zap.String("component", "freepik")),
	}
}

// CreateImageTask submits an image generation task and returns its id
func (c *FreepikClient) CreateImageTask(ctx context.Context, apiKey string, req *ImageTaskRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", &SubmissionError{Kind: TaskKindImage, Err: ErrEmptyPrompt}
	}
	return c.createTask(ctx, apiKey, TaskKindImage, req)
}

// CreateVideoTask submits an image-to-video task and returns its id
func (c *FreepikClient) CreateVideoTask(ctx context.Context, apiKey string, req *VideoTaskRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", &SubmissionError{Kind: TaskKindVideo, Err: ErrEmptyPrompt}
	}
	if req.ImageURL == "" {
		return "", &SubmissionError{Kind: TaskKindVideo, Err: errors.New("image url must not be empty")}
	}
	return c.createTask(ctx, apiKey, TaskKindVideo, req)
}

// GetTask queries the current state of a task once
func (c *FreepikClient) GetTask(ctx context.Context, apiKey string, kind TaskKind, taskID string) (*GenerationTask, error) {
	task, _, err := c.fetchTask(ctx, apiKey, kind, taskID)
	return task, err
}

// PollImageTask waits for an image task and returns all generated URLs
func (c *FreepikClient) PollImageTask(ctx context.Context, apiKey, taskID string, cfg PollConfig) ([]string, error) {
	task, err := c.pollTask(ctx, apiKey, TaskKindImage, taskID, cfg)
	if err != nil {
		return nil, err
	}
	return task.Outputs, nil
}

// PollVideoTask waits for a video task and returns the first generated URL
func (c *FreepikClient) PollVideoTask(ctx context.Context, apiKey, taskID string, cfg PollConfig) (string, error) {
	task, err := c.pollTask(ctx, apiKey, TaskKindVideo, taskID, cfg)
	if err != nil {
		return "", err
	}
	return task.Outputs[0], nil
}

// pollTask queries at a fixed interval until the task has output or the
// timeout has elapsed since the first query.
func (c *FreepikClient) pollTask(ctx context.Context, apiKey string, kind TaskKind, taskID string, cfg PollConfig) (*GenerationTask, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	attempt := 0

	for {
		attempt++
		task, raw, err := c.fetchTask(ctx, apiKey, kind, taskID)
		if err != nil {
			c.logger.Warn("poll failed",
				zap.String("kind", string(kind)),
				zap.String("task_id", taskID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}

		c.logger.Debug("poll",
			zap.String("kind", string(kind)),
			zap.String("task_id", taskID),
			zap.Int("attempt", attempt),
			zap.String("status", task.Status),
			zap.Int("outputs", len(task.Outputs)))

		if task.Done() {
			return task, nil
		}

		if time.Since(start) > cfg.Timeout {
			return nil, &TimeoutError{
				Kind:        kind,
				TaskID:      taskID,
				Timeout:     cfg.Timeout.String(),
				LastStatus:  task.Status,
				LastPayload: string(raw),
			}
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("poll cancelled", zap.String("task_id", taskID))
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *FreepikClient) createTask(ctx context.Context, apiKey string, kind TaskKind, body interface{}) (string, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", &SubmissionError{Kind: kind, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(kind), bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &SubmissionError{Kind: kind, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	status, respBody, err := c.do(req, apiKey)
	if err != nil {
		return "", &SubmissionError{Kind: kind, Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &SubmissionError{Kind: kind, StatusCode: status, Body: string(respBody)}
	}

	var env taskEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return "", &SubmissionError{Kind: kind, StatusCode: status, Body: string(respBody),
			Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if env.Data == nil || env.Data.TaskID == "" {
		return "", &SubmissionError{Kind: kind, StatusCode: status, Body: string(respBody),
			Err: errors.New("missing task_id in response")}
	}

	c.logger.Info("task created", zap.String("kind", string(kind)), zap.String("task_id", env.Data.TaskID))
	return env.Data.TaskID, nil
}

func (c *FreepikClient) fetchTask(ctx context.Context, apiKey string, kind TaskKind, taskID string) (*GenerationTask, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(kind)+"/"+taskID, nil)
	if err != nil {
		return nil, nil, &PollError{Kind: kind, TaskID: taskID, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	status, respBody, err := c.do(req, apiKey)
	if err != nil {
		return nil, nil, &PollError{Kind: kind, TaskID: taskID, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, respBody, &PollError{Kind: kind, TaskID: taskID, StatusCode: status, Body: string(respBody)}
	}

	var env taskEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, respBody, &PollError{Kind: kind, TaskID: taskID, StatusCode: status, Body: string(respBody),
			Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if env.Data == nil {
		return nil, respBody, &PollError{Kind: kind, TaskID: taskID, StatusCode: status, Body: string(respBody),
			Err: errors.New("missing data in response")}
	}

	return &GenerationTask{
		TaskID:  taskID,
		Kind:    kind,
		Status:  env.Data.Status,
		Outputs: env.Data.Generated,
	}, respBody, nil
}

// do executes the request and returns the status code and full body
func (c *FreepikClient) do(req *http.Request, apiKey string) (int, []byte, error) {
	req.Header.Set(apiKeyHeader, apiKey)

	c.logger.Debug("→ request", zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("← response",
		zap.Int("status", resp.StatusCode),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.ByteString("body", respBody))

	return resp.StatusCode, respBody, nil
}

func (c *FreepikClient) endpoint(kind TaskKind) string {
	if kind == TaskKindVideo {
		return c.videoEndpoint
	}
	return c.imageEndpoint
}
