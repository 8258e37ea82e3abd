package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/adreel/api/internal/client"
	"github.com/adreel/api/internal/metrics"
	"github.com/adreel/api/internal/model"
)

// ProgressFunc receives a human readable step and a completion percentage
type ProgressFunc func(step string, percent int)

// Progress checkpoints reported by Run
const (
	PercentImageSubmit   = 10
	PercentImageDownload = 40
	PercentVideoSubmit   = 50
	PercentVideoDownload = 90
)

// PollSettings holds the per-stage poll bounds used when a request does not
// override them.
type PollSettings struct {
	Image client.PollConfig
	Video client.PollConfig
}

// RunRequest describes one two-stage generation. Zero fields in ImagePoll and
// VideoPoll fall back to the service defaults.
type RunRequest struct {
	APIKey     string
	BasePrompt string
	AdPrompt   string
	ImagePath  string
	VideoPath  string
	ImagePoll  client.PollConfig
	VideoPoll  client.PollConfig
	OnProgress ProgressFunc
	Mode       string
}

// RunResult holds both artifacts of a finished run
type RunResult struct {
	Image       *model.Artifact
	Video       *model.Artifact
	ImageTaskID string
	VideoTaskID string
}

// ImageRequest describes a single-stage image generation
type ImageRequest struct {
	APIKey          string
	Prompt          string
	ReferenceImages []json.RawMessage
	OutputPath      string
	Poll            client.PollConfig
}

// ImageResult is the outcome of GenerateImage
type ImageResult struct {
	URLs     []string
	Artifact *model.Artifact
}

// PipelineService chains image generation, image-to-video generation and the
// artifact downloads. Every error is returned as produced by the failing step.
type PipelineService struct {
	generator     client.MediaGenerator
	downloader    client.ArtifactDownloader
	storage       client.StorageClient
	metrics       *metrics.Collector
	videoDuration string
	defaults      PollSettings
	logger        *zap.Logger
}

// PipelineOption configures optional collaborators
type PipelineOption func(*PipelineService)

// WithStorage mirrors every downloaded artifact to object storage
func WithStorage(storage client.StorageClient) PipelineOption {
	return func(s *PipelineService) { s.storage = storage }
}

// WithMetrics records stage durations and artifact sizes
func WithMetrics(m *metrics.Collector) PipelineOption {
	return func(s *PipelineService) { s.metrics = m }
}

// NewPipelineService creates a pipeline service
func NewPipelineService(
	generator client.MediaGenerator,
	downloader client.ArtifactDownloader,
	videoDuration string,
	defaults PollSettings,
	logger *zap.Logger,
	opts ...PipelineOption,
) *PipelineService {
	s := &PipelineService{
		generator:     generator,
		downloader:    downloader,
		videoDuration: videoDuration,
		defaults:      defaults,
		logger:        logger.With(zap.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the per-stage poll bounds
func (s *PipelineService) Defaults() PollSettings {
	return s.defaults
}

// Run executes the two-stage pipeline. The video task is only submitted after
// the base image has been downloaded, using the same remote image URL.
func (s *PipelineService) Run(ctx context.Context, req *RunRequest) (result *RunResult, err error) {
	mode := req.Mode
	if mode == "" {
		mode = "sync"
	}
	done := s.metrics.RunStarted(mode)
	defer func() { done(err) }()

	progress := req.OnProgress
	if progress == nil {
		progress = func(string, int) {}
	}
	imagePoll := resolvePoll(req.ImagePoll, s.defaults.Image)
	videoPoll := resolvePoll(req.VideoPoll, s.defaults.Video)

	log := s.logger.With(zap.String("image_path", req.ImagePath), zap.String("video_path", req.VideoPath))
	result = &RunResult{}

	// Stage 1: base image
	progress("Generating base image", PercentImageSubmit)
	result.ImageTaskID, err = s.submitImage(ctx, req.APIKey, &client.ImageTaskRequest{Prompt: req.BasePrompt})
	if err != nil {
		return nil, err
	}

	imageURLs, err := s.pollImage(ctx, req.APIKey, result.ImageTaskID, imagePoll)
	if err != nil {
		return nil, err
	}
	imageURL := imageURLs[0]
	log.Info("base image ready", zap.String("task_id", result.ImageTaskID), zap.String("url", imageURL))

	progress("Downloading base image", PercentImageDownload)
	result.Image, err = s.download(ctx, imageURL, req.ImagePath, model.MediaTypeImage, metrics.StageImageDownload)
	if err != nil {
		return nil, err
	}

	// Stage 2: animate the base image
	progress("Generating video", PercentVideoSubmit)
	start := time.Now()
	result.VideoTaskID, err = s.generator.CreateVideoTask(ctx, req.APIKey, &client.VideoTaskRequest{
		ImageURL: imageURL,
		Prompt:   req.AdPrompt,
		Duration: s.videoDuration,
	})
	s.metrics.ObserveStage(metrics.StageVideoSubmit, start, err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	videoURL, err := s.generator.PollVideoTask(ctx, req.APIKey, result.VideoTaskID, videoPoll)
	s.metrics.ObserveStage(metrics.StageVideoPoll, start, err)
	if err != nil {
		return nil, err
	}
	log.Info("video ready", zap.String("task_id", result.VideoTaskID), zap.String("url", videoURL))

	progress("Downloading video", PercentVideoDownload)
	result.Video, err = s.download(ctx, videoURL, req.VideoPath, model.MediaTypeVideo, metrics.StageVideoDownload)
	if err != nil {
		return nil, err
	}

	s.mirror(ctx, result.Image)
	s.mirror(ctx, result.Video)

	return result, nil
}

// GenerateImage submits one image task, waits for it and downloads the first
// generated image. All generated URLs are returned.
func (s *PipelineService) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	taskID, err := s.submitImage(ctx, req.APIKey, &client.ImageTaskRequest{
		Prompt:          req.Prompt,
		ReferenceImages: req.ReferenceImages,
	})
	if err != nil {
		return nil, err
	}

	urls, err := s.pollImage(ctx, req.APIKey, taskID, resolvePoll(req.Poll, s.defaults.Image))
	if err != nil {
		return nil, err
	}

	artifact, err := s.download(ctx, urls[0], req.OutputPath, model.MediaTypeImage, metrics.StageImageDownload)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, artifact)

	return &ImageResult{URLs: urls, Artifact: artifact}, nil
}

func (s *PipelineService) submitImage(ctx context.Context, apiKey string, req *client.ImageTaskRequest) (string, error) {
	start := time.Now()
	taskID, err := s.generator.CreateImageTask(ctx, apiKey, req)
	s.metrics.ObserveStage(metrics.StageImageSubmit, start, err)
	return taskID, err
}

func (s *PipelineService) pollImage(ctx context.Context, apiKey, taskID string, cfg client.PollConfig) ([]string, error) {
	start := time.Now()
	urls, err := s.generator.PollImageTask(ctx, apiKey, taskID, cfg)
	if err == nil && len(urls) == 0 {
		err = &client.PollError{Kind: client.TaskKindImage, TaskID: taskID, Err: errors.New("no generated images")}
	}
	s.metrics.ObserveStage(metrics.StageImagePoll, start, err)
	return urls, err
}

func (s *PipelineService) download(ctx context.Context, url, path string, mediaType model.MediaType, stage string) (*model.Artifact, error) {
	start := time.Now()
	artifact, err := s.downloader.Download(ctx, url, path, mediaType)
	s.metrics.ObserveStage(stage, start, err)
	if err != nil {
		return nil, err
	}
	s.metrics.AddArtifactBytes(string(mediaType), artifact.Size)
	return artifact, nil
}

// mirror uploads an artifact to object storage. Failures are logged only; the
// local file remains the result of record.
func (s *PipelineService) mirror(ctx context.Context, artifact *model.Artifact) {
	if s.storage == nil || artifact == nil {
		return
	}
	start := time.Now()
	key := filepath.Base(artifact.LocalPath)
	publicURL, err := client.UploadFile(ctx, s.storage, key, artifact.LocalPath, artifact.MediaType.ContentType())
	s.metrics.ObserveStage(metrics.StageMirror, start, err)
	if err != nil {
		s.logger.Warn("mirror upload failed", zap.String("path", artifact.LocalPath), zap.Error(err))
		return
	}
	artifact.PublicURL = publicURL
}

func resolvePoll(override, fallback client.PollConfig) client.PollConfig {
	if override.Timeout <= 0 {
		override.Timeout = fallback.Timeout
	}
	if override.Interval <= 0 {
		override.Interval = fallback.Interval
	}
	return override
}

// OutputPath joins the output directory and a generated filename
func OutputPath(dir, name string, mediaType model.MediaType) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s", name, mediaType.Extension()))
}
