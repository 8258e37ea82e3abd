package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/client"
	"github.com/adreel/api/internal/model"
	"github.com/adreel/api/internal/service"
	"github.com/adreel/api/internal/store"
	"github.com/adreel/api/internal/websocket"
)

// PercentStarting is reported as soon as a worker picks up a run
const PercentStarting = 5

// PipelineRunner executes one two-stage generation
type PipelineRunner interface {
	Run(ctx context.Context, req *service.RunRequest) (*service.RunResult, error)
}

// PipelineWorker executes queued runs and records their progress in the run store
type PipelineWorker struct {
	store         store.RunStore
	pipeline      PipelineRunner
	hub           websocket.Broadcaster
	defaultAPIKey string
	sealer        *service.KeySealer
	logger        *zap.Logger
}

type Option func(*PipelineWorker)

// WithKeySealer opens caller API keys sealed into task payloads
func WithKeySealer(sealer *service.KeySealer) Option {
	return func(w *PipelineWorker) {
		w.sealer = sealer
	}
}

// NewPipelineWorker creates a worker. defaultAPIKey is used for jobs that carry no key.
func NewPipelineWorker(runStore store.RunStore, pipeline PipelineRunner, hub websocket.Broadcaster, defaultAPIKey string, logger *zap.Logger, opts ...Option) *PipelineWorker {
	w := &PipelineWorker{
		store:         runStore,
		pipeline:      pipeline,
		hub:           hub,
		defaultAPIKey: defaultAPIKey,
		logger:        logger.With(zap.String("component", "pipeline_worker")),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ProcessTask handles pipeline tasks delivered by asynq. Failed runs are
// never retried: the vendor tasks they created cannot be resumed.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	job, err := service.ParsePipelineTask(t, w.sealer)
	if err != nil {
		if job != nil {
			w.reject(ctx, job, err)
		}
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if err := w.Execute(ctx, job); err != nil {
		return fmt.Errorf("run %s failed: %v: %w", job.RunID, err, asynq.SkipRetry)
	}
	return nil
}

// Execute runs the pipeline for job and writes every state transition to the
// store, replacing the whole record each time.
func (w *PipelineWorker) Execute(ctx context.Context, job *model.RunJob) error {
	log := w.logger.With(zap.String("run_id", job.RunID))
	log.Info("starting run")

	// state writes must land even after the run context expires
	storeCtx := context.WithoutCancel(ctx)

	state, err := w.store.Get(storeCtx, job.RunID)
	if err != nil {
		if !errors.Is(err, store.ErrRunNotFound) {
			log.Warn("failed to load run state", zap.Error(err))
		}
		state = &model.RunState{RunID: job.RunID, CreatedAt: job.CreatedAt}
	}

	w.update(storeCtx, state, model.RunStatusProcessing, PercentStarting, "Starting")

	apiKey := job.APIKey
	if apiKey == "" {
		apiKey = w.defaultAPIKey
	}
	poll := client.PollConfig{Timeout: job.Timeout, Interval: job.PollInterval}

	result, err := w.pipeline.Run(ctx, &service.RunRequest{
		APIKey:     apiKey,
		BasePrompt: job.BasePrompt,
		AdPrompt:   job.AdPrompt,
		ImagePath:  job.ImageFile,
		VideoPath:  job.VideoFile,
		ImagePoll:  poll,
		VideoPoll:  poll,
		Mode:       "async",
		OnProgress: func(step string, percent int) {
			w.update(storeCtx, state, model.RunStatusProcessing, percent, step)
		},
	})
	if err != nil {
		w.fail(storeCtx, state, err)
		log.Error("run failed", zap.Error(err))
		return err
	}

	state.Status = model.RunStatusCompleted
	state.Percent = 100
	state.Progress = "Completed"
	state.BaseImage = result.Image.DownloadURL()
	state.Video = result.Video.DownloadURL()
	state.ImageURL = result.Image.RemoteURL
	state.VideoURL = result.Video.RemoteURL
	state.ImagePublicURL = result.Image.PublicURL
	state.VideoPublicURL = result.Video.PublicURL
	state.UpdatedAt = time.Now().UTC()
	w.save(storeCtx, state)

	snapshot := *state
	w.hub.BroadcastComplete(job.RunID, &snapshot)

	log.Info("run completed",
		zap.String("image_path", result.Image.LocalPath),
		zap.String("video_path", result.Video.LocalPath))
	return nil
}

// reject fails a run whose task could not be decoded
func (w *PipelineWorker) reject(ctx context.Context, job *model.RunJob, err error) {
	storeCtx := context.WithoutCancel(ctx)
	state, getErr := w.store.Get(storeCtx, job.RunID)
	if getErr != nil {
		state = &model.RunState{RunID: job.RunID, CreatedAt: job.CreatedAt}
	}
	w.fail(storeCtx, state, err)
	w.logger.Error("run rejected", zap.String("run_id", job.RunID), zap.Error(err))
}

func (w *PipelineWorker) update(ctx context.Context, state *model.RunState, status model.RunStatus, percent int, step string) {
	state.Status = status
	state.Percent = percent
	state.Progress = step
	state.UpdatedAt = time.Now().UTC()
	w.save(ctx, state)
	w.hub.BroadcastProgress(state.RunID, percent, status, step)
}

func (w *PipelineWorker) fail(ctx context.Context, state *model.RunState, err error) {
	state.Status = model.RunStatusFailed
	state.Progress = "Failed"
	state.Error = err.Error()
	state.UpdatedAt = time.Now().UTC()
	w.save(ctx, state)
	w.hub.BroadcastError(state.RunID, service.ErrorCode(err), err.Error())
}

func (w *PipelineWorker) save(ctx context.Context, state *model.RunState) {
	snapshot := *state
	if err := w.store.Put(ctx, &snapshot); err != nil {
		w.logger.Error("failed to save run state", zap.String("run_id", state.RunID), zap.Error(err))
	}
}
