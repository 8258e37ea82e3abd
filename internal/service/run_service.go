package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/model"
	"github.com/adreel/api/internal/store"
)

// AsyncRunRequest is the input of StartAsync. An empty APIKey means the worker
// uses the configured key.
type AsyncRunRequest struct {
	APIKey       string
	BasePrompt   string
	AdPrompt     string
	Timeout      time.Duration
	PollInterval time.Duration
}

// RunService starts fire-and-track runs and reports their state
type RunService struct {
	store      store.RunStore
	dispatcher Dispatcher
	outputDir  string
	logger     *zap.Logger
}

func NewRunService(runStore store.RunStore, dispatcher Dispatcher, outputDir string, logger *zap.Logger) *RunService {
	return &RunService{
		store:      runStore,
		dispatcher: dispatcher,
		outputDir:  outputDir,
		logger:     logger.With(zap.String("component", "run_service")),
	}
}

// StartAsync claims a new run id, records it as queued and dispatches it.
// The returned state is the queued snapshot.
func (s *RunService) StartAsync(ctx context.Context, req *AsyncRunRequest) (*model.RunState, error) {
	runID := uuid.New().String()
	now := time.Now().UTC()

	state := &model.RunState{
		RunID:     runID,
		Status:    model.RunStatusQueued,
		Progress:  "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	job := &model.RunJob{
		RunID:        runID,
		APIKey:       req.APIKey,
		BasePrompt:   req.BasePrompt,
		AdPrompt:     req.AdPrompt,
		ImageFile:    OutputPath(s.outputDir, runID+"_image", model.MediaTypeImage),
		VideoFile:    OutputPath(s.outputDir, runID+"_video", model.MediaTypeVideo),
		Timeout:      req.Timeout,
		PollInterval: req.PollInterval,
		CreatedAt:    now,
	}

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		failed := *state
		failed.Status = model.RunStatusFailed
		failed.Error = err.Error()
		failed.UpdatedAt = time.Now().UTC()
		if putErr := s.store.Put(ctx, &failed); putErr != nil {
			s.logger.Error("failed to record dispatch failure", zap.String("run_id", runID), zap.Error(putErr))
		}
		return nil, fmt.Errorf("failed to dispatch run: %w", err)
	}

	s.logger.Info("run queued", zap.String("run_id", runID))
	return state, nil
}

// Status returns the current state of a run
func (s *RunService) Status(ctx context.Context, runID string) (*model.RunState, error) {
	return s.store.Get(ctx, runID)
}
