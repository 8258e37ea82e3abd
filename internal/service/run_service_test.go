package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/model"
	"github.com/adreel/api/internal/store"
)

type recordingDispatcher struct {
	jobs []*model.RunJob
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job *model.RunJob) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func TestRunService_StartAsync(t *testing.T) {
	runStore := store.NewMemoryRunStore()
	dispatcher := &recordingDispatcher{}
	svc := NewRunService(runStore, dispatcher, "outputs", zap.NewNop())

	state, err := svc.StartAsync(context.Background(), &AsyncRunRequest{
		BasePrompt: "base",
		AdPrompt:   "ad",
		Timeout:    45 * time.Second,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, state.RunID)
	assert.Equal(t, model.RunStatusQueued, state.Status)

	stored, err := svc.Status(context.Background(), state.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, stored.Status)

	require.Len(t, dispatcher.jobs, 1)
	job := dispatcher.jobs[0]
	assert.Equal(t, state.RunID, job.RunID)
	assert.Equal(t, filepath.Join("outputs", state.RunID+"_image.png"), job.ImageFile)
	assert.Equal(t, filepath.Join("outputs", state.RunID+"_video.mp4"), job.VideoFile)
	assert.Equal(t, 45*time.Second, job.Timeout)
	assert.Empty(t, job.APIKey)
}

func TestRunService_StartAsync_UniqueIDs(t *testing.T) {
	svc := NewRunService(store.NewMemoryRunStore(), &recordingDispatcher{}, "out", zap.NewNop())

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		state, err := svc.StartAsync(context.Background(), &AsyncRunRequest{BasePrompt: "b", AdPrompt: "a"})
		require.NoError(t, err)
		assert.False(t, seen[state.RunID])
		seen[state.RunID] = true
	}
}

func TestRunService_StartAsync_DispatchFailure(t *testing.T) {
	runStore := store.NewMemoryRunStore()
	svc := NewRunService(runStore, &recordingDispatcher{err: ErrDispatcherFull}, "out", zap.NewNop())

	state, err := svc.StartAsync(context.Background(), &AsyncRunRequest{BasePrompt: "b", AdPrompt: "a"})
	assert.Nil(t, state)
	assert.True(t, errors.Is(err, ErrDispatcherFull))
}

func TestRunService_Status_NotFound(t *testing.T) {
	svc := NewRunService(store.NewMemoryRunStore(), &recordingDispatcher{}, "out", zap.NewNop())

	_, err := svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}
