package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/model"
)

const (
	TaskTypePipelineRun = "pipeline:run"
	QueuePipeline       = "pipeline"
)

// ErrDispatcherFull is returned when no worker slot is available
var ErrDispatcherFull = errors.New("worker pool is saturated")

// Dispatcher hands a run to a bounded set of workers
type Dispatcher interface {
	Dispatch(ctx context.Context, job *model.RunJob) error
}

// JobExecutor runs one job to completion, recording its outcome
type JobExecutor interface {
	Execute(ctx context.Context, job *model.RunJob) error
}

// NewPipelineTask wraps a job in an asynq task. A caller API key only enters
// the payload sealed.
func NewPipelineTask(job *model.RunJob, sealer *KeySealer) (*asynq.Task, error) {
	payload := *job
	payload.SealedAPIKey = ""
	if job.APIKey != "" {
		if sealer == nil {
			return nil, errors.New("no key sealer for a job carrying an api key")
		}
		sealed, err := sealer.Seal(job.APIKey)
		if err != nil {
			return nil, err
		}
		payload.SealedAPIKey = sealed
	}

	data, err := json.Marshal(&payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePipelineRun, data), nil
}

// ParsePipelineTask decodes the job carried by a pipeline task. When only the
// key cannot be opened the decoded job is returned with ErrSealedKey so the
// run can still be marked failed.
func ParsePipelineTask(t *asynq.Task, sealer *KeySealer) (*model.RunJob, error) {
	var job model.RunJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if job.RunID == "" {
		return nil, errors.New("task payload has no run id")
	}
	if job.SealedAPIKey != "" {
		if sealer == nil {
			return &job, ErrSealedKey
		}
		key, err := sealer.Open(job.SealedAPIKey)
		if err != nil {
			return &job, err
		}
		job.APIKey = key
		job.SealedAPIKey = ""
	}
	return &job, nil
}

// taskEnqueuer is the subset of *asynq.Client used for dispatch
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher enqueues runs on Redis for the asynq worker server
type AsynqDispatcher struct {
	client     taskEnqueuer
	sealer     *KeySealer
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewAsynqDispatcher creates a dispatcher. The worker server must open task
// payloads with the same sealer secret.
func NewAsynqDispatcher(client *asynq.Client, sealer *KeySealer, runTimeout time.Duration, logger *zap.Logger) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:     client,
		sealer:     sealer,
		runTimeout: runTimeout,
		logger:     logger.With(zap.String("component", "asynq_dispatcher")),
	}
}

// Dispatch enqueues the job. The run id doubles as the asynq task id so a run
// can be enqueued at most once.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, job *model.RunJob) error {
	task, err := NewPipelineTask(job, d.sealer)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(job.RunID),
		asynq.Queue(QueuePipeline),
		asynq.MaxRetry(0),
		asynq.Retention(24 * time.Hour),
	}
	if d.runTimeout > 0 {
		opts = append(opts, asynq.Timeout(d.runTimeout))
	}

	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	d.logger.Info("run enqueued", zap.String("run_id", job.RunID), zap.String("queue", info.Queue))
	return nil
}

// PoolDispatcher runs jobs on a fixed-size in-process goroutine pool
type PoolDispatcher struct {
	pool       *ants.Pool
	executor   JobExecutor
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewPoolDispatcher creates a pool of size workers. Dispatch never blocks: it
// fails with ErrDispatcherFull when every worker is busy.
func NewPoolDispatcher(size int, executor JobExecutor, runTimeout time.Duration, logger *zap.Logger) (*PoolDispatcher, error) {
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &PoolDispatcher{
		pool:       pool,
		executor:   executor,
		runTimeout: runTimeout,
		logger:     logger.With(zap.String("component", "pool_dispatcher")),
	}, nil
}

// Dispatch submits the job. The run outlives the caller's context.
func (d *PoolDispatcher) Dispatch(_ context.Context, job *model.RunJob) error {
	err := d.pool.Submit(func() {
		ctx := context.Background()
		if d.runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.runTimeout)
			defer cancel()
		}
		if err := d.executor.Execute(ctx, job); err != nil {
			d.logger.Warn("run failed", zap.String("run_id", job.RunID), zap.Error(err))
		}
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		return ErrDispatcherFull
	}
	if err != nil {
		return fmt.Errorf("failed to submit run: %w", err)
	}
	return nil
}

// Running returns the number of busy workers
func (d *PoolDispatcher) Running() int {
	return d.pool.Running()
}

// Close waits up to timeout for running jobs and releases the pool
func (d *PoolDispatcher) Close(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}
