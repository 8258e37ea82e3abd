package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/auth"
	"github.com/adreel/api/internal/client"
	"github.com/adreel/api/internal/config"
	"github.com/adreel/api/internal/logger"
	"github.com/adreel/api/internal/metrics"
	"github.com/adreel/api/internal/middleware"
	"github.com/adreel/api/internal/router"
	"github.com/adreel/api/internal/service"
	"github.com/adreel/api/internal/store"
	ws "github.com/adreel/api/internal/websocket"
	"github.com/adreel/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not available", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("adreel", registry, log)

	// Run store
	var runStore store.RunStore
	switch cfg.RunStore.Backend {
	case "memory":
		runStore = store.NewMemoryRunStore()
	default:
		runStore = store.NewRedisRunStore(redisClient, cfg.RunStore.TTL)
	}

	// Vendor clients
	freepikClient := client.NewFreepikClient(&cfg.Freepik, log)
	downloader := client.NewDownloader(cfg.Pipeline.DownloadTimeout, log)

	opts := []service.PipelineOption{service.WithMetrics(collector)}
	if cfg.R2.Enabled() {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn("R2 client not initialized", zap.Error(err))
		} else {
			opts = append(opts, service.WithStorage(r2Client))
		}
	} else {
		log.Info("R2 storage not configured, artifacts stay local")
	}

	pipeline := service.NewPipelineService(freepikClient, downloader, cfg.Freepik.VideoDuration, service.PollSettings{
		Image: client.PollConfig{Timeout: cfg.Pipeline.ImageTimeout, Interval: cfg.Pipeline.ImagePollInterval},
		Video: client.PollConfig{Timeout: cfg.Pipeline.VideoTimeout, Interval: cfg.Pipeline.VideoPollInterval},
	}, log, opts...)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// Caller keys are sealed before they are queued in Redis
	sealer, err := service.NewKeySealer(cfg.Worker.PayloadSecret)
	if err != nil {
		log.Fatal("failed to create key sealer", zap.Error(err))
	}
	if cfg.Worker.PayloadSecret == "" && cfg.Worker.Mode != "local" {
		log.Warn("WORKER_PAYLOAD_SECRET not set, queued runs with caller keys only run in this process")
	}

	pipelineWorker := worker.NewPipelineWorker(runStore, pipeline, hub, cfg.Freepik.APIKey, log, worker.WithKeySealer(sealer))

	// Dispatcher
	var dispatcher service.Dispatcher
	switch cfg.Worker.Mode {
	case "local":
		pool, err := service.NewPoolDispatcher(cfg.Worker.Concurrency, pipelineWorker, cfg.Worker.RunTimeout, log)
		if err != nil {
			log.Fatal("failed to create worker pool", zap.Error(err))
		}
		defer pool.Close(30 * time.Second)
		dispatcher = pool
	default:
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		dispatcher = service.NewAsynqDispatcher(asynqClient, sealer, cfg.Worker.RunTimeout, log)

		srv := newWorkerServer(cfg, redisOpt, log)
		mux := asynq.NewServeMux()
		mux.HandleFunc(service.TaskTypePipelineRun, pipelineWorker.ProcessTask)
		if err := srv.Start(mux); err != nil {
			log.Fatal("failed to start asynq worker", zap.Error(err))
		}
		defer srv.Shutdown()
	}

	runService := service.NewRunService(runStore, dispatcher, cfg.Pipeline.OutputDir, log)

	// Optional service auth
	var verifier auth.TokenVerifier
	if cfg.Auth.Enabled {
		verifier, err = auth.NewVerifier(ctx, &cfg.Auth)
		if err != nil {
			log.Fatal("auth enabled but no verifier could be built", zap.Error(err))
		}
		if closer, ok := verifier.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}

	app := router.New(&router.Deps{
		Config:      cfg,
		Pipeline:    pipeline,
		Runs:        runService,
		Hub:         hub,
		Validator:   validator.New(),
		Metrics:     collector,
		Gatherer:    registry,
		Verifier:    verifier,
		RateLimiter: middleware.NewRateLimiter(redisClient, log),
	})

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
	}()

	if cfg.Freepik.APIKey == "" {
		log.Warn("FREEPIK_API_KEY not set, callers must send " + middleware.HeaderAPIKey)
	}

	addr := ":" + cfg.Server.Port
	log.Info("server starting",
		zap.String("addr", addr),
		zap.String("worker_mode", cfg.Worker.Mode),
		zap.String("run_store", cfg.RunStore.Backend))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, log *zap.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			service.QueuePipeline: 1,
		},
		Logger:   log.With(zap.String("component", "asynq")).Sugar(),
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
