package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/auth"
	"github.com/adreel/api/internal/client"
	"github.com/adreel/api/internal/config"
	"github.com/adreel/api/internal/metrics"
	"github.com/adreel/api/internal/middleware"
	"github.com/adreel/api/internal/router"
	"github.com/adreel/api/internal/service"
	"github.com/adreel/api/internal/store"
	ws "github.com/adreel/api/internal/websocket"
	"github.com/adreel/api/internal/worker"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testAPIKey    = "caller-key"
)

// testApp holds all components needed for testing
type testApp struct {
	app    *fiber.App
	vendor *fakeVendor
	cfg    *config.Config
	store  store.RunStore
}

// setupApp wires the same router as main.go against a fake vendor, an
// in-memory run store, the in-process worker pool and miniredis.
func setupApp(t *testing.T, configure ...func(*config.Config)) *testApp {
	t.Helper()

	vendor := newFakeVendor(t)
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", LogLevel: "error"},
		Freepik: config.FreepikConfig{
			BaseURL:       vendor.srv.URL,
			ImageModel:    testImageModel,
			VideoModel:    testVideoModel,
			VideoDuration: "10",
			HTTPTimeout:   5 * time.Second,
		},
		Pipeline: config.PipelineConfig{
			OutputDir:         t.TempDir(),
			ImageTimeout:      5 * time.Second,
			ImagePollInterval: 10 * time.Millisecond,
			VideoTimeout:      5 * time.Second,
			VideoPollInterval: 10 * time.Millisecond,
		},
		Worker:    config.WorkerConfig{Mode: "local", Concurrency: 2, RunTimeout: 10 * time.Second},
		RunStore:  config.RunStoreConfig{Backend: "memory", TTL: time.Hour},
		RateLimit: config.RateLimitConfig{ImagePerHour: 10000, VideoPerHour: 10000},
	}
	for _, fn := range configure {
		fn(cfg)
	}

	log := zap.NewNop()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector("e2e", registry, log)

	pipeline := service.NewPipelineService(
		client.NewFreepikClient(&cfg.Freepik, log),
		client.NewDownloader(5*time.Second, log),
		cfg.Freepik.VideoDuration,
		service.PollSettings{
			Image: client.PollConfig{Timeout: cfg.Pipeline.ImageTimeout, Interval: cfg.Pipeline.ImagePollInterval},
			Video: client.PollConfig{Timeout: cfg.Pipeline.VideoTimeout, Interval: cfg.Pipeline.VideoPollInterval},
		},
		log,
		service.WithMetrics(collector),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	runStore := store.NewMemoryRunStore()
	pipelineWorker := worker.NewPipelineWorker(runStore, pipeline, hub, cfg.Freepik.APIKey, log)
	pool, err := service.NewPoolDispatcher(cfg.Worker.Concurrency, pipelineWorker, cfg.Worker.RunTimeout, log)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(func() { pool.Close(5 * time.Second) })

	var verifier auth.TokenVerifier
	if cfg.Auth.Enabled {
		verifier = auth.NewHMACVerifier(cfg.Auth.JWTSecret, "", "")
	}

	app := router.New(&router.Deps{
		Config:      cfg,
		Pipeline:    pipeline,
		Runs:        service.NewRunService(runStore, pool, cfg.Pipeline.OutputDir, log),
		Hub:         hub,
		Validator:   validator.New(),
		Metrics:     collector,
		Gatherer:    registry,
		Verifier:    verifier,
		RateLimiter: middleware.NewRateLimiter(redisClient, log),
		AccessLog:   io.Discard,
	})

	return &testApp{app: app, vendor: vendor, cfg: cfg, store: runStore}
}

func withAuth(cfg *config.Config) {
	cfg.Auth = config.AuthConfig{Enabled: true, JWTSecret: testJWTSecret}
}

// generateToken creates an HMAC JWT for test requests
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewHMACVerifier(testJWTSecret, "", "").Issue("test-user-123", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doKeyRequest sends the caller's vendor key
func doKeyRequest(app *fiber.App, method, path, body string) (*http.Response, error) {
	return doRequest(app, method, path, body, map[string]string{
		middleware.HeaderAPIKey: testAPIKey,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

// fetchArtifact downloads a returned artifact link through the download endpoint
func fetchArtifact(t *testing.T, ta *testApp, link string) string {
	t.Helper()
	if !strings.HasPrefix(link, "/api/download/") {
		t.Fatalf("expected download link, got %q", link)
	}
	resp, err := doRequest(ta.app, http.MethodGet, link, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	return readBody(t, resp)
}
