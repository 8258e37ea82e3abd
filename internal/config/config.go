package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Freepik   FreepikConfig
	Pipeline  PipelineConfig
	Worker    WorkerConfig
	RunStore  RunStoreConfig
	R2        R2Config
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string // "json" or "console"
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FreepikConfig holds the vendor endpoints. APIKey is only a fallback: callers
// may supply their own key per request.
type FreepikConfig struct {
	APIKey        string
	BaseURL       string
	ImageModel    string
	VideoModel    string
	VideoDuration string
	HTTPTimeout   time.Duration
}

// ImageEndpoint returns the task endpoint for image generation.
func (c FreepikConfig) ImageEndpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + "/v1/ai/" + c.ImageModel
}

// VideoEndpoint returns the task endpoint for image-to-video generation.
func (c FreepikConfig) VideoEndpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + "/v1/ai/image-to-video/" + c.VideoModel
}

type PipelineConfig struct {
	OutputDir         string
	ImageTimeout      time.Duration
	ImagePollInterval time.Duration
	VideoTimeout      time.Duration
	VideoPollInterval time.Duration
	DownloadTimeout   time.Duration
}

type WorkerConfig struct {
	Mode        string // "asynq" or "local"
	Concurrency int
	RunTimeout  time.Duration

	// PayloadSecret seals caller API keys inside queued tasks. When empty a
	// per-process key is generated, so only this process can run those tasks.
	PayloadSecret string
}

type RunStoreConfig struct {
	Backend string // "redis" or "memory"
	TTL     time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	Prefix          string
}

// Enabled reports whether artifact mirroring is fully configured.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
	Audience  string
}

type RateLimitConfig struct {
	ImagePerHour int
	VideoPerHour int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("FREEPIK_API_KEY")
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")
	readSecret("WORKER_PAYLOAD_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	bindings := map[string]string{
		"server.port":                  "SERVER_PORT",
		"server.env":                   "SERVER_ENV",
		"server.log_level":             "LOG_LEVEL",
		"server.log_format":            "LOG_FORMAT",
		"redis.addr":                   "REDIS_ADDR",
		"redis.password":               "REDIS_PASSWORD",
		"redis.db":                     "REDIS_DB",
		"freepik.api_key":              "FREEPIK_API_KEY",
		"freepik.base_url":             "FREEPIK_BASE_URL",
		"freepik.image_model":          "FREEPIK_IMAGE_MODEL",
		"freepik.video_model":          "FREEPIK_VIDEO_MODEL",
		"freepik.video_duration":       "FREEPIK_VIDEO_DURATION",
		"freepik.http_timeout":         "FREEPIK_HTTP_TIMEOUT",
		"pipeline.output_dir":          "OUTPUT_DIR",
		"pipeline.image_timeout":       "IMAGE_TIMEOUT",
		"pipeline.image_poll_interval": "IMAGE_POLL_INTERVAL",
		"pipeline.video_timeout":       "VIDEO_TIMEOUT",
		"pipeline.video_poll_interval": "VIDEO_POLL_INTERVAL",
		"pipeline.download_timeout":    "DOWNLOAD_TIMEOUT",
		"worker.mode":                  "WORKER_MODE",
		"worker.concurrency":           "WORKER_CONCURRENCY",
		"worker.run_timeout":           "WORKER_RUN_TIMEOUT",
		"worker.payload_secret":        "WORKER_PAYLOAD_SECRET",
		"runstore.backend":             "RUN_STORE",
		"runstore.ttl":                 "RUN_STORE_TTL",
		"r2.account_id":                "R2_ACCOUNT_ID",
		"r2.access_key_id":             "R2_ACCESS_KEY_ID",
		"r2.secret_access_key":         "R2_SECRET_ACCESS_KEY",
		"r2.bucket_name":               "R2_BUCKET_NAME",
		"r2.public_url":                "R2_PUBLIC_URL",
		"r2.prefix":                    "R2_PREFIX",
		"auth.enabled":                 "AUTH_ENABLED",
		"auth.jwt_secret":              "JWT_SECRET",
		"auth.issuer":                  "AUTH_ISSUER",
		"auth.audience":                "AUTH_AUDIENCE",
		"ratelimit.image_per_hour":     "RATELIMIT_IMAGE_PER_HOUR",
		"ratelimit.video_per_hour":     "RATELIMIT_VIDEO_PER_HOUR",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	// Defaults
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Freepik defaults
	v.SetDefault("freepik.base_url", "https://api.freepik.com")
	v.SetDefault("freepik.image_model", "gemini-2-5-flash-image-preview")
	v.SetDefault("freepik.video_model", "kling-v2-5-pro")
	v.SetDefault("freepik.video_duration", "10")
	v.SetDefault("freepik.http_timeout", 60*time.Second)

	// Image jobs finish in seconds, video jobs in minutes
	v.SetDefault("pipeline.output_dir", "outputs")
	v.SetDefault("pipeline.image_timeout", 120*time.Second)
	v.SetDefault("pipeline.image_poll_interval", 2*time.Second)
	v.SetDefault("pipeline.video_timeout", 180*time.Second)
	v.SetDefault("pipeline.video_poll_interval", 2*time.Second)
	v.SetDefault("pipeline.download_timeout", 5*time.Minute)

	v.SetDefault("worker.mode", "asynq")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.run_timeout", 30*time.Minute)

	v.SetDefault("runstore.backend", "redis")
	v.SetDefault("runstore.ttl", 24*time.Hour)

	v.SetDefault("r2.prefix", "artifacts")

	v.SetDefault("auth.enabled", false)

	v.SetDefault("ratelimit.image_per_hour", 60)
	v.SetDefault("ratelimit.video_per_hour", 20)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Freepik: FreepikConfig{
			APIKey:        v.GetString("freepik.api_key"),
			BaseURL:       v.GetString("freepik.base_url"),
			ImageModel:    v.GetString("freepik.image_model"),
			VideoModel:    v.GetString("freepik.video_model"),
			VideoDuration: v.GetString("freepik.video_duration"),
			HTTPTimeout:   v.GetDuration("freepik.http_timeout"),
		},
		Pipeline: PipelineConfig{
			OutputDir:         v.GetString("pipeline.output_dir"),
			ImageTimeout:      v.GetDuration("pipeline.image_timeout"),
			ImagePollInterval: v.GetDuration("pipeline.image_poll_interval"),
			VideoTimeout:      v.GetDuration("pipeline.video_timeout"),
			VideoPollInterval: v.GetDuration("pipeline.video_poll_interval"),
			DownloadTimeout:   v.GetDuration("pipeline.download_timeout"),
		},
		Worker: WorkerConfig{
			Mode:          strings.ToLower(v.GetString("worker.mode")),
			Concurrency:   v.GetInt("worker.concurrency"),
			RunTimeout:    v.GetDuration("worker.run_timeout"),
			PayloadSecret: v.GetString("worker.payload_secret"),
		},
		RunStore: RunStoreConfig{
			Backend: strings.ToLower(v.GetString("runstore.backend")),
			TTL:     v.GetDuration("runstore.ttl"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			Prefix:          v.GetString("r2.prefix"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("auth.enabled"),
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			Audience:  v.GetString("auth.audience"),
		},
		RateLimit: RateLimitConfig{
			ImagePerHour: v.GetInt("ratelimit.image_per_hour"),
			VideoPerHour: v.GetInt("ratelimit.video_per_hour"),
		},
	}

	if cfg.Worker.Concurrency < 1 {
		cfg.Worker.Concurrency = 1
	}

	return cfg, nil
}
