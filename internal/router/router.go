// Package router assembles the HTTP application.
package router

import (
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adreel/api/internal/auth"
	"github.com/adreel/api/internal/config"
	"github.com/adreel/api/internal/handler"
	"github.com/adreel/api/internal/metrics"
	"github.com/adreel/api/internal/middleware"
	"github.com/adreel/api/internal/service"
	ws "github.com/adreel/api/internal/websocket"
	"github.com/adreel/api/pkg/response"
)

// Deps are the collaborators the routes are served by. Verifier and
// RateLimiter are optional.
type Deps struct {
	Config      *config.Config
	Pipeline    *service.PipelineService
	Runs        *service.RunService
	Hub         *ws.Hub
	Validator   *validator.Validate
	Metrics     *metrics.Collector
	Gatherer    prometheus.Gatherer
	Verifier    auth.TokenVerifier
	RateLimiter *middleware.RateLimiter
	// AccessLog receives one line per request; nil means stdout
	AccessLog io.Writer
}

// New builds the Fiber app with every route registered
func New(d *Deps) *fiber.App {
	cfg := d.Config
	outputDir := cfg.Pipeline.OutputDir

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    10 * 1024 * 1024,
	})

	accessLog := d.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Output: accessLog,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization," + middleware.HeaderAPIKey,
	}))
	app.Use(middleware.Metrics(d.Metrics))

	imageHandler := handler.NewImageHandler(d.Pipeline, d.Validator, outputDir)
	videoHandler := handler.NewVideoAdHandler(d.Pipeline, d.Runs, d.Validator, outputDir)
	runHandler := handler.NewRunHandler(d.Runs, d.Hub)
	downloadHandler := handler.NewDownloadHandler(outputDir)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"services": fiber.Map{
				"freepik": cfg.Freepik.APIKey != "",
				"r2":      cfg.R2.Enabled(),
				"auth":    d.Verifier != nil,
				"worker":  cfg.Worker.Mode,
			},
		})
	})

	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	apiAuth, streamAuth := passThrough, passThrough
	if d.Verifier != nil {
		authMiddleware := middleware.NewAuthMiddleware(d.Verifier)
		apiAuth = authMiddleware.Authenticate()
		streamAuth = authMiddleware.AuthenticateStream()
	}
	api := app.Group("/api", apiAuth)

	imageLimit, videoLimit := passThrough, passThrough
	if d.RateLimiter != nil {
		imageLimit = d.RateLimiter.ImageLimit(cfg.RateLimit.ImagePerHour)
		videoLimit = d.RateLimiter.VideoLimit(cfg.RateLimit.VideoPerHour)
	}
	credential := middleware.Credential(cfg.Freepik.APIKey)

	api.Post("/generate-image", credential, imageLimit, imageHandler.Generate)
	api.Post("/create-video-ad", credential, videoLimit, videoHandler.Create)
	api.Post("/create-video-ad-async", credential, videoLimit, videoHandler.CreateAsync)
	api.Get("/task-status/:taskId", runHandler.Status)
	api.Get("/download/:filename", downloadHandler.Download)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, streamAuth)
	app.Get("/ws/runs/:runId", websocket.New(runHandler.Stream))

	app.Use(func(c *fiber.Ctx) error {
		return response.NotFound(c, "Endpoint not found")
	})

	return app
}

// passThrough stands in for disabled middleware
func passThrough(c *fiber.Ctx) error {
	return c.Next()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
