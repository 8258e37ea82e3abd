package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/adreel/api/internal/client"
	"github.com/adreel/api/internal/middleware"
	"github.com/adreel/api/internal/model"
	"github.com/adreel/api/internal/service"
	"github.com/adreel/api/pkg/response"
)

type VideoAdHandler struct {
	pipeline  *service.PipelineService
	runs      *service.RunService
	validator *validator.Validate
	outputDir string
}

func NewVideoAdHandler(pipeline *service.PipelineService, runs *service.RunService, v *validator.Validate, outputDir string) *VideoAdHandler {
	return &VideoAdHandler{
		pipeline:  pipeline,
		runs:      runs,
		validator: v,
		outputDir: outputDir,
	}
}

func (h *VideoAdHandler) parse(c *fiber.Ctx) (*model.VideoAdRequest, error) {
	var req model.VideoAdRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, response.ValidationError(c, "Invalid request body", nil)
	}
	req.Normalize()
	if err := h.validator.Struct(&req); err != nil {
		return nil, response.ValidationError(c, "base_prompt and ad_prompt are required", formatValidationErrors(err))
	}
	return &req, nil
}

// Create handles POST /api/create-video-ad. The request blocks until both
// artifacts are on disk.
func (h *VideoAdHandler) Create(c *fiber.Ctx) error {
	req, err := h.parse(c)
	if req == nil {
		return err
	}

	id := uuid.New().String()
	poll := client.PollConfig{Timeout: req.TimeoutDuration(), Interval: req.PollIntervalDuration()}

	result, err := h.pipeline.Run(c.UserContext(), &service.RunRequest{
		APIKey:     middleware.GetAPIKey(c),
		BasePrompt: req.BasePrompt,
		AdPrompt:   req.AdPrompt,
		ImagePath:  service.OutputPath(h.outputDir, id, model.MediaTypeImage),
		VideoPath:  service.OutputPath(h.outputDir, id, model.MediaTypeVideo),
		ImagePoll:  poll,
		VideoPoll:  poll,
	})
	if err != nil {
		return response.GenerationError(c, service.ErrorCode(err), err.Error())
	}

	return response.OK(c, model.VideoAdResponse{
		Success:        true,
		BaseImage:      result.Image.DownloadURL(),
		Video:          result.Video.DownloadURL(),
		ImageURL:       result.Image.RemoteURL,
		VideoURL:       result.Video.RemoteURL,
		ImagePublicURL: result.Image.PublicURL,
		VideoPublicURL: result.Video.PublicURL,
		Message:        "Video ad created successfully",
	})
}

// CreateAsync handles POST /api/create-video-ad-async
func (h *VideoAdHandler) CreateAsync(c *fiber.Ctx) error {
	req, err := h.parse(c)
	if req == nil {
		return err
	}

	// Only a caller-supplied key travels with the job; the worker has the configured one.
	apiKey := ""
	if middleware.APIKeyFromRequest(c) {
		apiKey = middleware.GetAPIKey(c)
	}

	state, err := h.runs.StartAsync(c.UserContext(), &service.AsyncRunRequest{
		APIKey:       apiKey,
		BasePrompt:   req.BasePrompt,
		AdPrompt:     req.AdPrompt,
		Timeout:      req.TimeoutDuration(),
		PollInterval: req.PollIntervalDuration(),
	})
	if err != nil {
		if errors.Is(err, service.ErrDispatcherFull) {
			return response.Unavailable(c, "All workers are busy, retry later")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.VideoAdAsyncResponse{
		Success:   true,
		TaskID:    state.RunID,
		StatusURL: "/api/task-status/" + state.RunID,
	})
}
