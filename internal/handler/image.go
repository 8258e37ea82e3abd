package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/adreel/api/internal/middleware"
	"github.com/adreel/api/internal/model"
	"github.com/adreel/api/internal/service"
	"github.com/adreel/api/pkg/response"
)

type ImageHandler struct {
	pipeline  *service.PipelineService
	validator *validator.Validate
	outputDir string
}

func NewImageHandler(pipeline *service.PipelineService, v *validator.Validate, outputDir string) *ImageHandler {
	return &ImageHandler{
		pipeline:  pipeline,
		validator: v,
		outputDir: outputDir,
	}
}

// Generate handles POST /api/generate-image
func (h *ImageHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateImageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	req.Normalize()

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "prompt is required", formatValidationErrors(err))
	}

	result, err := h.pipeline.GenerateImage(c.UserContext(), &service.ImageRequest{
		APIKey:          middleware.GetAPIKey(c),
		Prompt:          req.Prompt,
		ReferenceImages: req.ReferenceImages,
		OutputPath:      service.OutputPath(h.outputDir, uuid.New().String(), model.MediaTypeImage),
	})
	if err != nil {
		return response.GenerationError(c, service.ErrorCode(err), err.Error())
	}

	return response.OK(c, model.GenerateImageResponse{
		Success:   true,
		ImageURL:  result.Artifact.RemoteURL,
		LocalPath: result.Artifact.DownloadURL(),
		AllURLs:   result.URLs,
		PublicURL: result.Artifact.PublicURL,
	})
}
