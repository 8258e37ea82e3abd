package handler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/adreel/api/pkg/response"
)

type DownloadHandler struct {
	outputDir string
}

func NewDownloadHandler(outputDir string) *DownloadHandler {
	return &DownloadHandler{outputDir: outputDir}
}

// Download handles GET /api/download/:filename. Only plain file names inside
// the output directory are served.
func (h *DownloadHandler) Download(c *fiber.Ctx) error {
	name := c.Params("filename")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return response.ValidationError(c, "Invalid filename", nil)
	}

	path := filepath.Join(h.outputDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return response.NotFound(c, "File not found")
	}

	return c.SendFile(path)
}
