package handler

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/adreel/api/internal/model"
	"github.com/adreel/api/internal/service"
	"github.com/adreel/api/internal/store"
	ws "github.com/adreel/api/internal/websocket"
	"github.com/adreel/api/pkg/response"
)

type RunHandler struct {
	runs *service.RunService
	hub  *ws.Hub
}

func NewRunHandler(runs *service.RunService, hub *ws.Hub) *RunHandler {
	return &RunHandler{runs: runs, hub: hub}
}

// Status handles GET /api/task-status/:taskId
func (h *RunHandler) Status(c *fiber.Ctx) error {
	runID := c.Params("taskId")
	if runID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	state, err := h.runs.Status(c.UserContext(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return response.NotFound(c, "Task not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, state)
}

// Stream handles GET /ws/runs/:runId. The current state is sent first, then
// every update until the client disconnects or the run has finished.
func (h *RunHandler) Stream(c *websocket.Conn) {
	runID := c.Params("runId")
	h.hub.HandleConnection(c, runID, h.snapshot(runID))
}

func (h *RunHandler) snapshot(runID string) ws.SnapshotFunc {
	return func() (interface{}, bool) {
		state, err := h.runs.Status(context.Background(), runID)
		if err != nil {
			return nil, false
		}
		if state.Status.IsTerminal() {
			return model.WSCompleteMessage{Type: model.WSMessageTypeComplete, RunID: runID, State: state}, true
		}
		return model.WSProgressMessage{
			Type:     model.WSMessageTypeProgress,
			RunID:    runID,
			Percent:  state.Percent,
			Status:   state.Status,
			Progress: state.Progress,
		}, false
	}
}
