package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a run progress update
type WSProgressMessage struct {
	Type     string    `json:"type"`
	RunID    string    `json:"runId"`
	Percent  int       `json:"percent"`
	Status   RunStatus `json:"status"`
	Progress string    `json:"progress,omitempty"`
}

// WSCompleteMessage represents run completion
type WSCompleteMessage struct {
	Type  string    `json:"type"`
	RunID string    `json:"runId"`
	State *RunState `json:"state"`
}

// WSErrorMessage represents a failed run
type WSErrorMessage struct {
	Type  string  `json:"type"`
	RunID string  `json:"runId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
