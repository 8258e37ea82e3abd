package model

import "time"

// RunStatus is the lifecycle state of an asynchronous pipeline run
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// IsTerminal reports whether no further updates will follow
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunState is the tracked state of one asynchronous run, keyed by correlation id.
// Writers always replace the whole value.
type RunState struct {
	RunID          string    `json:"task_id"`
	Status         RunStatus `json:"status"`
	Progress       string    `json:"progress,omitempty"`
	Percent        int       `json:"percent"`
	BaseImage      string    `json:"base_image,omitempty"`
	Video          string    `json:"video,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	VideoURL       string    `json:"video_url,omitempty"`
	ImagePublicURL string    `json:"image_public_url,omitempty"`
	VideoPublicURL string    `json:"video_public_url,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RunJob is the payload handed to a worker for one asynchronous run
type RunJob struct {
	RunID        string        `json:"runId"`
	APIKey       string        `json:"-"` // empty means use the configured key
	SealedAPIKey string        `json:"sealedApiKey,omitempty"`
	BasePrompt   string        `json:"basePrompt"`
	AdPrompt     string        `json:"adPrompt"`
	ImageFile    string        `json:"imageFile"`
	VideoFile    string        `json:"videoFile"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	PollInterval time.Duration `json:"pollInterval,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}
