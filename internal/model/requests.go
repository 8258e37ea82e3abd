package model

import (
	"encoding/json"
	"strings"
	"time"
)

// GenerateImageRequest is the body of POST /api/generate-image
type GenerateImageRequest struct {
	Prompt          string            `json:"prompt" validate:"required"`
	ReferenceImages []json.RawMessage `json:"reference_images,omitempty"`
}

// Normalize trims the prompt so a blank prompt fails validation
func (r *GenerateImageRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
}

// GenerateImageResponse is returned once the image has been downloaded
type GenerateImageResponse struct {
	Success   bool     `json:"success"`
	ImageURL  string   `json:"image_url"`
	LocalPath string   `json:"local_path"`
	AllURLs   []string `json:"all_urls"`
	PublicURL string   `json:"public_url,omitempty"`
}

// VideoAdRequest is the body of the create-video-ad endpoints.
// Timeout and PollInterval are in seconds and override both stages.
type VideoAdRequest struct {
	BasePrompt   string   `json:"base_prompt" validate:"required"`
	AdPrompt     string   `json:"ad_prompt" validate:"required"`
	Timeout      *float64 `json:"timeout,omitempty" validate:"omitempty,gt=0"`
	PollInterval *float64 `json:"poll_interval,omitempty" validate:"omitempty,gt=0"`
}

func (r *VideoAdRequest) Normalize() {
	r.BasePrompt = strings.TrimSpace(r.BasePrompt)
	r.AdPrompt = strings.TrimSpace(r.AdPrompt)
}

// TimeoutDuration converts the optional timeout to a duration (zero when unset)
func (r *VideoAdRequest) TimeoutDuration() time.Duration {
	return secondsToDuration(r.Timeout)
}

// PollIntervalDuration converts the optional poll interval to a duration (zero when unset)
func (r *VideoAdRequest) PollIntervalDuration() time.Duration {
	return secondsToDuration(r.PollInterval)
}

func secondsToDuration(v *float64) time.Duration {
	if v == nil || *v <= 0 {
		return 0
	}
	return time.Duration(*v * float64(time.Second))
}

// VideoAdResponse is returned by the synchronous create-video-ad endpoint
type VideoAdResponse struct {
	Success        bool   `json:"success"`
	BaseImage      string `json:"base_image"`
	Video          string `json:"video"`
	ImageURL       string `json:"image_url,omitempty"`
	VideoURL       string `json:"video_url,omitempty"`
	ImagePublicURL string `json:"image_public_url,omitempty"`
	VideoPublicURL string `json:"video_public_url,omitempty"`
	Message        string `json:"message"`
}

// VideoAdAsyncResponse is returned by the asynchronous create-video-ad endpoint
type VideoAdAsyncResponse struct {
	Success   bool   `json:"success"`
	TaskID    string `json:"task_id"`
	StatusURL string `json:"status_url"`
}
