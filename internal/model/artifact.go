package model

import "path/filepath"

// DownloadPrefix is the route that serves files from the output directory
const DownloadPrefix = "/api/download/"

// MediaType identifies the kind of a downloaded artifact
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// ContentType returns the MIME type used when mirroring the artifact
func (m MediaType) ContentType() string {
	switch m {
	case MediaTypeVideo:
		return "video/mp4"
	default:
		return "image/png"
	}
}

// Extension returns the file extension used for generated filenames
func (m MediaType) Extension() string {
	switch m {
	case MediaTypeVideo:
		return ".mp4"
	default:
		return ".png"
	}
}

// Artifact is a downloaded generation result. It is not mutated once returned.
type Artifact struct {
	RemoteURL string    `json:"remoteUrl"`
	LocalPath string    `json:"localPath"`
	MediaType MediaType `json:"mediaType"`
	Size      int64     `json:"size"`
	PublicURL string    `json:"publicUrl,omitempty"`
}

// DownloadURL returns the link under which the download endpoint serves the artifact
func (a *Artifact) DownloadURL() string {
	return DownloadURL(a.LocalPath)
}

// DownloadURL maps a file in the output directory to its download link
func DownloadURL(localPath string) string {
	return DownloadPrefix + filepath.Base(localPath)
}
