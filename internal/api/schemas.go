package api

import (
	"time"

	"github.com/visionaree/visionaree-server/internal/store"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type AskRequest struct {
	Query string `json:"query"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PresignRequest struct {
	Filename    string `json:"filename"`
	JobID       string `json:"jobId"`
	ContentType string `json:"contentType,omitempty"`
}

type PresignResponse struct {
	PresignedURL string `json:"presignedUrl"`
	Key          string `json:"key"`
	Bucket       string `json:"bucket"`
	ExpiresIn    int    `json:"expiresIn"`
}

type JobResponse struct {
	JobID                string  `json:"jobId"`
	UploadTimestamp      string  `json:"uploadTimestamp"`
	VideoFileName        string  `json:"videoFileName"`
	VideoDurationSeconds float64 `json:"videoDurationSeconds"`
	TotalSegments        int     `json:"totalSegments"`
	ProcessedSegments    int     `json:"processedSegments"`
	Status               string  `json:"status"`
	Error                string  `json:"error,omitempty"`
	CreatedAt            string  `json:"createdAt"`
	UpdatedAt            string  `json:"updatedAt"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

func JobToResponse(j *store.Job) JobResponse {
	return JobResponse{
		JobID:                j.JobID,
		UploadTimestamp:      j.UploadTimestamp,
		VideoFileName:        j.VideoFileName,
		VideoDurationSeconds: j.VideoDurationSeconds,
		TotalSegments:        j.TotalSegments,
		ProcessedSegments:    j.ProcessedSegments,
		Status:               string(j.Status),
		Error:                j.Error,
		CreatedAt:            j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            j.UpdatedAt.Format(time.RFC3339),
	}
}
