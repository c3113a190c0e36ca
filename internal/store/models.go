package store

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

func ValidThreatLevel(s string) bool {
	switch ThreatLevel(s) {
	case ThreatLow, ThreatMedium, ThreatHigh:
		return true
	}
	return false
}

type InferenceStatus string

const (
	InferenceSuccess InferenceStatus = "success"
	InferenceError   InferenceStatus = "error"
)

// Job is one analysis run of an uploaded video. A job may be re-run with a
// new upload timestamp; the row with the highest timestamp supersedes
// earlier attempts.
type Job struct {
	JobID                string    `json:"jobId"`
	UploadTimestamp      string    `json:"uploadTimestamp"`
	VideoFileName        string    `json:"videoFileName"`
	VideoDurationSeconds float64   `json:"videoDurationSeconds"`
	TotalSegments        int       `json:"totalSegments"`
	ProcessedSegments    int       `json:"processedSegments"`
	Status               JobStatus `json:"status"`
	Error                string    `json:"error,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Segment is one captioned slice of a job's video, keyed by
// (jobID, startTime). A failed segment may be overwritten by a later
// successful attempt; a successful segment is never overwritten.
type Segment struct {
	JobID              string          `json:"jobId"`
	StartTime          float64         `json:"startTime"`
	DurationSeconds    float64         `json:"durationSeconds"`
	Caption            string          `json:"caption,omitempty"`
	ThreatLevel        ThreatLevel     `json:"threatLevel,omitempty"`
	ModelID            string          `json:"modelId,omitempty"`
	InferenceTimestamp time.Time       `json:"inferenceTimestamp"`
	InferenceStatus    InferenceStatus `json:"inferenceStatus"`
	Error              string          `json:"error,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}
