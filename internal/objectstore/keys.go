package objectstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VideoPrefix is the key prefix the upload trigger listens on.
const VideoPrefix = "videos/"

// OriginalKey builds the storage key for an uploaded source video:
// videos/{jobId}/original/{filename}.
func OriginalKey(jobID, filename string) string {
	return fmt.Sprintf("videos/%s/original/%s", jobID, filename)
}

// SegmentKey builds the storage key for a cut segment:
// videos/{jobId}/segments/{start}.mp4.
func SegmentKey(jobID string, start float64) string {
	return fmt.Sprintf("videos/%s/segments/%s.mp4", jobID, strconv.FormatFloat(start, 'f', -1, 64))
}

// ParseOriginalKey extracts the job id and filename from an original-video
// key. Returns ok = false for keys outside the videos/{jobId}/original/
// layout.
func ParseOriginalKey(key string) (jobID, filename string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != "videos" || parts[2] != "original" {
		return "", "", false
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// UploadEvent is one object-created notification for an uploaded video.
// EventTime becomes the job's upload timestamp, so re-delivery of the same
// event lands on the same job row.
type UploadEvent struct {
	Key       string
	EventTime time.Time
}
