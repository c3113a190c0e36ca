// Package query scores captioned segments against free-text questions and
// assembles ranked responses.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/visionaree/visionaree-server/internal/store"
)

// highRelevanceThreshold is the score at or above which a segment counts
// as a high-relevance match in the summary.
const highRelevanceThreshold = 8

const notReadyMessage = "Job not found or analysis not completed"

type Response struct {
	JobID         string         `json:"jobId"`
	Query         string         `json:"query"`
	Status        string         `json:"status"`
	Message       string         `json:"message,omitempty"`
	JobInfo       *JobInfo       `json:"jobInfo,omitempty"`
	SearchResults *SearchResults `json:"searchResults,omitempty"`
	Summary       *Summary       `json:"summary,omitempty"`
}

type JobInfo struct {
	VideoFileName        string  `json:"videoFileName"`
	VideoDurationSeconds float64 `json:"videoDurationSeconds"`
	UploadTimestamp      string  `json:"uploadTimestamp"`
}

type SearchResults struct {
	TotalSegments    int             `json:"totalSegments"`
	RelevantSegments int             `json:"relevantSegments"`
	Segments         []ScoredSegment `json:"segments"`
}

type ScoredSegment struct {
	StartTime       float64  `json:"startTime"`
	DurationSeconds float64  `json:"durationSeconds"`
	Caption         string   `json:"caption"`
	ThreatLevel     string   `json:"threatLevel,omitempty"`
	Score           int      `json:"score"`
	MatchedTerms    []string `json:"matchedTerms"`
}

type Summary struct {
	Message            string     `json:"message,omitempty"`
	TimeRange          *TimeRange `json:"timeRange,omitempty"`
	MaxScore           int        `json:"maxScore"`
	HighRelevanceCount int        `json:"highRelevanceCount"`
	AverageScore       float64    `json:"averageScore"`
	TopMatches         []TopMatch `json:"topMatches,omitempty"`
	Insights           string     `json:"insights,omitempty"`
	Suggestions        []string   `json:"suggestions,omitempty"`
}

type TimeRange struct {
	Earliest float64 `json:"earliest"`
	Latest   float64 `json:"latest"`
	Span     float64 `json:"span"`
}

type TopMatch struct {
	StartTime float64 `json:"startTime"`
	Score     int     `json:"score"`
	Caption   string  `json:"caption"`
}

type Engine struct {
	store  store.Store
	logger *slog.Logger
}

func NewEngine(st store.Store, logger *slog.Logger) *Engine {
	return &Engine{store: st, logger: logger}
}

// Ask answers a free-text question against a completed job. A missing or
// unfinished job yields an error-shaped response, not an error; only
// infrastructure failures return a non-nil error.
func (e *Engine) Ask(ctx context.Context, jobID, query string) (*Response, error) {
	job, err := e.store.LatestJob(ctx, jobID)
	if err == store.ErrNotFound {
		return notReady(jobID, query), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status != store.JobStatusDone {
		e.logger.Debug("query against unfinished job", "job_id", jobID, "status", job.Status)
		return notReady(jobID, query), nil
	}

	segments, err := e.store.ListSegments(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}

	var scored []ScoredSegment
	for _, seg := range segments {
		if seg.InferenceStatus != store.InferenceSuccess || seg.Caption == "" {
			continue
		}
		score, terms := Score(seg.Caption, query)
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredSegment{
			StartTime:       seg.StartTime,
			DurationSeconds: seg.DurationSeconds,
			Caption:         seg.Caption,
			ThreatLevel:     string(seg.ThreatLevel),
			Score:           score,
			MatchedTerms:    terms,
		})
	}

	sort.Slice(scored, func(i, k int) bool {
		if scored[i].Score != scored[k].Score {
			return scored[i].Score > scored[k].Score
		}
		return scored[i].StartTime < scored[k].StartTime
	})

	return &Response{
		JobID:  jobID,
		Query:  query,
		Status: "success",
		JobInfo: &JobInfo{
			VideoFileName:        job.VideoFileName,
			VideoDurationSeconds: job.VideoDurationSeconds,
			UploadTimestamp:      job.UploadTimestamp,
		},
		SearchResults: &SearchResults{
			TotalSegments:    len(segments),
			RelevantSegments: len(scored),
			Segments:         scored,
		},
		Summary: buildSummary(scored),
	}, nil
}

func notReady(jobID, query string) *Response {
	return &Response{
		JobID:   jobID,
		Query:   query,
		Status:  "error",
		Message: notReadyMessage,
	}
}

func buildSummary(scored []ScoredSegment) *Summary {
	if len(scored) == 0 {
		return &Summary{
			Message: "No segments matched the query.",
			Suggestions: []string{
				"Try different words that might appear in a scene description.",
				"Use broader terms, e.g. \"person\" instead of a specific activity.",
			},
		}
	}

	earliest := scored[0].StartTime
	latest := scored[0].StartTime
	total := 0
	high := 0
	for _, s := range scored {
		if s.StartTime < earliest {
			earliest = s.StartTime
		}
		if s.StartTime > latest {
			latest = s.StartTime
		}
		total += s.Score
		if s.Score >= highRelevanceThreshold {
			high++
		}
	}

	topN := 3
	if len(scored) < topN {
		topN = len(scored)
	}
	top := make([]TopMatch, 0, topN)
	for _, s := range scored[:topN] {
		top = append(top, TopMatch{StartTime: s.StartTime, Score: s.Score, Caption: s.Caption})
	}

	best := scored[0]
	insights := fmt.Sprintf("Found %d relevant segment(s) between %.0fs and %.0fs. Strongest match at %.0fs: %q.",
		len(scored), earliest, latest, best.StartTime, best.Caption)

	return &Summary{
		TimeRange: &TimeRange{
			Earliest: earliest,
			Latest:   latest,
			Span:     latest - earliest,
		},
		MaxScore:           best.Score,
		HighRelevanceCount: high,
		AverageScore:       math.Round(float64(total)/float64(len(scored))*100) / 100,
		TopMatches:         top,
		Insights:           insights,
	}
}
