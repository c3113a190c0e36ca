package query_test

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/visionaree/visionaree-server/internal/query"
	"github.com/visionaree/visionaree-server/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedDoneJob(t *testing.T, st store.Store, jobID string, captions map[float64]string) {
	t.Helper()
	ctx := context.Background()
	ts := "2025-06-01T12:00:00Z"
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := st.CreateJob(ctx, &store.Job{
		JobID:           jobID,
		UploadTimestamp: ts,
		VideoFileName:   "clip.mp4",
		Status:          store.JobStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := st.StartProcessing(ctx, jobID, ts, 60, len(captions)); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	for start, caption := range captions {
		seg := &store.Segment{
			JobID:           jobID,
			StartTime:       start,
			DurationSeconds: 5,
			InferenceStatus: store.InferenceSuccess,
			Caption:         caption,
			ThreatLevel:     store.ThreatLow,
			CreatedAt:       now,
		}
		if caption == "" {
			seg.InferenceStatus = store.InferenceError
			seg.Error = "model timed out"
		}
		if _, err := st.SettleSegment(ctx, jobID, ts, seg); err != nil {
			t.Fatalf("SettleSegment(%v): %v", start, err)
		}
	}
	if _, err := st.FinishJob(ctx, jobID, ts); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
}

func TestAskRanksRelevantSegments(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoneJob(t, st, "job1", map[float64]string{
		15: "a person walks across the parking lot carrying a briefcase",
		45: "person walking towards the building entrance",
		30: "an empty hallway",
	})
	engine := query.NewEngine(st, testLogger())

	resp, err := engine.Ask(context.Background(), "job1", "Is there a person walking in the video?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if resp.Status != "success" {
		t.Fatalf("status = %q, want success", resp.Status)
	}
	if resp.SearchResults.TotalSegments != 3 {
		t.Errorf("totalSegments = %d, want 3", resp.SearchResults.TotalSegments)
	}
	if resp.SearchResults.RelevantSegments != 2 {
		t.Fatalf("relevantSegments = %d, want 2", resp.SearchResults.RelevantSegments)
	}

	first := resp.SearchResults.Segments[0]
	second := resp.SearchResults.Segments[1]
	if first.StartTime != 15 || second.StartTime != 45 {
		t.Errorf("order = %v, %v; want 15, 45", first.StartTime, second.StartTime)
	}
	if first.Score <= second.Score {
		t.Errorf("scores not descending: %d <= %d", first.Score, second.Score)
	}

	if resp.Summary.TimeRange == nil {
		t.Fatal("summary has no time range")
	}
	if resp.Summary.TimeRange.Earliest != 15 || resp.Summary.TimeRange.Latest != 45 || resp.Summary.TimeRange.Span != 30 {
		t.Errorf("time range = %+v, want 15/45/30", resp.Summary.TimeRange)
	}
	if resp.Summary.MaxScore != first.Score {
		t.Errorf("maxScore = %d, want %d", resp.Summary.MaxScore, first.Score)
	}
	if len(resp.Summary.TopMatches) != 2 {
		t.Errorf("topMatches = %d, want 2", len(resp.Summary.TopMatches))
	}

	wantAvg := float64(first.Score+second.Score) / 2
	if resp.Summary.AverageScore != wantAvg {
		t.Errorf("averageScore = %v, want %v", resp.Summary.AverageScore, wantAvg)
	}
}

func TestAskTieBreaksByStartTime(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoneJob(t, st, "job1", map[float64]string{
		20: "a person near the gate",
		5:  "a person near the fence",
	})
	engine := query.NewEngine(st, testLogger())

	resp, err := engine.Ask(context.Background(), "job1", "person")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	segments := resp.SearchResults.Segments
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Score != segments[1].Score {
		t.Fatalf("expected a tie, got %d and %d", segments[0].Score, segments[1].Score)
	}
	if segments[0].StartTime != 5 {
		t.Errorf("tie broken wrong: first start = %v, want 5", segments[0].StartTime)
	}
}

func TestAskAverageScoreRounding(t *testing.T) {
	st := store.NewMemoryStore()
	// Scores 2, 2, 1: average 5/3 = 1.6666... rounds to 1.67.
	seedDoneJob(t, st, "job1", map[float64]string{
		0:  "a person by the door",
		5:  "another person in frame",
		10: "someone walks away",
	})
	engine := query.NewEngine(st, testLogger())

	resp, err := engine.Ask(context.Background(), "job1", "person walking")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.SearchResults.RelevantSegments != 3 {
		t.Fatalf("relevantSegments = %d, want 3", resp.SearchResults.RelevantSegments)
	}
	if resp.Summary.AverageScore != 1.67 {
		t.Errorf("averageScore = %v, want 1.67", resp.Summary.AverageScore)
	}
}

func TestAskHighRelevanceCount(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoneJob(t, st, "job1", map[float64]string{
		0: "a person walking a dog",
		5: "a parked dog",
	})
	engine := query.NewEngine(st, testLogger())

	// Phrase match pushes the first segment to 10+; threshold is 8.
	resp, err := engine.Ask(context.Background(), "job1", "person walking")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Summary.HighRelevanceCount != 1 {
		t.Errorf("highRelevanceCount = %d, want 1", resp.Summary.HighRelevanceCount)
	}
}

func TestAskNoResults(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoneJob(t, st, "job1", map[float64]string{
		0: "an empty hallway",
	})
	engine := query.NewEngine(st, testLogger())

	resp, err := engine.Ask(context.Background(), "job1", "swimming pool")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status = %q, want success", resp.Status)
	}
	if resp.SearchResults.RelevantSegments != 0 {
		t.Errorf("relevantSegments = %d, want 0", resp.SearchResults.RelevantSegments)
	}
	if len(resp.Summary.Suggestions) == 0 {
		t.Error("no-results summary missing suggestions")
	}
}

func TestAskSkipsFailedSegments(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoneJob(t, st, "job1", map[float64]string{
		0: "a person at the counter",
		5: "", // failed segment, no caption
	})
	engine := query.NewEngine(st, testLogger())

	resp, err := engine.Ask(context.Background(), "job1", "person")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.SearchResults.TotalSegments != 2 {
		t.Errorf("totalSegments = %d, want 2", resp.SearchResults.TotalSegments)
	}
	if resp.SearchResults.RelevantSegments != 1 {
		t.Errorf("relevantSegments = %d, want 1", resp.SearchResults.RelevantSegments)
	}
}

func TestAskJobNotReady(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	if err := st.CreateJob(ctx, &store.Job{
		JobID:           "job1",
		UploadTimestamp: "2025-06-01T12:00:00Z",
		VideoFileName:   "clip.mp4",
		Status:          store.JobStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := st.StartProcessing(ctx, "job1", "2025-06-01T12:00:00Z", 60, 12); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	engine := query.NewEngine(st, testLogger())

	for _, jobID := range []string{"job1", "missing"} {
		resp, err := engine.Ask(ctx, jobID, "person")
		if err != nil {
			t.Fatalf("Ask(%s): %v", jobID, err)
		}
		if resp.Status != "error" {
			t.Errorf("Ask(%s) status = %q, want error", jobID, resp.Status)
		}
		if resp.Message != "Job not found or analysis not completed" {
			t.Errorf("Ask(%s) message = %q", jobID, resp.Message)
		}
	}
}

func TestAskIsDeterministic(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoneJob(t, st, "job1", map[float64]string{
		0:  "a person walks in",
		10: "a person walks out",
		20: "two people talking",
		30: "a delivery truck arrives",
	})
	engine := query.NewEngine(st, testLogger())

	first, err := engine.Ask(context.Background(), "job1", "person walking")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := engine.Ask(context.Background(), "job1", "person walking")
		if err != nil {
			t.Fatalf("Ask run %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d: response differs", i)
		}
	}
}
