package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/visionaree/visionaree-server/internal/objectstore"
	"github.com/visionaree/visionaree-server/internal/query"
	"github.com/visionaree/visionaree-server/internal/store"
)

type stubObjects struct {
	presignErr error
}

func (s *stubObjects) Bucket() string { return "test-bucket" }

func (s *stubObjects) Download(ctx context.Context, key, dstPath string) error { return nil }

func (s *stubObjects) Upload(ctx context.Context, key, srcPath, contentType string) error {
	return nil
}

func (s *stubObjects) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return "https://storage.example.com/" + key + "?signed", nil
}

func (s *stubObjects) Listen(ctx context.Context) (<-chan objectstore.UploadEvent, error) {
	ch := make(chan objectstore.UploadEvent)
	close(ch)
	return ch, nil
}

func newTestRouter(t *testing.T, st store.Store, objects objectstore.Store) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(ServerConfig{
		Port:          0,
		Store:         st,
		Objects:       objects,
		Query:         query.NewEngine(st, logger),
		PresignExpiry: time.Hour,
		Logger:        logger,
		StartTime:     time.Now(),
		Version:       "test",
	})
}

func seedJob(t *testing.T, st store.Store, jobID string, status store.JobStatus, captions map[float64]string) {
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
	if status == store.JobStatusPending {
		return
	}
	if err := st.StartProcessing(ctx, jobID, ts, 60, len(captions)); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	for start, caption := range captions {
		if _, err := st.SettleSegment(ctx, jobID, ts, &store.Segment{
			JobID:           jobID,
			StartTime:       start,
			DurationSeconds: 5,
			Caption:         caption,
			ThreatLevel:     store.ThreatLow,
			InferenceStatus: store.InferenceSuccess,
			CreatedAt:       now,
		}); err != nil {
			t.Fatalf("SettleSegment: %v", err)
		}
	}
	if status == store.JobStatusDone {
		if _, err := st.FinishJob(ctx, jobID, ts); err != nil {
			t.Fatalf("FinishJob: %v", err)
		}
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, store.NewMemoryStore(), &stubObjects{})

	rec := doRequest(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestPresignEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       PresignRequest
		wantStatus int
	}{
		{
			name:       "valid request",
			body:       PresignRequest{Filename: "clip.mp4", JobID: "job-123"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing filename",
			body:       PresignRequest{JobID: "job-123"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing job id",
			body:       PresignRequest{Filename: "clip.mp4"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "job id with path separator",
			body:       PresignRequest{Filename: "clip.mp4", JobID: "job/../123"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported extension",
			body:       PresignRequest{Filename: "notes.txt", JobID: "job-123"},
			wantStatus: http.StatusBadRequest,
		},
	}

	router := newTestRouter(t, store.NewMemoryStore(), &stubObjects{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/presigned-url", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp PresignResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Key != "videos/job-123/original/clip.mp4" {
				t.Errorf("key = %q", resp.Key)
			}
			if resp.Bucket != "test-bucket" || resp.ExpiresIn != 3600 {
				t.Errorf("bucket/expiry = %q/%d", resp.Bucket, resp.ExpiresIn)
			}
			if !strings.HasPrefix(resp.PresignedURL, "https://") {
				t.Errorf("presignedUrl = %q", resp.PresignedURL)
			}
		})
	}
}

func TestPresignEndpointStorageFailure(t *testing.T) {
	router := newTestRouter(t, store.NewMemoryStore(), &stubObjects{presignErr: errors.New("storage down")})

	rec := doRequest(t, router, http.MethodPost, "/presigned-url", PresignRequest{Filename: "clip.mp4", JobID: "job-123"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" || resp.Details == "" {
		t.Errorf("error response = %+v, want error and details populated", resp)
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := store.NewMemoryStore()
	seedJob(t, st, "job1", store.JobStatusProcessing, map[float64]string{})
	router := newTestRouter(t, st, &stubObjects{})

	rec := doRequest(t, router, http.MethodGet, "/video/job1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "processing" {
		t.Errorf("job status = %q, want processing", resp.Status)
	}

	rec = doRequest(t, router, http.MethodGet, "/video/missing/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rec.Code)
	}
}

func TestAskEndpoint(t *testing.T) {
	st := store.NewMemoryStore()
	seedJob(t, st, "job1", store.JobStatusDone, map[float64]string{
		15: "a person walks across the parking lot",
		45: "an empty hallway",
	})
	router := newTestRouter(t, st, &stubObjects{})

	rec := doRequest(t, router, http.MethodPost, "/video/job1/ask", AskRequest{Query: "person"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp query.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("query status = %q, want success", resp.Status)
	}
	if resp.SearchResults == nil || resp.SearchResults.RelevantSegments != 1 {
		t.Errorf("searchResults = %+v, want 1 relevant segment", resp.SearchResults)
	}
}

func TestAskEndpointValidation(t *testing.T) {
	st := store.NewMemoryStore()
	router := newTestRouter(t, st, &stubObjects{})

	for _, body := range []AskRequest{{}, {Query: "   "}} {
		rec := doRequest(t, router, http.MethodPost, "/video/job1/ask", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400 for %+v", rec.Code, body)
		}
	}
}

func TestAskEndpointJobNotReady(t *testing.T) {
	st := store.NewMemoryStore()
	seedJob(t, st, "job1", store.JobStatusProcessing, map[float64]string{})
	router := newTestRouter(t, st, &stubObjects{})

	rec := doRequest(t, router, http.MethodPost, "/video/job1/ask", AskRequest{Query: "person"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp query.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "error" || resp.Message != "Job not found or analysis not completed" {
		t.Errorf("response = %q/%q", resp.Status, resp.Message)
	}
}

func TestListJobsEndpoint(t *testing.T) {
	st := store.NewMemoryStore()
	seedJob(t, st, "job1", store.JobStatusPending, nil)
	router := newTestRouter(t, st, &stubObjects{})

	rec := doRequest(t, router, http.MethodGet, "/jobs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp JobsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].JobID != "job1" {
		t.Errorf("jobs = %+v", resp.Jobs)
	}

	rec = doRequest(t, router, http.MethodGet, "/jobs?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}
