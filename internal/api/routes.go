package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/visionaree/visionaree-server/internal/objectstore"
	"github.com/visionaree/visionaree-server/internal/splitter"
	"github.com/visionaree/visionaree-server/internal/store"
)

var jobIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Post("/presigned-url", presignHandler(cfg))
	r.Get("/jobs", listJobsHandler(cfg))
	r.Route("/video/{jobID}", func(r chi.Router) {
		r.Get("/status", statusHandler(cfg))
		r.Post("/ask", askHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func presignHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PresignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "validation error", "invalid request body")
			return
		}

		req.Filename = strings.TrimSpace(req.Filename)
		req.JobID = strings.TrimSpace(req.JobID)

		if req.Filename == "" {
			WriteError(w, http.StatusBadRequest, "validation error", "filename is required")
			return
		}
		if req.JobID == "" {
			WriteError(w, http.StatusBadRequest, "validation error", "jobId is required")
			return
		}
		if !jobIDPattern.MatchString(req.JobID) {
			WriteError(w, http.StatusBadRequest, "validation error", "jobId may only contain letters, digits, hyphens and underscores")
			return
		}
		if !splitter.IsSupportedVideo(req.Filename) {
			WriteError(w, http.StatusBadRequest, "validation error", "unsupported video file type")
			return
		}

		key := objectstore.OriginalKey(req.JobID, req.Filename)
		url, err := cfg.Objects.PresignPut(r.Context(), key, cfg.PresignExpiry)
		if err != nil {
			cfg.Logger.Error("failed to presign upload", "key", key, "error", err)
			WriteErrorDetails(w, http.StatusInternalServerError, "internal error", "failed to create upload URL", err.Error())
			return
		}

		WriteJSON(w, http.StatusOK, PresignResponse{
			PresignedURL: url,
			Key:          key,
			Bucket:       cfg.Objects.Bucket(),
			ExpiresIn:    int(cfg.PresignExpiry.Seconds()),
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "validation error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		jobs, err := cfg.Store.ListJobs(r.Context(), limit)
		if err != nil {
			WriteErrorDetails(w, http.StatusInternalServerError, "internal error", "failed to list jobs", err.Error())
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		job, err := cfg.Store.LatestJob(r.Context(), jobID)
		if err == store.ErrNotFound {
			WriteError(w, http.StatusNotFound, "not found", "job not found")
			return
		}
		if err != nil {
			WriteErrorDetails(w, http.StatusInternalServerError, "internal error", "failed to load job", err.Error())
			return
		}

		WriteJSON(w, http.StatusOK, StatusResponse{Status: string(job.Status)})
	}
}

func askHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "validation error", "invalid request body")
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			WriteError(w, http.StatusBadRequest, "validation error", "query is required")
			return
		}

		resp, err := cfg.Query.Ask(r.Context(), jobID, req.Query)
		if err != nil {
			cfg.Logger.Error("query failed", "job_id", jobID, "error", err)
			WriteErrorDetails(w, http.StatusInternalServerError, "internal error", "query failed", err.Error())
			return
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}
