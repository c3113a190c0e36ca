// Package ingest drives the per-upload pipeline: download, split, caption
// with bounded concurrency, and settle results in the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/visionaree/visionaree-server/internal/inference"
	"github.com/visionaree/visionaree-server/internal/objectstore"
	"github.com/visionaree/visionaree-server/internal/splitter"
	"github.com/visionaree/visionaree-server/internal/store"
)

type Config struct {
	SegmentSeconds    float64
	MinSegmentSeconds float64
	Workers           int
	CaptionTimeout    time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	WorkDir           string
}

func (c Config) withDefaults() Config {
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = 5
	}
	if c.MinSegmentSeconds <= 0 {
		c.MinSegmentSeconds = 0.5
	}
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.CaptionTimeout <= 0 {
		c.CaptionTimeout = 60 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// Orchestrator is stateless between invocations; every run rehydrates job
// and segment state from the store, which makes event re-delivery safe.
type Orchestrator struct {
	store     store.Store
	objects   objectstore.Store
	ffmpeg    splitter.FFmpeg
	captioner inference.Captioner
	cfg       Config
	logger    *slog.Logger
}

func NewOrchestrator(st store.Store, objects objectstore.Store, ffmpeg splitter.FFmpeg, captioner inference.Captioner, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		objects:   objects,
		ffmpeg:    ffmpeg,
		captioner: captioner,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// HandleUploadEvent processes one object-created event. Events outside the
// videos/{jobId}/original/ layout or without a supported video extension
// are ignored.
func (o *Orchestrator) HandleUploadEvent(ctx context.Context, ev objectstore.UploadEvent) error {
	jobID, filename, ok := objectstore.ParseOriginalKey(ev.Key)
	if !ok {
		o.logger.Debug("ignoring object outside upload layout", "key", ev.Key)
		return nil
	}
	if !splitter.IsSupportedVideo(filename) {
		o.logger.Debug("ignoring unsupported file type", "key", ev.Key)
		return nil
	}

	uploadTimestamp := store.FormatTimestamp(ev.EventTime)
	logger := o.logger.With("job_id", jobID, "upload_timestamp", uploadTimestamp)

	now := time.Now().UTC()
	if err := o.store.CreateJob(ctx, &store.Job{
		JobID:           jobID,
		UploadTimestamp: uploadTimestamp,
		VideoFileName:   filename,
		Status:          store.JobStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	job, err := o.store.GetJob(ctx, jobID, uploadTimestamp)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status == store.JobStatusDone {
		logger.Info("job already done, skipping re-delivered event")
		return nil
	}

	workDir, err := os.MkdirTemp(o.cfg.WorkDir, "ingest-*")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "source"+filepath.Ext(filename))
	if err := o.objects.Download(ctx, ev.Key, srcPath); err != nil {
		return fmt.Errorf("failed to download source video: %w", err)
	}

	duration, err := o.ffmpeg.Probe(ctx, srcPath)
	if err != nil {
		var splitErr *splitter.SplitError
		if errors.As(err, &splitErr) {
			logger.Error("source video unusable", "error", err)
			if markErr := o.store.MarkJobError(ctx, jobID, uploadTimestamp, err.Error()); markErr != nil {
				return markErr
			}
			return err
		}
		return fmt.Errorf("probe failed: %w", err)
	}

	windows := splitter.Plan(duration, o.cfg.SegmentSeconds, o.cfg.MinSegmentSeconds)
	if len(windows) == 0 {
		err := &splitter.SplitError{Path: srcPath, Reason: "no segments produced"}
		logger.Error("source video unusable", "error", err)
		if markErr := o.store.MarkJobError(ctx, jobID, uploadTimestamp, err.Error()); markErr != nil {
			return markErr
		}
		return err
	}

	if err := o.store.StartProcessing(ctx, jobID, uploadTimestamp, duration, len(windows)); err != nil {
		return fmt.Errorf("failed to start processing: %w", err)
	}

	logger.Info("processing upload",
		"file", filename,
		"duration_s", duration,
		"segments", len(windows),
		"workers", o.cfg.Workers,
	)

	poolErr := runPool(ctx, o.cfg.Workers, windows, func(ctx context.Context, w splitter.Window) error {
		return o.processSegment(ctx, jobID, uploadTimestamp, srcPath, workDir, w)
	})
	if poolErr != nil {
		return fmt.Errorf("segment processing aborted: %w", poolErr)
	}

	done, err := o.store.FinishJob(ctx, jobID, uploadTimestamp)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if done {
		logger.Info("job complete", "segments", len(windows))
	}
	return nil
}

// processSegment settles exactly one record per window: a success record
// with the caption, or a failure record after retries are exhausted. Only
// store and cut failures propagate; inference failures are isolated to the
// segment.
func (o *Orchestrator) processSegment(ctx context.Context, jobID, uploadTimestamp, srcPath, workDir string, w splitter.Window) error {
	existing, err := o.store.GetSegment(ctx, jobID, w.Start)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("failed to check segment %v: %w", w.Start, err)
	}
	if existing != nil && existing.InferenceStatus == store.InferenceSuccess {
		return nil
	}

	segPath := filepath.Join(workDir, strconv.FormatFloat(w.Start, 'f', -1, 64)+".mp4")
	if err := o.ffmpeg.CutSegment(ctx, srcPath, w, segPath); err != nil {
		return fmt.Errorf("failed to cut segment %v: %w", w.Start, err)
	}

	if err := o.objects.Upload(ctx, objectstore.SegmentKey(jobID, w.Start), segPath, "video/mp4"); err != nil {
		return fmt.Errorf("failed to upload segment %v: %w", w.Start, err)
	}

	frames, err := o.loadFrames(ctx, segPath, workDir, w)
	if err != nil {
		return err
	}

	result, captionErr := o.captionWithRetry(ctx, frames, w.Start)

	seg := &store.Segment{
		JobID:           jobID,
		StartTime:       w.Start,
		DurationSeconds: w.Duration,
		CreatedAt:       time.Now().UTC(),
	}
	if captionErr != nil {
		o.logger.Warn("segment captioning failed",
			"job_id", jobID, "start", w.Start, "error", captionErr)
		seg.InferenceStatus = store.InferenceError
		seg.Error = captionErr.Error()
		seg.InferenceTimestamp = time.Now().UTC()
	} else {
		seg.InferenceStatus = store.InferenceSuccess
		seg.Caption = result.Caption
		seg.ThreatLevel = result.ThreatLevel
		seg.ModelID = result.ModelID
		seg.InferenceTimestamp = result.Timestamp
	}

	if _, err := o.store.SettleSegment(ctx, jobID, uploadTimestamp, seg); err != nil {
		return fmt.Errorf("failed to settle segment %v: %w", w.Start, err)
	}
	return nil
}

func (o *Orchestrator) loadFrames(ctx context.Context, segPath, workDir string, w splitter.Window) ([][]byte, error) {
	frameDir := filepath.Join(workDir, "frames-"+strconv.FormatFloat(w.Start, 'f', -1, 64))
	paths, err := o.ffmpeg.ExtractFrames(ctx, segPath, frameDir)
	if err != nil {
		return nil, fmt.Errorf("failed to extract frames for segment %v: %w", w.Start, err)
	}

	frames := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %s: %w", p, err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}

// captionWithRetry wraps each caption call in its own timeout and retries
// retryable failures with doubling backoff.
func (o *Orchestrator) captionWithRetry(ctx context.Context, frames [][]byte, start float64) (*inference.Result, error) {
	backoff := o.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CaptionTimeout)
		result, err := o.captioner.Caption(callCtx, frames, start)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		var infErr *inference.InferenceError
		if !errors.As(err, &infErr) || !infErr.IsRetryable() {
			return nil, err
		}
	}
	return nil, lastErr
}
