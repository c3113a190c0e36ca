package store

import "context"

// Store persists job and segment state. Mutation is scoped to a single
// (jobID, uploadTimestamp) partition; SettleSegment and FinishJob carry the
// conditional semantics the ingestion pipeline relies on for idempotency.
type Store interface {
	// CreateJob inserts a pending job row. Re-inserting an existing
	// (jobID, uploadTimestamp) pair is a no-op.
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID, uploadTimestamp string) (*Job, error)
	// LatestJob returns the job row with the highest upload timestamp.
	LatestJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)

	// StartProcessing records the split outcome: duration, segment count,
	// status processing. No-op on a job already terminal.
	StartProcessing(ctx context.Context, jobID, uploadTimestamp string, durationSeconds float64, totalSegments int) error
	// MarkJobError moves the job to its terminal error state.
	MarkJobError(ctx context.Context, jobID, uploadTimestamp, errorMsg string) error
	// FinishJob moves the job from processing to done when all segments
	// have settled. Returns true only for the invocation that performed
	// the transition, so the terminal transition happens exactly once.
	FinishJob(ctx context.Context, jobID, uploadTimestamp string) (bool, error)

	// SettleSegment records a segment result and, if no record existed for
	// (jobID, startTime), increments the job's processed counter. Returns
	// true when the settlement was counted. A successful record is never
	// overwritten; a failed record is overwritten without re-counting.
	SettleSegment(ctx context.Context, jobID, uploadTimestamp string, seg *Segment) (bool, error)
	GetSegment(ctx context.Context, jobID string, startTime float64) (*Segment, error)
	ListSegments(ctx context.Context, jobID string) ([]*Segment, error)
}
