package store

import (
	"context"
	"database/sql"
	"time"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) CreateJob(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, upload_timestamp, video_file_name, video_duration_seconds,
			total_segments, processed_segments, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, upload_timestamp) DO NOTHING
	`, j.JobID, j.UploadTimestamp, j.VideoFileName, j.VideoDurationSeconds,
		j.TotalSegments, j.ProcessedSegments, string(j.Status), nullString(j.Error),
		j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

const jobColumns = `job_id, upload_timestamp, video_file_name, video_duration_seconds,
	total_segments, processed_segments, status, error, created_at, updated_at`

func (s *SQLiteStore) GetJob(ctx context.Context, jobID, uploadTimestamp string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE job_id = ? AND upload_timestamp = ?
	`, jobID, uploadTimestamp)
	return scanJob(row)
}

func (s *SQLiteStore) LatestJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE job_id = ?
		ORDER BY upload_timestamp DESC LIMIT 1
	`, jobID)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY upload_timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) StartProcessing(ctx context.Context, jobID, uploadTimestamp string, durationSeconds float64, totalSegments int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'processing', video_duration_seconds = ?, total_segments = ?,
			updated_at = datetime('now')
		WHERE job_id = ? AND upload_timestamp = ? AND status IN ('pending', 'processing')
	`, durationSeconds, totalSegments, jobID, uploadTimestamp)
	return err
}

func (s *SQLiteStore) MarkJobError(ctx context.Context, jobID, uploadTimestamp, errorMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'error', error = ?, updated_at = datetime('now')
		WHERE job_id = ? AND upload_timestamp = ?
	`, nullString(errorMsg), jobID, uploadTimestamp)
	return err
}

func (s *SQLiteStore) FinishJob(ctx context.Context, jobID, uploadTimestamp string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'done', updated_at = datetime('now')
		WHERE job_id = ? AND upload_timestamp = ?
			AND status = 'processing'
			AND total_segments > 0
			AND processed_segments >= total_segments
	`, jobID, uploadTimestamp)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) SettleSegment(ctx context.Context, jobID, uploadTimestamp string, seg *Segment) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM segments WHERE job_id = ? AND start_time = ?
	`, jobID, seg.StartTime).Scan(&exists)
	counted := err == sql.ErrNoRows
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}

	// A successful record is immutable; only a prior failure may be
	// overwritten by a later attempt.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO segments (job_id, start_time, duration_seconds, caption, threat_level,
			model_id, inference_timestamp, inference_status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, start_time) DO UPDATE SET
			duration_seconds = excluded.duration_seconds,
			caption = excluded.caption,
			threat_level = excluded.threat_level,
			model_id = excluded.model_id,
			inference_timestamp = excluded.inference_timestamp,
			inference_status = excluded.inference_status,
			error = excluded.error
		WHERE segments.inference_status = 'error'
	`, jobID, seg.StartTime, seg.DurationSeconds, nullString(seg.Caption), nullString(string(seg.ThreatLevel)),
		nullString(seg.ModelID), seg.InferenceTimestamp.UTC().Format(time.RFC3339),
		string(seg.InferenceStatus), nullString(seg.Error), seg.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, err
	}

	if counted {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET processed_segments = processed_segments + 1, updated_at = datetime('now')
			WHERE job_id = ? AND upload_timestamp = ? AND processed_segments < total_segments
		`, jobID, uploadTimestamp)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return counted, nil
}

func (s *SQLiteStore) GetSegment(ctx context.Context, jobID string, startTime float64) (*Segment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+segmentColumns+` FROM segments WHERE job_id = ? AND start_time = ?
	`, jobID, startTime)
	return scanSegment(row)
}

func (s *SQLiteStore) ListSegments(ctx context.Context, jobID string) ([]*Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+segmentColumns+` FROM segments WHERE job_id = ? ORDER BY start_time ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		seg, err := scanSegmentRow(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

const segmentColumns = `job_id, start_time, duration_seconds, caption, threat_level,
	model_id, inference_timestamp, inference_status, error, created_at`

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var status string
	var errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.JobID, &j.UploadTimestamp, &j.VideoFileName, &j.VideoDurationSeconds,
		&j.TotalSegments, &j.ProcessedSegments, &status, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	j.Status = JobStatus(status)
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func scanJobRow(rows *sql.Rows) (*Job, error) {
	var j Job
	var status string
	var errMsg sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(&j.JobID, &j.UploadTimestamp, &j.VideoFileName, &j.VideoDurationSeconds,
		&j.TotalSegments, &j.ProcessedSegments, &status, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.Status = JobStatus(status)
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func scanSegment(row *sql.Row) (*Segment, error) {
	var seg Segment
	var caption, threatLevel, modelID, errMsg sql.NullString
	var status string
	var inferredAt, createdAt string

	err := row.Scan(&seg.JobID, &seg.StartTime, &seg.DurationSeconds, &caption, &threatLevel,
		&modelID, &inferredAt, &status, &errMsg, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	fillSegment(&seg, caption, threatLevel, modelID, errMsg, status, inferredAt, createdAt)
	return &seg, nil
}

func scanSegmentRow(rows *sql.Rows) (*Segment, error) {
	var seg Segment
	var caption, threatLevel, modelID, errMsg sql.NullString
	var status string
	var inferredAt, createdAt string

	err := rows.Scan(&seg.JobID, &seg.StartTime, &seg.DurationSeconds, &caption, &threatLevel,
		&modelID, &inferredAt, &status, &errMsg, &createdAt)
	if err != nil {
		return nil, err
	}

	fillSegment(&seg, caption, threatLevel, modelID, errMsg, status, inferredAt, createdAt)
	return &seg, nil
}

func fillSegment(seg *Segment, caption, threatLevel, modelID, errMsg sql.NullString, status, inferredAt, createdAt string) {
	seg.Caption = caption.String
	seg.ThreatLevel = ThreatLevel(threatLevel.String)
	seg.ModelID = modelID.String
	seg.InferenceStatus = InferenceStatus(status)
	seg.Error = errMsg.String
	seg.InferenceTimestamp, _ = time.Parse(time.RFC3339, inferredAt)
	seg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Store = (*SQLiteStore)(nil)

// FormatTimestamp renders an upload timestamp the way job rows store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
