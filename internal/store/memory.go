package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests. It mirrors the
// conditional-update semantics of the SQLite implementation.
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[jobKey]*Job
	segments map[string]map[float64]*Segment
}

type jobKey struct {
	jobID           string
	uploadTimestamp string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[jobKey]*Job),
		segments: make(map[string]map[float64]*Segment),
	}
}

func (m *MemoryStore) CreateJob(ctx context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobKey{j.JobID, j.UploadTimestamp}
	if _, ok := m.jobs[key]; ok {
		return nil
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, jobID, uploadTimestamp string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobKey{jobID, uploadTimestamp}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) LatestJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *Job
	for key, j := range m.jobs {
		if key.jobID != jobID {
			continue
		}
		if latest == nil || j.UploadTimestamp > latest.UploadTimestamp {
			latest = j
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].UploadTimestamp > jobs[k].UploadTimestamp
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *MemoryStore) StartProcessing(ctx context.Context, jobID, uploadTimestamp string, durationSeconds float64, totalSegments int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobKey{jobID, uploadTimestamp}]
	if !ok {
		return nil
	}
	if j.Status != JobStatusPending && j.Status != JobStatusProcessing {
		return nil
	}
	j.Status = JobStatusProcessing
	j.VideoDurationSeconds = durationSeconds
	j.TotalSegments = totalSegments
	return nil
}

func (m *MemoryStore) MarkJobError(ctx context.Context, jobID, uploadTimestamp, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[jobKey{jobID, uploadTimestamp}]; ok {
		j.Status = JobStatusError
		j.Error = errorMsg
	}
	return nil
}

func (m *MemoryStore) FinishJob(ctx context.Context, jobID, uploadTimestamp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobKey{jobID, uploadTimestamp}]
	if !ok {
		return false, nil
	}
	if j.Status != JobStatusProcessing || j.TotalSegments == 0 || j.ProcessedSegments < j.TotalSegments {
		return false, nil
	}
	j.Status = JobStatusDone
	return true, nil
}

func (m *MemoryStore) SettleSegment(ctx context.Context, jobID, uploadTimestamp string, seg *Segment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStart, ok := m.segments[jobID]
	if !ok {
		byStart = make(map[float64]*Segment)
		m.segments[jobID] = byStart
	}

	existing, found := byStart[seg.StartTime]
	if !found || existing.InferenceStatus == InferenceError {
		cp := *seg
		byStart[seg.StartTime] = &cp
	}

	if found {
		return false, nil
	}
	if j, ok := m.jobs[jobKey{jobID, uploadTimestamp}]; ok && j.ProcessedSegments < j.TotalSegments {
		j.ProcessedSegments++
	}
	return true, nil
}

func (m *MemoryStore) GetSegment(ctx context.Context, jobID string, startTime float64) (*Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seg, ok := m.segments[jobID][startTime]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *seg
	return &cp, nil
}

func (m *MemoryStore) ListSegments(ctx context.Context, jobID string) ([]*Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var segments []*Segment
	for _, seg := range m.segments[jobID] {
		cp := *seg
		segments = append(segments, &cp)
	}
	sort.Slice(segments, func(i, k int) bool {
		return segments[i].StartTime < segments[k].StartTime
	})
	return segments, nil
}

var _ Store = (*MemoryStore)(nil)
