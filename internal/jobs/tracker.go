package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker is the single facade over the job store. It centralizes progress
// clamping and monotonicity so callers cannot move a job backwards, and it
// warns instead of failing when a job has already been evicted.
type Tracker struct {
	mu     sync.Mutex
	store  Store
	logger *zap.Logger
}

func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, logger: logger}
}

// Open builds a tracker backed by the durable store, falling back to a
// process-local store when the database cannot be opened. The fallback is
// logged loudly: pollers in other processes will not see these jobs.
func Open(dataDir string, ttl time.Duration, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := OpenSQLite(dataDir, ttl)
	if err != nil {
		logger.Error("durable job store unavailable; falling back to in-memory tracking (job status will not survive restarts)",
			zap.String("dir", dataDir), zap.Error(err))
		return NewTracker(NewMemoryStore(ttl), logger)
	}
	return NewTracker(store, logger)
}

// Create inserts a queued record and returns its ID, generating one when
// the caller passes an empty string.
func (t *Tracker) Create(ctx context.Context, jobID, mediaPath, language string) (string, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:        jobID,
		MediaPath: mediaPath,
		Language:  language,
		Status:    StatusQueued,
		Progress:  0,
		Message:   "queued",
		StartedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return jobID, nil
}

// UpdateProgress moves a processing job forward. Progress is clamped to
// [0,100] and never decreases; unknown jobs are logged and ignored since
// they may simply have expired.
func (t *Tracker) UpdateProgress(ctx context.Context, jobID string, progress float64, message string) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.store.Get(ctx, jobID)
	if err != nil {
		t.logger.Warn("progress update failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if rec == nil {
		t.logger.Warn("progress update for unknown job; it may have expired", zap.String("job_id", jobID))
		return
	}

	if progress < rec.Progress {
		progress = rec.Progress
	}
	rec.Status = StatusProcessing
	rec.Progress = progress
	rec.Message = message
	rec.UpdatedAt = time.Now().UTC()

	if err := t.store.Put(ctx, rec); err != nil {
		t.logger.Warn("progress update failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Complete marks the job finished with its subtitle artifact path and the
// full concatenated transcript text.
func (t *Tracker) Complete(ctx context.Context, jobID, result, transcript, message string) {
	t.finish(ctx, jobID, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Progress = 100
		rec.Result = result
		rec.Transcript = transcript
		rec.Message = message
	})
}

// Fail marks the job failed with a displayable message and the underlying
// error.
func (t *Tracker) Fail(ctx context.Context, jobID string, jobErr error, message string) {
	t.finish(ctx, jobID, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Message = message
		if jobErr != nil {
			rec.Error = jobErr.Error()
		}
	})
}

func (t *Tracker) finish(ctx context.Context, jobID string, apply func(*Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.store.Get(ctx, jobID)
	if err != nil {
		t.logger.Warn("job finalization failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if rec == nil {
		t.logger.Warn("finalizing unknown job; it may have expired", zap.String("job_id", jobID))
		return
	}

	now := time.Now().UTC()
	apply(rec)
	rec.UpdatedAt = now
	rec.CompletedAt = &now

	if err := t.store.Put(ctx, rec); err != nil {
		t.logger.Warn("job finalization failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Get returns the record for jobID, or nil when absent or expired.
func (t *Tracker) Get(ctx context.Context, jobID string) (*Record, error) {
	return t.store.Get(ctx, jobID)
}

// ListActive returns all queued and processing jobs keyed by ID.
func (t *Tracker) ListActive(ctx context.Context) (map[string]*Record, error) {
	return t.store.ListActive(ctx)
}

// Delete removes a record regardless of state.
func (t *Tracker) Delete(ctx context.Context, jobID string) error {
	return t.store.Delete(ctx, jobID)
}

func (t *Tracker) Close() error {
	return t.store.Close()
}
