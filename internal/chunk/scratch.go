package chunk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Scratch is the private per-job directory holding extracted chunk files.
// Ownership is enforced with a lock file so two jobs can never share or
// clobber each other's chunks.
type Scratch struct {
	Dir    string
	lock   *flock.Flock
	logger *zap.Logger
}

// NewScratch creates and exclusively acquires the scratch directory for a job.
func NewScratch(root, jobID string, logger *zap.Logger) (*Scratch, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if root == "" {
		root = filepath.Join(os.TempDir(), "lingoscribe")
	}

	dir := filepath.Join(root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory %s: %w", dir, err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock scratch directory %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("scratch directory %s is owned by another job", dir)
	}

	return &Scratch{Dir: dir, lock: lock, logger: logger}, nil
}

// Release unlocks and removes the scratch directory. It runs on every job
// exit path, success or failure.
func (s *Scratch) Release() {
	if s == nil {
		return
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to unlock scratch directory", zap.String("dir", s.Dir), zap.Error(err))
		}
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		s.logger.Warn("failed to remove scratch directory", zap.String("dir", s.Dir), zap.Error(err))
	}
}
