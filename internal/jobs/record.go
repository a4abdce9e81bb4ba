// Package jobs tracks transcription job lifecycle: queued through
// processing to completed or failed, with durable status for pollers.
package jobs

import (
	"context"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether a job has finished, either way.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the pollable state of one transcription job. The owning
// coordinator is the only writer; any number of pollers may read it.
type Record struct {
	ID          string
	MediaPath   string
	Language    string
	Status      Status
	Progress    float64
	Message     string
	Result      string
	Transcript  string
	Error       string
	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Clone returns an independent copy so readers never alias store memory.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}

// Store persists job records under a fixed retention window. Records whose
// retention has lapsed are treated as absent.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListActive(ctx context.Context) (map[string]*Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
