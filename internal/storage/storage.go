package storage

import (
	"context"
	"time"

	"github.com/michaelbrown/crucible/internal/sandbox"
)

// RunStatus is the terminal state of a recorded execution.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusTimedOut  RunStatus = "timed_out"
)

// Run is the persisted record of one snippet execution.
type Run struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	Status    RunStatus     `json:"status"`
	Text      string        `json:"text,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	ErrorArgs []string      `json:"error_args,omitempty"`
	Duration  time.Duration `json:"duration"`
	ImageSize int64         `json:"image_size,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// HasImage reports whether the run produced an image artifact.
func (r *Run) HasImage() bool { return r.ImageSize > 0 }

// FromResult builds a Run record from an execution outcome. The ID field
// must be set by the caller.
func FromResult(id, source string, res *sandbox.Result) *Run {
	run := &Run{
		ID:       id,
		Source:   source,
		Duration: res.Duration,
	}
	switch {
	case res.Err != nil && res.Err.Kind == sandbox.KindTimeout:
		run.Status = StatusTimedOut
		run.ErrorKind = res.Err.Kind
		run.ErrorArgs = res.Err.Args
	case res.Err != nil:
		run.Status = StatusFailed
		run.ErrorKind = res.Err.Kind
		run.ErrorArgs = res.Err.Args
	default:
		run.Status = StatusCompleted
		run.Text = res.Text
		run.ImageSize = int64(len(res.Image))
	}
	return run
}

// RunListOptions controls filtering and pagination for ListRuns.
type RunListOptions struct {
	Status RunStatus
	Limit  int
	Offset int
}

// Store is the persistence interface for run history.
type Store interface {
	// CreateRun inserts a new run record. The ID field must be set by the caller.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun returns a run by ID or ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs ordered by created_at descending.
	ListRuns(ctx context.Context, opts RunListOptions) ([]Run, error)

	// DeleteRun removes a run record.
	DeleteRun(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}
