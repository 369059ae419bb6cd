// Package scheduler defines the interface for the job backends
// strand launches analyses through: the batch scheduler for fleet
// jobs and direct processes for local ones.
package scheduler

import "context"

// State enumerates what a backend can report about a job handle.
type State string

const (
	// StateQueued means the job is accepted but not yet running.
	StateQueued State = "queued"
	// StateRunning means the job is executing.
	StateRunning State = "running"
	// StateCompleted means the backend saw the job terminate and
	// can report an exit code.
	StateCompleted State = "completed"
	// StateNotFound means the backend no longer knows the handle.
	// Combined with a missing exit-code marker this is the
	// "job vanished" condition and is treated as failure.
	StateNotFound State = "not_found"
)

// Status is the backend's view of one job handle.
type Status struct {
	State    State
	ExitCode int
}

// Alive reports whether the job may still produce a result.
func (s *Status) Alive() bool {
	return s.State == StateQueued || s.State == StateRunning
}

// SubmitRequest describes a job to launch.
type SubmitRequest struct {
	Name    string
	Command []string
	WorkDir string
	Stdout  string
	Stderr  string
}

// Client is a job backend. Status queries shell out to external
// tools, so callers bound them with a context deadline; one hung
// query must never block a whole reconciler pass.
type Client interface {
	Submit(ctx context.Context, req *SubmitRequest) (handle string, err error)
	Status(ctx context.Context, handle string) (*Status, error)
	Kill(ctx context.Context, handle string) error
}
