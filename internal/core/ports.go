package core

import (
	"context"
	"time"
)

// =============================================================================
// Process Registry Port
// =============================================================================

// ProcessStore is the persistence contract for runner process records.
// Implementations must provide atomic single-row reads and updates and
// must reject a second active record for the same workflow.
type ProcessStore interface {
	// Insert persists a new record. Inserting an active record for a
	// workflow that already has one fails with a conflict error.
	Insert(ctx context.Context, rec *ProcessRecord) error

	// Get returns a record by ID, or a not-found error.
	Get(ctx context.Context, id string) (*ProcessRecord, error)

	// ActiveByWorkflow returns the single active record for a workflow,
	// or nil when the workflow has no active runner.
	ActiveByWorkflow(ctx context.Context, workflowID string) (*ProcessRecord, error)

	// ListActive returns all active records.
	ListActive(ctx context.Context) ([]*ProcessRecord, error)

	// List returns all records, newest first.
	List(ctx context.Context) ([]*ProcessRecord, error)

	// MarkInactive flips a record to inactive. Idempotent.
	MarkInactive(ctx context.Context, id string) error

	// Close releases the underlying store.
	Close() error
}

// =============================================================================
// Code Injector Port
// =============================================================================

// Injector materializes an executable runner artifact from a template
// source file, bound to the given port. The rendered file lives in a
// fresh scratch directory owned by exactly one process record until
// cleanup removes it.
type Injector interface {
	Inject(templatePath string, port int) (renderedPath string, err error)
}

// =============================================================================
// OS Process Port
// =============================================================================

// ProcessInfo is the OS-reported identity of a running process.
type ProcessInfo struct {
	PID       int
	Name      string
	StartedAt time.Time
}

// ProcessInspector abstracts the OS process facilities used for
// supervision: liveness, identity, and graceful/forceful signaling.
// Signal errors surface os.ErrPermission when the caller may not
// signal the target.
type ProcessInspector interface {
	// Exists reports whether a process with the given PID exists.
	Exists(pid int) (bool, error)

	// Info returns the process name and start time. Returns a
	// not-found error if the process is gone.
	Info(pid int) (*ProcessInfo, error)

	// Terminate sends the graceful termination signal.
	Terminate(pid int) error

	// Kill sends the forceful kill signal.
	Kill(pid int) error

	// WaitExit blocks until the process exits or the timeout elapses,
	// reporting whether it exited.
	WaitExit(ctx context.Context, pid int, timeout time.Duration) bool
}
