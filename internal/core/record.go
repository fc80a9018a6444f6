// Package core defines the domain types and ports for the runner
// process-manager: the process registry records, the error taxonomy,
// and the interfaces implemented by the storage and OS adapters.
package core

import (
	"fmt"
	"time"
)

// ProcessStatus is the lifecycle state of a launched runner process.
type ProcessStatus string

const (
	// StatusActive means the registry believes the process is running
	// and owns its port.
	StatusActive ProcessStatus = "active"
	// StatusInactive is terminal; a record is never reactivated.
	StatusInactive ProcessStatus = "inactive"
)

// ProcessRecord is one row of the process registry: a launched runner
// bound to a port on behalf of a workflow. Records are append-only
// apart from the single active -> inactive status transition; history
// is kept as an audit trail.
type ProcessRecord struct {
	ID         string
	WorkflowID string
	Port       int
	PID        int
	Status     ProcessStatus

	// TempFilePath points at the rendered runner artifact inside its
	// scratch directory. Empty after cleanup or when unknown.
	TempFilePath string

	// ProcessStartedAt is the OS-reported start time of the spawned
	// process, captured at launch. PIDs get recycled; the start time
	// is compared again before any signal is sent. Zero if the OS
	// lookup failed at launch time.
	ProcessStartedAt time.Time

	CreatedAt time.Time
}

// Validate checks record fields before insertion.
func (r *ProcessRecord) Validate() error {
	if r.ID == "" {
		return ErrValidation(CodeInvalidRecord, "record ID is required")
	}
	if r.WorkflowID == "" {
		return ErrValidation(CodeInvalidRecord, "workflow ID is required")
	}
	if r.Port <= 0 || r.Port > 65535 {
		return ErrValidation(CodeInvalidRecord, fmt.Sprintf("port %d out of range", r.Port))
	}
	if r.PID <= 0 {
		return ErrValidation(CodeInvalidRecord, fmt.Sprintf("invalid pid %d", r.PID))
	}
	if r.Status != StatusActive && r.Status != StatusInactive {
		return ErrValidation(CodeInvalidRecord, fmt.Sprintf("unknown status %q", r.Status))
	}
	return nil
}

// IsActive reports whether the registry still considers this runner live.
func (r *ProcessRecord) IsActive() bool {
	return r.Status == StatusActive
}

// TerminationOutcome discriminates the result of a stop request.
// Termination never fails for expected conditions (dead process,
// recycled PID, missing record); it always reports one of these.
type TerminationOutcome string

const (
	OutcomeStopped        TerminationOutcome = "stopped"
	OutcomeAlreadyStopped TerminationOutcome = "already_stopped"
	OutcomeNotFound       TerminationOutcome = "not_found"
	OutcomeAccessDenied   TerminationOutcome = "access_denied"
	OutcomeError          TerminationOutcome = "error"
)

// TerminationResult is the discriminated result of Terminate.
type TerminationResult struct {
	Outcome   TerminationOutcome
	Port      int
	PID       int
	PIDReused bool
	Detail    string
}

// LaunchResult identifies a freshly spawned runner.
type LaunchResult struct {
	RecordID string
	PID      int
	Port     int
}
