package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/merfantz/runnerd/internal/core"
)

// startTimeTolerance absorbs clock granularity differences between the
// start time captured at launch and the one reported at termination.
const startTimeTolerance = time.Second

// Terminator stops a workflow's runner: graceful signal, bounded wait,
// forceful kill, registry reconciliation, scratch cleanup. It refuses
// to signal a PID whose OS identity no longer matches the recorded
// runner.
type Terminator struct {
	store     core.ProcessStore
	inspector core.ProcessInspector
	logger    *slog.Logger

	// expectedName is the interpreter name a live runner must carry,
	// matched as a case-insensitive substring.
	expectedName string
	gracePeriod  time.Duration
}

// NewTerminator creates a terminator.
func NewTerminator(store core.ProcessStore, inspector core.ProcessInspector,
	expectedName string, gracePeriod time.Duration, logger *slog.Logger) *Terminator {
	return &Terminator{
		store:        store,
		inspector:    inspector,
		logger:       logger,
		expectedName: expectedName,
		gracePeriod:  gracePeriod,
	}
}

// Terminate stops the active runner for a workflow. It never fails for
// expected conditions; every path returns a discriminated result and
// leaves the registry consistent. Safe to call twice in a row.
func (t *Terminator) Terminate(ctx context.Context, workflowID string) core.TerminationResult {
	rec, err := t.store.ActiveByWorkflow(ctx, workflowID)
	if err != nil {
		return core.TerminationResult{
			Outcome: core.OutcomeError,
			Detail:  fmt.Sprintf("looking up active record: %v", err),
		}
	}
	if rec == nil {
		return core.TerminationResult{Outcome: core.OutcomeNotFound}
	}

	exists, err := t.inspector.Exists(rec.PID)
	if err != nil {
		return t.reconcileOnError(ctx, rec, fmt.Sprintf("checking pid %d: %v", rec.PID, err))
	}
	if !exists {
		t.markInactive(ctx, rec)
		CleanupScratch(t.logger, rec.TempFilePath)
		return core.TerminationResult{
			Outcome: core.OutcomeAlreadyStopped,
			Port:    rec.Port,
			PID:     rec.PID,
			Detail:  fmt.Sprintf("process %d was already terminated", rec.PID),
		}
	}

	info, err := t.inspector.Info(rec.PID)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			// Process disappeared between checks.
			t.markInactive(ctx, rec)
			CleanupScratch(t.logger, rec.TempFilePath)
			return core.TerminationResult{
				Outcome: core.OutcomeAlreadyStopped,
				Port:    rec.Port,
				PID:     rec.PID,
				Detail:  fmt.Sprintf("process %d no longer exists", rec.PID),
			}
		}
		if errors.Is(err, os.ErrPermission) {
			return t.accessDenied(rec)
		}
		return t.reconcileOnError(ctx, rec, fmt.Sprintf("inspecting pid %d: %v", rec.PID, err))
	}

	if reused, reason := t.identityMismatch(rec, info); reused {
		// The kernel recycled the PID for an unrelated process. Do not
		// signal it; just reconcile the registry.
		t.logger.Warn("recorded pid belongs to a different process",
			"workflow_id", workflowID, "pid", rec.PID, "reason", reason)
		t.markInactive(ctx, rec)
		CleanupScratch(t.logger, rec.TempFilePath)
		return core.TerminationResult{
			Outcome:   core.OutcomeAlreadyStopped,
			Port:      rec.Port,
			PID:       rec.PID,
			PIDReused: true,
			Detail:    fmt.Sprintf("pid %d was reused: %s", rec.PID, reason),
		}
	}

	if err := t.inspector.Terminate(rec.PID); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return t.accessDenied(rec)
		}
		if errors.Is(err, process.ErrorProcessNotRunning) {
			t.markInactive(ctx, rec)
			CleanupScratch(t.logger, rec.TempFilePath)
			return core.TerminationResult{
				Outcome: core.OutcomeAlreadyStopped,
				Port:    rec.Port,
				PID:     rec.PID,
				Detail:  fmt.Sprintf("process %d exited before it could be signaled", rec.PID),
			}
		}
		return t.reconcileOnError(ctx, rec, fmt.Sprintf("terminating pid %d: %v", rec.PID, err))
	}

	if !t.inspector.WaitExit(ctx, rec.PID, t.gracePeriod) {
		// Still alive after the grace period; escalate. No further
		// confirmation wait is required.
		t.logger.Warn("runner ignored graceful signal, killing",
			"workflow_id", workflowID, "pid", rec.PID, "grace_period", t.gracePeriod)
		if err := t.inspector.Kill(rec.PID); err != nil && errors.Is(err, os.ErrPermission) {
			return t.accessDenied(rec)
		}
	}

	t.markInactive(ctx, rec)
	CleanupScratch(t.logger, rec.TempFilePath)
	t.logger.Info("runner stopped",
		"workflow_id", workflowID, "pid", rec.PID, "port", rec.Port)

	return core.TerminationResult{
		Outcome: core.OutcomeStopped,
		Port:    rec.Port,
		PID:     rec.PID,
	}
}

// identityMismatch reports whether the live process at the recorded
// PID is not the runner that was launched. Names alone are not unique,
// so the launch-time start timestamp is compared as well when known.
func (t *Terminator) identityMismatch(rec *core.ProcessRecord, info *core.ProcessInfo) (bool, string) {
	if !strings.Contains(strings.ToLower(info.Name), strings.ToLower(t.expectedName)) {
		return true, fmt.Sprintf("process name %q does not match expected interpreter %q",
			info.Name, t.expectedName)
	}
	if !rec.ProcessStartedAt.IsZero() && !info.StartedAt.IsZero() {
		delta := info.StartedAt.Sub(rec.ProcessStartedAt)
		if delta < -startTimeTolerance || delta > startTimeTolerance {
			return true, fmt.Sprintf("process start time %s does not match recorded %s",
				info.StartedAt.Format(time.RFC3339), rec.ProcessStartedAt.Format(time.RFC3339))
		}
	}
	return false, ""
}

// accessDenied leaves the record active: the process may still be
// running, and marking it inactive on a signal we could not send would
// lie about the state.
func (t *Terminator) accessDenied(rec *core.ProcessRecord) core.TerminationResult {
	return core.TerminationResult{
		Outcome: core.OutcomeAccessDenied,
		Port:    rec.Port,
		PID:     rec.PID,
		Detail:  fmt.Sprintf("access denied signaling process %d", rec.PID),
	}
}

// reconcileOnError assumes something external already reaped the
// process: best-effort mark inactive and clean up so the record does
// not permanently block re-activation.
func (t *Terminator) reconcileOnError(ctx context.Context, rec *core.ProcessRecord, detail string) core.TerminationResult {
	t.markInactive(ctx, rec)
	CleanupScratch(t.logger, rec.TempFilePath)
	return core.TerminationResult{
		Outcome: core.OutcomeError,
		Port:    rec.Port,
		PID:     rec.PID,
		Detail:  detail,
	}
}

func (t *Terminator) markInactive(ctx context.Context, rec *core.ProcessRecord) {
	if err := t.store.MarkInactive(ctx, rec.ID); err != nil {
		t.logger.Error("failed to mark record inactive",
			"record_id", rec.ID, "workflow_id", rec.WorkflowID, "error", err)
	}
}
