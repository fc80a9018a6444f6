// Package reconcile periodically reconciles the process registry
// against live OS process state, so runners that died out-of-band do
// not leave active records blocking their ports forever.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/merfantz/runnerd/internal/core"
	"github.com/merfantz/runnerd/internal/runner"
)

// Reconciler sweeps active records and marks the ones whose process is
// gone, or whose PID now belongs to an unrelated process, as inactive.
// It only ever reconciles; it never spawns.
type Reconciler struct {
	store     core.ProcessStore
	inspector core.ProcessInspector
	logger    *slog.Logger

	expectedName string
	schedule     string
	cron         *cron.Cron
}

// New creates a reconciler with a cron schedule spec (e.g. "@every 1m").
func New(store core.ProcessStore, inspector core.ProcessInspector,
	expectedName, schedule string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:        store,
		inspector:    inspector,
		logger:       logger,
		expectedName: expectedName,
		schedule:     schedule,
	}
}

// Start begins the periodic sweep.
func (r *Reconciler) Start() error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.Sweep(context.Background()); err != nil {
			r.logger.Error("reconcile sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("reconciler started", "schedule", r.schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// Sweep checks every active record once and returns how many were
// reconciled to inactive.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	active, err := r.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, rec := range active {
		if r.reconcileRecord(ctx, rec) {
			reaped++
		}
	}
	if reaped > 0 {
		r.logger.Info("reconcile sweep reaped dead runners", "count", reaped)
	}
	return reaped, nil
}

// reconcileRecord returns true when the record was marked inactive.
func (r *Reconciler) reconcileRecord(ctx context.Context, rec *core.ProcessRecord) bool {
	exists, err := r.inspector.Exists(rec.PID)
	if err != nil {
		r.logger.Warn("liveness check failed", "pid", rec.PID, "error", err)
		return false
	}

	reason := ""
	switch {
	case !exists:
		reason = "process is gone"
	default:
		info, err := r.inspector.Info(rec.PID)
		switch {
		case errors.Is(err, process.ErrorProcessNotRunning):
			reason = "process is gone"
		case err != nil:
			// Identity unknown; leave the record for the next sweep.
			return false
		case !strings.Contains(strings.ToLower(info.Name), strings.ToLower(r.expectedName)):
			reason = "pid reused by " + info.Name
		case !rec.ProcessStartedAt.IsZero() && !info.StartedAt.IsZero() &&
			absDuration(info.StartedAt.Sub(rec.ProcessStartedAt)) > time.Second:
			reason = "pid reused, start time mismatch"
		}
	}
	if reason == "" {
		return false
	}

	if manifest, err := loadManifest(rec.TempFilePath); err == nil {
		r.logger.Info("reconciling dead runner",
			"workflow_id", rec.WorkflowID, "pid", rec.PID, "port", rec.Port,
			"template", manifest.Template, "reason", reason)
	} else {
		r.logger.Info("reconciling dead runner",
			"workflow_id", rec.WorkflowID, "pid", rec.PID, "port", rec.Port,
			"reason", reason)
	}

	if err := r.store.MarkInactive(ctx, rec.ID); err != nil {
		r.logger.Error("failed to mark record inactive",
			"record_id", rec.ID, "error", err)
		return false
	}
	runner.CleanupScratch(r.logger, rec.TempFilePath)
	return true
}

func loadManifest(artifactPath string) (*runner.Manifest, error) {
	if artifactPath == "" {
		return nil, errors.New("no artifact path")
	}
	return runner.LoadManifest(filepath.Dir(artifactPath))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
