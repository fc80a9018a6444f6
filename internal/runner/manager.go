package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/merfantz/runnerd/internal/core"
)

// Manager is the facade the control plane calls: start and stop
// runners for workflows, inspect the registry. Concurrent duplicate
// starts for the same workflow are collapsed into one launch, on top
// of the storage-level one-active-per-workflow constraint.
type Manager struct {
	store      core.ProcessStore
	launcher   *Launcher
	terminator *Terminator

	startGroup singleflight.Group
}

// NewManager creates a manager.
func NewManager(store core.ProcessStore, launcher *Launcher, terminator *Terminator) *Manager {
	return &Manager{
		store:      store,
		launcher:   launcher,
		terminator: terminator,
	}
}

// StartRunner launches a runner for the workflow. Starting while a
// runner is already active fails with a RUNNER_ACTIVE conflict.
func (m *Manager) StartRunner(ctx context.Context, workflowID, templatePath string) (*core.LaunchResult, error) {
	if workflowID == "" {
		return nil, core.ErrValidation(core.CodeInvalidRecord, "workflow ID is required")
	}
	if templatePath == "" {
		return nil, core.ErrValidation(core.CodeInvalidRecord, "template path is required")
	}

	v, err, _ := m.startGroup.Do(workflowID, func() (interface{}, error) {
		existing, err := m.store.ActiveByWorkflow(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, core.ErrConflict(core.CodeRunnerActive,
				fmt.Sprintf("workflow %s already has an active runner on port %d",
					workflowID, existing.Port))
		}
		return m.launcher.Launch(ctx, workflowID, templatePath)
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.LaunchResult), nil
}

// StopRunner terminates the workflow's active runner, if any.
func (m *Manager) StopRunner(ctx context.Context, workflowID string) core.TerminationResult {
	return m.terminator.Terminate(ctx, workflowID)
}

// ActiveRunner returns the workflow's active record, or nil.
func (m *Manager) ActiveRunner(ctx context.Context, workflowID string) (*core.ProcessRecord, error) {
	return m.store.ActiveByWorkflow(ctx, workflowID)
}

// List returns all registry records, newest first.
func (m *Manager) List(ctx context.Context) ([]*core.ProcessRecord, error) {
	return m.store.List(ctx)
}
