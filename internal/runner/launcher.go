package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/merfantz/runnerd/internal/core"
)

// Launcher spawns rendered runner artifacts as detached OS processes
// and records them in the registry.
type Launcher struct {
	store     core.ProcessStore
	allocator *PortAllocator
	injector  core.Injector
	inspector core.ProcessInspector
	logger    *slog.Logger

	// interpreter executes rendered artifacts, e.g. "python3".
	interpreter string
	// baseDir is the working directory for spawned runners so relative
	// resource paths inside the artifact resolve consistently.
	baseDir string
	// logDir holds per-port runner log files.
	logDir string
}

// LauncherConfig bundles the launcher's settings.
type LauncherConfig struct {
	Interpreter string
	BaseDir     string
	LogDir      string
}

// NewLauncher creates a launcher.
func NewLauncher(store core.ProcessStore, allocator *PortAllocator, injector core.Injector,
	inspector core.ProcessInspector, cfg LauncherConfig, logger *slog.Logger) *Launcher {
	return &Launcher{
		store:       store,
		allocator:   allocator,
		injector:    injector,
		inspector:   inspector,
		logger:      logger,
		interpreter: cfg.Interpreter,
		baseDir:     cfg.BaseDir,
		logDir:      cfg.LogDir,
	}
}

// Launch allocates a port, renders the template bound to it, spawns
// the artifact detached, and registers the resulting process. On any
// failure after the scratch directory exists, the directory is removed
// before the error propagates.
func (l *Launcher) Launch(ctx context.Context, workflowID, templatePath string) (*core.LaunchResult, error) {
	port, err := l.allocator.Allocate(ctx)
	if err != nil {
		return nil, err
	}

	renderedPath, err := l.injector.Inject(templatePath, port)
	if err != nil {
		return nil, err
	}

	pid, startedAt, err := l.spawn(renderedPath, port)
	if err != nil {
		CleanupScratch(l.logger, renderedPath)
		return nil, err
	}

	rec := &core.ProcessRecord{
		ID:               uuid.NewString(),
		WorkflowID:       workflowID,
		Port:             port,
		PID:              pid,
		Status:           core.StatusActive,
		TempFilePath:     renderedPath,
		ProcessStartedAt: startedAt,
		CreatedAt:        time.Now().UTC(),
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		// The process is already running; without a registry row it is
		// untracked. Reap it rather than leak it, and say so loudly.
		l.logger.Error("registry insert failed after spawn, stopping untracked runner",
			"workflow_id", workflowID, "pid", pid, "port", port, "error", err)
		if killErr := l.inspector.Kill(pid); killErr != nil {
			l.logger.Error("failed to stop untracked runner, process is leaked",
				"pid", pid, "port", port, "error", killErr)
		}
		CleanupScratch(l.logger, renderedPath)
		return nil, err
	}

	l.logger.Info("runner started",
		"workflow_id", workflowID, "pid", pid, "port", port, "artifact", renderedPath)

	return &core.LaunchResult{RecordID: rec.ID, PID: pid, Port: port}, nil
}

// spawn starts the artifact as a detached process with output appended
// to the per-port log file.
func (l *Launcher) spawn(renderedPath string, port int) (int, time.Time, error) {
	if err := os.MkdirAll(l.logDir, 0o750); err != nil {
		return 0, time.Time{}, core.ErrLaunch("creating log directory").WithCause(err)
	}

	// Append mode so restarts on the same port accumulate history.
	logPath := filepath.Join(l.logDir, fmt.Sprintf("runner_%d.log", port))
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, time.Time{}, core.ErrLaunch("opening runner log file").WithCause(err)
	}
	defer logFile.Close()

	cmd := exec.Command(l.interpreter, renderedPath)
	cmd.Dir = l.baseDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8")
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		return 0, time.Time{}, core.ErrLaunch(
			fmt.Sprintf("spawning %s %s", l.interpreter, renderedPath)).WithCause(err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits so dead runners don't linger as
	// zombies and confuse later liveness checks.
	go func() { _ = cmd.Wait() }()

	// Capture the OS start time for PID-reuse defense at termination.
	var startedAt time.Time
	if info, err := l.inspector.Info(pid); err == nil {
		startedAt = info.StartedAt
	} else {
		l.logger.Warn("could not read process start time", "pid", pid, "error", err)
	}

	return pid, startedAt, nil
}
