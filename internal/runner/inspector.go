package runner

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/merfantz/runnerd/internal/core"
)

// waitPollInterval is how often WaitExit re-checks process liveness.
const waitPollInterval = 100 * time.Millisecond

// gopsutilInspector implements core.ProcessInspector on top of
// gopsutil. Signal errors pass through unchanged so callers can detect
// os.ErrPermission.
type gopsutilInspector struct{}

// NewProcessInspector returns the OS-backed process inspector.
func NewProcessInspector() core.ProcessInspector {
	return gopsutilInspector{}
}

func (gopsutilInspector) Exists(pid int) (bool, error) {
	return process.PidExists(int32(pid))
}

func (gopsutilInspector) Info(pid int) (*core.ProcessInfo, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	name, err := p.Name()
	if err != nil {
		return nil, err
	}
	info := &core.ProcessInfo{PID: pid, Name: name}
	// Start time is best-effort; some platforms deny it for foreign
	// processes even when the name is readable.
	if ms, err := p.CreateTime(); err == nil {
		info.StartedAt = time.UnixMilli(ms)
	}
	return info, nil
}

func (gopsutilInspector) Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Terminate()
}

func (gopsutilInspector) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Kill()
}

func (gopsutilInspector) WaitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		exists, err := process.PidExists(int32(pid))
		if err != nil || !exists {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
