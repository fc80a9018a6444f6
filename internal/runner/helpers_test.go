package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/merfantz/runnerd/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory core.ProcessStore for tests.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*core.ProcessRecord
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*core.ProcessRecord)}
}

func (s *fakeStore) Insert(_ context.Context, rec *core.ProcessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	for _, existing := range s.records {
		if existing.WorkflowID == rec.WorkflowID && existing.Status == core.StatusActive &&
			rec.Status == core.StatusActive {
			return core.ErrConflict(core.CodeRunnerActive,
				fmt.Sprintf("workflow %s already has an active runner", rec.WorkflowID))
		}
	}
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*core.ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, core.ErrNotFound("process record", id)
	}
	clone := *rec
	return &clone, nil
}

func (s *fakeStore) ActiveByWorkflow(_ context.Context, workflowID string) (*core.ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.WorkflowID == workflowID && rec.Status == core.StatusActive {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListActive(_ context.Context) ([]*core.ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.ProcessRecord
	for _, rec := range s.records {
		if rec.Status == core.StatusActive {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *fakeStore) List(_ context.Context) ([]*core.ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.ProcessRecord
	for _, rec := range s.records {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (s *fakeStore) MarkInactive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return core.ErrNotFound("process record", id)
	}
	rec.Status = core.StatusInactive
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeInspector is a scriptable core.ProcessInspector.
type fakeInspector struct {
	mu sync.Mutex

	alive map[int]bool
	infos map[int]*core.ProcessInfo

	infoErr      error
	terminateErr error
	killErr      error

	// exitsOnTerminate makes the process die when gracefully signaled.
	exitsOnTerminate bool

	terminated []int
	killed     []int
}

func newFakeInspector() *fakeInspector {
	return &fakeInspector{
		alive: make(map[int]bool),
		infos: make(map[int]*core.ProcessInfo),
	}
}

func (f *fakeInspector) addProcess(pid int, name string, startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = true
	f.infos[pid] = &core.ProcessInfo{PID: pid, Name: name, StartedAt: startedAt}
}

func (f *fakeInspector) Exists(pid int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid], nil
}

func (f *fakeInspector) Info(pid int) (*core.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	info, ok := f.infos[pid]
	if !ok {
		return nil, fmt.Errorf("process %d not found", pid)
	}
	return info, nil
}

func (f *fakeInspector) Terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	if f.terminateErr != nil {
		return f.terminateErr
	}
	if f.exitsOnTerminate {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeInspector) Kill(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	if f.killErr != nil {
		return f.killErr
	}
	f.alive[pid] = false
	return nil
}

func (f *fakeInspector) WaitExit(_ context.Context, pid int, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.alive[pid]
}

func (f *fakeInspector) terminatedPIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.terminated...)
}

func (f *fakeInspector) killedPIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.killed...)
}
