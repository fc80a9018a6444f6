package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merfantz/runnerd/internal/core"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]*core.ProcessRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*core.ProcessRecord)}
}

func (s *memStore) Insert(_ context.Context, rec *core.ProcessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*core.ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, core.ErrNotFound("process record", id)
	}
	clone := *rec
	return &clone, nil
}

func (s *memStore) ActiveByWorkflow(_ context.Context, workflowID string) (*core.ProcessRecord, error) {
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

func (s *memStore) ListActive(_ context.Context) ([]*core.ProcessRecord, error) {
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

func (s *memStore) List(_ context.Context) ([]*core.ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.ProcessRecord
	for _, rec := range s.records {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memStore) MarkInactive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return core.ErrNotFound("process record", id)
	}
	rec.Status = core.StatusInactive
	return nil
}

func (s *memStore) Close() error { return nil }

type memInspector struct {
	alive map[int]bool
	infos map[int]*core.ProcessInfo
}

func newMemInspector() *memInspector {
	return &memInspector{alive: make(map[int]bool), infos: make(map[int]*core.ProcessInfo)}
}

func (m *memInspector) add(pid int, name string, startedAt time.Time) {
	m.alive[pid] = true
	m.infos[pid] = &core.ProcessInfo{PID: pid, Name: name, StartedAt: startedAt}
}

func (m *memInspector) Exists(pid int) (bool, error) { return m.alive[pid], nil }

func (m *memInspector) Info(pid int) (*core.ProcessInfo, error) {
	info, ok := m.infos[pid]
	if !ok {
		return nil, fmt.Errorf("process %d not found", pid)
	}
	return info, nil
}

func (m *memInspector) Terminate(pid int) error { return nil }
func (m *memInspector) Kill(pid int) error      { return nil }

func (m *memInspector) WaitExit(_ context.Context, pid int, _ time.Duration) bool {
	return !m.alive[pid]
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeRecord(workflowID string, pid int, startedAt time.Time) *core.ProcessRecord {
	return &core.ProcessRecord{
		ID:               "rec-" + workflowID,
		WorkflowID:       workflowID,
		Port:             9001,
		PID:              pid,
		Status:           core.StatusActive,
		ProcessStartedAt: startedAt,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestSweepReapsDeadRunner(t *testing.T) {
	store := newMemStore()
	insp := newMemInspector()
	ctx := context.Background()

	rec := activeRecord("wf-1", 4242, time.Now().Add(-time.Minute))
	require.NoError(t, store.Insert(ctx, rec))

	r := New(store, insp, "python", "@every 1m", nopLogger())
	reaped, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusInactive, got.Status)
}

func TestSweepLeavesLiveRunner(t *testing.T) {
	store := newMemStore()
	insp := newMemInspector()
	ctx := context.Background()

	startedAt := time.Now().Add(-time.Minute)
	rec := activeRecord("wf-1", 4242, startedAt)
	require.NoError(t, store.Insert(ctx, rec))
	insp.add(4242, "python3", startedAt)

	r := New(store, insp, "python", "@every 1m", nopLogger())
	reaped, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, reaped)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, got.Status)
}

func TestSweepReapsReusedPID(t *testing.T) {
	store := newMemStore()
	insp := newMemInspector()
	ctx := context.Background()

	rec := activeRecord("wf-1", 4242, time.Now().Add(-time.Minute))
	require.NoError(t, store.Insert(ctx, rec))
	// Different program now owns the pid.
	insp.add(4242, "nginx", time.Now())

	r := New(store, insp, "python", "@every 1m", nopLogger())
	reaped, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
}

func TestSweepReapsStartTimeMismatch(t *testing.T) {
	store := newMemStore()
	insp := newMemInspector()
	ctx := context.Background()

	rec := activeRecord("wf-1", 4242, time.Now().Add(-time.Minute))
	require.NoError(t, store.Insert(ctx, rec))
	// Same interpreter name, but a much later start time.
	insp.add(4242, "python3", time.Now())

	r := New(store, insp, "python", "@every 1m", nopLogger())
	reaped, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
}

func TestSweepMixedRecords(t *testing.T) {
	store := newMemStore()
	insp := newMemInspector()
	ctx := context.Background()

	live := activeRecord("wf-live", 100, time.Now().Add(-time.Minute))
	dead := activeRecord("wf-dead", 200, time.Now().Add(-time.Minute))
	require.NoError(t, store.Insert(ctx, live))
	require.NoError(t, store.Insert(ctx, dead))
	insp.add(100, "python3", live.ProcessStartedAt)

	r := New(store, insp, "python", "@every 1m", nopLogger())
	reaped, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	gotLive, err := store.Get(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, gotLive.Status)

	gotDead, err := store.Get(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusInactive, gotDead.Status)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := New(newMemStore(), newMemInspector(), "python", "not-a-schedule", nopLogger())
	err := r.Start()
	require.Error(t, err)
	r.Stop()
}
