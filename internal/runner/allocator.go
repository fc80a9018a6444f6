// Package runner implements the runner process lifecycle: port
// allocation, artifact injection, detached spawning, and graceful
// termination with PID-reuse defenses.
package runner

import (
	"context"
	"fmt"
	"net"

	"github.com/merfantz/runnerd/internal/core"
)

// PortAllocator finds a free TCP port in a bounded range by
// cross-checking the registry's active claims against live OS socket
// state. It never reserves anything: allocation and registry insertion
// are separate steps, and a lost bind race surfaces later as a
// retryable launch error.
type PortAllocator struct {
	store core.ProcessStore
	start int
	end   int

	// probe checks whether the OS currently permits binding the port.
	// Overridable in tests to avoid network binds.
	probe func(port int) bool
}

// NewPortAllocator creates an allocator over the inclusive range
// [start, end].
func NewPortAllocator(store core.ProcessStore, start, end int) *PortAllocator {
	return &PortAllocator{
		store: store,
		start: start,
		end:   end,
		probe: portBindable,
	}
}

// Allocate returns the first port in the range that is neither claimed
// by an active registry record nor bound at the OS level. Exhaustion
// yields a NO_PORT_AVAILABLE error.
func (a *PortAllocator) Allocate(ctx context.Context) (int, error) {
	active, err := a.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	claimed := make(map[int]bool, len(active))
	for _, rec := range active {
		claimed[rec.Port] = true
	}

	for port := a.start; port <= a.end; port++ {
		if claimed[port] {
			continue
		}
		if !a.probe(port) {
			continue
		}
		return port, nil
	}

	return 0, core.ErrNoPortAvailable(a.start, a.end)
}

// portBindable probes a port by opening and immediately releasing a
// listening socket.
func portBindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
