package permissions

import (
	"context"
	"sync"
)

// Approval is one outstanding yes/no decision on a gated command.
type Approval struct {
	Tool    string
	Command string

	once     sync.Once
	done     chan struct{}
	approved bool
}

func newApproval(tool, command string) *Approval {
	return &Approval{Tool: tool, Command: command, done: make(chan struct{})}
}

// resolve settles the approval once; later calls are ignored.
func (a *Approval) resolve(approved bool) bool {
	settled := false
	a.once.Do(func() {
		a.approved = approved
		close(a.done)
		settled = true
	})
	return settled
}

// Done is closed once the approval is settled
func (a *Approval) Done() <-chan struct{} {
	return a.done
}

// Gate holds at most one Approval at a time. A second Request waits for the
// first to settle before creating its own.
type Gate struct {
	slot chan struct{}

	mu      sync.Mutex
	pending *Approval
}

// NewGate creates an empty gate
func NewGate() *Gate {
	return &Gate{slot: make(chan struct{}, 1)}
}

// Request publishes an approval for command, calls notify with it, and
// blocks until it is resolved or ctx ends. A cancelled approval or context
// counts as denied.
func (g *Gate) Request(ctx context.Context, tool, command string, notify func(*Approval)) (bool, error) {
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-g.slot }()

	a := newApproval(tool, command)
	g.mu.Lock()
	g.pending = a
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending == a {
			g.pending = nil
		}
		g.mu.Unlock()
	}()

	if notify != nil {
		notify(a)
	}

	select {
	case <-a.done:
		return a.approved, nil
	case <-ctx.Done():
		a.resolve(false)
		return false, ctx.Err()
	}
}

// Pending returns the outstanding approval, or nil
func (g *Gate) Pending() *Approval {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Resolve answers the outstanding approval. It returns false when nothing
// was pending.
func (g *Gate) Resolve(approved bool) bool {
	g.mu.Lock()
	a := g.pending
	g.pending = nil
	g.mu.Unlock()
	if a == nil {
		return false
	}
	return a.resolve(approved)
}

// Cancel denies any outstanding approval. Safe to call repeatedly.
func (g *Gate) Cancel() {
	g.Resolve(false)
}
