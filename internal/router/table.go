package router

import (
	"context"
	"sync"

	"github.com/abdul-hamid-achik/skillpanes/internal/backend"
	"github.com/abdul-hamid-achik/skillpanes/internal/permissions"
)

// panelEntry is one panel's state and its in-flight turn, kept together so
// renumbering moves both at once. Lock order: an entry's mu may be taken
// before the table's, never after.
type panelEntry struct {
	gate *permissions.Gate

	mu        sync.Mutex
	session   backend.Session
	skill     string
	cancelled bool
	turn      *turnHandle
}

// turnHandle is one running turn on a panel
type turnHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newEntry() *panelEntry {
	return &panelEntry{gate: permissions.NewGate()}
}

func (e *panelEntry) bound() backend.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *panelEntry) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// panelTable holds the open panels. Ids are slice indexes, so they are
// always dense and closing one shifts every later panel down by one.
type panelTable struct {
	mu      sync.Mutex
	entries []*panelEntry
}

func (t *panelTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *panelTable) get(panel int) *panelEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if panel < 0 || panel >= len(t.entries) {
		return nil
	}
	return t.entries[panel]
}

// open appends a panel unless max are already open
func (t *panelTable) open(max int) (int, *panelEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) >= max {
		return -1, nil, false
	}
	e := newEntry()
	t.entries = append(t.entries, e)
	return len(t.entries) - 1, e, true
}

// indexOf returns the current id of e, or -1 once it is closed
func (t *panelTable) indexOf(e *panelEntry) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, x := range t.entries {
		if x == e {
			return i
		}
	}
	return -1
}

// remove deletes e and renumbers the panels after it
func (t *panelTable) remove(e *panelEntry) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, x := range t.entries {
		if x == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return i
		}
	}
	return -1
}

// clear removes every panel and returns them
func (t *panelTable) clear() []*panelEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := t.entries
	t.entries = nil
	return all
}

func (t *panelTable) snapshot() []*panelEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*panelEntry(nil), t.entries...)
}
