package usage

import (
	"context"
	"fmt"
	"sync"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
)

var usageLog = logger.WithPrefix("usage")

// Totals is a snapshot of the session-wide counters
type Totals struct {
	Model        string // most recent model recorded
	Calls        int
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// Tokens is input plus output
func (t Totals) Tokens() int {
	return t.InputTokens + t.OutputTokens
}

// Tracker keeps session-wide token and dollar totals and appends each
// call to the usage log when one is attached. Totals reset when the last
// panel closes; the log is permanent.
type Tracker struct {
	pricing map[string]config.Price
	store   *Store

	mu     sync.Mutex
	totals Totals
	gen    uint64 // bumped by Reset
}

// NewTracker creates a tracker. store may be nil.
func NewTracker(pricing map[string]config.Price, store *Store) *Tracker {
	return &Tracker{pricing: pricing, store: store}
}

// Cost prices a usage for a model in dollars
func (t *Tracker) Cost(model string, u llm.Usage) float64 {
	p := t.pricing[model]
	return (float64(u.InputTokens)*p.Input + float64(u.OutputTokens)*p.Output) / 1_000_000
}

// Record adds one completed call and returns its cost.
func (t *Tracker) Record(ctx context.Context, model, sessionType string, u llm.Usage) float64 {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()
	return t.record(ctx, gen, model, sessionType, u)
}

// record logs the call and adds it to the totals unless they were reset
// after gen was read.
func (t *Tracker) record(ctx context.Context, gen uint64, model, sessionType string, u llm.Usage) float64 {
	cost := t.Cost(model, u)

	t.mu.Lock()
	if gen == t.gen {
		t.totals.Model = model
		t.totals.Calls++
		t.totals.InputTokens += u.InputTokens
		t.totals.OutputTokens += u.OutputTokens
		t.totals.Cost += cost
	}
	t.mu.Unlock()

	if t.store != nil && u.Total() > 0 {
		err := t.store.Insert(ctx, Entry{
			Model:            model,
			SessionType:      sessionType,
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
		})
		if err != nil {
			usageLog.Warn("%v", err)
		}
	}
	return cost
}

// Epoch records into the current totals only. Calls recorded after the
// next Reset still reach the usage log but leave the new totals alone.
type Epoch struct {
	t   *Tracker
	gen uint64
}

// Epoch starts a recorder bound to the totals as they are now
func (t *Tracker) Epoch() *Epoch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Epoch{t: t, gen: t.gen}
}

// Record adds one completed call and returns its cost
func (e *Epoch) Record(ctx context.Context, model, sessionType string, u llm.Usage) float64 {
	return e.t.record(ctx, e.gen, model, sessionType, u)
}

// Totals returns the current session-wide counters
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// Reset zeroes the session-wide counters
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals = Totals{}
	t.gen++
}

// FormatTokens renders a token count as 950, 1.2K or 3.4M
func FormatTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
