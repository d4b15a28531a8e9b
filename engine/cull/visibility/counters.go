package visibility

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
)

// Totals is a snapshot of Counters.
type Totals struct {
	Tested    uint64
	Outcomes  [outcomeCount]uint64
	Predicted uint64 // triangles emitted to the predicted section
	Residual  uint64 // triangles emitted to the residual section, degenerate ones excluded
}

// Count returns the number of primitives with the given outcome.
func (t Totals) Count(o Outcome) uint64 {
	if o >= outcomeCount {
		return 0
	}
	return t.Outcomes[o]
}

// Add accumulates another snapshot.
func (t *Totals) Add(o Totals) {
	t.Tested += o.Tested
	for i := range t.Outcomes {
		t.Outcomes[i] += o.Outcomes[i]
	}
	t.Predicted += o.Predicted
	t.Residual += o.Residual
}

// Counters accumulates per-outcome counts across workgroups.
type Counters struct {
	outcomes [outcomeCount]atomic.Uint64
	emitted  [2]atomic.Uint64
}

// AddOutcome adds n primitives with outcome o.
func (c *Counters) AddOutcome(o Outcome, n uint64) {
	if c == nil || n == 0 {
		return
	}
	c.outcomes[o].Add(n)
}

// AddEmitted adds n triangles emitted into a section.
func (c *Counters) AddEmitted(s compaction.Section, n uint64) {
	if c == nil || n == 0 {
		return
	}
	c.emitted[s].Add(n)
}

// Totals returns a snapshot.
func (c *Counters) Totals() Totals {
	var t Totals
	for i := range c.outcomes {
		t.Outcomes[i] = c.outcomes[i].Load()
		t.Tested += t.Outcomes[i]
	}
	t.Predicted = c.emitted[compaction.Predicted].Load()
	t.Residual = c.emitted[compaction.Residual].Load()
	return t
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	for i := range c.outcomes {
		c.outcomes[i].Store(0)
	}
	for i := range c.emitted {
		c.emitted[i].Store(0)
	}
}
