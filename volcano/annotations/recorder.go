package annotations

import (
	"sync"
	"time"

	"github.com/wbrown/janus-volcano/volcano/planner"
)

// Recorder adapts planner listener callbacks into annotation events.
// Install it with Planner.AddListener.
type Recorder struct {
	collector *Collector
	runID     string

	mu       sync.Mutex
	started  map[int]time.Time // rule call id -> time the call began
	produced map[int]int       // rule call id -> expressions produced
}

var _ planner.Listener = (*Recorder)(nil)

// NewRecorder creates a recorder feeding c. runID tags every event.
func NewRecorder(c *Collector, runID string) *Recorder {
	return &Recorder{
		collector: c,
		runID:     runID,
		started:   make(map[int]time.Time),
		produced:  make(map[int]int),
	}
}

// Collector returns the collector events are sent to
func (r *Recorder) Collector() *Collector { return r.collector }

func (r *Recorder) add(name string, start time.Time, data map[string]interface{}) {
	end := time.Now()
	r.collector.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
		RunID:   r.runID,
	})
}

func (r *Recorder) ExpressionDiscovered(ev planner.DiscoveredEvent) {
	if !r.collector.Enabled() {
		return
	}
	now := time.Now()
	if ev.Expr == nil {
		r.add(SubsetDiscovered, now, map[string]interface{}{
			"subset": ev.Subset.Digest(),
			"set":    int(ev.SetID),
		})
		return
	}
	r.add(ExprDiscovered, now, map[string]interface{}{
		"expr":     ev.Expr.Digest(),
		"expr.id":  int(ev.Expr.ID()),
		"set":      int(ev.SetID),
		"physical": ev.Physical,
	})
}

func (r *Recorder) ExpressionChosen(ev planner.ChosenEvent) {
	if !r.collector.Enabled() {
		return
	}
	now := time.Now()
	if ev.Expr == nil {
		r.add(PlanChosen, now, map[string]interface{}{})
		return
	}
	r.add(ExprChosen, now, map[string]interface{}{
		"expr": ev.Expr.Digest(),
		"kind": ev.Expr.Kind().String(),
	})
}

// RuleAttempted emits one event per call, when the call finishes, with
// the call's latency and the number of expressions it produced.
func (r *Recorder) RuleAttempted(ev planner.RuleAttemptedEvent) {
	if !r.collector.Enabled() {
		return
	}
	r.mu.Lock()
	if ev.Before {
		r.started[ev.CallID] = time.Now()
		r.produced[ev.CallID] = 0
		r.mu.Unlock()
		return
	}
	start, ok := r.started[ev.CallID]
	if !ok {
		start = time.Now()
	}
	produced := r.produced[ev.CallID]
	delete(r.started, ev.CallID)
	delete(r.produced, ev.CallID)
	r.mu.Unlock()

	exprs := make([]string, len(ev.Exprs))
	for i, e := range ev.Exprs {
		exprs[i] = e.Digest()
	}
	r.add(RuleAttempted, start, map[string]interface{}{
		"rule":     ev.Rule,
		"call":     ev.CallID,
		"exprs":    exprs,
		"produced": produced,
	})
}

func (r *Recorder) RuleProductionSucceeded(ev planner.RuleProductionEvent) {
	if !r.collector.Enabled() {
		return
	}
	r.mu.Lock()
	r.produced[ev.CallID]++
	r.mu.Unlock()
	r.add(RuleProduced, time.Now(), map[string]interface{}{
		"rule": ev.Rule,
		"call": ev.CallID,
		"expr": ev.Expr.Digest(),
	})
}
