// Package annotations provides a low-overhead event system for tracing
// optimizer runs: which expressions were discovered, which rules fired
// and what they produced, and which expressions made the final plan.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Optimization lifecycle
	OptimizeBegin    = "optimize/begin"
	OptimizeComplete = "optimize/complete"
	OptimizeCached   = "optimize/cached"

	// Registry growth
	ExprDiscovered   = "expr/discovered"
	SubsetDiscovered = "subset/discovered"

	// Rule firing
	RuleAttempted = "rule/attempted"
	RuleProduced  = "rule/produced"

	// Extraction
	ExprChosen = "expr/chosen"
	PlanChosen = "plan/chosen"

	// Errors
	ErrorOptimize = "error/optimize"
	ErrorParse    = "error/parse"
)

// Event represents a single annotation event during an optimization run.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
	RunID   string                 // Planner run the event belongs to
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during optimization.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector. A nil handler
// disables collection entirely.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 128),
	}
}

// Enabled reports whether events are being recorded
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	return c.handler
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Count returns how many collected events carry the given name
func (c *Collector) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

// Reset clears the collector for reuse.
// Thread-safe for concurrent access.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
	// Don't clear handler or enabled status
}
