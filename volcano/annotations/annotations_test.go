package annotations

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-volcano/volcano/algebra"
	"github.com/wbrown/janus-volcano/volcano/planner"
)

func TestCollectorDisabledWithoutHandler(t *testing.T) {
	c := NewCollector(nil)
	c.Add(Event{Name: RuleAttempted})
	c.AddTiming(PlanChosen, time.Now(), nil)

	assert.False(t, c.Enabled())
	assert.Empty(t, c.Events())
}

func TestCollectorHandlerAndReset(t *testing.T) {
	var seen []string
	c := NewCollector(func(ev Event) { seen = append(seen, ev.Name) })

	c.AddTiming(OptimizeBegin, time.Now().Add(-time.Millisecond), map[string]interface{}{"tree": "(scan a)"})
	c.Add(Event{Name: PlanChosen})

	events := c.Events()
	require.Len(t, events, 2)
	assert.Equal(t, []string{OptimizeBegin, PlanChosen}, seen)
	assert.GreaterOrEqual(t, events[0].Latency, time.Millisecond)
	assert.Equal(t, 1, c.Count(PlanChosen))

	c.Reset()
	assert.Empty(t, c.Events())
	assert.True(t, c.Enabled(), "reset keeps the handler")
}

func TestRecorderTracesOptimization(t *testing.T) {
	c := NewCollector(func(Event) {})
	p, err := algebra.NewPlanner(planner.DefaultOptions())
	require.NoError(t, err)
	rec := NewRecorder(c, p.RunID())
	require.NoError(t, p.AddListener(rec))

	tree, err := algebra.ParseTree(`(filter (scan emp :rows 1000 :index [0]) :cond "sal > 10")`)
	require.NoError(t, err)
	_, err = algebra.Optimize(p, tree)
	require.NoError(t, err)

	assert.Positive(t, c.Count(ExprDiscovered))
	assert.Positive(t, c.Count(SubsetDiscovered))
	assert.Positive(t, c.Count(RuleProduced))
	assert.Positive(t, c.Count(ExprChosen))
	assert.Equal(t, 1, c.Count(PlanChosen))

	rules := make(map[string]bool)
	for _, ev := range c.Events() {
		assert.Equal(t, p.RunID(), ev.RunID)
		if ev.Name == RuleAttempted {
			rules[ev.Data["rule"].(string)] = true
			assert.NotEmpty(t, ev.Data["exprs"])
		}
	}
	assert.True(t, rules["ImplementScan"])
	assert.True(t, rules["ScanToIndexScan"])
	assert.True(t, rules["ImplementFilter"])

	assert.Empty(t, rec.started, "every call that began also finished")
}

func TestRecorderCountsProductions(t *testing.T) {
	c := NewCollector(func(Event) {})
	rec := NewRecorder(c, "run")
	scan := algebra.Scan("emp", 10, nil)

	rec.RuleAttempted(planner.RuleAttemptedEvent{Rule: "R", CallID: 7, Exprs: []*planner.Expr{scan}, Before: true})
	rec.RuleProductionSucceeded(planner.RuleProductionEvent{Rule: "R", CallID: 7, Expr: scan})
	rec.RuleProductionSucceeded(planner.RuleProductionEvent{Rule: "R", CallID: 7, Expr: scan})
	rec.RuleAttempted(planner.RuleAttemptedEvent{Rule: "R", CallID: 7, Exprs: []*planner.Expr{scan}})

	events := c.Events()
	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, RuleAttempted, last.Name)
	assert.Equal(t, 2, last.Data["produced"])
	assert.Equal(t, []string{scan.Digest()}, last.Data["exprs"])
}

func TestFormatterPlain(t *testing.T) {
	f := NewPlainFormatter(&bytes.Buffer{})

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name: "rule",
			event: Event{Name: RuleAttempted, Data: map[string]interface{}{
				"rule": "ImplementScan", "exprs": []string{"Scan.NONE.[](table=emp)"}, "produced": 1,
			}},
			want: "[0µs] ImplementScan on [Scan.NONE.[](table=emp)] → 1 exprs",
		},
		{
			name:  "chosen",
			event: Event{Name: ExprChosen, Data: map[string]interface{}{"expr": "TableScan.PHYSICAL.[](table=emp)"}},
			want:  "[0µs] chose TableScan.PHYSICAL.[](table=emp)",
		},
		{
			name: "complete",
			event: Event{Name: OptimizeComplete, Latency: 1500 * time.Microsecond, Data: map[string]interface{}{
				"cost": "{909}", "ticks": 12, "sets": 4,
			}},
			want: "[1.5ms] === Optimized to cost {909} in 12 ticks over 4 sets",
		},
		{
			name:  "failed",
			event: Event{Name: OptimizeComplete, Data: map[string]interface{}{"error": errors.New("boom")}},
			want:  "[0µs] ✗ Optimization failed: boom",
		},
		{
			name:  "begin",
			event: Event{Name: OptimizeBegin, Data: map[string]interface{}{"tree": "(scan\n   emp)"}},
			want:  "[0µs] === Optimizing: (scan emp)",
		},
		{
			name:  "discovery hidden unless verbose",
			event: Event{Name: ExprDiscovered, Data: map[string]interface{}{"expr": "Scan", "set": 0}},
			want:  "",
		},
		{
			name:  "unknown",
			event: Event{Name: "something/else"},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Format(tt.event))
		})
	}
}

func TestFormatterVerbose(t *testing.T) {
	var buf bytes.Buffer
	f := NewPlainFormatter(&buf).Verbose(true)

	f.Handle(Event{Name: ExprDiscovered, Data: map[string]interface{}{"expr": "Scan.NONE.[](table=a)", "set": 3, "physical": false}})
	f.Handle(Event{Name: RuleProduced, Data: map[string]interface{}{"expr": "TableScan.PHYSICAL.[](table=a)"}})
	f.Handle(Event{Name: "ignored"})

	assert.Equal(t, "[0µs] + set#3 Scan.NONE.[](table=a)\n[0µs]   → TableScan.PHYSICAL.[](table=a)\n", buf.String())
}

func TestFormatterColor(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = saved }()

	f := NewPlainFormatter(&bytes.Buffer{})
	f.useColor = true

	out := f.renderExpr("HashJoin.PHYSICAL.[](Subset#0.PHYSICAL.[],Subset#1.PHYSICAL.[])")
	assert.True(t, strings.HasPrefix(out, "\x1b[36mHashJoin\x1b[0m"), out)
	assert.True(t, strings.HasSuffix(out, ".PHYSICAL.[](Subset#0.PHYSICAL.[],Subset#1.PHYSICAL.[])"))
}

func TestFormatterDetectsNonTerminal(t *testing.T) {
	f := NewOutputFormatter(&bytes.Buffer{})
	assert.False(t, f.useColor)
}

func TestTruncateTree(t *testing.T) {
	short := "(scan a)"
	assert.Equal(t, short, truncateTree(short))

	long := "(join " + strings.Repeat("(scan table) ", 10) + ")"
	got := truncateTree(long)
	assert.Len(t, got, 80)
	assert.True(t, strings.HasSuffix(got, "..."))
}
