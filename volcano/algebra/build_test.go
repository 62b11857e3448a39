package algebra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-volcano/volcano/plan"
	"github.com/wbrown/janus-volcano/volcano/planner"
)

func TestParseTree(t *testing.T) {
	tree, err := ParseTree(`(join (scan emp :rows 1000 :index [1])
	                              (filter (scan dept :rows 10) :cond "loc = 'NY'" :selectivity 0.2)
	                              :on deptno :keys [1 0])`)
	require.NoError(t, err)
	assert.Equal(t, "Join.NONE.[](on=deptno)\n"+
		"  Scan.NONE.[](table=emp,index=[1])\n"+
		"  Filter.NONE.[](cond=loc = 'NY')\n"+
		"    Scan.NONE.[](table=dept)", planner.Explain(tree))

	p := PropsOf(tree)
	assert.Equal(t, 1, p.LeftKey)
	assert.Equal(t, 0, p.RightKey)
	filter := tree.Input(1).(*planner.Expr)
	assert.Equal(t, 0.2, PropsOf(filter).Selectivity)
	emp := tree.Input(0).(*planner.Expr)
	assert.Equal(t, 1000.0, PropsOf(emp).Rows)
	assert.Equal(t, Collation{1}, PropsOf(emp).Index)
	assert.Equal(t, plan.KindScan, emp.Kind())
}

func TestParseTrees(t *testing.T) {
	trees, err := ParseTrees("(scan a) ; first\n(scan b :rows 5)")
	require.NoError(t, err)
	require.Len(t, trees, 2)
	assert.Equal(t, "Scan.NONE.[](table=b)", trees[1].Digest())
	assert.Equal(t, 100.0, PropsOf(trees[0]).Rows, "rows default to 100")
}

func TestParseTreeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"not a list", "emp", "expected operator list at 1:1"},
		{"unknown operator", "(union (scan a) (scan b))", "unknown operator union at 1:1"},
		{"arity", "(join (scan a))", "join at 1:1 takes 2 arguments, got 1"},
		{"unknown option", "(scan a :size 3)", "scan: unknown option :size at 1:15"},
		{"missing value", "(scan a :rows)", "option :rows at 1:9 has no value"},
		{"bad keys", "(join (scan a) (scan b) :keys [1])", "needs a left and a right field"},
		{"index not vector", "(scan a :index 1)", "must be a vector"},
		{"positional after option", "(filter :cond x (scan a))", "follows options"},
		{"bad rows", "(scan a :rows many)", "expected number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTree(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
