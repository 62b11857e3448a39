package algebra

import (
	"fmt"

	"github.com/wbrown/janus-volcano/volcano/planner"
	"github.com/wbrown/janus-volcano/volcano/sexpr"
)

// ParseTree reads one operator tree, e.g.
//
//	(join (scan emp :rows 1000 :index [1])
//	      (filter (scan dept :rows 10) :cond "loc = 'NY'" :selectivity 0.2)
//	      :on "deptno" :keys [1 0])
func ParseTree(input string) (*planner.Expr, error) {
	node, err := sexpr.Parse(input)
	if err != nil {
		return nil, err
	}
	return Build(*node)
}

// ParseTrees reads every operator tree in input
func ParseTrees(input string) ([]*planner.Expr, error) {
	nodes, err := sexpr.ParseAll(input)
	if err != nil {
		return nil, err
	}
	trees := make([]*planner.Expr, len(nodes))
	for i, n := range nodes {
		if trees[i], err = Build(n); err != nil {
			return nil, err
		}
	}
	return trees, nil
}

// form is a parsed operator: its name, positional arguments and
// keyword options
type form struct {
	node sexpr.Node
	op   string
	args []sexpr.Node
	opts map[string]sexpr.Node
}

func parseForm(n sexpr.Node) (*form, error) {
	if n.Type != sexpr.NodeList || len(n.Nodes) == 0 {
		return nil, fmt.Errorf("expected operator list at %s, got %s", n.Pos(), n)
	}
	op, err := n.Nodes[0].AsSymbol()
	if err != nil {
		return nil, err
	}
	f := &form{node: n, op: op, opts: make(map[string]sexpr.Node)}
	rest := n.Nodes[1:]
	for i := 0; i < len(rest); i++ {
		if rest[i].Type != sexpr.NodeKeyword {
			if len(f.opts) > 0 {
				return nil, fmt.Errorf("%s: positional argument %s at %s follows options", op, rest[i], rest[i].Pos())
			}
			f.args = append(f.args, rest[i])
			continue
		}
		key, _ := rest[i].AsKeyword()
		if i+1 >= len(rest) {
			return nil, fmt.Errorf("%s: option :%s at %s has no value", op, key, rest[i].Pos())
		}
		f.opts[key] = rest[i+1]
		i++
	}
	return f, nil
}

func (f *form) arity(n int) error {
	if len(f.args) != n {
		return fmt.Errorf("%s at %s takes %d arguments, got %d", f.op, f.node.Pos(), n, len(f.args))
	}
	return nil
}

// allow rejects options other than names
func (f *form) allow(names ...string) error {
	for key, v := range f.opts {
		ok := false
		for _, name := range names {
			if key == name {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%s: unknown option :%s at %s", f.op, key, v.Pos())
		}
	}
	return nil
}

func (f *form) float(name string, def float64) (float64, error) {
	n, ok := f.opts[name]
	if !ok {
		return def, nil
	}
	return n.AsFloat()
}

func (f *form) str(name string) (string, error) {
	n, ok := f.opts[name]
	if !ok {
		return "", nil
	}
	if n.Type == sexpr.NodeSymbol {
		return n.Value, nil
	}
	return n.AsString()
}

func (f *form) ints(name string) ([]int, error) {
	n, ok := f.opts[name]
	if !ok {
		return nil, nil
	}
	if n.Type != sexpr.NodeVector {
		return nil, fmt.Errorf("%s: option :%s at %s must be a vector", f.op, name, n.Pos())
	}
	out := make([]int, len(n.Nodes))
	for i, x := range n.Nodes {
		v, err := x.AsInt()
		if err != nil {
			return nil, err
		}
		out[i] = int(v)
	}
	return out, nil
}

func (f *form) input(i int) (*planner.Expr, error) {
	return Build(f.args[i])
}

// Build converts a parsed operator tree into logical expressions
func Build(n sexpr.Node) (*planner.Expr, error) {
	f, err := parseForm(n)
	if err != nil {
		return nil, err
	}
	switch f.op {
	case "scan":
		return buildScan(f)
	case "filter":
		return buildFilter(f)
	case "project":
		return buildProject(f)
	case "join":
		return buildJoin(f)
	case "aggregate":
		return buildAggregate(f)
	default:
		return nil, fmt.Errorf("unknown operator %s at %s", f.op, n.Pos())
	}
}

func buildScan(f *form) (*planner.Expr, error) {
	if err := f.arity(1); err != nil {
		return nil, err
	}
	if err := f.allow("rows", "index"); err != nil {
		return nil, err
	}
	table, err := f.args[0].AsSymbol()
	if err != nil {
		return nil, err
	}
	rows, err := f.float("rows", 100)
	if err != nil {
		return nil, err
	}
	index, err := f.ints("index")
	if err != nil {
		return nil, err
	}
	return Scan(table, rows, Collation(index)), nil
}

func buildFilter(f *form) (*planner.Expr, error) {
	if err := f.arity(1); err != nil {
		return nil, err
	}
	if err := f.allow("cond", "selectivity"); err != nil {
		return nil, err
	}
	input, err := f.input(0)
	if err != nil {
		return nil, err
	}
	cond, err := f.str("cond")
	if err != nil {
		return nil, err
	}
	sel, err := f.float("selectivity", 0)
	if err != nil {
		return nil, err
	}
	return Filter(input, cond, sel), nil
}

func buildProject(f *form) (*planner.Expr, error) {
	if err := f.arity(1); err != nil {
		return nil, err
	}
	if err := f.allow("exprs"); err != nil {
		return nil, err
	}
	input, err := f.input(0)
	if err != nil {
		return nil, err
	}
	exprs, err := f.str("exprs")
	if err != nil {
		return nil, err
	}
	return Project(input, exprs), nil
}

func buildJoin(f *form) (*planner.Expr, error) {
	if err := f.arity(2); err != nil {
		return nil, err
	}
	if err := f.allow("on", "keys"); err != nil {
		return nil, err
	}
	left, err := f.input(0)
	if err != nil {
		return nil, err
	}
	right, err := f.input(1)
	if err != nil {
		return nil, err
	}
	on, err := f.str("on")
	if err != nil {
		return nil, err
	}
	keys, err := f.ints("keys")
	if err != nil {
		return nil, err
	}
	leftKey, rightKey := -1, -1
	switch len(keys) {
	case 0:
	case 2:
		leftKey, rightKey = keys[0], keys[1]
	default:
		return nil, fmt.Errorf("join: :keys at %s needs a left and a right field", f.opts["keys"].Pos())
	}
	return Join(left, right, on, leftKey, rightKey), nil
}

func buildAggregate(f *form) (*planner.Expr, error) {
	if err := f.arity(1); err != nil {
		return nil, err
	}
	if err := f.allow("group"); err != nil {
		return nil, err
	}
	input, err := f.input(0)
	if err != nil {
		return nil, err
	}
	group, err := f.str("group")
	if err != nil {
		return nil, err
	}
	return Aggregate(input, group), nil
}
