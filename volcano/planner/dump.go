package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Dump renders every live set with its members, subsets, costs and
// importances. It is attached to CannotPlanError and logged at trace
// level at the end of a search.
func (p *Planner) Dump() string {
	var sb strings.Builder
	if root := p.Root(); root != nil {
		fmt.Fprintf(&sb, "Root: %s\n", root)
	}
	if p.originalPlan != "" {
		sb.WriteString("Original plan:\n")
		sb.WriteString(p.originalPlan)
		sb.WriteString("\n")
	}
	sb.WriteString("\nSets:\n")
	p.live.Ascend(func(s *set) bool {
		p.dumpSet(&sb, s)
		return true
	})
	p.dumpImportances(&sb)
	return sb.String()
}

func (p *Planner) dumpSet(sb *strings.Builder, s *set) {
	fmt.Fprintf(sb, "\nSet#%d, exprs: %d", s.id, len(s.exprs))
	if len(s.varsPropagated) > 0 || len(s.varsUsed) > 0 {
		fmt.Fprintf(sb, ", vars propagated: %v, vars used: %v", sortedVars(s.varsPropagated), sortedVars(s.varsUsed))
	}
	sb.WriteString("\n\n")

	rows := make([][]string, 0, len(s.exprs))
	for _, id := range s.exprs {
		e := p.exprs[id]
		importance := ""
		if imp, ok := p.importances[id]; ok {
			importance = strconv.FormatFloat(imp, 'g', 4, 64)
		}
		row := []string{
			fmt.Sprintf("expr#%d", id),
			e.digest,
			p.Cost(e).String(),
			importance,
		}
		if p.options.TrackProvenance {
			row = append(row, p.Provenance(e).String())
		}
		rows = append(rows, row)
	}
	headers := []string{"expr", "digest", "cost", "importance"}
	if p.options.TrackProvenance {
		headers = append(headers, "provenance")
	}
	renderTable(sb, headers, rows)
	sb.WriteString("\n")

	rows = rows[:0]
	for _, sid := range s.subsets {
		sub := p.subsets[sid]
		best := "null"
		if sub.best != nil {
			best = fmt.Sprintf("expr#%d", sub.best.id)
		}
		rows = append(rows, []string{
			sub.digest,
			best,
			sub.bestCost.String(),
			strconv.FormatFloat(p.queue.getImportance(sub), 'g', 4, 64),
		})
	}
	renderTable(sb, []string{"subset", "best", "best cost", "importance"}, rows)

	if len(s.abstractConverters) > 0 {
		sb.WriteString("\nPending converters:")
		for _, id := range s.abstractConverters {
			fmt.Fprintf(sb, " expr#%d", id)
		}
		sb.WriteString("\n")
	}
}

// dumpImportances lists cached subset importances, most important first
func (p *Planner) dumpImportances(sb *strings.Builder) {
	ids := make([]SubsetID, 0, len(p.queue.importances))
	for sid := range p.queue.importances {
		ids = append(ids, sid)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := p.queue.importances[ids[i]], p.queue.importances[ids[j]]
		if a != b {
			return a > b
		}
		return ids[i] < ids[j]
	})
	sb.WriteString("\nImportances: {")
	for _, sid := range ids {
		fmt.Fprintf(sb, " %s=%s", p.subsets[sid].digest, strconv.FormatFloat(p.queue.importances[sid], 'g', 4, 64))
	}
	sb.WriteString(" }\n")
}

func renderTable(sb *strings.Builder, headers []string, rows [][]string) {
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// Explain renders the tree below n, one node per line, indented by
// depth. Subset inputs are printed by digest and not expanded.
func Explain(n Node) string {
	var sb strings.Builder
	explain(&sb, n, 0)
	return strings.TrimSuffix(sb.String(), "\n")
}

func explain(sb *strings.Builder, n Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	e, ok := n.(*Expr)
	if !ok {
		sb.WriteString(n.Digest())
		sb.WriteString("\n")
		return
	}
	sb.WriteString(e.describe())
	sb.WriteByte('(')
	sb.WriteString(e.attrs)
	sb.WriteString(")\n")
	for _, in := range e.inputs {
		explain(sb, in, depth+1)
	}
}

var subsetRef = regexp.MustCompile(`Subset#(\d+)\.`)

// NormalizePlan renumbers subset references in order of first
// appearance, so that plans from runs with different set numbering
// compare equal.
func NormalizePlan(s string) string {
	seen := make(map[string]int)
	return subsetRef.ReplaceAllStringFunc(s, func(m string) string {
		id := subsetRef.FindStringSubmatch(m)[1]
		n, ok := seen[id]
		if !ok {
			n = len(seen)
			seen[id] = n
		}
		return "Subset#" + strconv.Itoa(n) + "."
	})
}
