package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
	verbose  bool
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// NewPlainFormatter creates a formatter that never emits color codes.
func NewPlainFormatter(w io.Writer) *OutputFormatter {
	f := NewOutputFormatter(w)
	f.useColor = false
	return f
}

// Verbose makes the formatter print registry growth events, which are
// otherwise suppressed.
func (f *OutputFormatter) Verbose(v bool) *OutputFormatter {
	f.verbose = v
	return f
}

// Handle implements the Handler interface - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string. Events the
// formatter does not display return "".
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case OptimizeBegin:
		return fmt.Sprintf("%s %s Optimizing: %s",
			latency,
			f.colorize("===", color.FgYellow),
			truncateTree(stringData(event, "tree")))

	case OptimizeComplete:
		if errVal, failed := event.Data["error"]; failed {
			return fmt.Sprintf("%s %s Optimization failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				errVal)
		}
		return fmt.Sprintf("%s %s Optimized to cost %v in %s over %s",
			latency,
			f.colorize("===", color.FgGreen),
			event.Data["cost"],
			f.colorizeCount("ticks", intData(event, "ticks")),
			f.colorizeCount("sets", intData(event, "sets")))

	case OptimizeCached:
		return fmt.Sprintf("%s %s Plan cache hit for %s",
			latency,
			f.colorize("===", color.FgCyan),
			stringData(event, "fingerprint"))

	case ExprDiscovered:
		if !f.verbose {
			return ""
		}
		marker := "+"
		if b, _ := event.Data["physical"].(bool); b {
			marker = f.colorize("+", color.FgGreen)
		}
		return fmt.Sprintf("%s %s set#%d %s",
			latency,
			marker,
			intData(event, "set"),
			f.renderExpr(stringData(event, "expr")))

	case SubsetDiscovered:
		if !f.verbose {
			return ""
		}
		return fmt.Sprintf("%s + %s",
			latency,
			f.colorize(stringData(event, "subset"), color.FgBlue))

	case RuleAttempted:
		exprs, _ := event.Data["exprs"].([]string)
		rendered := make([]string, len(exprs))
		for i, e := range exprs {
			rendered[i] = f.renderExpr(e)
		}
		return fmt.Sprintf("%s %s on [%s] → %s",
			latency,
			f.colorize(stringData(event, "rule"), color.FgYellow),
			strings.Join(rendered, ", "),
			f.colorizeCount("exprs", intData(event, "produced")))

	case RuleProduced:
		if !f.verbose {
			return ""
		}
		return fmt.Sprintf("%s   %s %s",
			latency,
			f.colorize("→", color.FgYellow),
			f.renderExpr(stringData(event, "expr")))

	case ExprChosen:
		return fmt.Sprintf("%s chose %s", latency, f.renderExpr(stringData(event, "expr")))

	case PlanChosen:
		return fmt.Sprintf("%s %s Plan extracted", latency, f.colorize("===", color.FgGreen))

	case ErrorOptimize, ErrorParse:
		return fmt.Sprintf("%s %s %v",
			latency,
			f.colorize("✗", color.FgRed),
			event.Data["error"])
	}

	return ""
}

// renderExpr colors the operator name at the front of a digest.
func (f *OutputFormatter) renderExpr(digest string) string {
	if !f.useColor {
		return digest
	}
	end := strings.IndexAny(digest, ".(")
	if end < 0 {
		return color.CyanString(digest)
	}
	return color.CyanString(digest[:end]) + digest[end:]
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	// Use microseconds for sub-millisecond durations
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "exprs":
		if count == 0 {
			return color.RedString(text)
		}
		return color.MagentaString(text)
	case "ticks":
		return color.CyanString(text)
	case "sets":
		return color.BlueString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func stringData(event Event, key string) string {
	s, _ := event.Data[key].(string)
	return s
}

func intData(event Event, key string) int {
	n, _ := event.Data[key].(int)
	return n
}

// truncateTree shortens long operator trees for display.
func truncateTree(tree string) string {
	tree = strings.Join(strings.Fields(tree), " ")

	const maxLen = 80
	if len(tree) <= maxLen {
		return tree
	}

	return tree[:maxLen-3] + "..."
}

// ConsoleHandler creates a handler that prints formatted events to stdout.
func ConsoleHandler(verbose bool) Handler {
	return NewOutputFormatter(os.Stdout).Verbose(verbose).Handle
}

// isTerminal checks if the file descriptor is a terminal.
func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
