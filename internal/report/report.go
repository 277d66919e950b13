// Package report renders symbol-prefixed status lines for the operator.
// All user-facing progress output goes through here; diagnostic detail
// goes through pkg/logging instead.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "196"}).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "27", Dark: "39"})
	hintStyle    = lipgloss.NewStyle().Faint(true)
)

// Output is where status lines are written. Tests may swap it out.
var Output io.Writer = os.Stdout

// Step announces the beginning of a pipeline step.
func Step(format string, args ...interface{}) {
	fmt.Fprintln(Output, stepStyle.Render("→ ")+fmt.Sprintf(format, args...))
}

// Success reports a completed step or check.
func Success(format string, args ...interface{}) {
	fmt.Fprintln(Output, successStyle.Render("✓ ")+fmt.Sprintf(format, args...))
}

// Failure reports a fatal condition. The message should name the failed
// precondition, not just the error text.
func Failure(format string, args ...interface{}) {
	fmt.Fprintln(Output, failureStyle.Render("✗ ")+fmt.Sprintf(format, args...))
}

// Warning reports a degraded but non-fatal condition.
func Warning(format string, args ...interface{}) {
	fmt.Fprintln(Output, warnStyle.Render("⚠ ")+fmt.Sprintf(format, args...))
}

// Hint prints a manual-recovery command the operator can run.
func Hint(command string) {
	fmt.Fprintln(Output, hintStyle.Render("  run: "+command))
}

// Plain prints an unstyled line, used for summaries and inventories.
func Plain(format string, args ...interface{}) {
	fmt.Fprintf(Output, format+"\n", args...)
}
