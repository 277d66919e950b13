// Package execx wraps external CLI invocations (docker, kubectl, argocd).
// Output is captured rather than streamed; callers get both streams back
// and errors carry the stderr text for diagnostics.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// For mocking in tests
var execCommandContext = exec.CommandContext

// Run executes the named command and returns its captured stdout and
// stderr. On failure the error includes the trimmed stderr so callers can
// surface actionable messages without re-reading the streams.
func Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error) {
	cmd := execCommandContext(ctx, name, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	stdoutStr := stdoutBuf.String()
	stderrStr := stderrBuf.String()

	if runErr != nil {
		return stdoutStr, stderrStr, fmt.Errorf("failed to execute '%s %s': %w. Stderr: %s",
			name, strings.Join(args, " "), runErr, strings.TrimSpace(stderrStr))
	}
	return stdoutStr, stderrStr, nil
}

// RunQuiet is Run for callers that only care about success.
func RunQuiet(ctx context.Context, name string, args ...string) error {
	_, _, err := Run(ctx, name, args...)
	return err
}

// Lines splits captured output into trimmed, non-empty lines.
func Lines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
