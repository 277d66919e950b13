// Package prereq verifies the external tools and cluster connectivity the
// orchestrator depends on. It runs before any mutating step and has no
// side effects.
package prereq

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"democtl/pkg/logging"

	"k8s.io/client-go/kubernetes"
)

const subsystem = "Prereq"

// For mocking in tests
var execLookPath = exec.LookPath

// ErrClusterUnreachable indicates the cluster control plane did not answer.
var ErrClusterUnreachable = errors.New("cluster control plane unreachable")

// MissingToolError names the first required executable not found on PATH.
type MissingToolError struct {
	Tool string
	Hint string
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("required tool %q not found on PATH (%s)", e.Tool, e.Hint)
}

// requiredTools lists every executable the pipeline shells out to, with an
// install hint surfaced in the failure message.
var requiredTools = []struct {
	name string
	hint string
}{
	{"kubectl", "install from https://kubernetes.io/docs/tasks/tools/"},
	{"argocd", "install from https://argo-cd.readthedocs.io/en/stable/cli_installation/"},
	{"helm", "install from https://helm.sh/docs/intro/install/"},
	{"k3d", "install from https://k3d.io"},
	{"docker", "install Docker Desktop or the docker engine"},
}

// Checker validates prerequisites against a cluster client.
type Checker struct {
	clientset kubernetes.Interface
}

// NewChecker returns a Checker probing the given cluster.
func NewChecker(clientset kubernetes.Interface) *Checker {
	return &Checker{clientset: clientset}
}

// Check verifies every required executable first, then cluster
// reachability. All tool lookups run to completion before the API probe so
// the operator sees the complete picture of what is missing.
func (c *Checker) Check() error {
	var missing []*MissingToolError
	for _, tool := range requiredTools {
		if _, err := execLookPath(tool.name); err != nil {
			missing = append(missing, &MissingToolError{Tool: tool.name, Hint: tool.hint})
			continue
		}
		logging.Debug(subsystem, "Found %s", tool.name)
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing[1:] {
			names = append(names, m.Tool)
		}
		if len(names) > 0 {
			logging.Warn(subsystem, "Also missing: %s", strings.Join(names, ", "))
		}
		return missing[0]
	}

	version, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClusterUnreachable, err)
	}
	logging.Info(subsystem, "Cluster reachable, server version %s", version.GitVersion)
	return nil
}
