// Package deploy applies the declarative application descriptors to the
// control plane in a fixed order. Descriptor application is expected to be
// deterministic, so failures propagate instead of being retried.
package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"democtl/internal/execx"
	"democtl/internal/report"
	"democtl/pkg/logging"
)

const subsystem = "Deploy"

// projectIndexPause gives the control plane time to index the project
// before applications referencing it are applied.
const projectIndexPause = 2 * time.Second

// For mocking in tests
var (
	runCommand = execx.Run
	pause      = time.Sleep
)

// Deployer applies the project descriptor followed by each application
// descriptor.
type Deployer struct {
	manifestDir  string
	applications []string
}

// NewDeployer returns a Deployer reading descriptors from manifestDir.
func NewDeployer(manifestDir string, applications []string) *Deployer {
	return &Deployer{manifestDir: manifestDir, applications: applications}
}

// Apply applies the project descriptor, pauses briefly, then applies each
// application descriptor in order.
func (d *Deployer) Apply(ctx context.Context) error {
	projectPath := filepath.Join(d.manifestDir, "project.yaml")
	if _, _, err := runCommand(ctx, "kubectl", "apply", "-f", projectPath); err != nil {
		return fmt.Errorf("failed to apply project descriptor: %w", err)
	}
	logging.Info(subsystem, "Applied project descriptor %s", projectPath)
	pause(projectIndexPause)

	for _, app := range d.applications {
		appPath := filepath.Join(d.manifestDir, app+".yaml")
		if _, _, err := runCommand(ctx, "kubectl", "apply", "-f", appPath); err != nil {
			return fmt.Errorf("failed to apply application descriptor %s: %w", app, err)
		}
		logging.Info(subsystem, "Applied application descriptor %s", appPath)
	}
	report.Success("Applied %d application descriptors", len(d.applications))
	return nil
}
