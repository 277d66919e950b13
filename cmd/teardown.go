package cmd

import (
	"context"
	"os"

	"democtl/internal/config"
	"democtl/internal/kubeclient"
	"democtl/internal/portforward"
	"democtl/internal/report"
	"democtl/internal/teardown"
)

// runTeardown executes the interactive reverse sequence. No signal handler
// is installed here: the confirmation prompt blocks on stdin and nothing
// destructive happens before it is answered.
func runTeardown() error {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		report.Failure("Configuration invalid: %v", err)
		return err
	}

	clients, err := kubeclient.New(cfg.KubeContext)
	if err != nil {
		report.Failure("Could not build a cluster client for context %s: %v", cfg.KubeContext, err)
		return err
	}

	tunnels := portforward.NewManager(cfg.PortForwards, "")
	orchestrator := teardown.NewOrchestrator(
		clients.Clientset,
		clients.Dynamic,
		tunnels,
		&teardown.StdinConfirmer{In: os.Stdin},
		cfg,
	)
	return orchestrator.Run(context.Background())
}
