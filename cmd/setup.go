package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"democtl/internal/appsync"
	"democtl/internal/argocd"
	"democtl/internal/certs"
	"democtl/internal/config"
	"democtl/internal/deploy"
	"democtl/internal/kubeclient"
	"democtl/internal/portforward"
	"democtl/internal/prereq"
	"democtl/internal/report"
	"democtl/internal/secrets"
)

const manifestDir = "manifests"

// runSetup executes the full forward pipeline:
// load → check → certificates → secrets → install → deploy → settle →
// port-forwards → summary.
func runSetup() error {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		report.Failure("Configuration invalid: %v", err)
		return err
	}
	report.Success("Configuration loaded (cluster %s)", cfg.ClusterName)

	clients, err := kubeclient.New(cfg.KubeContext)
	if err != nil {
		report.Failure("Could not build a cluster client for context %s: %v", cfg.KubeContext, err)
		return err
	}

	if err := prereq.NewChecker(clients.Clientset).Check(); err != nil {
		report.Failure("Prerequisite check failed: %v", err)
		return err
	}
	report.Success("All prerequisites present")

	tunnels := portforward.NewManager(cfg.PortForwards, "")

	// A termination signal must stop every known tunnel before the process
	// exits; an interrupted run may not leave orphans behind. A normal exit
	// deliberately leaves tunnels running.
	ctx := context.Background()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		report.Warning("Interrupted, stopping port-forward tunnels")
		tunnels.StopAll()
		os.Exit(130)
	}()
	defer signal.Stop(sigChan)

	reconciler := certs.NewReconciler(clients.Clientset, cfg.ClusterName, cfg.CABundlePath)
	if err := reconciler.Reconcile(ctx, flagInitial); err != nil {
		report.Failure("Certificate reconciliation failed: %v", err)
		return err
	}

	report.Step("Provisioning credentials")
	if err := secrets.NewProvisioner(clients.Clientset).Provision(ctx, cfg.WorkloadNamespace, cfg.OpenAIAPIKey); err != nil {
		report.Failure("Credential provisioning failed: %v", err)
		return err
	}

	if flagSkipArgoCD {
		report.Plain("Skipping Argo CD installation (--skip-argocd)")
	} else {
		if err := argocd.NewInstaller(clients.Clientset, cfg.ArgoNamespace).EnsureInstalled(ctx); err != nil {
			report.Failure("Argo CD installation failed: %v", err)
			return err
		}
	}

	report.Step("Applying application descriptors")
	if err := deploy.NewDeployer(manifestDir, cfg.Applications).Apply(ctx); err != nil {
		report.Failure("Application deployment failed: %v", err)
		return err
	}

	settler := appsync.NewSettler(clients.Dynamic, cfg.ArgoNamespace, tunnels)
	if err := settler.Settle(ctx, cfg.Applications); err != nil {
		report.Failure("Application reconciliation failed: %v", err)
		return err
	}

	report.Step("Starting port-forward tunnels")
	tunnels.StartAll(ctx)

	printSummary(cfg, tunnels.Status(ctx))
	return nil
}

func printSummary(cfg *config.Config, statuses []portforward.TunnelStatus) {
	report.Plain("")
	report.Plain("Setup complete. Local endpoints:")
	for _, st := range statuses {
		switch {
		case st.Alive && st.Ready:
			report.Success("%s: localhost:%d (pid %d)", st.Name, st.LocalPort, st.PID)
		case st.Alive:
			report.Warning("%s: localhost:%d (pid %d, not answering yet)", st.Name, st.LocalPort, st.PID)
		default:
			report.Warning("%s: not running", st.Name)
		}
	}
	report.Plain("")
	report.Plain("Tunnels keep running after exit. Remove everything with: democtl --teardown")
}
