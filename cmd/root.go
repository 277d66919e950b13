package cmd

import (
	"os"

	"democtl/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	flagSkipArgoCD bool
	flagInitial    bool
	flagTeardown   bool
	flagStatus     bool
	flagDebug      bool
	flagEnvFile    string
)

// rootCmd is the single, flag-driven entry point.
var rootCmd = &cobra.Command{
	Use:   "democtl",
	Short: "Bring up and tear down the kagent GitOps demo environment",
	Long: `democtl provisions a GitOps demo environment on a local k3d cluster:
it distributes a custom CA bundle to the cluster nodes, provisions
credentials, installs Argo CD, deploys the kagent applications, waits for
them to reconcile, and exposes them through background port-forward
tunnels.

Running with no flags executes the full setup sequence. Tunnels started by
setup keep running after democtl exits so they stay usable; interrupt the
run with Ctrl+C to stop them instead.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. failed preconditions)
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := logging.LevelInfo
		if flagDebug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)

		switch {
		case flagStatus:
			return runStatus()
		case flagTeardown:
			return runTeardown()
		default:
			return runSetup()
		}
	},
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "democtl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&flagSkipArgoCD, "skip-argocd", false, "Omit the Argo CD installation step")
	rootCmd.Flags().BoolVar(&flagInitial, "initial", false, "Allow certificate reconciliation to force a container runtime reload")
	rootCmd.Flags().BoolVar(&flagTeardown, "teardown", false, "Run interactive teardown, then exit")
	rootCmd.Flags().BoolVar(&flagStatus, "status", false, "Report port-forward liveness/readiness, then exit")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable verbose logging")
	rootCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Path to the env file (default ./.env)")
}
