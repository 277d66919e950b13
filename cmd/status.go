package cmd

import (
	"context"

	"democtl/internal/config"
	"democtl/internal/portforward"
	"democtl/internal/report"
)

// runStatus reports liveness and readiness for every configured tunnel.
// It only touches pid files and local ports, never the cluster.
func runStatus() error {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		report.Failure("Configuration invalid: %v", err)
		return err
	}

	tunnels := portforward.NewManager(cfg.PortForwards, "")
	for _, st := range tunnels.Status(context.Background()) {
		switch {
		case st.Alive && st.Ready:
			report.Success("%s: running and ready on localhost:%d (pid %d)", st.Name, st.LocalPort, st.PID)
		case st.Alive:
			report.Warning("%s: process alive (pid %d) but localhost:%d is not answering", st.Name, st.PID, st.LocalPort)
		case st.PID != 0:
			report.Failure("%s: pid file present (pid %d) but the process is gone", st.Name, st.PID)
		default:
			report.Plain("%s: not running", st.Name)
		}
	}
	return nil
}
