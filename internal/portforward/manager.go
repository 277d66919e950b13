// Package portforward starts, health-checks, persists, and tears down the
// background tunnels exposing cluster services on fixed local ports.
//
// Tunnels are OS-level kubectl processes detached from the orchestrator so
// they outlive a normal exit by design; only the interrupt path tears them
// down automatically. Liveness (the process exists) and readiness (the
// tunneled service answers) are distinct signals and are probed separately.
package portforward

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"democtl/internal/config"
	"democtl/internal/report"
	"democtl/pkg/logging"

	"github.com/shirou/gopsutil/v3/process"
)

const subsystem = "PortForward"

const startGracePeriod = 2 * time.Second

// For mocking in tests
var (
	startTunnelProcess = launchKubectlForward
	pidExists          = func(pid int) bool {
		alive, err := process.PidExists(int32(pid))
		return err == nil && alive
	}
	signalProcess = func(pid int, sig syscall.Signal) error {
		return syscall.Kill(pid, sig)
	}
	graceSleep = time.Sleep
)

// TunnelStatus is one row of the --status report.
type TunnelStatus struct {
	Name      string
	LocalPort int
	PID       int
	Alive     bool
	Ready     bool
}

// Manager owns the set of configured tunnels for this invocation.
type Manager struct {
	defs     []config.PortForwardDefinition
	stateDir string
}

// NewManager returns a Manager persisting process handles under stateDir
// ("/tmp" when empty).
func NewManager(defs []config.PortForwardDefinition, stateDir string) *Manager {
	if stateDir == "" {
		stateDir = os.TempDir()
	}
	return &Manager{defs: defs, stateDir: stateDir}
}

// launchKubectlForward starts the detached tunnel process and returns its
// pid. The process gets its own session so it survives orchestrator exit.
func launchKubectlForward(def config.PortForwardDefinition) (int, error) {
	args := []string{
		"port-forward", def.Service,
		fmt.Sprintf("%d:%d", def.LocalPort, def.RemotePort),
		"-n", def.Namespace,
	}
	cmd := exec.Command("kubectl", args...)
	if def.LogPath != "" {
		logFile, err := os.OpenFile(def.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, fmt.Errorf("could not open tunnel log %s: %w", def.LogPath, err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Reap the child if it exits while we are still alive.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// Start brings up one tunnel: any stale forwarder on the same local port
// is killed first (best-effort), the new process is persisted, and after a
// short grace period the process must still be alive.
func (m *Manager) Start(def config.PortForwardDefinition) error {
	if err := m.Stop(def.Name); err != nil {
		logging.Debug(subsystem, "Pre-start cleanup for %s: %v", def.Name, err)
	}

	pid, err := startTunnelProcess(def)
	if err != nil {
		return fmt.Errorf("failed to start tunnel %s: %w", def.Name, err)
	}

	pidPath := pidFilePath(m.stateDir, def.Name)
	if err := writePIDFile(pidPath, pid); err != nil {
		return fmt.Errorf("failed to persist pid for tunnel %s: %w", def.Name, err)
	}
	logging.Info(subsystem, "Started tunnel %s (pid %d, localhost:%d)", def.Name, pid, def.LocalPort)

	graceSleep(startGracePeriod)

	if !pidExists(pid) {
		removePIDFile(pidPath)
		return fmt.Errorf("tunnel %s (pid %d) exited immediately", def.Name, pid)
	}
	return nil
}

// StartAll starts every configured tunnel. A tunnel that fails to come up
// degrades to a warning with manual-recovery instructions; the remaining
// tunnels are still attempted.
func (m *Manager) StartAll(ctx context.Context) {
	for _, def := range m.defs {
		if err := m.Start(def); err != nil {
			report.Warning("Tunnel %s failed to start: %v", def.Name, err)
			report.Hint(manualCommand(def))
			continue
		}
		if m.Verify(ctx, def) {
			report.Success("Tunnel %s ready on localhost:%d", def.Name, def.LocalPort)
		} else {
			report.Warning("Tunnel %s is running but the service is not answering yet", def.Name)
			report.Hint(fmt.Sprintf("curl -k %s://localhost:%d%s", def.Scheme, def.LocalPort, firstProbePath(def)))
		}
	}
}

// Stop terminates the tunnel recorded for name. It tolerates an absent pid
// file and an already-dead process, and always leaves the filesystem state
// clean.
func (m *Manager) Stop(name string) error {
	pidPath := pidFilePath(m.stateDir, name)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		removePIDFile(pidPath)
		return err
	}
	if pid == 0 {
		return nil
	}
	if pidExists(pid) {
		if err := signalProcess(pid, syscall.SIGTERM); err != nil {
			logging.Debug(subsystem, "Signal to pid %d failed: %v", pid, err)
		} else {
			logging.Info(subsystem, "Stopped tunnel %s (pid %d)", name, pid)
		}
	}
	removePIDFile(pidPath)
	return nil
}

// StopAll stops every configured tunnel. Used by teardown and by the
// interrupt path, where no orphaned tunnel may survive the run.
func (m *Manager) StopAll() {
	for _, def := range m.defs {
		if err := m.Stop(def.Name); err != nil {
			logging.Warn(subsystem, "Could not stop tunnel %s: %v", def.Name, err)
		}
	}
}

// EnsureArgoTunnel makes the control-plane API reachable on its fixed
// local port, starting the tunnel only when it is not already serving.
func (m *Manager) EnsureArgoTunnel(ctx context.Context) error {
	def := m.find(config.ArgoCDTunnelName)
	if def == nil {
		return fmt.Errorf("no %s tunnel configured", config.ArgoCDTunnelName)
	}

	pid, err := readPIDFile(pidFilePath(m.stateDir, def.Name))
	if err == nil && pid != 0 && pidExists(pid) && m.Verify(ctx, *def) {
		return nil
	}

	if err := m.Start(*def); err != nil {
		return err
	}
	if !m.Verify(ctx, *def) {
		return fmt.Errorf("tunnel %s started but the API is not answering", def.Name)
	}
	return nil
}

// Status reports liveness and readiness for every configured tunnel.
func (m *Manager) Status(ctx context.Context) []TunnelStatus {
	statuses := make([]TunnelStatus, 0, len(m.defs))
	for _, def := range m.defs {
		pid, _ := readPIDFile(pidFilePath(m.stateDir, def.Name))
		alive := pid != 0 && pidExists(pid)
		ready := false
		if alive {
			ready = m.probeOnce(ctx, def)
		}
		statuses = append(statuses, TunnelStatus{
			Name:      def.Name,
			LocalPort: def.LocalPort,
			PID:       pid,
			Alive:     alive,
			Ready:     ready,
		})
	}
	return statuses
}

func (m *Manager) find(name string) *config.PortForwardDefinition {
	for i := range m.defs {
		if m.defs[i].Name == name {
			return &m.defs[i]
		}
	}
	return nil
}

func manualCommand(def config.PortForwardDefinition) string {
	return fmt.Sprintf("kubectl port-forward %s %d:%d -n %s",
		def.Service, def.LocalPort, def.RemotePort, def.Namespace)
}

func firstProbePath(def config.PortForwardDefinition) string {
	if len(def.ProbePaths) > 0 {
		return def.ProbePaths[0]
	}
	return "/"
}
