package portforward

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"democtl/internal/config"
	"democtl/internal/poll"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processControl struct {
	startPID  int
	startErr  error
	alive     map[int]bool
	started   []string
	signalled []int
}

// mockProcesses replaces every process-touching hook so no real kubectl is
// ever launched.
func mockProcesses(t *testing.T, ctl *processControl) {
	t.Helper()
	originalStart := startTunnelProcess
	originalExists := pidExists
	originalSignal := signalProcess
	originalGrace := graceSleep
	originalPoll := poll.Sleep
	t.Cleanup(func() {
		startTunnelProcess = originalStart
		pidExists = originalExists
		signalProcess = originalSignal
		graceSleep = originalGrace
		poll.Sleep = originalPoll
	})

	startTunnelProcess = func(def config.PortForwardDefinition) (int, error) {
		ctl.started = append(ctl.started, def.Name)
		return ctl.startPID, ctl.startErr
	}
	pidExists = func(pid int) bool { return ctl.alive[pid] }
	signalProcess = func(pid int, sig syscall.Signal) error {
		ctl.signalled = append(ctl.signalled, pid)
		return nil
	}
	graceSleep = func(time.Duration) {}
	poll.Sleep = func(time.Duration) {}
}

func tunnelDef(name string, localPort int) config.PortForwardDefinition {
	return config.PortForwardDefinition{
		Name:       name,
		Namespace:  "kagent",
		Service:    "service/" + name,
		LocalPort:  localPort,
		RemotePort: 80,
	}
}

// localHTTPServer serves 200 on a random port and returns that port.
func localHTTPServer(t *testing.T) int {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	_, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

// unservedPort reserves a port and closes it again, guaranteeing refusal.
func unservedPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestPIDFile_RoundTrip(t *testing.T) {
	path := pidFilePath(t.TempDir(), "argocd-server")
	assert.Contains(t, path, "democtl-argocd-server.pid")

	require.NoError(t, writePIDFile(path, 4242))
	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	removePIDFile(path)
	pid, err = readPIDFile(path)
	require.NoError(t, err, "an absent pid file is the normal no-tunnel state")
	assert.Equal(t, 0, pid)
}

func TestPIDFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "democtl-broken.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o644))

	_, err := readPIDFile(path)
	assert.Error(t, err)
}

func TestStart_PersistsPID(t *testing.T) {
	ctl := &processControl{startPID: 4242, alive: map[int]bool{4242: true}}
	mockProcesses(t, ctl)
	stateDir := t.TempDir()

	m := NewManager(nil, stateDir)
	require.NoError(t, m.Start(tunnelDef("kagent-ui", 8082)))

	pid, err := readPIDFile(pidFilePath(stateDir, "kagent-ui"))
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestStart_ImmediateDeathIsAnError(t *testing.T) {
	ctl := &processControl{startPID: 4242, alive: map[int]bool{}}
	mockProcesses(t, ctl)
	stateDir := t.TempDir()

	m := NewManager(nil, stateDir)
	err := m.Start(tunnelDef("kagent-ui", 8082))
	require.Error(t, err)

	pid, readErr := readPIDFile(pidFilePath(stateDir, "kagent-ui"))
	require.NoError(t, readErr)
	assert.Equal(t, 0, pid, "a dead tunnel leaves no pid file behind")
}

func TestStop_ToleratesAbsentStateAndDeadProcess(t *testing.T) {
	ctl := &processControl{alive: map[int]bool{}}
	mockProcesses(t, ctl)
	stateDir := t.TempDir()
	m := NewManager(nil, stateDir)

	require.NoError(t, m.Stop("never-started"))

	// A recorded pid whose process is gone is cleaned up without signalling.
	pidPath := pidFilePath(stateDir, "stale")
	require.NoError(t, writePIDFile(pidPath, 999))
	require.NoError(t, m.Stop("stale"))
	assert.Empty(t, ctl.signalled)
	pid, err := readPIDFile(pidPath)
	require.NoError(t, err)
	assert.Equal(t, 0, pid)
}

func TestStop_SignalsLiveProcess(t *testing.T) {
	ctl := &processControl{alive: map[int]bool{4242: true}}
	mockProcesses(t, ctl)
	stateDir := t.TempDir()
	m := NewManager(nil, stateDir)

	require.NoError(t, writePIDFile(pidFilePath(stateDir, "argocd-server"), 4242))
	require.NoError(t, m.Stop("argocd-server"))
	assert.Equal(t, []int{4242}, ctl.signalled)
}

func TestVerify_ReadyWhenServiceAnswers(t *testing.T) {
	ctl := &processControl{alive: map[int]bool{}}
	mockProcesses(t, ctl)

	def := tunnelDef("ui", localHTTPServer(t))
	def.ProbePaths = []string{"/healthz", "/"}
	m := NewManager(nil, t.TempDir())
	assert.True(t, m.Verify(context.Background(), def))
}

func TestVerify_FailsWhenNothingListens(t *testing.T) {
	ctl := &processControl{alive: map[int]bool{}}
	mockProcesses(t, ctl)

	def := tunnelDef("ui", unservedPort(t))
	m := NewManager(nil, t.TempDir())
	assert.False(t, m.Verify(context.Background(), def))
}

func TestEnsureArgoTunnel_ReusesServingTunnel(t *testing.T) {
	ctl := &processControl{alive: map[int]bool{4242: true}}
	mockProcesses(t, ctl)
	stateDir := t.TempDir()

	def := tunnelDef(config.ArgoCDTunnelName, localHTTPServer(t))
	def.Scheme = "http"
	m := NewManager([]config.PortForwardDefinition{def}, stateDir)
	require.NoError(t, writePIDFile(pidFilePath(stateDir, def.Name), 4242))

	require.NoError(t, m.EnsureArgoTunnel(context.Background()))
	assert.Empty(t, ctl.started, "a live, answering tunnel is reused as-is")
}

func TestEnsureArgoTunnel_StartsWhenMissing(t *testing.T) {
	ctl := &processControl{startPID: 5151, alive: map[int]bool{5151: true}}
	mockProcesses(t, ctl)

	def := tunnelDef(config.ArgoCDTunnelName, localHTTPServer(t))
	m := NewManager([]config.PortForwardDefinition{def}, t.TempDir())

	require.NoError(t, m.EnsureArgoTunnel(context.Background()))
	assert.Equal(t, []string{config.ArgoCDTunnelName}, ctl.started)
}

func TestStatus_DistinguishesLivenessFromReadiness(t *testing.T) {
	ctl := &processControl{alive: map[int]bool{100: true}}
	mockProcesses(t, ctl)
	stateDir := t.TempDir()

	servingDef := tunnelDef("serving", localHTTPServer(t))
	deadDef := tunnelDef("dead", 1)
	m := NewManager([]config.PortForwardDefinition{servingDef, deadDef}, stateDir)

	require.NoError(t, writePIDFile(pidFilePath(stateDir, "serving"), 100))
	require.NoError(t, writePIDFile(pidFilePath(stateDir, "dead"), 200))

	statuses := m.Status(context.Background())
	require.Len(t, statuses, 2)

	assert.True(t, statuses[0].Alive)
	assert.True(t, statuses[0].Ready)
	assert.False(t, statuses[1].Alive)
	assert.False(t, statuses[1].Ready, "readiness is never probed for a dead tunnel")
	assert.Equal(t, 200, statuses[1].PID, "the stale pid is still reported")
}
