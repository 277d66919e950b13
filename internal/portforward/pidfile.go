package portforward

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Process identities are persisted to well-known paths so a later
// invocation (--status, --teardown) can rediscover tunnels it did not
// start itself. These files and the tunnel log are the orchestrator's only
// durable local artifacts.

const pidFilePrefix = "democtl-"

func pidFilePath(stateDir, name string) string {
	return filepath.Join(stateDir, pidFilePrefix+name+".pid")
}

func writePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// readPIDFile returns 0 with no error when the file is absent; a missing
// file is the normal "no tunnel" state, not a failure.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

func removePIDFile(path string) {
	_ = os.Remove(path)
}
