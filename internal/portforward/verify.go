package portforward

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"democtl/internal/config"
	"democtl/internal/poll"
	"democtl/pkg/logging"
)

const (
	verifyInterval    = 2 * time.Second
	verifyMaxAttempts = 10
	probeTimeout      = 3 * time.Second
)

// probeClient skips TLS verification: tunnels to in-cluster services
// terminate TLS with certificates that are never valid for localhost.
var probeClient = &http.Client{
	Timeout: probeTimeout,
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	},
}

// Verify waits until the tunneled service answers on any of the
// definition's candidate paths. A live process does not imply the service
// behind the tunnel is accepting traffic yet, which is why this retries.
func (m *Manager) Verify(ctx context.Context, def config.PortForwardDefinition) bool {
	err := poll.UntilContext(ctx, verifyInterval, verifyMaxAttempts, func(attempt int) (bool, error) {
		if m.probeOnce(ctx, def) {
			return true, nil
		}
		logging.Debug(subsystem, "Tunnel %s not ready (attempt %d/%d)", def.Name, attempt, verifyMaxAttempts)
		return false, nil
	})
	return err == nil
}

// probeOnce tries each candidate path once; any response at all counts as
// ready, because a served error page still proves the tunnel works.
func (m *Manager) probeOnce(ctx context.Context, def config.PortForwardDefinition) bool {
	scheme := def.Scheme
	if scheme == "" {
		scheme = "http"
	}
	paths := def.ProbePaths
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	for _, path := range paths {
		url := fmt.Sprintf("%s://localhost:%d%s", scheme, def.LocalPort, path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			continue
		}
		resp, err := probeClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		return true
	}
	return false
}
