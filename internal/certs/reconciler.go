// Package certs distributes a custom CA bundle onto the nodes of the local
// k3d cluster. Nodes are docker containers, so distribution happens through
// the container runtime CLI rather than the Kubernetes API.
package certs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"democtl/internal/execx"
	"democtl/internal/poll"
	"democtl/internal/report"
	"democtl/pkg/logging"

	"k8s.io/client-go/kubernetes"
)

const (
	subsystem = "Certs"

	// nodeBundlePath is where the bundle lands inside each node container.
	nodeBundlePath = "/etc/ssl/certs/democtl-ca.crt"

	reloadGracePeriod  = 10 * time.Second
	apiWaitInterval    = 2 * time.Second
	apiWaitMaxAttempts = 30
)

// For mocking in tests
var (
	runCommand = execx.Run
	osStat     = os.Stat
	osReadFile = os.ReadFile
	tlsProbeFn = runTLSProbe
	graceSleep = time.Sleep
)

// Reconciler drives the CA bundle onto every cluster node.
type Reconciler struct {
	clientset   kubernetes.Interface
	clusterName string
	bundlePath  string
}

// NewReconciler returns a Reconciler for the given cluster and bundle.
func NewReconciler(clientset kubernetes.Interface, clusterName, bundlePath string) *Reconciler {
	return &Reconciler{clientset: clientset, clusterName: clusterName, bundlePath: bundlePath}
}

// Reconcile ensures every node trusts the configured bundle.
//
// When forceRestart is true and any node was updated, each node's container
// runtime is signalled to reload and the pass waits for the control plane
// to answer again. When forceRestart is false, propagation is deferred to
// the next runtime restart.
func (r *Reconciler) Reconcile(ctx context.Context, forceRestart bool) error {
	if r.bundlePath == "" {
		logging.Info(subsystem, "No CA bundle configured, skipping certificate reconciliation")
		return nil
	}
	if _, err := osStat(r.bundlePath); os.IsNotExist(err) {
		logging.Info(subsystem, "CA bundle %s does not exist, skipping certificate reconciliation", r.bundlePath)
		return nil
	}

	report.Step("Checking cluster certificate trust (%s)", probeSummary())
	if tlsProbeFn(ctx, r.clientset) {
		report.Success("CA bundle already trusted cluster-wide")
		return nil
	}

	// Node membership can change between runs, so the set is enumerated
	// fresh on every pass.
	nodes, err := r.listNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate cluster nodes: %w", err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no nodes found for cluster %q", r.clusterName)
	}

	localSum, err := r.localBundleDigest()
	if err != nil {
		return err
	}

	updated := false
	for _, node := range nodes {
		nodeSum := r.nodeBundleDigest(ctx, node)
		if nodeSum == localSum {
			logging.Debug(subsystem, "Node %s already has the current bundle", node)
			continue
		}
		if err := r.copyBundleToNode(ctx, node); err != nil {
			return fmt.Errorf("failed to install CA bundle on node %s: %w", node, err)
		}
		if err := r.refreshCertStore(ctx, node); err != nil {
			logging.Debug(subsystem, "Certificate store refresh on node %s: %v", node, err)
		}
		report.Success("Installed CA bundle on node %s", node)
		updated = true
	}

	if !updated {
		report.Success("All %d nodes already have the current CA bundle", len(nodes))
		return nil
	}

	if !forceRestart {
		report.Warning("CA bundle installed but runtime reload deferred; rerun with --initial to propagate now")
		return nil
	}

	for _, node := range nodes {
		if err := r.reloadRuntime(ctx, node); err != nil {
			logging.Warn(subsystem, "Runtime reload on node %s failed: %v", node, err)
		}
	}
	logging.Info(subsystem, "Waiting %s for container runtimes to settle", reloadGracePeriod)
	graceSleep(reloadGracePeriod)

	if err := r.waitForControlPlane(ctx); err != nil {
		// Tolerated degradation: the API usually comes back on its own.
		report.Warning("Control plane not reachable yet after runtime reload, continuing anyway")
		report.Hint("kubectl get nodes")
		return nil
	}
	report.Success("Control plane reachable after runtime reload")
	return nil
}

// listNodes enumerates the docker containers backing the k3d cluster.
func (r *Reconciler) listNodes(ctx context.Context) ([]string, error) {
	stdout, _, err := runCommand(ctx, "docker", "ps",
		"--filter", "name=k3d-"+r.clusterName,
		"--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}
	var nodes []string
	for _, name := range execx.Lines(stdout) {
		// The serverlb proxy container carries no trust store of interest.
		if strings.Contains(name, "-serverlb") {
			continue
		}
		nodes = append(nodes, name)
	}
	return nodes, nil
}

func (r *Reconciler) localBundleDigest() (string, error) {
	data, err := osReadFile(r.bundlePath)
	if err != nil {
		return "", fmt.Errorf("could not read CA bundle %s: %w", r.bundlePath, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// nodeBundleDigest returns the sha256 of the bundle installed on the node,
// or empty when the node has none.
func (r *Reconciler) nodeBundleDigest(ctx context.Context, node string) string {
	stdout, _, err := runCommand(ctx, "docker", "exec", node, "sha256sum", nodeBundlePath)
	if err != nil {
		return ""
	}
	fields := strings.Fields(stdout)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (r *Reconciler) copyBundleToNode(ctx context.Context, node string) error {
	_, _, err := runCommand(ctx, "docker", "cp", r.bundlePath, node+":"+nodeBundlePath)
	return err
}

// refreshCertStore asks the node to rehash its trust store. Not every node
// image ships the tool, so failure is tolerated; the bundle already sits in
// the hashed certificates directory either way.
func (r *Reconciler) refreshCertStore(ctx context.Context, node string) error {
	_, _, err := runCommand(ctx, "docker", "exec", node, "update-ca-certificates")
	return err
}

// reloadRuntime signals containerd inside the node to reload its
// configuration. This is a reload, not a restart; workloads keep running.
func (r *Reconciler) reloadRuntime(ctx context.Context, node string) error {
	_, _, err := runCommand(ctx, "docker", "exec", node, "pkill", "-HUP", "containerd")
	return err
}

func (r *Reconciler) waitForControlPlane(ctx context.Context) error {
	return poll.UntilContext(ctx, apiWaitInterval, apiWaitMaxAttempts, func(attempt int) (bool, error) {
		if _, err := r.clientset.Discovery().ServerVersion(); err != nil {
			logging.Debug(subsystem, "Control plane not ready (attempt %d): %v", attempt, err)
			return false, nil
		}
		return true, nil
	})
}
