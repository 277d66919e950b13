// Package argocd installs the GitOps controller into its own namespace.
// Install is a one-time operation: an existing namespace means a previous
// install is in place and no version reconciliation is attempted.
package argocd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"democtl/internal/execx"
	"democtl/internal/poll"
	"democtl/internal/report"
	"democtl/pkg/logging"

	"github.com/briandowns/spinner"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const subsystem = "ArgoCD"

const (
	// installManifestURL is the upstream stable install manifest set.
	installManifestURL = "https://raw.githubusercontent.com/argoproj/argo-cd/stable/manifests/install.yaml"

	serverDeployment = "argocd-server"

	installWaitInterval = 5 * time.Second
	installWaitAttempts = 120 // 600 seconds total
)

// ErrInstallTimeout indicates the controller did not converge in time.
var ErrInstallTimeout = errors.New("Argo CD install did not become available within 600s")

// For mocking in tests
var runCommand = execx.Run

// Installer ensures Argo CD is present and available.
type Installer struct {
	clientset kubernetes.Interface
	namespace string
}

// NewInstaller returns an Installer targeting the given namespace.
func NewInstaller(clientset kubernetes.Interface, namespace string) *Installer {
	return &Installer{clientset: clientset, namespace: namespace}
}

// EnsureInstalled installs Argo CD unless its namespace already exists,
// then blocks until the server deployment reports available.
func (i *Installer) EnsureInstalled(ctx context.Context) error {
	_, err := i.clientset.CoreV1().Namespaces().Get(ctx, i.namespace, metav1.GetOptions{})
	if err == nil {
		report.Success("Argo CD namespace %s already exists, skipping install", i.namespace)
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to check namespace %s: %w", i.namespace, err)
	}

	report.Step("Installing Argo CD into namespace %s", i.namespace)
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: i.namespace}}
	if _, err := i.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create namespace %s: %w", i.namespace, err)
	}

	if _, _, err := runCommand(ctx, "kubectl", "apply", "-n", i.namespace, "-f", installManifestURL); err != nil {
		return fmt.Errorf("failed to apply Argo CD manifests: %w", err)
	}
	logging.Info(subsystem, "Applied upstream manifests from %s", installManifestURL)

	if err := i.waitForServer(ctx); err != nil {
		if errors.Is(err, poll.ErrExhausted) {
			return ErrInstallTimeout
		}
		return err
	}
	report.Success("Argo CD is available")
	return nil
}

// waitForServer polls the server deployment until it reports available.
func (i *Installer) waitForServer(ctx context.Context) error {
	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithColor("green"))
	spin.Suffix = " waiting for argocd-server to become available (up to 600s)"
	spin.Start()
	defer spin.Stop()

	return poll.UntilContext(ctx, installWaitInterval, installWaitAttempts, func(attempt int) (bool, error) {
		dep, err := i.clientset.AppsV1().Deployments(i.namespace).Get(ctx, serverDeployment, metav1.GetOptions{})
		if err != nil {
			logging.Debug(subsystem, "Deployment %s not ready (attempt %d): %v", serverDeployment, attempt, err)
			return false, nil
		}
		return deploymentAvailable(dep), nil
	})
}

func deploymentAvailable(dep *appsv1.Deployment) bool {
	for _, cond := range dep.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}
