// Package teardown removes the demo workload in reverse order of setup.
// It is interactive and destructive: a precise inventory is printed and an
// explicit affirmative answer is required before anything is deleted.
//
// Teardown is scoped to the workload. Downloaded images, the Argo CD
// installation, and the cluster itself are preserved.
package teardown

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"democtl/internal/appsync"
	"democtl/internal/config"
	"democtl/internal/poll"
	"democtl/internal/report"
	"democtl/internal/secrets"
	"democtl/pkg/logging"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
)

const subsystem = "Teardown"

const (
	gracefulDeleteTimeout = 30 * time.Second
	goneWaitInterval      = 2 * time.Second
	goneWaitMaxAttempts   = 30
)

// AppProjectGVR identifies Argo CD AppProject custom resources.
var AppProjectGVR = schema.GroupVersionResource{
	Group:    "argoproj.io",
	Version:  "v1alpha1",
	Resource: "appprojects",
}

// TunnelStopper tears down the background tunnels and their pid files.
type TunnelStopper interface {
	StopAll()
}

// Confirmer answers the destructive-action prompt. Production uses stdin;
// tests inject a pre-supplied answer.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// StdinConfirmer reads one line and accepts only y/Y as affirmative.
type StdinConfirmer struct {
	In io.Reader
}

// Confirm blocks on input; interrupt handling is deliberately not active
// while this prompt waits.
func (c *StdinConfirmer) Confirm(prompt string) (bool, error) {
	fmt.Fprint(report.Output, prompt)
	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y", nil
}

// Orchestrator runs the reverse-sequence removal.
type Orchestrator struct {
	clientset kubernetes.Interface
	dyn       dynamic.Interface
	tunnels   TunnelStopper
	confirmer Confirmer
	cfg       *config.Config
}

// NewOrchestrator wires a teardown run.
func NewOrchestrator(clientset kubernetes.Interface, dyn dynamic.Interface, tunnels TunnelStopper, confirmer Confirmer, cfg *config.Config) *Orchestrator {
	return &Orchestrator{clientset: clientset, dyn: dyn, tunnels: tunnels, confirmer: confirmer, cfg: cfg}
}

// Run prints the inventory, asks for confirmation, and on an affirmative
// answer removes the workload. Any other answer is a no-op.
func (o *Orchestrator) Run(ctx context.Context) error {
	report.Plain("This will remove:")
	for _, app := range o.cfg.Applications {
		report.Plain("  - application %s", app)
	}
	report.Plain("  - namespace %s (force-deleted if necessary)", o.cfg.WorkloadNamespace)
	report.Plain("  - secrets %s and %s", secrets.PlatformSecretName, secrets.ToolsSecretName)
	report.Plain("  - Argo CD project %s", o.cfg.ProjectName)
	report.Plain("  - all democtl port-forward tunnels and pid files")
	report.Plain("Preserved: container images, the Argo CD installation, the cluster.")

	confirmed, err := o.confirmer.Confirm("Proceed? [y/N] ")
	if err != nil {
		return fmt.Errorf("could not read confirmation: %w", err)
	}
	if !confirmed {
		report.Plain("Teardown cancelled.")
		return nil
	}

	o.tunnels.StopAll()
	report.Success("Stopped port-forward tunnels")

	o.deleteApplications(ctx)

	if err := o.deleteNamespace(ctx); err != nil {
		report.Warning("Namespace %s removal incomplete: %v", o.cfg.WorkloadNamespace, err)
		report.Hint(fmt.Sprintf("kubectl delete namespace %s --force --grace-period=0", o.cfg.WorkloadNamespace))
	}

	o.deleteCredentials(ctx)
	o.deleteProject(ctx)

	report.Success("Teardown complete")
	return nil
}

// deleteApplications issues non-blocking deletes, tolerating absence.
func (o *Orchestrator) deleteApplications(ctx context.Context) {
	for _, app := range o.cfg.Applications {
		err := o.dyn.Resource(appsync.ApplicationGVR).Namespace(o.cfg.ArgoNamespace).
			Delete(ctx, app, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			report.Warning("Could not delete application %s: %v", app, err)
			continue
		}
		logging.Info(subsystem, "Deleted application %s", app)
	}
}

// deleteNamespace runs the three-rung ladder: graceful delete, finalizer
// strip, force delete. Namespaces holding resources with unresolved
// finalizers hang forever under graceful deletion alone.
func (o *Orchestrator) deleteNamespace(ctx context.Context) error {
	name := o.cfg.WorkloadNamespace
	namespaces := o.clientset.CoreV1().Namespaces()

	err := namespaces.Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		logging.Info(subsystem, "Namespace %s already gone", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("graceful delete failed: %w", err)
	}

	gracefulAttempts := int(gracefulDeleteTimeout / goneWaitInterval)
	if o.waitNamespaceGone(ctx, name, gracefulAttempts) == nil {
		logging.Info(subsystem, "Namespace %s deleted gracefully", name)
		return nil
	}

	report.Warning("Namespace %s did not terminate within %s, escalating", name, gracefulDeleteTimeout)

	if err := o.stripFinalizers(ctx, name); err != nil {
		return fmt.Errorf("finalizer strip failed: %w", err)
	}

	zero := int64(0)
	err = namespaces.Delete(ctx, name, metav1.DeleteOptions{GracePeriodSeconds: &zero})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("force delete failed: %w", err)
	}

	if err := o.waitNamespaceGone(ctx, name, goneWaitMaxAttempts); err != nil {
		// Logged, not fatal: the namespace usually disappears shortly after.
		logging.Warn(subsystem, "Namespace %s still terminating after force delete", name)
	}
	return nil
}

// stripFinalizers clears spec.finalizers through the finalize subresource,
// the low-level write that unblocks a hung namespace deletion.
func (o *Orchestrator) stripFinalizers(ctx context.Context, name string) error {
	ns, err := o.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	ns.Spec.Finalizers = []corev1.FinalizerName{}
	_, err = o.clientset.CoreV1().Namespaces().Finalize(ctx, ns, metav1.UpdateOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	logging.Info(subsystem, "Stripped finalizers from namespace %s", name)
	return nil
}

func (o *Orchestrator) waitNamespaceGone(ctx context.Context, name string, maxAttempts int) error {
	return poll.UntilContext(ctx, goneWaitInterval, maxAttempts, func(attempt int) (bool, error) {
		_, err := o.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		if err != nil {
			logging.Debug(subsystem, "Namespace check attempt %d: %v", attempt, err)
		}
		return false, nil
	})
}

func (o *Orchestrator) deleteCredentials(ctx context.Context) {
	for _, name := range []string{secrets.PlatformSecretName, secrets.ToolsSecretName} {
		err := o.clientset.CoreV1().Secrets(o.cfg.WorkloadNamespace).Delete(ctx, name, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			report.Warning("Could not delete secret %s: %v", name, err)
			continue
		}
		logging.Info(subsystem, "Deleted secret %s", name)
	}
}

func (o *Orchestrator) deleteProject(ctx context.Context) {
	err := o.dyn.Resource(AppProjectGVR).Namespace(o.cfg.ArgoNamespace).
		Delete(ctx, o.cfg.ProjectName, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		report.Warning("Could not delete Argo CD project %s: %v", o.cfg.ProjectName, err)
		return
	}
	logging.Info(subsystem, "Deleted Argo CD project %s", o.cfg.ProjectName)
}
