// Package appsync waits for each declared application to appear in the
// control plane, lets its in-flight operation settle, and triggers an
// explicit synchronization. Applications degrade independently: one
// application exhausting its sync retries never blocks the next one.
package appsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"democtl/internal/execx"
	"democtl/internal/poll"
	"democtl/internal/report"
	"democtl/pkg/logging"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
)

const subsystem = "AppSync"

const (
	visibilityInterval = 5 * time.Second
	visibilityAttempts = 60 // 5 minutes
	progressEvery      = 6

	operationInterval = 10 * time.Second
	operationAttempts = 30 // 5 minutes

	syncTimeoutSeconds = 300
	syncMaxAttempts    = 3
	syncRetryPause     = 10 * time.Second

	interAppPause = 3 * time.Second
)

// ApplicationGVR identifies Argo CD Application custom resources.
var ApplicationGVR = schema.GroupVersionResource{
	Group:    "argoproj.io",
	Version:  "v1alpha1",
	Resource: "applications",
}

// ApplicationNotFoundError indicates an application never became visible
// in the control plane within the polling budget.
type ApplicationNotFoundError struct {
	App string
}

func (e *ApplicationNotFoundError) Error() string {
	return fmt.Sprintf("application %q never appeared in the control plane", e.App)
}

// TunnelEnsurer provides network access to the control plane's API before
// the first synchronization command runs.
type TunnelEnsurer interface {
	EnsureArgoTunnel(ctx context.Context) error
}

// For mocking in tests
var (
	runCommand = execx.Run
	pause      = time.Sleep
)

// Settler walks each application through
// pending → visible → operation-settled → sync-attempted.
type Settler struct {
	dyn       dynamic.Interface
	namespace string
	tunnels   TunnelEnsurer

	tunnelReady bool
}

// NewSettler returns a Settler reading Application objects from the given
// control plane namespace.
func NewSettler(dyn dynamic.Interface, namespace string, tunnels TunnelEnsurer) *Settler {
	return &Settler{dyn: dyn, namespace: namespace, tunnels: tunnels}
}

// Settle processes each application in order. Visibility exhaustion is
// fatal; operation-settle and sync exhaustion degrade to warnings so the
// remaining applications still get their chance.
func (s *Settler) Settle(ctx context.Context, apps []string) error {
	for i, app := range apps {
		report.Step("Reconciling application %s", app)

		if err := s.waitVisible(ctx, app); err != nil {
			return err
		}

		if err := s.ensureTunnel(ctx); err != nil {
			report.Warning("Could not reach the Argo CD API for %s: %v", app, err)
			report.Hint(fmt.Sprintf("kubectl port-forward service/argocd-server -n %s 8080:443", s.namespace))
			continue
		}

		s.waitOperationSettled(ctx, app)

		if err := s.sync(ctx, app); err != nil {
			report.Warning("Sync retries exhausted for %s, continuing in degraded state", app)
			report.Hint(fmt.Sprintf("argocd app sync %s --timeout %d", app, syncTimeoutSeconds))
		} else {
			report.Success("Application %s synced", app)
		}

		if i < len(apps)-1 {
			pause(interAppPause)
		}
	}
	return nil
}

// waitVisible polls until the named Application object exists.
func (s *Settler) waitVisible(ctx context.Context, app string) error {
	err := poll.UntilContext(ctx, visibilityInterval, visibilityAttempts, func(attempt int) (bool, error) {
		_, getErr := s.dyn.Resource(ApplicationGVR).Namespace(s.namespace).Get(ctx, app, metav1.GetOptions{})
		if getErr != nil {
			if attempt%progressEvery == 0 {
				logging.Info(subsystem, "Still waiting for application %s (attempt %d/%d)", app, attempt, visibilityAttempts)
			}
			return false, nil
		}
		return true, nil
	})
	if errors.Is(err, poll.ErrExhausted) {
		return &ApplicationNotFoundError{App: app}
	}
	return err
}

func (s *Settler) ensureTunnel(ctx context.Context) error {
	if s.tunnelReady {
		return nil
	}
	if err := s.tunnels.EnsureArgoTunnel(ctx); err != nil {
		return err
	}
	s.tunnelReady = true
	return nil
}

// waitOperationSettled polls the in-flight operation phase. Succeeded,
// Unknown, or an absent phase all mean "ready to proceed"; exhausting the
// budget proceeds anyway as best-effort.
func (s *Settler) waitOperationSettled(ctx context.Context, app string) {
	err := poll.UntilContext(ctx, operationInterval, operationAttempts, func(attempt int) (bool, error) {
		obj, getErr := s.dyn.Resource(ApplicationGVR).Namespace(s.namespace).Get(ctx, app, metav1.GetOptions{})
		if getErr != nil {
			logging.Debug(subsystem, "Could not read %s (attempt %d): %v", app, attempt, getErr)
			return false, nil
		}
		phase := operationPhase(obj)
		switch phase {
		case "", "Succeeded", "Unknown":
			return true, nil
		default:
			logging.Debug(subsystem, "Application %s operation phase %s (attempt %d/%d)", app, phase, attempt, operationAttempts)
			return false, nil
		}
	})
	if errors.Is(err, poll.ErrExhausted) {
		logging.Warn(subsystem, "Operation on %s did not settle within budget, proceeding best-effort", app)
	}
}

// sync issues the synchronization command with bounded retries.
func (s *Settler) sync(ctx context.Context, app string) error {
	var lastErr error
	for attempt := 1; attempt <= syncMaxAttempts; attempt++ {
		_, _, err := runCommand(ctx, "argocd", "app", "sync", app,
			"--timeout", fmt.Sprintf("%d", syncTimeoutSeconds))
		if err == nil {
			return nil
		}
		lastErr = err
		logging.Warn(subsystem, "Sync attempt %d/%d for %s failed: %v", attempt, syncMaxAttempts, app, err)
		if attempt < syncMaxAttempts {
			pause(syncRetryPause)
		}
	}
	return lastErr
}

func operationPhase(obj *unstructured.Unstructured) string {
	phase, _, _ := unstructured.NestedString(obj.Object, "status", "operationState", "phase")
	return phase
}
