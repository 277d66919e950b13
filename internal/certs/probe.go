package certs

import (
	"context"
	"fmt"
	"time"

	"democtl/internal/poll"
	"democtl/pkg/logging"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	probePodName   = "democtl-tls-probe"
	probeNamespace = "default"
	probeImage     = "curlimages/curl:8.7.1"
	// probeEndpoint is a well-known HTTPS endpoint; the probe succeeds only
	// when the node's trust store validates its certificate chain.
	probeEndpoint = "https://registry-1.docker.io/v2/"

	probeInterval    = 2 * time.Second
	probeMaxAttempts = 30
)

// runTLSProbe launches a short-lived workload inside the cluster that
// performs a TLS handshake against a known external endpoint. It returns
// true when the handshake succeeds, meaning the bundle is already trusted
// cluster-wide.
//
// A probe that fails to schedule or never completes is reported as
// untrusted rather than as an error: the reconciler treats both the same
// way ("needs update") so a scheduling hiccup can never crash the pass.
func runTLSProbe(ctx context.Context, clientset kubernetes.Interface) bool {
	pods := clientset.CoreV1().Pods(probeNamespace)

	// A leftover probe pod from an interrupted run would block creation.
	_ = pods.Delete(ctx, probePodName, metav1.DeleteOptions{})

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   probePodName,
			Labels: map[string]string{"app.kubernetes.io/managed-by": "democtl"},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:  "probe",
					Image: probeImage,
					Args:  []string{"-sS", "--max-time", "10", probeEndpoint},
				},
			},
		},
	}

	if _, err := pods.Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		logging.Warn(subsystem, "TLS probe pod could not be created, assuming bundle needs distribution: %v", err)
		return false
	}
	defer func() {
		if err := pods.Delete(context.Background(), probePodName, metav1.DeleteOptions{}); err != nil {
			logging.Debug(subsystem, "Probe pod cleanup: %v", err)
		}
	}()

	var phase corev1.PodPhase
	err := poll.UntilContext(ctx, probeInterval, probeMaxAttempts, func(attempt int) (bool, error) {
		current, getErr := pods.Get(ctx, probePodName, metav1.GetOptions{})
		if getErr != nil {
			logging.Debug(subsystem, "Probe pod status attempt %d: %v", attempt, getErr)
			return false, nil
		}
		phase = current.Status.Phase
		return phase == corev1.PodSucceeded || phase == corev1.PodFailed, nil
	})
	if err != nil {
		logging.Warn(subsystem, "TLS probe did not complete within %s, assuming bundle needs distribution",
			time.Duration(probeMaxAttempts)*probeInterval)
		return false
	}

	if phase == corev1.PodSucceeded {
		logging.Info(subsystem, "TLS probe succeeded against %s", probeEndpoint)
		return true
	}
	logging.Info(subsystem, "TLS probe failed (%s), bundle needs distribution", phase)
	return false
}

// probeSummary renders the probe target for operator-facing messages.
func probeSummary() string {
	return fmt.Sprintf("in-cluster TLS handshake against %s", probeEndpoint)
}
