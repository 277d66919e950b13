package argocd

import (
	"context"
	"testing"
	"time"

	"democtl/internal/poll"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func mockInstallCommand(t *testing.T, err error) *[][]string {
	t.Helper()
	original := runCommand
	t.Cleanup(func() { runCommand = original })

	var calls [][]string
	runCommand = func(ctx context.Context, name string, args ...string) (string, string, error) {
		calls = append(calls, append([]string{name}, args...))
		return "", "", err
	}
	return &calls
}

func silencePollSleep(t *testing.T) {
	t.Helper()
	original := poll.Sleep
	t.Cleanup(func() { poll.Sleep = original })
	poll.Sleep = func(time.Duration) {}
}

func availableServerDeployment(namespace string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: serverDeployment, Namespace: namespace},
		Status: appsv1.DeploymentStatus{
			Conditions: []appsv1.DeploymentCondition{
				{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
			},
		},
	}
}

func TestEnsureInstalled_SkipsWhenNamespaceExists(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "argocd"}},
	)
	calls := mockInstallCommand(t, nil)

	err := NewInstaller(clientset, "argocd").EnsureInstalled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, *calls, "an existing namespace means a previous install is in place")
}

func TestEnsureInstalled_AppliesManifestsAndWaits(t *testing.T) {
	silencePollSleep(t)
	clientset := fake.NewSimpleClientset(availableServerDeployment("argocd"))
	calls := mockInstallCommand(t, nil)

	err := NewInstaller(clientset, "argocd").EnsureInstalled(context.Background())
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	assert.Equal(t, []string{"kubectl", "apply", "-n", "argocd", "-f", installManifestURL}, (*calls)[0])

	_, err = clientset.CoreV1().Namespaces().Get(context.Background(), "argocd", metav1.GetOptions{})
	assert.NoError(t, err)
}

func TestEnsureInstalled_TimesOutWhenServerNeverAvailable(t *testing.T) {
	silencePollSleep(t)
	clientset := fake.NewSimpleClientset()
	mockInstallCommand(t, nil)

	err := NewInstaller(clientset, "argocd").EnsureInstalled(context.Background())
	assert.ErrorIs(t, err, ErrInstallTimeout)
}

func TestDeploymentAvailable(t *testing.T) {
	assert.True(t, deploymentAvailable(availableServerDeployment("argocd")))

	progressing := &appsv1.Deployment{
		Status: appsv1.DeploymentStatus{
			Conditions: []appsv1.DeploymentCondition{
				{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionFalse},
				{Type: appsv1.DeploymentProgressing, Status: corev1.ConditionTrue},
			},
		},
	}
	assert.False(t, deploymentAvailable(progressing))
	assert.False(t, deploymentAvailable(&appsv1.Deployment{}))
}
