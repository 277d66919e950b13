// Package secrets asserts the existence of the workload namespace and the
// credential objects inside it. Every operation is idempotent; reruns
// repair partial state instead of failing on "already exists".
package secrets

import (
	"context"
	"fmt"

	"democtl/internal/report"
	"democtl/pkg/logging"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const subsystem = "Secrets"

const (
	// PlatformSecretName holds the credential for the agent platform.
	PlatformSecretName = "kagent-openai"
	// ToolsSecretName holds the credential for the tool subsystem.
	ToolsSecretName = "kagent-tools-openai"

	credentialKey = "OPENAI_API_KEY"
)

// Provisioner applies namespace and secret objects.
type Provisioner struct {
	clientset kubernetes.Interface
}

// NewProvisioner returns a Provisioner using the given cluster client.
func NewProvisioner(clientset kubernetes.Interface) *Provisioner {
	return &Provisioner{clientset: clientset}
}

// Provision ensures the namespace exists and both credential secrets are
// present with the given API key. There is no rollback on partial failure;
// the next run repairs whatever is missing.
func (p *Provisioner) Provision(ctx context.Context, namespace, apiKey string) error {
	if err := p.ensureNamespace(ctx, namespace); err != nil {
		return err
	}
	for _, name := range []string{PlatformSecretName, ToolsSecretName} {
		if err := p.applySecret(ctx, namespace, name, apiKey); err != nil {
			return err
		}
	}
	report.Success("Credentials provisioned in namespace %s", namespace)
	return nil
}

func (p *Provisioner) ensureNamespace(ctx context.Context, namespace string) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace}}
	_, err := p.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		logging.Debug(subsystem, "Namespace %s already exists", namespace)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", namespace, err)
	}
	logging.Info(subsystem, "Created namespace %s", namespace)
	return nil
}

// applySecret creates the secret, replacing it when one already exists.
func (p *Provisioner) applySecret(ctx context.Context, namespace, name, apiKey string) error {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "democtl"},
		},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{credentialKey: apiKey},
	}

	_, err := p.clientset.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		_, err = p.clientset.CoreV1().Secrets(namespace).Update(ctx, secret, metav1.UpdateOptions{})
		if err != nil {
			return fmt.Errorf("failed to replace secret %s/%s: %w", namespace, name, err)
		}
		logging.Info(subsystem, "Replaced secret %s/%s", namespace, name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create secret %s/%s: %w", namespace, name, err)
	}
	logging.Info(subsystem, "Created secret %s/%s", namespace, name)
	return nil
}
