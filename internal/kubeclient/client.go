// Package kubeclient constructs the Kubernetes clients used across the
// orchestrator. Components take the client interfaces, not this package,
// so tests can substitute fakes.
package kubeclient

import (
	"fmt"
	"time"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // Important for various auth providers
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Clients bundles the typed and dynamic clients for one kube context.
type Clients struct {
	Clientset kubernetes.Interface
	Dynamic   dynamic.Interface
}

// restConfigForContext is mockable for tests.
var restConfigForContext = func(kubeContext string) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		configOverrides.CurrentContext = kubeContext
	}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)
	return kubeConfig.ClientConfig()
}

// New builds clients for the given kubeconfig context. An empty context
// uses the kubeconfig's current context.
func New(kubeContext string) (*Clients, error) {
	restConfig, err := restConfigForContext(kubeContext)
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", kubeContext, err)
	}
	restConfig.Timeout = 30 * time.Second

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return &Clients{Clientset: clientset, Dynamic: dyn}, nil
}
