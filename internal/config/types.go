package config

// PortForwardDefinition describes one managed background tunnel.
type PortForwardDefinition struct {
	Name       string   `yaml:"name"`
	Namespace  string   `yaml:"namespace"`
	Service    string   `yaml:"service"` // e.g. "service/argocd-server"
	LocalPort  int      `yaml:"localPort"`
	RemotePort int      `yaml:"remotePort"`
	Scheme     string   `yaml:"scheme"` // "http" or "https", used by readiness probes
	ProbePaths []string `yaml:"probePaths"`
	LogPath    string   `yaml:"logPath"` // when set, the tunnel's output stream is captured here
}

// Config is the resolved, immutable configuration for one orchestrator run.
// It is constructed once by Load and passed explicitly into every component;
// no component reads ambient process state directly.
type Config struct {
	// OpenAIAPIKey is the mandatory credential. Load fails before any
	// mutating step when it is unset.
	OpenAIAPIKey string

	ClusterName  string
	KubeContext  string
	CABundlePath string

	WorkloadNamespace string
	ArgoNamespace     string
	ProjectName       string

	// Applications is the fixed, ordered list of Argo CD application names
	// the deployer and the reconciliation waiter operate on.
	Applications []string

	PortForwards []PortForwardDefinition

	// ArgoServerAddr is the local address of the Argo CD API once the
	// argocd-server tunnel is up, e.g. "localhost:8080".
	ArgoServerAddr string
}

// PortForward returns the definition with the given name, or nil.
func (c *Config) PortForward(name string) *PortForwardDefinition {
	for i := range c.PortForwards {
		if c.PortForwards[i].Name == name {
			return &c.PortForwards[i]
		}
	}
	return nil
}

// overlay is the optional .democtl/config.yaml file layered over defaults.
type overlay struct {
	ClusterName  string                  `yaml:"clusterName"`
	CABundlePath string                  `yaml:"caBundlePath"`
	Applications []string                `yaml:"applications"`
	PortForwards []PortForwardDefinition `yaml:"portForwards"`
}
