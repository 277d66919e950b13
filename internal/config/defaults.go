package config

import "path/filepath"

const (
	// EnvKeyCredential is the mandatory key in the env file.
	EnvKeyCredential = "OPENAI_API_KEY"
	// EnvKeyClusterName optionally overrides the cluster name.
	EnvKeyClusterName = "CLUSTER_NAME"
	// EnvKeyCABundle optionally overrides the CA bundle path.
	EnvKeyCABundle = "CA_BUNDLE_PATH"

	defaultClusterName   = "kagent-demo"
	defaultEnvFileName   = ".env"
	projectConfigDir     = ".democtl"
	projectConfigFile    = "config.yaml"
	userConfigDir        = ".config/democtl"
	defaultCABundleName  = "ca-bundle.crt"
	defaultArgoLocalPort = 8080

	// ArgoCDTunnelName is the tunnel the syncer depends on.
	ArgoCDTunnelName = "argocd-server"
)

// defaultConfig returns the built-in configuration before env file and
// overlay values are applied. The CA bundle default is a fixed per-user
// location; homeDir may be empty when the home directory is unknown.
func defaultConfig(homeDir string) *Config {
	caBundle := ""
	if homeDir != "" {
		caBundle = filepath.Join(homeDir, userConfigDir, defaultCABundleName)
	}
	return &Config{
		ClusterName:       defaultClusterName,
		CABundlePath:      caBundle,
		WorkloadNamespace: "kagent",
		ArgoNamespace:     "argocd",
		ProjectName:       "kagent-demo",
		Applications:      []string{"kagent", "mcp-sqlite-vec"},
		ArgoServerAddr:    "localhost:8080",
		PortForwards: []PortForwardDefinition{
			{
				Name:       ArgoCDTunnelName,
				Namespace:  "argocd",
				Service:    "service/argocd-server",
				LocalPort:  defaultArgoLocalPort,
				RemotePort: 443,
				Scheme:     "https",
				ProbePaths: []string{"/healthz", "/api/v1/session", "/"},
				LogPath:    "/tmp/democtl-argocd-portforward.log",
			},
			{
				Name:       "kagent-ui",
				Namespace:  "kagent",
				Service:    "service/kagent-ui",
				LocalPort:  8082,
				RemotePort: 80,
				Scheme:     "http",
				ProbePaths: []string{"/healthz", "/api/health", "/"},
			},
			{
				Name:       "kagent-controller",
				Namespace:  "kagent",
				Service:    "service/kagent-controller",
				LocalPort:  8083,
				RemotePort: 8083,
				Scheme:     "http",
				ProbePaths: []string{"/healthz", "/api/v1/health", "/"},
			},
		},
	}
}
