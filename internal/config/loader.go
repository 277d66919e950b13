package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var (
	osUserHomeDir = os.UserHomeDir
	osGetwd       = os.Getwd
	osSetenv      = os.Setenv
)

// Configuration failures discovered before any mutating step.
var (
	// ErrEnvFileNotFound indicates the backing env file is absent.
	ErrEnvFileNotFound = errors.New("env file not found")
	// ErrMissingCredential indicates the mandatory credential key is unset.
	ErrMissingCredential = errors.New(EnvKeyCredential + " is not set")
)

// Load reads the env file at envPath (the default ".env" in the working
// directory when empty), layers the optional project config.yaml overlay
// over built-in defaults, and returns the resolved Config.
//
// Side effect: every recognized value is exported into the process
// environment so external tool invocations (kubectl, argocd, docker)
// inherit it.
func Load(envPath string) (*Config, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		// CA bundle default depends on the home dir; everything else works
		// without it, so degrade rather than fail.
		fmt.Fprintf(os.Stderr, "Warning: could not determine home directory: %v\n", err)
		homeDir = ""
	}
	cfg := defaultConfig(homeDir)

	if envPath == "" {
		wd, err := osGetwd()
		if err != nil {
			return nil, fmt.Errorf("could not determine working directory: %w", err)
		}
		envPath = filepath.Join(wd, defaultEnvFileName)
	}

	vars, err := parseEnvFile(envPath)
	if err != nil {
		return nil, err
	}
	if vars[EnvKeyCredential] == "" {
		return nil, fmt.Errorf("%s: %w", envPath, ErrMissingCredential)
	}
	cfg.OpenAIAPIKey = vars[EnvKeyCredential]
	if v := vars[EnvKeyClusterName]; v != "" {
		cfg.ClusterName = v
	}
	if v := vars[EnvKeyCABundle]; v != "" {
		cfg.CABundlePath = v
	}

	if err := applyOverlay(cfg); err != nil {
		return nil, err
	}

	cfg.KubeContext = "k3d-" + cfg.ClusterName

	if err := exportEnvironment(cfg, vars); err != nil {
		return nil, fmt.Errorf("failed to export environment: %w", err)
	}
	return cfg, nil
}

// parseEnvFile reads KEY=VALUE lines. Blank lines and # comments are
// skipped, a leading "export " is tolerated, and single or double quotes
// around values are stripped.
func parseEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrEnvFileNotFound)
		}
		return nil, fmt.Errorf("could not read env file %s: %w", path, err)
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			vars[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read env file %s: %w", path, err)
	}
	return vars, nil
}

// applyOverlay merges the optional .democtl/config.yaml into cfg.
func applyOverlay(cfg *Config) error {
	wd, err := osGetwd()
	if err != nil {
		return nil // overlay is optional, skip when the cwd is unknown
	}
	path := filepath.Join(wd, projectConfigDir, projectConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not read %s: %w", path, err)
	}

	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("malformed %s: %w", path, err)
	}
	if o.ClusterName != "" {
		cfg.ClusterName = o.ClusterName
	}
	if o.CABundlePath != "" {
		cfg.CABundlePath = o.CABundlePath
	}
	if len(o.Applications) > 0 {
		cfg.Applications = o.Applications
	}
	// Port-forward definitions merge by name: overlay replaces or adds.
	for _, def := range o.PortForwards {
		replaced := false
		for i := range cfg.PortForwards {
			if cfg.PortForwards[i].Name == def.Name {
				cfg.PortForwards[i] = def
				replaced = true
				break
			}
		}
		if !replaced {
			cfg.PortForwards = append(cfg.PortForwards, def)
		}
	}
	return nil
}

// exportEnvironment publishes resolved values for child processes. Raw env
// file entries are exported as-is so workload-specific keys pass through.
func exportEnvironment(cfg *Config, vars map[string]string) error {
	for key, value := range vars {
		if err := osSetenv(key, value); err != nil {
			return err
		}
	}
	exports := map[string]string{
		EnvKeyClusterName: cfg.ClusterName,
		EnvKeyCABundle:    cfg.CABundlePath,
		"ARGOCD_SERVER":   cfg.ArgoServerAddr,
		"ARGOCD_OPTS":     "--insecure --grpc-web",
	}
	for key, value := range exports {
		if err := osSetenv(key, value); err != nil {
			return err
		}
	}
	return nil
}
