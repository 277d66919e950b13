package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	flags := rootCmd.Flags()

	for _, name := range []string{"skip-argocd", "initial", "teardown", "status", "debug"} {
		flag := flags.Lookup(name)
		require.NotNil(t, flag, "flag --%s must be registered", name)
		assert.Equal(t, "false", flag.DefValue)
	}

	envFile := flags.Lookup("env-file")
	require.NotNil(t, envFile)
	assert.Equal(t, "", envFile.DefValue)
}

func TestRootCommandMetadata(t *testing.T) {
	assert.Equal(t, "democtl", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage, "precondition failures print the error, not the usage text")
}

func TestSetVersion(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()

	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", rootCmd.Version)
}
