package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	CfgFile = filepath.Join(t.TempDir(), "config.yaml")
	t.Cleanup(func() { CfgFile = ""; GlobalConfig = nil })

	require.NoError(t, InitConfig())
	_, err := GetCurrentContext()
	assert.ErrorIs(t, err, ErrNoContext)

	GlobalConfig.Contexts["local"] = &Context{Name: "local", ServerEndpoint: "http://localhost:8080", UserAuthToken: "tok"}
	GlobalConfig.CurrentContext = "local"
	require.NoError(t, SaveConfig())

	info, err := os.Stat(CfgFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	GlobalConfig = nil
	require.NoError(t, InitConfig())
	current, err := GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", current.ServerEndpoint)
	assert.Equal(t, "tok", current.UserAuthToken)
}

func TestGetCurrentContext_Dangling(t *testing.T) {
	GlobalConfig = &CLIConfig{CurrentContext: "gone", Contexts: map[string]*Context{}}
	t.Cleanup(func() { GlobalConfig = nil })

	_, err := GetCurrentContext()
	assert.ErrorContains(t, err, "'gone' not found")
}
