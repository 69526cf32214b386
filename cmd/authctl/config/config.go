package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName        = "authctl"
	ConfigFileName = "config"
	ConfigFileType = "yaml"
)

// Context is one named server endpoint plus the token obtained by login.
type Context struct {
	Name           string `mapstructure:"name"                       yaml:"name"`
	ServerEndpoint string `mapstructure:"server_endpoint"            yaml:"server_endpoint"`
	UserAuthToken  string `mapstructure:"user_auth_token,omitempty"  yaml:"user_auth_token,omitempty"`
}

// CLIConfig holds the overall CLI configuration.
type CLIConfig struct {
	CurrentContext string              `mapstructure:"current_context"`
	Contexts       map[string]*Context `mapstructure:"contexts"`
}

var (
	GlobalConfig *CLIConfig
	CfgFile      string // set by --config, or the default path after InitConfig

	v = viper.New()
)

// ErrNoContext is returned when no context has been configured yet.
var ErrNoContext = errors.New("no current context set, use 'authctl config set-context <name> --server <url>'")

// InitConfig loads the config file, creating its directory when needed.
// A missing file is not an error.
func InitConfig() error {
	v = viper.New()

	if CfgFile != "" {
		v.SetConfigFile(CfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath := filepath.Join(home, "."+AppName)
		if err := os.MkdirAll(configPath, 0o700); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", configPath, err)
		}

		v.AddConfigPath(configPath)
		v.SetConfigName(ConfigFileName)
		v.SetConfigType(ConfigFileType)
		CfgFile = filepath.Join(configPath, ConfigFileName+"."+ConfigFileType)
	}

	GlobalConfig = &CLIConfig{Contexts: make(map[string]*Context)}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading config file %s: %w", CfgFile, err)
		}
	}

	if err := v.Unmarshal(GlobalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if GlobalConfig.Contexts == nil {
		GlobalConfig.Contexts = make(map[string]*Context)
	}
	return nil
}

// SaveConfig writes GlobalConfig back to CfgFile. The file holds tokens, so it
// is only readable by the owner.
func SaveConfig() error {
	if GlobalConfig == nil {
		return errors.New("config not initialized")
	}
	if err := os.MkdirAll(filepath.Dir(CfgFile), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	contexts := make(map[string]any, len(GlobalConfig.Contexts))
	for name, c := range GlobalConfig.Contexts {
		contexts[name] = map[string]any{
			"name":            c.Name,
			"server_endpoint": c.ServerEndpoint,
			"user_auth_token": c.UserAuthToken,
		}
	}
	v.Set("current_context", GlobalConfig.CurrentContext)
	v.Set("contexts", contexts)

	if err := v.WriteConfigAs(CfgFile); err != nil {
		return fmt.Errorf("failed to save config to %s: %w", CfgFile, err)
	}
	return os.Chmod(CfgFile, 0o600)
}

// GetCurrentContext returns the active context.
func GetCurrentContext() (*Context, error) {
	if GlobalConfig == nil {
		return nil, errors.New("config not initialized")
	}
	if GlobalConfig.CurrentContext == "" {
		return nil, ErrNoContext
	}
	c, ok := GlobalConfig.Contexts[GlobalConfig.CurrentContext]
	if !ok {
		return nil, fmt.Errorf("current context '%s' not found in configuration", GlobalConfig.CurrentContext)
	}
	return c, nil
}
