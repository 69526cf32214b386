package cmd

import (
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-auth/cmd/authctl/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage authctl configuration and contexts",
	Aliases: []string{"cfg"},
}

var getContextsCmd = &cobra.Command{
	Use:     "get-contexts",
	Short:   "Display the configured contexts",
	Aliases: []string{"get"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(config.GlobalConfig.Contexts) == 0 {
			cmd.Println("No contexts defined.")
			return nil
		}

		// Tokens are never printed.
		redacted := make(map[string]config.Context, len(config.GlobalConfig.Contexts))
		for name, c := range config.GlobalConfig.Contexts {
			entry := *c
			if entry.UserAuthToken != "" {
				entry.UserAuthToken = "<set>"
			}
			redacted[name] = entry
		}

		out, err := yaml.Marshal(redacted)
		if err != nil {
			return fmt.Errorf("failed to marshal contexts to YAML: %w", err)
		}
		cmd.Print(string(out))
		cmd.Printf("Current context: %s\n", config.GlobalConfig.CurrentContext)
		return nil
	},
}

var useContextCmd = &cobra.Command{
	Use:     "use-context CONTEXT_NAME",
	Short:   "Sets the current context",
	Aliases: []string{"use"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if _, ok := config.GlobalConfig.Contexts[name]; !ok {
			return fmt.Errorf("context '%s' not found", name)
		}
		config.GlobalConfig.CurrentContext = name
		if err := config.SaveConfig(); err != nil {
			return err
		}
		cmd.Printf("Switched to context %q.\n", name)
		return nil
	},
}

var setContextCmd = &cobra.Command{
	Use:     "set-context CONTEXT_NAME",
	Short:   "Creates or updates a context",
	Aliases: []string{"set"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		server, _ := cmd.Flags().GetString("server")
		if server == "" {
			return errors.New("--server flag is required")
		}

		entry, ok := config.GlobalConfig.Contexts[name]
		if !ok {
			entry = &config.Context{Name: name}
			config.GlobalConfig.Contexts[name] = entry
		}
		if entry.ServerEndpoint != server {
			// A token is only valid for the server that issued it.
			entry.UserAuthToken = ""
		}
		entry.ServerEndpoint = server

		if config.GlobalConfig.CurrentContext == "" {
			config.GlobalConfig.CurrentContext = name
		}
		if err := config.SaveConfig(); err != nil {
			return err
		}
		cmd.Printf("Context %q created/modified.\n", name)
		return nil
	},
}

var currentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Displays the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.GlobalConfig.CurrentContext == "" {
			cmd.Println("No current context is set.")
			return nil
		}
		cmd.Println(config.GlobalConfig.CurrentContext)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(getContextsCmd, useContextCmd, setContextCmd, currentContextCmd)

	setContextCmd.Flags().String("server", "", "base URL of the shadow-auth server, e.g. http://localhost:8080")
}
