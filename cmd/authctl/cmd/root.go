package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pilab-dev/shadow-auth/cmd/authctl/config"
	"github.com/pilab-dev/shadow-auth/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	appLogger log.Logger
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           config.AppName,
	Short:         "authctl is a CLI tool for the shadow-auth API",
	Long:          `A command-line client for shadow-auth: fetch captchas, register, log in and inspect the current identity.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		appLogger = log.NewZerologAdapter(level, true)

		if err := config.InitConfig(); err != nil {
			appLogger.Error(cmd.Context(), "Failed to initialize configuration", err)
			return err
		}
		appLogger.Debug(cmd.Context(), "config loaded", log.Fields{"file": config.CfgFile})
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
