package main

import (
	"fmt"

	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and report every error found.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			configPath = args[0]
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		errs := cfg.Validate()
		if len(errs) > 0 {
			fmt.Fprintln(out, "❌ Configuration is invalid:")
			for _, e := range errs {
				fmt.Fprintf(out, "  - %v\n", e)
			}
			return fmt.Errorf("%d validation errors", len(errs))
		}

		fmt.Fprintln(out, "✅ Configuration is valid")
		fmt.Fprintf(out, "  storage:  %s\n", cfg.Storage.Path)
		fmt.Fprintf(out, "  browser:  %s\n", cfg.Browser.Engine)
		if cfg.Telegram.Enabled {
			fmt.Fprintf(out, "  telegram: enabled (token %s)\n", config.MaskTelegramToken(cfg.Telegram.Token))
		} else {
			fmt.Fprintln(out, "  telegram: disabled")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
