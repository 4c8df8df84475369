package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flags struct {
	configPath string
	mode       string
	site       string
	stateFile  string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "coupon-clipper [--config coupon_config.json] [--mode default|clean|attach] [--site key]",
	Short: "Clips digital grocery coupons in a real Chrome session.",
	Long: "coupon-clipper drives a Chrome window over the DevTools protocol and clicks every\n" +
		"\"clip\" button on a store's coupon page at a human pace. Press Ctrl+C to pause.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.configPath, "config", "coupon_config.json", "path to the config file (JSON5 or YAML)")
	f.StringVar(&flags.mode, "mode", "", "browser launch mode: default, clean or attach (asked when empty)")
	f.StringVar(&flags.site, "site", "", "site key to start with, skipping the menu")
	f.StringVar(&flags.stateFile, "state-file", "", "override storage.path for the progress store")
	f.StringVar(&flags.logLevel, "log-level", "", "override observability.log_level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
