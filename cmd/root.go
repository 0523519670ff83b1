package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/dmpath/internal/config"
)

var configPath string

// version is set at build time via -ldflags.
var version = "dev"

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
}

var rootCmd = &cobra.Command{
	Use:   "dmpath",
	Short: "dmpath: dynamic data models addressed by live dot paths",
	Long: `dmpath runs modules that publish typed data model trees and resolves
dot-separated paths into them. Paths stay live: they re-resolve as dynamic
children come and go and report when they become valid or invalid.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
