package main

import (
	"github.com/spf13/cobra"

	"github.com/brinkfs/nfsd/internal/config"
)

var cfgFile string

// rootCmd runs the server directly: nfsd has exactly one mode of
// operation, so there is no separate "serve" subcommand to invoke.
var rootCmd = &cobra.Command{
	Use:   "nfsd",
	Short: "A userspace NFSv3 server",
	Long: `nfsd serves NFSv3, MOUNT v3, and PORTMAP v2 over a configurable
set of host directories, exposed to clients through a path-list alias
file that can be edited and reloaded without restarting the server.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (yaml, json, or toml)")
	config.RegisterFlags(rootCmd.Flags())
}

// Execute runs the root command. Called once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command, for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}
