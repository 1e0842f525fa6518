// Proxiscan discovers nearby radio peripherals and network hosts and keeps a
// history of every scan.
//
// A scan runs one channel (radio or network) or both at once, shows the
// devices found while it runs, and saves a session when it stops. Saved
// sessions can be listed, filtered and deleted with the history commands,
// and served over HTTP with a WebSocket feed of live scan events.
//
// Usage:
//
//	proxiscan [command] [flags]
//
// See 'proxiscan --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/proxiscan/internal/config"
	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions holds the persistent flags and the configuration they
// resolve to. Commands read cfg after the root pre-run has loaded it.
type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "proxiscan",
		Short: "Proximity and network device scanner",
		Long: `Proxiscan discovers nearby radio peripherals and hosts on the local
network, shows them live while a scan runs, and saves each scan as a
session you can browse later.

Configuration is read from the OS config directory (see 'proxiscan config
path'), then from a .env file and PROXISCAN_* environment variables, and
finally from command-line flags.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	// Disable automatic completion command generation
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default is the OS config directory)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before PROXISCAN_* overrides")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")

	cmd.AddCommand(
		newScanCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *globalOptions) load() error {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
