package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes. The deployment watches these: 0 means the installation
// converged, anything else means a fatal condition needing attention.
const (
	// ExitCodeSuccess indicates convergence.
	ExitCodeSuccess = 0
	// ExitCodeError indicates any fatal condition: missing required
	// configuration, datastore unreachable, lock-acquisition timeout, or a
	// mandatory operation failing irrecoverably.
	ExitCodeError = 1
)

var configPath string

// rootCmd is the entry point when the binary is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "siteinit",
	Short: "Converge a multi-replica installation to its desired state",
	Long: `siteinit brings a multi-replica application deployment sharing one
relational datastore and one shared filesystem to a consistent desired
state. Replicas race for two datastore-backed locks; whichever wins
performs first-time setup and reconciles installed extensions and
sub-sites against the declarative configuration. Every replica exits 0
once the installation has converged.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI and exits the process on error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "siteinit version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/siteinit/config.yaml", "Path to the configuration file")
}
