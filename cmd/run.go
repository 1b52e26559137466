package cmd

import (
	"siteinit/internal/app"
	"siteinit/pkg/logging"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full init sequence",
	Long: `Run waits for the shared datastore, performs first-time setup under
the bootstrap lock if needed, and reconciles extensions and sub-sites
under the configuration lock. Safe to run from any number of replicas
concurrently; the sequence is idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Run(cmd.Context()); err != nil {
			logging.Error("Run", err, "Init sequence failed")
			return err
		}
		logging.Info("Run", "Installation converged")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
