package cmd

import (
	"os"

	"siteinit/internal/app"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a run would do, without doing it",
	Long: `Plan computes the reconciliation diff between the declarative
configuration and the observed state and prints it. No locks are taken
and nothing is changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		plan, err := a.Plan(cmd.Context())
		if err != nil {
			return err
		}
		plan.Render(os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
