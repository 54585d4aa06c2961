package cli

import (
	"github.com/spf13/cobra"

	"address-route-optimizer/internal/app"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the result history and the geocode and distance caches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Reset(ctx); err != nil {
			return err
		}
		cmd.Println("Results and caches cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
