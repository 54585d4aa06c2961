// Package cli implements the routeopt command line.
package cli

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"address-route-optimizer/internal/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "routeopt",
	Short: "Order a list of addresses into a short driving tour",
	Long: `Reads addresses from a spreadsheet, builds a distance or duration matrix
with Google, OSRM or straight-line distances, finds a short tour through
them and prints a Google Maps directions link.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetOutput(cmd.ErrOrStderr())
		} else {
			log.SetOutput(io.Discard)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every provider request")
}

// Execute runs the root command until it returns or ctx is cancelled
func Execute(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the configured file and environment overrides
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
