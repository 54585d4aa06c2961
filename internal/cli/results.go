package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"address-route-optimizer/internal/app"
	"address-route-optimizer/internal/database"
	"address-route-optimizer/internal/models"
)

var resultsJSON bool

var resultsCmd = &cobra.Command{
	Use:   "results [run-id]",
	Short: "List resolved files, or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
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

	var results []models.StoredResult
	if len(args) == 1 {
		r, err := a.Store.Results().Get(ctx, args[0])
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("no result with run id %s", args[0])
		}
		if err != nil {
			return err
		}
		results = append(results, *r)
	} else {
		results, err = a.Store.Results().List(ctx)
		if err != nil {
			return err
		}
	}

	if resultsJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results yet.")
		return nil
	}
	for _, r := range results {
		cmd.Printf("%s  %s  %s  (%s)\n", r.CreatedAt.Local().Format("2006-01-02 15:04"), r.RunID, r.Filename, r.Backend)
		cmd.Printf("    %s\n", r.URL)
		for _, e := range r.Errors {
			cmd.Printf("    ! %s\n", e)
		}
	}
	return nil
}
