package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"address-route-optimizer/internal/app"
	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/sheet"
)

var (
	solveStart   string
	solveMode    string
	solveBackend string
	solveJSON    bool
)

var solveCmd = &cobra.Command{
	Use:   "solve [file]",
	Short: "Compute a tour for an .xlsx or .csv address sheet",
	Long: `Reads the "Adresse 1", "Code postal" and "Ville" columns of the sheet,
routes the addresses and prints the directions link followed by every address
or leg that could not be resolved. The result is kept in the history.`,
	Args: cobra.ExactArgs(1),
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&solveStart, "start", "", "start address, prepended to the tour")
	solveCmd.Flags().StringVar(&solveMode, "mode", "", "optimize for duration or distance")
	solveCmd.Flags().StringVar(&solveBackend, "backend", "", "matrix backend: auto, matrix, osrm or coordinate")
	solveCmd.Flags().BoolVar(&solveJSON, "json", false, "output the full result as JSON")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	filename := args[0]
	ctx := commandContext(cmd)

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}
	rows, err := sheet.Read(filename, f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if solveBackend != "" {
		cfg.Backend = solveBackend
	}

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Pipeline(solveStart, solveMode)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, rows)
	if err != nil {
		return fmt.Errorf("routing failed: %w", err)
	}

	errs := result.Report.Errors()
	if err := a.Store.Results().Add(ctx, &models.StoredResult{
		RunID:    result.RunID,
		Filename: filepath.Base(filename),
		URL:      result.URL,
		Backend:  result.Backend,
		Errors:   errs,
	}); err != nil {
		cmd.PrintErrf("warning: result not saved: %v\n", err)
	}

	if solveJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(result.URL)
	for _, e := range errs {
		cmd.Println(e)
	}
	for _, w := range result.Report.Warnings {
		cmd.PrintErrf("warning: %s\n", w)
	}
	return nil
}
