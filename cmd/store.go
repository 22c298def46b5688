package cmd

import (
	"context"
	"errors"
	"fmt"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	"github.com/PolarWolf314/kowhai/internal/utils"
	"github.com/PolarWolf314/kowhai/internal/workflows"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var storePatterns []string

func init() {
	storeCmd.Flags().StringSliceVarP(&storePatterns, "pattern", "p", nil, "dotenv glob patterns relative to the project root")

	RootCmd.AddCommand(storeCmd)
}

// resetStoreCommandState resets the store command's global state for testing.
func resetStoreCommandState() {
	storePatterns = nil
}

var storeCmd = &cobra.Command{
	Use:   "store [globs...]",
	Short: "Uploads dotenv values to the write-only secret store",
	Long: `Discovers the project's dotenv files and stores every value in the remote
platform's secret store under its normalized name.

The store is write-only: once uploaded, values cannot be read back through
any API. Recovering plaintext requires a full recovery run.

Examples:
  kowhai store                       # store values from the conventional .env files
  kowhai store -p "config/*.env"     # store values from a custom location`,
	Run: func(cmd *cobra.Command, args []string) {
		spinner, cleanup := startSpinner("Storing secrets...", verbose)
		defer cleanup()

		result, err := workflows.Store(context.Background(), workflows.StoreOptions{
			Patterns: append(storePatterns, args...),
			Logger:   Logger,
		})
		if err != nil {
			switch {
			case errors.Is(err, kerrors.ErrProjectNotInitialized):
				spinner.FinalMSG = color.RedString("✗") + " Kōwhai has not been initialized\n" +
					color.CyanString("→") + " Run " + color.YellowString("kowhai init") + " first"
			case errors.Is(err, kerrors.ErrNoFilesFound):
				spinner.FinalMSG = color.RedString("✗") + " No dotenv files found"
			case errors.Is(err, kerrors.ErrMissingToken):
				spinner.FinalMSG = color.RedString("✗") + " " + err.Error()
			default:
				printError("Failed to store secrets", err)
			}
			return
		}

		spinner.FinalMSG = color.GreenString("✓") + fmt.Sprintf(" Stored %d secrets from %d files", len(result.Names), len(result.Files)) +
			utils.FormatNames(result.Names)
	},
}
