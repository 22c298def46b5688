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

func init() {
	RootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the names of stored secrets",
	Long: `Lists the names of every secret in the remote store. The store is
write-only, so names are all it gives back; values require a recovery run.`,
	Run: func(cmd *cobra.Command, args []string) {
		spinner, cleanup := startSpinner("Listing secrets...", verbose)
		defer cleanup()

		result, err := workflows.List(context.Background(), workflows.ListOptions{Logger: Logger})
		if err != nil {
			switch {
			case errors.Is(err, kerrors.ErrProjectNotInitialized):
				spinner.FinalMSG = color.RedString("✗") + " Kōwhai has not been initialized\n" +
					color.CyanString("→") + " Run " + color.YellowString("kowhai init") + " first"
			case errors.Is(err, kerrors.ErrMissingToken):
				spinner.FinalMSG = color.RedString("✗") + " " + err.Error()
			default:
				printError("Failed to list secrets", err)
			}
			return
		}

		if len(result.Names) == 0 {
			spinner.FinalMSG = color.YellowString("!") + " No secrets stored yet\n" +
				color.CyanString("→") + " Run " + color.YellowString("kowhai store") + " to upload some"
			return
		}

		spinner.FinalMSG = color.GreenString("✓") + fmt.Sprintf(" %d secrets stored", len(result.Names)) +
			utils.FormatNames(result.Names)
	},
}
