package cmd

import (
	"context"
	"errors"
	"strings"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	"github.com/PolarWolf314/kowhai/internal/workflows"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(removeCmd)
}

var removeCmd = &cobra.Command{
	Use:   "remove <name>...",
	Short: "Removes secrets from the remote store",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		spinner, cleanup := startSpinner("Removing secrets...", verbose)
		defer cleanup()

		var removed []string
		for _, name := range args {
			result, err := workflows.Remove(context.Background(), workflows.RemoveOptions{
				Name:   name,
				Logger: Logger,
			})
			if err != nil {
				switch {
				case errors.Is(err, kerrors.ErrProjectNotInitialized):
					spinner.FinalMSG = color.RedString("✗") + " Kōwhai has not been initialized\n" +
						color.CyanString("→") + " Run " + color.YellowString("kowhai init") + " first"
				case errors.Is(err, kerrors.ErrSecretNotFound):
					spinner.FinalMSG = color.RedString("✗") + " No secret named " + color.YellowString(name)
				default:
					printError("Failed to remove secret", err)
				}
				return
			}
			removed = append(removed, result.Name)
		}

		spinner.FinalMSG = color.GreenString("✓") + " Removed " + color.YellowString(strings.Join(removed, ", "))
	},
}
