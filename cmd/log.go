package cmd

import (
	"errors"
	"fmt"
	"strings"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	"github.com/PolarWolf314/kowhai/internal/workflows"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(logCmd)
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Shows the project's audit history",
	Long: `Displays the audit log of secret operations: who stored, recovered, or
removed what, and when. Entries never contain secret values.`,
	Run: func(cmd *cobra.Command, args []string) {
		spinner, cleanup := startSpinner("Loading audit log...", verbose)
		defer cleanup()

		result, err := workflows.Log(workflows.LogOptions{Logger: Logger})
		if err != nil {
			if errors.Is(err, kerrors.ErrProjectNotInitialized) {
				spinner.FinalMSG = color.RedString("✗") + " Kōwhai has not been initialized\n" +
					color.CyanString("→") + " Run " + color.YellowString("kowhai init") + " first"
				return
			}
			printError("Failed to read audit log", err)
			return
		}

		if len(result.Entries) == 0 {
			spinner.FinalMSG = color.YellowString("!") + " No audit entries yet"
			return
		}

		var b strings.Builder
		for _, entry := range result.Entries {
			b.WriteString(fmt.Sprintf("%s  %-8s %s\n",
				entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
				entry.Operation,
				strings.Join(entry.Names, ", ")))
		}
		spinner.FinalMSG = b.String()
	},
}
