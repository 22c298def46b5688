package cmd

import (
	"errors"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	"github.com/PolarWolf314/kowhai/internal/workflows"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	initOwner      string
	initRepo       string
	initBaseBranch string
)

func init() {
	initCmd.Flags().StringVar(&initOwner, "owner", "", "repository owner on the remote platform")
	initCmd.Flags().StringVar(&initRepo, "repo", "", "repository name on the remote platform")
	initCmd.Flags().StringVar(&initBaseBranch, "base-branch", "", "base branch for protocol refs (default: main)")

	RootCmd.AddCommand(initCmd)
}

// resetInitCommandState resets the init command's global state for testing.
func resetInitCommandState() {
	initOwner = ""
	initRepo = ""
	initBaseBranch = ""
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes the project for secret recovery",
	Long: `Sets up the current directory as a Kōwhai project: writes the project
configuration under .kowhai/ and installs the recovery workflow that runs
the remote half of the protocol.

Example:
  kowhai init --owner acme --repo platform`,
	Run: func(cmd *cobra.Command, args []string) {
		spinner, cleanup := startSpinner("Initializing Kōwhai...", verbose)
		defer cleanup()

		result, err := workflows.Init(workflows.InitOptions{
			Owner:      initOwner,
			Repo:       initRepo,
			BaseBranch: initBaseBranch,
			Logger:     Logger,
		})
		if err != nil {
			if errors.Is(err, kerrors.ErrProjectAlreadyInitialized) {
				spinner.FinalMSG = color.RedString("✗") + " Kōwhai has already been initialized\n" +
					color.CyanString("→") + " Run " + color.YellowString("kowhai store") + " to upload your secrets"
				return
			}
			printError("Failed to initialize project", err)
			return
		}

		myFigure := figure.NewColorFigure("Kowhai", "alligator2", "yellow", true)
		myFigure.Print()

		spinner.FinalMSG = color.GreenString("✓") + " Kōwhai initialized in " + color.CyanString(result.ProjectPath) + "\n" +
			color.CyanString("→") + " Commit " + color.YellowString(result.WorkflowPath) + " so the recovery job can run\n" +
			color.CyanString("→") + " Then run " + color.YellowString("kowhai store") + " to upload your secrets"
	},
}
