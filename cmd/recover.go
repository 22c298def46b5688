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

var (
	recoverOutput string
	recoverStdout bool
)

func init() {
	recoverCmd.Flags().StringVarP(&recoverOutput, "output", "o", ".env", "dotenv file to write, relative to the project root")
	recoverCmd.Flags().BoolVar(&recoverStdout, "stdout", false, "print values instead of writing a file")

	RootCmd.AddCommand(recoverCmd)
}

// resetRecoverCommandState resets the recover command's global state for testing.
func resetRecoverCommandState() {
	recoverOutput = ".env"
	recoverStdout = false
}

var recoverCmd = &cobra.Command{
	Use:   "recover [names...]",
	Short: "Recovers plaintext secrets through a remote encryption run",
	Long: `Runs the recovery protocol: acquires the coordination lock, dispatches a
one-shot remote job that encrypts the requested secrets, retrieves the
committed result, and decrypts it locally.

With no names, every stored secret is recovered. Recovery is all-or-nothing:
if any requested secret cannot be recovered and verified, nothing is
written.

Examples:
  kowhai recover                     # recover everything into .env
  kowhai recover DB_URL API_KEY      # recover two secrets
  kowhai recover --stdout DB_URL     # print instead of writing a file`,
	Run: func(cmd *cobra.Command, args []string) {
		sharedToken, err := promptForSharedToken()
		if err != nil {
			printError("Failed to read the shared recovery token", err)
			return
		}

		spinner, cleanup := startSpinner("Recovering secrets (this drives a remote job and may take a while)...", verbose)
		defer cleanup()

		opts := workflows.RecoverOptions{
			Names:       args,
			SharedToken: sharedToken,
			Logger:      Logger,
		}
		if !recoverStdout {
			opts.OutputPath = recoverOutput
		}

		result, err := workflows.Recover(context.Background(), opts)
		if err != nil {
			switch {
			case errors.Is(err, kerrors.ErrProjectNotInitialized):
				spinner.FinalMSG = color.RedString("✗") + " Kōwhai has not been initialized\n" +
					color.CyanString("→") + " Run " + color.YellowString("kowhai init") + " first"
			case errors.Is(err, kerrors.ErrLockTimeout):
				spinner.FinalMSG = color.RedString("✗") + " Another recovery is in progress\n" +
					color.CyanString("→") + " Try again once it finishes"
			case errors.Is(err, kerrors.ErrNoSecretsStored):
				spinner.FinalMSG = color.RedString("✗") + " Nothing has been stored yet\n" +
					color.CyanString("→") + " Run " + color.YellowString("kowhai store") + " first"
			case errors.Is(err, kerrors.ErrDecryptionFailed):
				spinner.FinalMSG = color.RedString("✗") + " A recovered payload failed verification; nothing was written"
			case errors.Is(err, kerrors.ErrJobFailed), errors.Is(err, kerrors.ErrJobTimedOut), errors.Is(err, kerrors.ErrDispatchRejected):
				spinner.FinalMSG = color.RedString("✗") + " " + err.Error()
			default:
				printError("Failed to recover secrets", err)
			}
			return
		}

		if recoverStdout {
			spinner.FinalMSG = ""
			for _, name := range result.Names {
				fmt.Printf("%s=%s\n", name, result.Values[name])
			}
			return
		}

		spinner.FinalMSG = color.GreenString("✓") + fmt.Sprintf(" Recovered %d secrets into ", len(result.Names)) +
			color.CyanString(result.OutputPath) + utils.FormatNames(result.Names)
	},
}

// promptForSharedToken asks for the shared recovery token when the project
// is configured for the symmetric scheme. Hybrid projects need no input, so
// the prompt is skipped unless the config says otherwise.
func promptForSharedToken() (string, error) {
	scheme, err := workflows.ConfiguredScheme()
	if err != nil || scheme != "symmetric-v1" {
		return "", nil
	}
	if !utils.IsInteractive() {
		return "", fmt.Errorf("the symmetric scheme needs an interactive terminal for the token prompt")
	}
	return utils.ReadToken("Shared recovery token: ")
}
