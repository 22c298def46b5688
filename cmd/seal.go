package cmd

import (
	"github.com/PolarWolf314/kowhai/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	sealRequestPath string
	sealResultPath  string
)

func init() {
	sealCmd.Flags().StringVar(&sealRequestPath, "request", "payload.json", "path to the committed request manifest")
	sealCmd.Flags().StringVar(&sealResultPath, "result", "payload.json", "path to write the sealed result payload")

	RootCmd.AddCommand(sealCmd)
}

// sealCmd is the oracle side of the protocol, invoked by the recovery
// workflow inside the remote job. It is hidden because running it locally
// is never useful.
var sealCmd = &cobra.Command{
	Use:    "seal",
	Short:  "Seals requested secrets inside the remote recovery job",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := workflows.Seal(workflows.SealOptions{
			RequestPath: sealRequestPath,
			ResultPath:  sealResultPath,
			Logger:      Logger,
		})
		if err != nil {
			return err
		}
		Logger.Infof("sealed %d secrets into %s", len(result.Names), result.ResultPath)
		return nil
	},
}
