package cmd

import (
	"strings"

	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	verbose bool
	debug   bool
	Logger  logger.Logger

	RootCmd = &cobra.Command{
		Use:   "kowhai",
		Short: "Kōwhai - recover plaintext secrets from a write-only store",
		Long: `Kōwhai stores your environment secrets in a remote platform's write-only
secret store, and recovers their plaintext later by driving a one-shot
remote job that encrypts them back to you.

Recovery is coordinated through the repository itself: a branch acts as a
distributed lock, a temporary branch carries each job's payload, and the
encrypted result comes back as a committed file. Nothing sensitive ever
appears in job logs.

Run 'kowhai help <command>' for more details on a specific command.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			Logger = logger.Logger{
				Verbose: verbose,
				Debug:   debug,
			}
			Logger.Debugf("Initializing command with verbose=%t, debug=%t", verbose, debug)
		},
	}
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	RootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")

	// Accept snake_case spellings of flags, e.g. --base_branch.
	RootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}

// Helper functions for testing

// GetRootCmd returns the RootCmd for testing.
func GetRootCmd() *cobra.Command {
	return RootCmd
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	resetStoreCommandState()
	resetRecoverCommandState()
	resetInitCommandState()
}

// SetLogger sets the logger for testing.
func SetLogger(l logger.Logger) {
	Logger = l
}
