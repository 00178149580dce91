package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a pending or running suite run",
	Long: `Cancel a suite run. Queued execution units are dropped, in-flight
conversations stop after their current turn, and the untouched remainder
is counted as skipped.

Example:
  voicectl cancel 4f2c...`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the VOICEQA_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		run, err := client.CancelSuiteRun(args[0])
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ Run %s cancelled\nTotals: %d total, %d passed, %d failed, %d skipped\n",
			run.ID, run.TotalTests, run.PassedTests, run.FailedTests, run.SkippedTests)
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
