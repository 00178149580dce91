package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var retryCmd = &cobra.Command{
	Use:   "retry <run-id>",
	Short: "Retry the failed executions of a finished suite run",
	Long: `Create a new suite run containing exactly the (scenario, language)
pairs that failed in the given run, then schedule it.

Example:
  voicectl retry 4f2c...`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		noSchedule, _ := cmd.Flags().GetBool("no-schedule")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the VOICEQA_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		retry, err := client.RetryFailedTests(args[0])
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ Retry run created!\nID: %s\nUnits: %d\n", retry.ID, retry.TotalTests)

		if noSchedule {
			return
		}

		scheduled, err := client.ScheduleSuiteRun(retry.ID)
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ Scheduled %d execution units\n", len(scheduled.TaskIDs))
	},
}

func init() {
	retryCmd.Flags().Bool("no-schedule", false, "Create the retry run without scheduling it")
	rootCmd.AddCommand(retryCmd)
}
