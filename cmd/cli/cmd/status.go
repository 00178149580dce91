package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the status of a suite run",
	Long: `Show a suite run's state and counters, optionally with its per-execution
breakdown.

Example:
  voicectl status 4f2c...
  voicectl status 4f2c... --executions`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showExecutions, _ := cmd.Flags().GetBool("executions")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the VOICEQA_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		run, err := client.GetSuiteRun(args[0])
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("Run:     %s\n", run.ID)
		cmd.Printf("Status:  %s\n", run.Status)
		cmd.Printf("Totals:  %d total, %d passed, %d failed, %d skipped\n",
			run.TotalTests, run.PassedTests, run.FailedTests, run.SkippedTests)
		if run.SourceRunID != nil {
			cmd.Printf("Retry of: %s\n", *run.SourceRunID)
		}

		if !showExecutions {
			return
		}

		executions, err := client.ListExecutions(args[0])
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Println()
		for _, e := range executions.Executions {
			review := ""
			if e.HasPendingReview {
				review = " (review pending)"
			}
			cmd.Printf("  %s  %-11s  %s [%s]  step %d/%d%s\n",
				e.ID, e.Status, e.ScenarioID, e.Language, e.CurrentStep, e.TotalSteps, review)
			if e.ErrorMessage != nil {
				cmd.Printf("      error: %s\n", *e.ErrorMessage)
			}
		}
	},
}

func init() {
	statusCmd.Flags().BoolP("executions", "e", false, "List the run's executions")
	rootCmd.AddCommand(statusCmd)
}
