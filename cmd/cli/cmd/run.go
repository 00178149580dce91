package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/pkg/api"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create and schedule a suite run",
	Long: `Create a new suite run and immediately schedule it. The run fans out
into one execution unit per (scenario, language) pair.

Example:
  voicectl run --suite 4f2c... --languages en-US,de-DE
  voicectl run --scenarios a1b2...,c3d4... --languages en-US
  voicectl run --suite 4f2c... --no-schedule`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		suiteID, _ := flags.GetString("suite")
		scenarioIDs, _ := flags.GetStringSlice("scenarios")
		languages, _ := flags.GetStringSlice("languages")
		noSchedule, _ := flags.GetBool("no-schedule")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the VOICEQA_TOKEN environment variable")
			return
		}

		if suiteID == "" && len(scenarioIDs) == 0 {
			cmd.Println("Error: --suite or --scenarios is required")
			return
		}

		req := api.CreateSuiteRunRequest{ScenarioIDs: scenarioIDs}
		if suiteID != "" {
			req.SuiteID = &suiteID
		}
		if len(languages) > 0 {
			raw, _ := json.Marshal(languages)
			req.Languages = raw
		}

		client := NewClient(url, token)
		run, err := client.CreateSuiteRun(req)
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ Suite run created!\nID: %s\nTotal tests: %d\n", run.ID, run.TotalTests)

		if noSchedule {
			return
		}

		scheduled, err := client.ScheduleSuiteRun(run.ID)
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ Scheduled %d execution units\n", len(scheduled.TaskIDs))
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringP("suite", "s", "", "Suite id to run the active scenarios of")
	flags.StringSlice("scenarios", []string{}, "Explicit scenario ids (wins over --suite)")
	flags.StringSliceP("languages", "l", []string{}, "Languages to run each scenario in (default: en-US)")
	flags.Bool("no-schedule", false, "Create the run in pending state without scheduling it")

	rootCmd.AddCommand(runCmd)
}
