package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "voicectl",
	Short: "Voicectl is a command line tool for the voice assistant QA platform",
	Long: `voicectl is the command-line interface for the automated voice assistant
testing platform.

The platform executes multi-turn conversation scenarios against an NLU
provider, validates every turn against authored expectations, and tracks
the results per suite run.

Common workflows:

  Validate a scenario script locally:
    voicectl scenario validate wakeup.yaml

  Upload a scenario:
    voicectl scenario create wakeup.yaml

  Create and schedule a suite run:
    voicectl run --suite <suite-id> --languages en-US,de-DE

  Check run status:
    voicectl status <run-id>

  Cancel a run / retry its failures:
    voicectl cancel <run-id>
    voicectl retry <run-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    VOICEQA_URL      API endpoint (default: http://localhost:6161)
    VOICEQA_TOKEN    Tenant API Token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".voicectl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".voicectl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "VOICEQA_VARNAME"
	viper.SetEnvPrefix("VOICEQA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.voicectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API Token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
