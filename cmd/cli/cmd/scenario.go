package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/scenario"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Manage conversation scenario definitions",
}

var scenarioValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a scenario definition locally",
	Long: `Validate a scenario definition file against the scenario schema without
uploading it. Accepts YAML or JSON.

Example:
  voicectl scenario validate wakeup.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw, err := loadDefinition(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		def, steps, err := scenario.Parse(raw)
		if err != nil {
			cmd.Printf("✗ %s is not a valid scenario: %v\n", args[0], err)
			return
		}

		cmd.Printf("✓ %s is valid\nName: %s\nSteps: %d\n", args[0], def.Name, len(steps))
	},
}

var scenarioCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Upload a scenario definition",
	Long: `Validate a scenario definition file and upload it to the platform.
Accepts YAML or JSON.

Example:
  voicectl scenario create wakeup.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the VOICEQA_TOKEN environment variable")
			return
		}

		raw, err := loadDefinition(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		// Validate locally before the round-trip.
		def, _, err := scenario.Parse(raw)
		if err != nil {
			cmd.Printf("✗ %s is not a valid scenario: %v\n", args[0], err)
			return
		}

		client := NewClient(url, token)
		result, err := client.CreateScenario(raw)
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		cmd.Printf("✓ Scenario created!\nID: %s\nName: %s\n", result.ScenarioID, def.Name)
	},
}

// loadDefinition reads a scenario file and normalizes YAML to JSON.
func loadDefinition(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return raw, nil
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return json.Marshal(doc)
}

func printAPIError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}

func init() {
	scenarioCmd.AddCommand(scenarioValidateCmd)
	scenarioCmd.AddCommand(scenarioCreateCmd)
	rootCmd.AddCommand(scenarioCmd)
}
