// Package main is the entry point for the voicectl CLI.
// The CLI is the developer terminal tool for interacting with the voice QA API.
package main

import (
	"os"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
