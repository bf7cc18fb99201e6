// Package main provides the entry point for the agentboard server CLI.
package main

import (
	"fmt"
	"os"

	"github.com/agentboard-ai/agentboard/cmd/agentboard/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
