// Command learnbot is the entry point for the learnbot study assistant.
// It provides a CLI (via Cobra) for running the HTTP server and for
// ingesting study material into the vector store from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/learnbot-go/cmd/learnbot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
