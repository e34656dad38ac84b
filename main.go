// ABOUTME: Entry point for the multitrack timeline player
// ABOUTME: Builds the command line and runs the player application
package main

import (
	"os"

	"github.com/Sendspin/multitrack-go/internal/cli"
	"github.com/Sendspin/multitrack-go/internal/config"
)

func main() {
	if err := cli.RootCommand(config.New()).Execute(); err != nil {
		os.Exit(1)
	}
}
