package main

import (
	"os"

	"github.com/soyeahso/taskpilot/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Restart in place when the binary is rebuilt.
	go autorestart.RestartOnChange()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
