// Command signalctl runs engine cycles and prints indicator readings.
package main

import (
	"os"

	"crypto-signals/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
