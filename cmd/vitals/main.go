package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "vitals",
	Short:         "Host vitals monitor: telemetry, health score, audits, auto-optimization and recovery",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vitals:", err)
		os.Exit(1)
	}
}
