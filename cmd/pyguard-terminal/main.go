// PyGuard Terminal — secure remote terminal gateway for the PyGuard CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pyguard-terminal",
	Short: "PyGuard Terminal — secure WebSocket terminal gateway for the PyGuard CLI.",
	Long: `PyGuard Terminal exposes a restricted shell over WebSocket. Every command
passes an allow-list and blocked-pattern check and a per-connection rate
limit before it is executed inside a sandboxed working directory with
output streamed back line by line.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
