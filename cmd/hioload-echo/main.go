// File: cmd/hioload-echo/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-echo serves a line command protocol over TCP and WebSocket.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hioload-echo",
		Short: "Line command server built on hioload-session",
		Long: `hioload-echo accepts text commands, one per line on TCP and one per
message on WebSocket, and answers them:

  ECHO <text>      replies with text
  ADD <n>...       replies with the sum
  MULT <n>...      replies with the product
  QUIT             replies BYE and closes

Any other command is answered with "Unknown request: <command>".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hioload-echo %s (%s)\n", version, commit)
		},
	}
}
