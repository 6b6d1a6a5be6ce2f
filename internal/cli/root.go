// Package cli wires ledgerd's node components behind a small cobra
// command surface: server (start a node), validators (dump the resolved
// UNL), and version. It mirrors the teacher's internal/cli package in
// spirit — a thin cobra.Command layer over the real loading/startup
// logic, not the full RPC/CLI surface the teacher exposes (replay,
// compare, rpc and friends stay the named-but-unimplemented HTTP/
// JSON-RPC collaborator from spec.md §1).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:     "ledgerd",
	Short:   "ledgerd - a payment-network validator node",
	Version: "0.1.0-dev",
}

// Execute runs the root command. Called once from cmd/ledgerd/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (empty uses built-in defaults)")
}
