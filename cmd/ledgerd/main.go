// Command ledgerd is the node entrypoint: a thin cobra wrapper over
// internal/cli's server/validators/version subcommands.
package main

import "github.com/ledgerforge/ledgerd/internal/cli"

func main() {
	cli.Execute()
}
