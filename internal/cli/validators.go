package cli

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerforge/ledgerd/internal/config"
	"github.com/ledgerforge/ledgerd/internal/unl"
)

var validatorsCmd = &cobra.Command{
	Use:   "validators",
	Short: "Print the resolved unique node list",
	RunE:  runValidators,
}

func init() {
	rootCmd.AddCommand(validatorsCmd)
}

func runValidators(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("cli: load config: %w", err)
	}

	entries, err := cfg.Validators.Entries()
	if err != nil {
		return fmt.Errorf("cli: resolve validator entries: %w", err)
	}

	list := unl.NewList(cfg.Server.UNLSize)
	list.Refresh(entries)

	if len(entries) == 0 {
		fmt.Println("no statically-configured validators")
		return nil
	}

	for i, e := range entries {
		comment := ""
		if i < len(cfg.Validators.Validators) {
			comment = cfg.Validators.Validators[i].Comment
		}
		trusted := list.InUNL([]byte(e.Pubkey))
		fmt.Printf("%s  trusted=%v  %s\n", hex.EncodeToString([]byte(e.Pubkey)), trusted, comment)
	}
	return nil
}
