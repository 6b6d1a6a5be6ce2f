package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerforge/ledgerd/internal/config"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start a ledgerd validator node",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("cli: load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNode(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("cli: start node: %w", err)
	}
	defer func() {
		if err := n.Close(); err != nil {
			log.Error("shutdown error", "err", err)
		}
	}()

	log.Info("ledgerd started",
		"peer_listen_addr", cfg.Server.PeerListenAddr,
		"store_backend", cfg.Store.Backend,
		"persist_driver", cfg.Persist.Driver,
		"trusted_validators", len(cfg.Validators.Validators),
	)

	// Driving an actual closing round needs peers to exchange positions
	// with; the wire Transport that would connect this node to other
	// validators is the named out-of-scope collaborator (§1), so a
	// standalone server just keeps its collaborators alive and reports a
	// heartbeat. internal/simulate's RunRound exercises the full
	// StartRound/PeerPosition/Accept cycle this Engine is otherwise ready
	// to run the moment a real Transport hands it peer traffic.
	ticker := time.NewTicker(cfg.Consensus.Timing().IdleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
			open := n.master.CurrentOpen()
			log.Info("heartbeat", "open_seq", open.Sequence(), "trusted_validators", len(cfg.Validators.Validators))
		}
	}
}
