// Package config loads ledgerd's node configuration the way the teacher
// loads xrpld's: spf13/viper layering defaults, a TOML file, and
// LEDGERD_-prefixed environment variables into one struct, plus a
// separate validators.toml feeding the UNL. It does not reimplement
// rippled's own config-file grammar (port_* sections, the ssl_verify
// integer flags, and the rest of rippled.cfg's idiosyncrasies remain the
// named out-of-scope config-parsing-rules collaborator) — it is scoped to
// what this node actually needs to start.
package config

import (
	"fmt"
	"time"

	"github.com/ledgerforge/ledgerd/internal/consensus"
	"github.com/ledgerforge/ledgerd/internal/persist"
	"github.com/ledgerforge/ledgerd/internal/store"
)

// NodeConfig is the local validator identity.
type NodeConfig struct {
	// Seed is a hex-encoded 32-byte secp256k1 scalar. Empty generates a
	// fresh ephemeral identity at startup, fine for a non-voting peer or
	// a throwaway devnet node but not for a validator that needs a
	// stable identity across restarts.
	Seed string `mapstructure:"seed"`
}

// ServerConfig is the peer-listening surface.
type ServerConfig struct {
	PeerListenAddr string `mapstructure:"peer_listen_addr"`
	PeerCacheSize  int    `mapstructure:"peer_cache_size"`

	// UNLSize bounds how many validators unl.List keeps trusted after
	// scoring (its topN). Rippled-family deployments commonly run with a
	// few dozen trusted validators; this just needs to be at least the
	// number of statically-configured entries to keep them all trusted.
	UNLSize int `mapstructure:"unl_size"`
}

// ConsensusConfig overrides consensus.DefaultTiming. Every field mirrors
// consensus.Timing directly; see SPEC_FULL.md §6 item 2 for why these
// are operator-tunable rather than hardcoded.
type ConsensusConfig struct {
	IdleInterval time.Duration `mapstructure:"idle_interval"`

	InitPct  int `mapstructure:"init_pct"`
	MidPct   int `mapstructure:"mid_pct"`
	LatePct  int `mapstructure:"late_pct"`
	StuckPct int `mapstructure:"stuck_pct"`

	MidTimePct   int `mapstructure:"mid_time_pct"`
	LateTimePct  int `mapstructure:"late_time_pct"`
	StuckTimePct int `mapstructure:"stuck_time_pct"`

	CloseTimePct int `mapstructure:"close_time_pct"`

	RetryPasses int `mapstructure:"retry_passes"`
	TotalPasses int `mapstructure:"total_passes"`
}

// Timing converts to the consensus package's own type.
func (c ConsensusConfig) Timing() consensus.Timing {
	return consensus.Timing{
		IdleInterval: c.IdleInterval,
		InitPct:      c.InitPct,
		MidPct:       c.MidPct,
		LatePct:      c.LatePct,
		StuckPct:     c.StuckPct,
		MidTimePct:   c.MidTimePct,
		LateTimePct:  c.LateTimePct,
		StuckTimePct: c.StuckTimePct,
		CloseTimePct: c.CloseTimePct,
		RetryPasses:  c.RetryPasses,
		TotalPasses:  c.TotalPasses,
	}
}

func consensusConfigFromTiming(t consensus.Timing) ConsensusConfig {
	return ConsensusConfig{
		IdleInterval: t.IdleInterval,
		InitPct:      t.InitPct,
		MidPct:       t.MidPct,
		LatePct:      t.LatePct,
		StuckPct:     t.StuckPct,
		MidTimePct:   t.MidTimePct,
		LateTimePct:  t.LateTimePct,
		StuckTimePct: t.StuckTimePct,
		CloseTimePct: t.CloseTimePct,
		RetryPasses:  t.RetryPasses,
		TotalPasses:  t.TotalPasses,
	}
}

// Config is the complete node configuration.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Server    ServerConfig    `mapstructure:"server"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Store     store.Config    `mapstructure:"store"`
	Persist   persist.Config  `mapstructure:"persist"`

	// ValidatorsFile names the validators.toml to load; relative paths
	// resolve next to the main config file. See validators.go.
	ValidatorsFile string `mapstructure:"validators_file"`

	// Validators is populated by Load from ValidatorsFile, not from the
	// main config file itself (mapstructure:"-" keeps viper from trying
	// to unmarshal it out of the main document).
	Validators ValidatorsConfig `mapstructure:"-"`

	configPath string
}

// ConfigPath returns the main config file path Load was given, or "" if
// the config came from defaults and environment only.
func (c *Config) ConfigPath() string { return c.configPath }

// Validate checks field-level invariants and delegates to each embedded
// component's own Validate.
func (c *Config) Validate() error {
	if c.Node.Seed != "" {
		if _, err := decodeSeed(c.Node.Seed); err != nil {
			return fmt.Errorf("config: node.seed: %w", err)
		}
	}
	if c.Server.PeerListenAddr == "" {
		return fmt.Errorf("config: server.peer_listen_addr must be set")
	}
	if c.Server.PeerCacheSize <= 0 {
		return fmt.Errorf("config: server.peer_cache_size must be positive")
	}
	if c.Server.UNLSize <= 0 {
		return fmt.Errorf("config: server.unl_size must be positive")
	}
	if err := validateConsensus(c.Consensus); err != nil {
		return fmt.Errorf("config: consensus: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Persist.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Validators.Validate(); err != nil {
		return fmt.Errorf("config: validators: %w", err)
	}
	return nil
}

func validateConsensus(c ConsensusConfig) error {
	for name, pct := range map[string]int{
		"init_pct": c.InitPct, "mid_pct": c.MidPct, "late_pct": c.LatePct, "stuck_pct": c.StuckPct,
		"close_time_pct": c.CloseTimePct,
	} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %d", name, pct)
		}
	}
	if c.RetryPasses <= 0 || c.TotalPasses < c.RetryPasses {
		return fmt.Errorf("total_passes must be >= retry_passes, both positive")
	}
	return nil
}
