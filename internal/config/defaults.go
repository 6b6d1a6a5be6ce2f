package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/ledgerforge/ledgerd/internal/consensus"
	"github.com/ledgerforge/ledgerd/internal/persist"
	"github.com/ledgerforge/ledgerd/internal/store"
)

// DefaultConfig matches rippled's long-published defaults where
// consensus.DefaultTiming already carries them, and picks sensible
// embedded-first defaults elsewhere (sqlite over postgres, pebble over
// leveldb), same spirit as the teacher's own defaults.go.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			PeerListenAddr: "0.0.0.0:51235",
			PeerCacheSize:  128,
			UNLSize:        33,
		},
		Consensus:      consensusConfigFromTiming(consensus.DefaultTiming()),
		Store:          *store.DefaultConfig(),
		Persist:        *persist.DefaultConfig(),
		ValidatorsFile: "validators.toml",
	}
}

// setDefaults seeds a viper instance with DefaultConfig's values so an
// absent config file, or a file that only overrides a handful of keys,
// still produces a fully-populated Config after Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("node.seed", d.Node.Seed)

	v.SetDefault("server.peer_listen_addr", d.Server.PeerListenAddr)
	v.SetDefault("server.peer_cache_size", d.Server.PeerCacheSize)
	v.SetDefault("server.unl_size", d.Server.UNLSize)

	v.SetDefault("consensus.idle_interval", d.Consensus.IdleInterval)
	v.SetDefault("consensus.init_pct", d.Consensus.InitPct)
	v.SetDefault("consensus.mid_pct", d.Consensus.MidPct)
	v.SetDefault("consensus.late_pct", d.Consensus.LatePct)
	v.SetDefault("consensus.stuck_pct", d.Consensus.StuckPct)
	v.SetDefault("consensus.mid_time_pct", d.Consensus.MidTimePct)
	v.SetDefault("consensus.late_time_pct", d.Consensus.LateTimePct)
	v.SetDefault("consensus.stuck_time_pct", d.Consensus.StuckTimePct)
	v.SetDefault("consensus.close_time_pct", d.Consensus.CloseTimePct)
	v.SetDefault("consensus.retry_passes", d.Consensus.RetryPasses)
	v.SetDefault("consensus.total_passes", d.Consensus.TotalPasses)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.cache_size", d.Store.CacheSize)
	v.SetDefault("store.cache_ttl", d.Store.CacheTTL)
	v.SetDefault("store.compressor", d.Store.Compressor)
	v.SetDefault("store.compression_level", d.Store.CompressionLevel)

	v.SetDefault("persist.driver", d.Persist.Driver)
	v.SetDefault("persist.path", d.Persist.Path)
	v.SetDefault("persist.ssl_mode", d.Persist.SSLMode)
	v.SetDefault("persist.max_open_conns", d.Persist.MaxOpenConns)
	v.SetDefault("persist.max_idle_conns", d.Persist.MaxIdleConns)
	v.SetDefault("persist.query_timeout", d.Persist.QueryTimeout)
	v.SetDefault("persist.validation_write_buffer", d.Persist.ValidationWriteBuffer)

	v.SetDefault("validators_file", d.ValidatorsFile)
}

// envReplacer turns nested keys like "store.cache_size" into the
// LEDGERD_STORE_CACHE_SIZE environment variable viper's AutomaticEnv
// looks for.
func envReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}
