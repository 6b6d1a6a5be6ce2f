package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ledgerforge/ledgerd/internal/signer"
)

// Load reads configuration the teacher's own LoadConfig does: defaults,
// then an optional TOML file at path, then LEDGERD_-prefixed environment
// variables, then the validators file named by validators_file (resolved
// relative to path's directory). An empty path skips the file layer
// entirely and returns a config built from defaults and environment only
// — useful for tests and for a quick standalone run.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config: file does not exist: %s", path)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("LEDGERD")
	v.SetEnvKeyReplacer(envReplacer())
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.configPath = path

	validatorsPath := cfg.ValidatorsFile
	if validatorsPath != "" && path != "" && !filepath.IsAbs(validatorsPath) {
		validatorsPath = filepath.Join(filepath.Dir(path), validatorsPath)
	}
	validators, err := loadValidators(validatorsPath)
	if err != nil {
		return nil, err
	}
	cfg.Validators = *validators

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSigner builds the node's signing identity from Node.Seed, or
// generates a fresh ephemeral one if Seed is empty.
func LoadSigner(cfg *Config) (*signer.Secp256k1Signer, error) {
	if cfg.Node.Seed == "" {
		return signer.Generate()
	}
	raw, err := decodeSeed(cfg.Node.Seed)
	if err != nil {
		return nil, fmt.Errorf("config: node.seed: %w", err)
	}
	return signer.FromPrivateKeyBytes(raw)
}

func decodeSeed(seed string) ([]byte, error) {
	raw, err := hex.DecodeString(seed)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(raw))
	}
	return raw, nil
}
