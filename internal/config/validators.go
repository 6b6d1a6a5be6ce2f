package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/ledgerforge/ledgerd/internal/unl"
)

// ValidatorEntry names one statically-trusted validator. Pubkey is
// hex-encoded the way an operator would paste it into a TOML file; the
// teacher's own validators.toml carries a "TODO ensure proper parsing of
// pub key (eg: remove ED prefix)" note for the same reason rippled's own
// validator keys carry a type prefix byte the base-58 codec strips — that
// codec is the named out-of-scope address collaborator, so this config
// layer only ever deals in the raw compressed secp256k1 point.
type ValidatorEntry struct {
	Pubkey  string `mapstructure:"pubkey"`
	Comment string `mapstructure:"comment"`
}

// ValidatorsConfig is validators.toml's shape: a flat list of trusted
// validators, scoped down from the teacher's validator-list-site/
// threshold fields (that HTTP validator-list fetcher is the named
// out-of-scope collaborator — only directly-configured entries load here).
type ValidatorsConfig struct {
	Validators []ValidatorEntry `mapstructure:"validators"`
}

// Validate checks every entry decodes as a plausible compressed
// secp256k1 public key (33 bytes, leading 0x02/0x03).
func (v ValidatorsConfig) Validate() error {
	for i, entry := range v.Validators {
		raw, err := hex.DecodeString(entry.Pubkey)
		if err != nil {
			return fmt.Errorf("validator %d: pubkey is not valid hex: %w", i, err)
		}
		if len(raw) != 33 || (raw[0] != 0x02 && raw[0] != 0x03) {
			return fmt.Errorf("validator %d: pubkey must be a 33-byte compressed secp256k1 point", i)
		}
	}
	return nil
}

// Entries converts the configured validators into unl.Entry values ready
// for unl.List.Refresh, using unl.SourceConfig (operator-asserted, the
// highest base trust score).
func (v ValidatorsConfig) Entries() ([]unl.Entry, error) {
	entries := make([]unl.Entry, 0, len(v.Validators))
	for i, ve := range v.Validators {
		raw, err := hex.DecodeString(ve.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("validator %d: decode pubkey: %w", i, err)
		}
		entries = append(entries, unl.Entry{
			Pubkey: string(raw),
			Source: unl.SourceConfig,
		})
	}
	return entries, nil
}

// loadValidators reads path (if it exists) as a validators.toml document.
// A missing file is not an error: a node with no statically-configured
// validators is a legitimate (if trust-empty) deployment, matching the
// teacher's own loadValidatorsConfig fallback.
func loadValidators(path string) (*ValidatorsConfig, error) {
	if path == "" {
		return &ValidatorsConfig{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &ValidatorsConfig{}, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read validators file %s: %w", path, err)
	}

	var validators ValidatorsConfig
	if err := v.Unmarshal(&validators); err != nil {
		return nil, fmt.Errorf("config: unmarshal validators file %s: %w", path, err)
	}
	return &validators, nil
}
