// Package unl maintains the local set of trusted validators: a scored
// graph of known validators built from several seed sources, periodically
// reduced to a top-N trusted set exposed to consensus as a single
// membership predicate.
package unl

// Source records where a validator entry came from. Sources differ in how
// much they're trusted by default, and a referral's score is earned purely
// from whoever referred it rather than carrying any of its own.
type Source int

const (
	SourceConfig Source = iota
	SourceManual
	SourceReferral
	SourceWeb
	SourceValidatorList
	SourceInbound
)

func (s Source) String() string {
	switch s {
	case SourceConfig:
		return "config"
	case SourceManual:
		return "manual"
	case SourceReferral:
		return "referral"
	case SourceWeb:
		return "web"
	case SourceValidatorList:
		return "validator-list"
	case SourceInbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// baseScore is the starting point value of a validator first seen from
// this source. Config and manual entries are operator-asserted and score
// highest; referrals and inbound connections carry no inherent trust of
// their own and earn a score only by being referred by an already-scored
// validator during distribution.
func (s Source) baseScore() int64 {
	switch s {
	case SourceConfig:
		return 1500
	case SourceManual:
		return 1500
	case SourceReferral:
		return 0
	case SourceWeb:
		return 200
	case SourceValidatorList:
		return 1000
	case SourceInbound:
		return 0
	default:
		return 0
	}
}

// Entry is one seed fact feeding the score graph: a validator's pubkey as
// reported by source, optionally naming other validators it refers.
type Entry struct {
	Pubkey    string
	Source    Source
	Referrals []string
}
