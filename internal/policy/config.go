package policy

import "clawgate/internal/manifest"

// Overrides is an allow/require pattern set, either global or nested under
// a single plugin id.
type Overrides struct {
	Allow   []string `json:"allow,omitempty"`
	Require []string `json:"require,omitempty"`
}

// OverridesConfig is the decoded shape of ACTION_APPROVAL_OVERRIDES_JSON.
type OverridesConfig struct {
	Global  Overrides            `json:"global"`
	Plugins map[string]Overrides `json:"plugins"`
}

// Config is the full policy-engine configuration: the decoded environment
// plus fixed operational limits.
type Config struct {
	// BlockedDomains is fixed to {"blocked.example"} per the source's
	// open-question resolution (see DESIGN.md) rather than sourced from
	// configuration.
	BlockedDomains []string
	MaxLimit           int
	DefaultBodyMaxChars int
	RawReadEnabled     bool
	ApprovalDefaults   map[manifest.RiskTier]bool
	Overrides          OverridesConfig
}

// DefaultApprovalDefaults is the risk-tier approval default table from the
// component design, used when ACTION_APPROVAL_DEFAULTS_JSON doesn't
// override a tier.
func DefaultApprovalDefaults() map[manifest.RiskTier]bool {
	return map[manifest.RiskTier]bool{
		manifest.RiskReadOnly:      false,
		manifest.RiskRoutine:       false,
		manifest.RiskTransactional: true,
		manifest.RiskDangerous:     true,
	}
}

// DefaultConfig returns a Config usable with no environment overrides at
// all: the fixed blocked-domain list, generous limits, and the stock
// risk-tier defaults.
func DefaultConfig() Config {
	return Config{
		BlockedDomains:      []string{"blocked.example"},
		MaxLimit:            100,
		DefaultBodyMaxChars: 2000,
		RawReadEnabled:      false,
		ApprovalDefaults:    DefaultApprovalDefaults(),
	}
}
