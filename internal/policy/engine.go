// Package policy implements the gateway's policy engine: approval
// decisions by risk tier and override pattern, domain blocking, collection
// and single-item filtering, view gating, and text sanitization. It holds
// no mutable state after construction — every method is a pure function of
// its Config and arguments.
package policy

import (
	"regexp"
	"strings"

	"clawgate/internal/apierr"
	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@([^@\s]+)$`)

// domainKeys are the well-known action-argument keys the domain screen
// inspects. Each may hold a single string or a list of strings.
var domainKeys = []string{"to", "cc", "bcc", "principal", "counterparty"}

// Engine evaluates policy decisions. Regexes are precompiled once at
// construction, per the design notes.
type Engine struct {
	cfg       Config
	blocked   map[string]bool
	overrides OverridesConfig
}

// NewEngine builds an Engine, normalizing and validating override
// patterns. It returns an error if any pattern violates the
// trailing-wildcard-only rule.
func NewEngine(cfg Config) (*Engine, error) {
	if err := ValidateOverrides(cfg.Overrides); err != nil {
		return nil, err
	}
	if cfg.ApprovalDefaults == nil {
		cfg.ApprovalDefaults = DefaultApprovalDefaults()
	}

	blocked := make(map[string]bool, len(cfg.BlockedDomains))
	for _, d := range cfg.BlockedDomains {
		blocked[strings.ToLower(d)] = true
	}

	return &Engine{
		cfg:       cfg,
		blocked:   blocked,
		overrides: normalizedOverrides(cfg.Overrides),
	}, nil
}

// NormalizeLimit requires limit >= 1 and caps it at the configured max.
func (e *Engine) NormalizeLimit(limit int) (int, error) {
	if limit < 1 {
		return 0, apierr.New(apierr.KindValidation, "limit must be >= 1")
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit, nil
	}
	return limit, nil
}

// NormalizeMaxChars applies the default when maxChars is nil, otherwise
// requires >= 1 and caps at the configured default.
func (e *Engine) NormalizeMaxChars(maxChars *int) (int, error) {
	if maxChars == nil {
		return e.cfg.DefaultBodyMaxChars, nil
	}
	if *maxChars < 1 {
		return 0, apierr.New(apierr.KindValidation, "max_chars must be >= 1")
	}
	if *maxChars > e.cfg.DefaultBodyMaxChars {
		return e.cfg.DefaultBodyMaxChars, nil
	}
	return *maxChars, nil
}

// CheckIdempotencyRequired enforces that an execute against an action
// requiring idempotency carries a key.
func (e *Engine) CheckIdempotencyRequired(phase string, action manifest.Action, idempotencyKey string) error {
	if phase == "execute" && action.RequiresIdempotency && idempotencyKey == "" {
		return apierr.New(apierr.KindIdempotencyKeyRequired, "action %q requires an idempotency_key", action.Name)
	}
	return nil
}

// ScreenBlockedDomains extracts domains from the well-known argument keys
// and rejects the request if any resolves to a blocked domain.
func (e *Engine) ScreenBlockedDomains(args map[string]any) error {
	for _, domain := range extractDomains(args) {
		if e.blocked[strings.ToLower(domain)] {
			return apierr.New(apierr.KindPolicyBlocked, "domain %q is blocked", domain)
		}
	}
	return nil
}

// extractDomains pulls domains out of the well-known keys; each key may
// hold a scalar string or a list of strings.
func extractDomains(args map[string]any) []string {
	var domains []string
	for _, key := range domainKeys {
		v, ok := args[key]
		if !ok {
			continue
		}
		for _, s := range stringValues(v) {
			if m := emailPattern.FindStringSubmatch(s); m != nil {
				domains = append(domains, strings.ToLower(m[1]))
			}
		}
	}
	return domains
}

func stringValues(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// RequiresApproval implements the approval decision: always false for
// propose; otherwise plugin-scoped overrides, then global overrides, then
// the risk-tier default.
func (e *Engine) RequiresApproval(capabilityID string, tier manifest.RiskTier, phase string) bool {
	if phase == "propose" {
		return false
	}

	pluginID := capabilityID
	if i := strings.IndexByte(capabilityID, '.'); i >= 0 {
		pluginID = capabilityID[:i]
	}

	if ov, ok := e.overrides.Plugins[pluginID]; ok {
		if anyMatches(ov.Require, capabilityID) {
			return true
		}
		if anyMatches(ov.Allow, capabilityID) {
			return false
		}
	}

	if anyMatches(e.overrides.Global.Require, capabilityID) {
		return true
	}
	if anyMatches(e.overrides.Global.Allow, capabilityID) {
		return false
	}

	return e.cfg.ApprovalDefaults[tier]
}

// CheckViewGate rejects a raw-view read when raw reads are disabled.
func (e *Engine) CheckViewGate(view manifest.View) error {
	if view == manifest.ViewRaw && !e.cfg.RawReadEnabled {
		return apierr.New(apierr.KindPolicyBlocked, "raw view reads are disabled")
	}
	return nil
}

// BlockedIndices returns the set of zero-based collection indices whose
// policy item attests a blocked counterparty_domain, for items addressed
// as "items[N]".
func (e *Engine) BlockedIndices(items []pluginapi.PolicyItem) map[int]bool {
	blocked := make(map[int]bool)
	for _, item := range items {
		n, ok := parseItemsRef(item.DataRef)
		if !ok {
			continue
		}
		if domain, ok := item.CounterpartyDomain(); ok && e.blocked[strings.ToLower(domain)] {
			blocked[n] = true
		}
	}
	return blocked
}

// CheckSingleItem enforces single-item denial: any policy item (data_ref
// "self" or "result") with a blocked counterparty_domain rejects the
// request.
func (e *Engine) CheckSingleItem(items []pluginapi.PolicyItem) error {
	for _, item := range items {
		if domain, ok := item.CounterpartyDomain(); ok && e.blocked[strings.ToLower(domain)] {
			return apierr.New(apierr.KindPolicyBlocked, "counterparty domain %q is blocked", domain)
		}
	}
	return nil
}

func parseItemsRef(ref string) (int, bool) {
	const prefix, suffix = "items[", "]"
	if !strings.HasPrefix(ref, prefix) || !strings.HasSuffix(ref, suffix) {
		return 0, false
	}
	digits := ref[len(prefix) : len(ref)-len(suffix)]
	n := 0
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
