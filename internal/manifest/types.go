// Package manifest holds the declarative description of a plugin: its
// identity, the resources it exposes for reading, and the actions it
// exposes for mutation or side-effectful work. A Manifest is the unit the
// registry indexes and the mediator consults to resolve a request.
package manifest

// RuntimeMode distinguishes a plugin hosted in the gateway process from one
// reached over the sidecar HTTP-JSON transport.
type RuntimeMode string

const (
	RuntimeInProcess RuntimeMode = "in_process"
	RuntimeSidecar   RuntimeMode = "sidecar"
)

// RiskTier classifies an action by how much damage a mistaken execution
// can do; it drives the approval-gating default in the policy engine.
type RiskTier string

const (
	RiskReadOnly      RiskTier = "read_only"
	RiskRoutine       RiskTier = "routine"
	RiskTransactional RiskTier = "transactional"
	RiskDangerous     RiskTier = "dangerous"
)

// View names a projection of a resource item that a single-item read may
// request.
type View string

const (
	ViewHeaders View = "headers"
	ViewBody    View = "body"
	ViewRaw     View = "raw"
)

// Manifest describes a single plugin.
type Manifest struct {
	SchemaVersion    int             `yaml:"schema_version" json:"schema_version"`
	ID               string          `yaml:"id" json:"id"`
	Name             string          `yaml:"name" json:"name"`
	Version          string          `yaml:"version" json:"version"`
	RuntimeMode      RuntimeMode     `yaml:"runtime_mode" json:"runtime_mode"`
	Resources        []Resource      `yaml:"resources" json:"resources"`
	Actions          []Action        `yaml:"actions" json:"actions"`
	RequiredSecrets  []string        `yaml:"required_secrets,omitempty" json:"required_secrets,omitempty"`
	RequiredScopes   []string        `yaml:"required_scopes,omitempty" json:"required_scopes,omitempty"`
	DefaultPolicy    string          `yaml:"default_policy,omitempty" json:"default_policy,omitempty"`
}

// Resource describes a readable entity family within a plugin.
type Resource struct {
	Name         string `yaml:"name" json:"name"`
	CapabilityID string `yaml:"capability_id" json:"capability_id"`
	AllowedViews []View `yaml:"allowed_views" json:"allowed_views"`
}

// AllowsView reports whether v is in r's allowed-views set.
func (r Resource) AllowsView(v View) bool {
	for _, av := range r.AllowedViews {
		if av == v {
			return true
		}
	}
	return false
}

// Action describes a named operation on a plugin or one of its resources.
type Action struct {
	Name               string   `yaml:"name" json:"name"`
	CapabilityID       string   `yaml:"capability_id" json:"capability_id"`
	ResourceType       string   `yaml:"resource_type,omitempty" json:"resource_type,omitempty"`
	RiskTier           RiskTier `yaml:"risk_tier" json:"risk_tier"`
	RoutePattern       string   `yaml:"route_pattern,omitempty" json:"route_pattern,omitempty"`
	SupportsPropose    bool     `yaml:"supports_propose" json:"supports_propose"`
	RequiresIdempotency bool    `yaml:"requires_idempotency" json:"requires_idempotency"`
	EmitsAttributes    []string `yaml:"emits_attributes" json:"emits_attributes"`
	// Resource is the resource name this action is bound to, or "" for a
	// plugin-global action (e.g. gmail:send with no resource instance).
	Resource string `yaml:"resource,omitempty" json:"resource,omitempty"`
	Mutating bool   `yaml:"mutating" json:"mutating"`
}

// IsGlobal reports whether a is a plugin-global action (not bound to a
// resource family).
func (a Action) IsGlobal() bool { return a.Resource == "" }

// Summary is the flattened listing shape returned by GET /plugins.
type Summary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	RuntimeMode RuntimeMode `json:"runtime_mode"`
}

// ToSummary projects m down to its listing summary.
func (m Manifest) ToSummary() Summary {
	return Summary{ID: m.ID, Name: m.Name, Version: m.Version, RuntimeMode: m.RuntimeMode}
}

// Capabilities flattens every capability id a manifest grants: its
// resources' and its actions'.
func (m Manifest) Capabilities() []string {
	caps := make([]string, 0, len(m.Resources)+len(m.Actions))
	for _, r := range m.Resources {
		caps = append(caps, r.CapabilityID)
	}
	for _, a := range m.Actions {
		caps = append(caps, a.CapabilityID)
	}
	return caps
}
