// Package pluginapi defines the uniform contract every plugin — in-process
// or sidecar — implements. The mediator is unaware which kind of plugin it
// is talking to; both speak exactly this interface over the same value
// types.
package pluginapi

import "context"

// ReadQuery is the normalized shape of a collection or item read.
type ReadQuery struct {
	Limit    int
	Cursor   string
	Sort     string
	Q        string
	Filters  map[string]string
	MaxChars int
	View     string
}

// AttrValue is the tagged-union value a policy item attribute may hold.
// Only CounterpartyDomain (string) is ever inspected by the core; the rest
// of attrs passes through opaque to callers that care.
type AttrValue = any

// PolicyItem is an attestation a plugin emits about a returned datum.
// DataRef is "self", "result", or "items[N]" for an indexed collection
// element.
type PolicyItem struct {
	DataRef string
	Attrs   map[string]AttrValue
}

// CounterpartyDomain extracts the counterparty_domain attribute, if any.
func (p PolicyItem) CounterpartyDomain() (string, bool) {
	v, ok := p.Attrs["counterparty_domain"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ReadResult is what list_resource/get_resource return.
type ReadResult struct {
	Data        any
	NextCursor  string
	PolicyItems []PolicyItem
}

// ActionStatus is the plugin-attested outcome of run_action.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "success"
	StatusBlocked ActionStatus = "blocked"
)

// ActionResult is what run_action returns.
type ActionResult struct {
	Status         ActionStatus
	Result         any
	Summary        string
	ProposedEffect map[string]any
	PolicyItems    []PolicyItem
}

// ActionRequest is the normalized input to run_action.
type ActionRequest struct {
	Action     string
	Resource   string
	ResourceID string
	Phase      string // "propose" | "execute"
	Args       map[string]any
}

// Plugin is the uniform contract the mediator dispatches through. An
// in-process implementation and internal/sidecar.Client both satisfy it.
type Plugin interface {
	// ListResource returns a collection read for resource.
	ListResource(ctx context.Context, resource string, q ReadQuery) (ReadResult, error)
	// GetResource returns a single-item read for resource/resourceID.
	GetResource(ctx context.Context, resource, resourceID string, q ReadQuery) (ReadResult, error)
	// RunAction dispatches an action in the given phase.
	RunAction(ctx context.Context, req ActionRequest) (ActionResult, error)
}
