// Package mediator implements the end-to-end request pipelines: the action
// mediator (resolve → authorize → validate → idempotency → approval →
// dispatch → enforce → record) and the read mediator (resolve → authorize
// → normalize → dispatch → filter/sanitize). Both are the only place that
// calls into a plugin; everything upstream of them is pure in-memory
// bookkeeping.
package mediator

import (
	"log/slog"

	"clawgate/internal/approval"
	"clawgate/internal/auth"
	"clawgate/internal/idempotency"
	"clawgate/internal/policy"
	"clawgate/internal/registry"
)

// AuditRecorder receives an observation of every mediated request,
// synchronously and with no return value, so a recording failure never
// changes the response. It is ambient — a nil Recorder is valid and simply means no
// trail is kept.
type AuditRecorder interface {
	RecordAction(evt ActionEvent)
	RecordRead(evt ReadEvent)
}

// Mediator wires the resolved components the request pipelines dispatch
// through.
type Mediator struct {
	Registry    *registry.Registry
	Policy      *policy.Engine
	Approvals   *approval.Store
	Idempotency *idempotency.Store
	Audit       AuditRecorder
}

// New builds a Mediator from its dependencies.
func New(reg *registry.Registry, pol *policy.Engine, approvals *approval.Store, idem *idempotency.Store, audit AuditRecorder) *Mediator {
	return &Mediator{Registry: reg, Policy: pol, Approvals: approvals, Idempotency: idem, Audit: audit}
}

func logStep(step string, attrs ...any) {
	slog.Debug("mediator step", append([]any{"step", step}, attrs...)...)
}

// authorize is a thin wrapper kept here so both action.go and read.go call
// through one place; it exists for symmetry with the rest of the pipeline
// steps, which are all methods on Mediator.
func authorize(p auth.Principal, capabilityID string) error {
	return auth.Authorize(p, capabilityID)
}
