// Package audittrail implements a durable, append-only, hash-chained record
// of every request the mediator processed. It is observational: nothing in
// the request path reads it back to make a decision, and its absence never
// changes a mediation outcome. It exists so a human can reconstruct what an
// agent did after the fact.
package audittrail

import (
	"encoding/json"
	"time"
)

// Kind identifies which mediator pipeline produced an event.
type Kind string

const (
	KindAction Kind = "action"
	KindRead   Kind = "read"
)

// Event is a single audit record. PrevHash/EventHash form the tamper-evident
// chain; TraceID correlates every event a single inbound HTTP request
// produced (a propose followed later by its approved execute shares nothing,
// but a mediator call that fans out internally would).
type Event struct {
	EventID      string    `json:"event_id"`
	Timestamp    time.Time `json:"timestamp"`
	Kind         Kind      `json:"kind"`
	TraceID      string    `json:"trace_id,omitempty"`
	AgentID      string    `json:"agent_id"`
	PluginID     string    `json:"plugin_id"`
	Resource     string    `json:"resource,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	CapabilityID string    `json:"capability_id,omitempty"`
	Action       string    `json:"action,omitempty"`
	Phase        string    `json:"phase,omitempty"`
	View         string    `json:"view,omitempty"`
	StatusCode   int       `json:"status_code"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	PrevHash     string    `json:"prev_hash,omitempty"`
	EventHash    string    `json:"event_hash,omitempty"`
}

func (e *Event) String() string {
	b, _ := json.Marshal(e)
	return string(b)
}
