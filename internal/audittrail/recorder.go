package audittrail

import (
	"context"
	"log/slog"
	"time"

	"clawgate/internal/mediator"
)

// Recorder adapts a Store to the mediator's AuditRecorder interface. A nil
// *Recorder is never constructed; callers that want no audit trail pass a
// nil mediator.AuditRecorder instead.
type Recorder struct {
	Store   *Store
	Timeout time.Duration
}

// NewRecorder wires a Store into the mediator pipelines. timeout bounds each
// individual write; zero means 5s.
func NewRecorder(store *Store, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{Store: store, Timeout: timeout}
}

// RecordAction implements mediator.AuditRecorder.
func (r *Recorder) RecordAction(evt mediator.ActionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	err := r.Store.Record(ctx, &Event{
		Kind: KindAction, AgentID: evt.AgentID, PluginID: evt.PluginID,
		Resource: evt.Resource, ResourceID: evt.ResourceID, CapabilityID: evt.CapabilityID,
		Action: evt.Action, Phase: evt.Phase, StatusCode: evt.StatusCode,
		ErrorKind: evt.ErrorKind, DurationMS: evt.Duration.Milliseconds(),
	})
	if err != nil {
		slog.Warn("failed to record action audit event", "plugin_id", evt.PluginID, "action", evt.Action, "err", err)
	}
}

// RecordRead implements mediator.AuditRecorder.
func (r *Recorder) RecordRead(evt mediator.ReadEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	err := r.Store.Record(ctx, &Event{
		Kind: KindRead, AgentID: evt.AgentID, PluginID: evt.PluginID,
		Resource: evt.Resource, ResourceID: evt.ResourceID, CapabilityID: evt.CapabilityID,
		View: evt.View, StatusCode: evt.StatusCode, ErrorKind: evt.ErrorKind,
		DurationMS: evt.Duration.Milliseconds(),
	})
	if err != nil {
		slog.Warn("failed to record read audit event", "plugin_id", evt.PluginID, "resource", evt.Resource, "err", err)
	}
}
