package audittrail

import (
	"path/filepath"
	"testing"
	"time"

	"clawgate/internal/mediator"
)

func TestRecorder_RecordActionAndRead(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "audittrail.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	rec := NewRecorder(store, time.Second)

	rec.RecordAction(mediator.ActionEvent{
		PluginID: "gmail", Resource: "messages", ResourceID: "msg_1", Action: "reply",
		Phase: "execute", CapabilityID: "gmail.messages.reply", AgentID: "agent-1", StatusCode: 200,
	})
	rec.RecordRead(mediator.ReadEvent{
		PluginID: "gmail", Resource: "messages", View: "headers",
		CapabilityID: "gmail.messages", AgentID: "agent-1", StatusCode: 200,
	})

	events, err := store.Query(t.Context(), QueryOptions{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(events))
	}

	status, err := store.VerifyIntegrity(t.Context())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !status.Valid {
		t.Fatalf("expected valid chain, got %+v", status)
	}
}
