package gmail

import (
	"testing"

	"clawgate/internal/pluginapi"
)

func TestManifest_Valid(t *testing.T) {
	m, err := Manifest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "gmail" {
		t.Fatalf("unexpected id: %s", m.ID)
	}
	if len(m.Resources) != 1 || len(m.Actions) != 3 {
		t.Fatalf("unexpected manifest shape: %+v", m)
	}
}

func TestListResource_EmitsCounterpartyDomains(t *testing.T) {
	p := New()
	res, err := p.ListResource(t.Context(), "messages", pluginapi.ReadQuery{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, ok := res.Data.([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", res.Data)
	}
	if len(res.PolicyItems) != 2 {
		t.Fatalf("expected a policy item per message, got %+v", res.PolicyItems)
	}
}

func TestGetResource_UnknownIDIsNotFound(t *testing.T) {
	p := New()
	if _, err := p.GetResource(t.Context(), "messages", "msg_nope", pluginapi.ReadQuery{}); err == nil {
		t.Fatal("expected an error for an unknown message id")
	}
}

func TestGetResource_BodyViewContainsRawBody(t *testing.T) {
	p := New()
	res, err := p.GetResource(t.Context(), "messages", "msg_allowed", pluginapi.ReadQuery{View: "body"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape: %+v", res.Data)
	}
	if _, ok := data["body"].(string); !ok {
		t.Fatal("expected a body field")
	}
}

func TestRunAction_ReplyProposeThenExecuteAreSequenced(t *testing.T) {
	p := New()

	preview, err := p.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "reply", Resource: "messages", ResourceID: "msg_allowed", Phase: "propose", Args: map[string]any{"body": "On it"},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if preview.Summary == "" || len(preview.ProposedEffect) == 0 {
		t.Fatalf("expected a non-empty preview, got %+v", preview)
	}
	if preview.ProposedEffect["to"] != "dana@ok.example" {
		t.Fatalf("expected the proposed effect to name the recipient, got %+v", preview.ProposedEffect)
	}
	if preview.Result != nil {
		t.Fatalf("propose must not mutate state, got result %+v", preview.Result)
	}

	executed, err := p.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "reply", Resource: "messages", ResourceID: "msg_allowed", Phase: "execute", Args: map[string]any{"body": "On it"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result, ok := executed.Result.(map[string]any)
	if !ok || result["sent_message_id"] != "sent_reply_001" {
		t.Fatalf("unexpected execute result: %+v", executed.Result)
	}
}

func TestRunAction_ArchiveIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	p := New()

	first, err := p.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "archive", Resource: "messages", ResourceID: "msg_allowed", Phase: "execute",
	})
	if err != nil {
		t.Fatalf("first archive: %v", err)
	}
	second, err := p.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "archive", Resource: "messages", ResourceID: "msg_allowed", Phase: "execute",
	})
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if first.Result.(map[string]any)["archived"] != true || second.Result.(map[string]any)["archived"] != true {
		t.Fatalf("expected both archive calls to report archived=true: %+v, %+v", first.Result, second.Result)
	}
}

func TestRunAction_UnknownActionIsNotFound(t *testing.T) {
	p := New()
	if _, err := p.RunAction(t.Context(), pluginapi.ActionRequest{Action: "delete_everything"}); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}
