package registry

import (
	"testing"

	"clawgate/internal/apierr"
	"clawgate/internal/manifest"
)

func gmailEntry() Entry {
	return Entry{
		Manifest: manifest.Manifest{
			ID:          "gmail",
			RuntimeMode: manifest.RuntimeInProcess,
			Resources: []manifest.Resource{
				{Name: "messages", CapabilityID: "gmail.messages", AllowedViews: []manifest.View{manifest.ViewBody}},
			},
			Actions: []manifest.Action{
				{Name: "reply", Resource: "messages", CapabilityID: "gmail.messages.reply"},
				{Name: "send", CapabilityID: "gmail.send"},
			},
		},
	}
}

func TestNew_RejectsDuplicatePluginID(t *testing.T) {
	_, err := New([]Entry{gmailEntry(), gmailEntry()})
	if err == nil {
		t.Fatal("expected error for duplicate plugin id")
	}
}

func TestResolveAction(t *testing.T) {
	reg, err := New([]Entry{gmailEntry()})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := reg.ResolveAction("gmail", "reply", "messages"); err != nil {
		t.Fatalf("expected resolve to succeed: %v", err)
	}
	if _, err := reg.ResolveAction("gmail", "send", ""); err != nil {
		t.Fatalf("expected global action to resolve: %v", err)
	}
	if _, err := reg.ResolveAction("gmail", "send", "messages"); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("expected NOT_FOUND for mismatched resource, got %v", err)
	}
	if _, err := reg.ResolveAction("nope", "send", ""); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown plugin, got %v", err)
	}
}

func TestResolveResource(t *testing.T) {
	reg, err := New([]Entry{gmailEntry()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.ResolveResource("gmail", "messages"); err != nil {
		t.Fatalf("expected resolve to succeed: %v", err)
	}
	if _, err := reg.ResolveResource("gmail", "playlists"); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
