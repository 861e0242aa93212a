package mediator

import (
	"context"
	"sync"

	"clawgate/internal/approval"
	"clawgate/internal/auth"
	"clawgate/internal/idempotency"
	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
	"clawgate/internal/policy"
	"clawgate/internal/registry"
)

// fakePlugin is an in-memory pluginapi.Plugin double used across mediator
// tests. It records every RunAction call and lets a test script canned
// results per (action, phase).
type fakePlugin struct {
	mu      sync.Mutex
	calls   []pluginapi.ActionRequest
	results map[string]pluginapi.ActionResult // keyed by action+":"+phase
	readOut pluginapi.ReadResult
	readErr error
}

func (f *fakePlugin) RunAction(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if r, ok := f.results[req.Action+":"+req.Phase]; ok {
		return r, nil
	}
	return pluginapi.ActionResult{Status: pluginapi.StatusSuccess, Summary: "ok"}, nil
}

func (f *fakePlugin) ListResource(ctx context.Context, resource string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	return f.readOut, f.readErr
}

func (f *fakePlugin) GetResource(ctx context.Context, resource, resourceID string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	return f.readOut, f.readErr
}

func gmailManifest() manifest.Manifest {
	return manifest.Manifest{
		ID:          "gmail",
		RuntimeMode: manifest.RuntimeInProcess,
		Resources: []manifest.Resource{
			{Name: "messages", CapabilityID: "gmail.messages", AllowedViews: []manifest.View{manifest.ViewHeaders, manifest.ViewBody}},
		},
		Actions: []manifest.Action{
			{Name: "reply", Resource: "messages", CapabilityID: "gmail.messages.reply", RiskTier: manifest.RiskDangerous, Mutating: true, RequiresIdempotency: true, SupportsPropose: true, EmitsAttributes: []string{"counterparty_domain"}},
			{Name: "send", CapabilityID: "gmail.send", RiskTier: manifest.RiskTransactional, Mutating: true, RequiresIdempotency: true, SupportsPropose: false, EmitsAttributes: []string{"counterparty_domain"}},
		},
	}
}

func newTestMediator(plugin *fakePlugin) *Mediator {
	reg, err := registry.New([]registry.Entry{{Manifest: gmailManifest(), Plugin: plugin}})
	if err != nil {
		panic(err)
	}
	pol, err := policy.NewEngine(policy.DefaultConfig())
	if err != nil {
		panic(err)
	}
	return New(reg, pol, approval.NewStore(), idempotency.NewStore(), nil)
}

var fullPrincipal = auth.Principal{AgentID: "a", NetworkIdentity: "*", Capabilities: []string{"*"}}
