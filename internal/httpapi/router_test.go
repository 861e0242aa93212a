package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clawgate/internal/approval"
	"clawgate/internal/auth"
	"clawgate/internal/idempotency"
	"clawgate/internal/manifest"
	"clawgate/internal/mediator"
	"clawgate/internal/pluginapi"
	"clawgate/internal/policy"
	"clawgate/internal/registry"
)

type stubPlugin struct {
	readOut pluginapi.ReadResult
	runOut  pluginapi.ActionResult
}

func (p *stubPlugin) ListResource(ctx context.Context, resource string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	return p.readOut, nil
}

func (p *stubPlugin) GetResource(ctx context.Context, resource, resourceID string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	return p.readOut, nil
}

func (p *stubPlugin) RunAction(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	return p.runOut, nil
}

func testManifest() manifest.Manifest {
	return manifest.Manifest{
		ID: "gmail", RuntimeMode: manifest.RuntimeInProcess,
		Resources: []manifest.Resource{
			{Name: "messages", CapabilityID: "gmail.messages", AllowedViews: []manifest.View{manifest.ViewHeaders, manifest.ViewBody}},
		},
		Actions: []manifest.Action{
			{Name: "send", CapabilityID: "gmail.send", RiskTier: manifest.RiskRoutine, Mutating: true, RequiresIdempotency: true, SupportsPropose: false},
			{Name: "archive", Resource: "messages", CapabilityID: "gmail.messages.archive", RiskTier: manifest.RiskDangerous, Mutating: true, RequiresIdempotency: true, SupportsPropose: false},
		},
	}
}

func newTestServer(t *testing.T, plugin *stubPlugin) *httptest.Server {
	t.Helper()
	reg, err := registry.New([]registry.Entry{{Manifest: testManifest(), Plugin: plugin}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	pol, err := policy.NewEngine(policy.DefaultConfig())
	if err != nil {
		t.Fatalf("policy engine: %v", err)
	}
	m := mediator.New(reg, pol, approval.NewStore(), idempotency.NewStore(), nil)
	authSvc := auth.New(false, nil)
	mux := NewRouter("/v1", false, m, reg, authSvc)
	return httptest.NewServer(mux)
}

func TestRouter_ListPlugins(t *testing.T) {
	srv := newTestServer(t, &stubPlugin{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/plugins")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Plugins []manifest.Summary `json:"plugins"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Plugins) != 1 || body.Plugins[0].ID != "gmail" {
		t.Fatalf("unexpected plugins: %+v", body.Plugins)
	}
}

func TestRouter_GetPluginNotFound(t *testing.T) {
	srv := newTestServer(t, &stubPlugin{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/plugins/nope")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRouter_CollectionRead(t *testing.T) {
	srv := newTestServer(t, &stubPlugin{readOut: pluginapi.ReadResult{Data: []any{map[string]any{"id": "msg_1"}}}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/gmail/messages?limit=5")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRouter_GlobalActionExecute(t *testing.T) {
	srv := newTestServer(t, &stubPlugin{runOut: pluginapi.ActionResult{Status: pluginapi.StatusSuccess, Summary: "sent"}})
	defer srv.Close()

	payload, _ := json.Marshal(map[string]any{"idempotency_key": "idem-1", "args": map[string]any{"body": "hi"}})
	resp, err := http.Post(srv.URL+"/v1/gmail:send/execute", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRouter_ApprovalNotFound(t *testing.T) {
	srv := newTestServer(t, &stubPlugin{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/approvals/appr_doesnotexist")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRouter_ApprovalGateThenApprove(t *testing.T) {
	srv := newTestServer(t, &stubPlugin{runOut: pluginapi.ActionResult{
		Status: pluginapi.StatusSuccess, Summary: "archives a message", Result: map[string]any{"archived": true},
	}})
	defer srv.Close()

	payload, _ := json.Marshal(map[string]any{"idempotency_key": "idem-archive-1", "args": map[string]any{}})
	resp, err := http.Post(srv.URL+"/v1/gmail/messages/msg_1:archive/execute", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var needsApproval struct {
		ApprovalTicketID string `json:"approval_ticket_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&needsApproval); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if needsApproval.ApprovalTicketID == "" {
		t.Fatal("expected an approval_ticket_id")
	}

	approveResp, err := http.Post(srv.URL+"/v1/approvals/"+needsApproval.ApprovalTicketID+":approve", "application/json", nil)
	if err != nil {
		t.Fatalf("approve request: %v", err)
	}
	defer approveResp.Body.Close()
	if approveResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 approving, got %d", approveResp.StatusCode)
	}

	resp2, err := http.Post(srv.URL+"/v1/gmail/messages/msg_1:archive/execute", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("re-execute request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after approval, got %d", resp2.StatusCode)
	}
}

func TestRouter_ApprovalApproveUnknownVerb(t *testing.T) {
	srv := newTestServer(t, &stubPlugin{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/approvals/appr_x:nonsense", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
