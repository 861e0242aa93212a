package weathersidecar

import (
	"net/http/httptest"
	"testing"

	"clawgate/internal/pluginapi"
	"clawgate/internal/sidecar"
)

func newTestClient(t *testing.T, secret string) (*sidecar.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(NewServer(secret).Handler())
	t.Cleanup(srv.Close)
	client := sidecar.NewClient(sidecar.Config{ID: "weather", BaseURL: srv.URL, SharedSecret: secret})
	return client, srv
}

func TestManifest_Valid(t *testing.T) {
	m, err := Manifest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "weather" || m.RuntimeMode != "sidecar" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestFetchManifest_OverHTTP(t *testing.T) {
	client, _ := newTestClient(t, "s3cr3t")

	m, err := client.FetchManifest(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "weather" {
		t.Fatalf("unexpected id: %s", m.ID)
	}
}

func TestListResource_OverHTTP(t *testing.T) {
	client, _ := newTestClient(t, "s3cr3t")

	res, err := client.ListResource(t.Context(), "forecasts", pluginapi.ReadQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, ok := res.Data.([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 forecasts, got %+v", res.Data)
	}
}

func TestGetResource_UnknownCityIsNotFound(t *testing.T) {
	client, _ := newTestClient(t, "")

	_, err := client.GetResource(t.Context(), "forecasts", "atlantis", pluginapi.ReadQuery{})
	if err == nil {
		t.Fatal("expected an error for an unknown city")
	}
}

func TestRunAction_RefreshRequiresCity(t *testing.T) {
	client, _ := newTestClient(t, "")

	res, err := client.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "refresh", Resource: "forecasts", Phase: "execute", Args: map[string]any{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != pluginapi.StatusBlocked {
		t.Fatalf("expected blocked status, got %q", res.Status)
	}
}

func TestRunAction_ProposeThenExecute(t *testing.T) {
	client, _ := newTestClient(t, "")

	propose, err := client.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "refresh", Resource: "forecasts", ResourceID: "nyc", Phase: "propose",
		Args: map[string]any{"city": "nyc"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if propose.Summary == "" || len(propose.ProposedEffect) == 0 {
		t.Fatalf("expected a populated preview, got %+v", propose)
	}
	if propose.ProposedEffect["city"] != "nyc" {
		t.Fatalf("expected the proposed effect to name the city, got %+v", propose.ProposedEffect)
	}

	execute, err := client.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "refresh", Resource: "forecasts", ResourceID: "nyc", Phase: "execute",
		Args: map[string]any{"city": "nyc"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if execute.Status != pluginapi.StatusSuccess {
		t.Fatalf("expected success, got %+v", execute)
	}

	got, err := client.GetResource(t.Context(), "forecasts", "nyc", pluginapi.ReadQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["summary"] == "partly cloudy, 18C" {
		t.Fatalf("expected the forecast to have been refreshed, got %+v", got.Data)
	}
}

func TestSharedSecret_RejectsMissingHeader(t *testing.T) {
	srv := httptest.NewServer(NewServer("s3cr3t").Handler())
	defer srv.Close()

	client := sidecar.NewClient(sidecar.Config{ID: "weather", BaseURL: srv.URL})
	_, err := client.FetchManifest(t.Context())
	if err == nil {
		t.Fatal("expected an error when the shared secret header is missing")
	}
}
