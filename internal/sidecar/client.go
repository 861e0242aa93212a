// Package sidecar implements the plugin contract as an HTTP-JSON client
// against a remote sidecar process, so that the mediator can dispatch to a
// sidecar plugin through the exact same pluginapi.Plugin interface it uses
// for in-process plugins.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clawgate/internal/apierr"
	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
)

const secretHeader = "X-Clawgate-Sidecar-Secret"

const defaultTimeout = 5 * time.Second

// Config describes one sidecar plugin endpoint, as decoded from
// SIDECAR_PLUGINS_JSON.
type Config struct {
	ID             string `json:"id"`
	BaseURL        string `json:"base_url"`
	SharedSecret   string `json:"shared_secret,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Client is a pluginapi.Plugin backed by an HTTP-JSON sidecar.
type Client struct {
	id           string
	baseURL      string
	sharedSecret string
	http         *http.Client
}

// NewClient builds a Client for cfg.
func NewClient(cfg Config) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		id:           cfg.ID,
		baseURL:      cfg.BaseURL,
		sharedSecret: cfg.SharedSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

// FetchManifest retrieves and validates the sidecar's manifest, checking
// that its id matches the configured id.
func (c *Client) FetchManifest(ctx context.Context) (*manifest.Manifest, error) {
	var m manifest.Manifest
	if err := c.do(ctx, http.MethodGet, "/plugin/manifest", nil, &m); err != nil {
		return nil, err
	}
	if m.ID != c.id {
		return nil, apierr.New(apierr.KindSidecarBadResponse, "sidecar manifest id %q does not match configured id %q", m.ID, c.id)
	}
	if err := manifest.Validate(&m); err != nil {
		return nil, apierr.New(apierr.KindSidecarBadResponse, "sidecar %q: %v", c.id, err)
	}
	return &m, nil
}

// readPayload is the wire shape of a list/get response, once any {"data":
// ...} envelope has already been unwrapped by do.
type readPayload struct {
	Data        any                    `json:"data"`
	NextCursor  string                 `json:"next_cursor"`
	PolicyItems []pluginapi.PolicyItem `json:"policy_items"`
}

// actionPayload is the wire shape of a run_action response, once any
// {"data": ...} envelope has already been unwrapped by do.
type actionPayload struct {
	Status         pluginapi.ActionStatus `json:"status"`
	Result         any                    `json:"result"`
	Summary        string                 `json:"summary"`
	ProposedEffect map[string]any         `json:"proposed_effect"`
	PolicyItems    []pluginapi.PolicyItem `json:"policy_items"`
}

// ListResource implements pluginapi.Plugin.
func (c *Client) ListResource(ctx context.Context, resource string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	var payload readPayload
	path := fmt.Sprintf("/plugin/resources/%s/list", resource)
	if err := c.do(ctx, http.MethodPost, path, readQueryBody(q), &payload); err != nil {
		return pluginapi.ReadResult{}, err
	}
	return pluginapi.ReadResult{Data: payload.Data, NextCursor: payload.NextCursor, PolicyItems: payload.PolicyItems}, nil
}

// GetResource implements pluginapi.Plugin.
func (c *Client) GetResource(ctx context.Context, resource, resourceID string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	var payload readPayload
	path := fmt.Sprintf("/plugin/resources/%s/%s/get", resource, resourceID)
	body := map[string]any{"view": q.View, "query": readQueryBody(q)}
	if err := c.do(ctx, http.MethodPost, path, body, &payload); err != nil {
		return pluginapi.ReadResult{}, err
	}
	return pluginapi.ReadResult{Data: payload.Data, NextCursor: payload.NextCursor, PolicyItems: payload.PolicyItems}, nil
}

// RunAction implements pluginapi.Plugin.
func (c *Client) RunAction(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	var payload actionPayload
	path := fmt.Sprintf("/plugin/actions/%s/%s", req.Action, req.Phase)
	body := map[string]any{"resource": req.Resource, "resource_id": req.ResourceID, "args": req.Args}
	if err := c.do(ctx, http.MethodPost, path, body, &payload); err != nil {
		return pluginapi.ActionResult{}, err
	}
	return pluginapi.ActionResult{
		Status:         payload.Status,
		Result:         payload.Result,
		Summary:        payload.Summary,
		ProposedEffect: payload.ProposedEffect,
		PolicyItems:    payload.PolicyItems,
	}, nil
}

func readQueryBody(q pluginapi.ReadQuery) map[string]any {
	return map[string]any{
		"limit":     q.Limit,
		"cursor":    q.Cursor,
		"sort":      q.Sort,
		"q":         q.Q,
		"filters":   q.Filters,
		"max_chars": q.MaxChars,
	}
}

// do performs one sidecar HTTP-JSON round trip, mapping transport failures
// onto the sidecar error kinds from spec §4.7. A top-level {"data": ...}
// envelope is unwrapped before out is populated.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sidecar: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("sidecar: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sharedSecret != "" {
		req.Header.Set(secretHeader, c.sharedSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.New(apierr.KindSidecarUnreachable, "sidecar %q unreachable: %v", c.id, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.New(apierr.KindSidecarUnreachable, "sidecar %q: reading response: %v", c.id, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return apierr.New(apierr.KindNotFound, "sidecar %q: %s", c.id, string(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.New(apierr.KindSidecarHTTPError, "sidecar %q returned %d: %s", c.id, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}

	var asMap map[string]any
	if err := json.Unmarshal(respBody, &asMap); err != nil {
		return apierr.New(apierr.KindSidecarBadResponse, "sidecar %q: expected a JSON object response", c.id)
	}

	payload := respBody
	if data, ok := asMap["data"]; ok {
		unwrapped, err := json.Marshal(data)
		if err != nil {
			return apierr.New(apierr.KindSidecarBadResponse, "sidecar %q: %v", c.id, err)
		}
		payload = unwrapped
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return apierr.New(apierr.KindSidecarBadResponse, "sidecar %q: %v", c.id, err)
	}
	return nil
}

var _ pluginapi.Plugin = (*Client)(nil)
