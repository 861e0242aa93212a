// Package httpapi is the gateway's HTTP edge: it parses the surface in
// spec §6 into mediator/registry/approval calls and writes responses. It
// never embeds business logic itself — every decision is made downstream
// by the mediator, policy, registry, or approval packages; this package
// only parses requests and serializes results.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"clawgate/internal/apierr"
	"clawgate/internal/approval"
	"clawgate/internal/auth"
	"clawgate/internal/manifest"
	"clawgate/internal/mediator"
	"clawgate/internal/registry"
)

// Router wires the gateway's HTTP surface to its mediated request
// pipelines. NewRouter builds one and returns the *http.ServeMux to serve.
type Router struct {
	Mediator  *mediator.Mediator
	Registry  *registry.Registry
	Auth      *auth.Service
	Approvals *approval.Store
}

// reservedQueryKeys never flow into a read's filters map.
var reservedQueryKeys = map[string]bool{"limit": true, "cursor": true, "sort": true, "q": true, "max_chars": true}

// NewRouter builds the mux for prefix (e.g. "/v1"), optionally mirroring
// every route under "/api" as well when alias is true, per
// ENABLE_API_ALIAS. The approval endpoints share m's own approval store, so
// a ticket created by the action mediator is immediately visible to
// GET/approve/deny.
func NewRouter(prefix string, alias bool, m *mediator.Mediator, reg *registry.Registry, authSvc *auth.Service) *http.ServeMux {
	rt := &Router{Mediator: m, Registry: reg, Auth: authSvc, Approvals: m.Approvals}

	mux := http.NewServeMux()
	rt.register(mux, prefix)
	if alias {
		rt.register(mux, "/api")
	}
	return mux
}

func (rt *Router) register(mux *http.ServeMux, prefix string) {
	p := func(pattern string) string { return prefix + pattern }

	mux.HandleFunc("GET "+p("/plugins"), rt.handleListPlugins)
	mux.HandleFunc("GET "+p("/plugins/{plugin_id}"), rt.handleGetPlugin)
	mux.HandleFunc("GET "+p("/plugins/{plugin_id}/capabilities"), rt.handleGetCapabilities)

	mux.HandleFunc("GET "+p("/approvals/{id}"), rt.handleGetApproval)
	mux.HandleFunc("POST "+p("/approvals/{id}"), rt.handleApprovalTransition)

	mux.HandleFunc("POST "+p("/{plugin_action}/{phase}"), func(w http.ResponseWriter, r *http.Request) {
		switch phase := r.PathValue("phase"); phase {
		case "propose", "execute":
			rt.handleGlobalAction(phase)(w, r)
		default:
			apierr.WriteJSON(w, apierr.New(apierr.KindNotFound, "unrecognized action path"))
		}
	})

	mux.HandleFunc("POST "+p("/{plugin_id}/{resource}/{resource_action}/propose"), rt.handleResourceAction("propose"))
	mux.HandleFunc("POST "+p("/{plugin_id}/{resource}/{resource_action}/execute"), rt.handleResourceAction("execute"))

	mux.HandleFunc("GET "+p("/{plugin_id}/{resource}"), rt.handleCollectionRead)
	mux.HandleFunc("GET "+p("/{plugin_id}/{resource}/{resource_id}"), rt.handleItemRead)
	mux.HandleFunc("GET "+p("/{plugin_id}/{resource}/{resource_id}/{view}"), rt.handleViewRead)
}

// splitColon splits "name:suffix" into (name, suffix) at the last colon; a
// segment with no colon is rejected. It is how every `{x}:{y}` path segment in spec §6 is recovered from
// the single literal segment stdlib's router hands back.
func splitColon(segment string) (string, string, bool) {
	i := strings.LastIndexByte(segment, ':')
	if i < 0 {
		return "", "", false
	}
	return segment[:i], segment[i+1:], true
}

func (rt *Router) authenticate(r *http.Request) (auth.Principal, error) {
	return rt.Auth.Authenticate(r)
}

func decodeJSONBody(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		return apierr.New(apierr.KindValidation, "invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func parseQueryInt(values map[string][]string, key string, fallback int) int {
	v := values[key]
	if len(v) == 0 || v[0] == "" {
		return fallback
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return fallback
	}
	return n
}

func parseOptionalInt(values map[string][]string, key string) *int {
	v := values[key]
	if len(v) == 0 || v[0] == "" {
		return nil
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return nil
	}
	return &n
}

func extractFilters(query map[string][]string) map[string]string {
	filters := make(map[string]string)
	for k, v := range query {
		if reservedQueryKeys[k] || len(v) == 0 {
			continue
		}
		filters[k] = v[0]
	}
	return filters
}

// --- Plugin registry endpoints ---

func (rt *Router) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plugins": rt.Registry.List()})
}

func (rt *Router) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	entry, err := rt.Registry.Get(r.PathValue("plugin_id"))
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.Manifest)
}

func (rt *Router) handleGetCapabilities(w http.ResponseWriter, r *http.Request) {
	entry, err := rt.Registry.Get(r.PathValue("plugin_id"))
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": entry.Manifest.Capabilities()})
}

// --- Approval endpoints ---

func (rt *Router) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	ticket, err := rt.Approvals.Get(r.PathValue("id"))
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (rt *Router) handleApprovalTransition(w http.ResponseWriter, r *http.Request) {
	id, verb, ok := splitColon(r.PathValue("id"))
	if !ok {
		apierr.WriteJSON(w, apierr.New(apierr.KindNotFound, "unrecognized approvals path"))
		return
	}

	var status approval.Status
	switch verb {
	case "approve":
		status = approval.StatusApproved
	case "deny":
		status = approval.StatusDenied
	default:
		apierr.WriteJSON(w, apierr.New(apierr.KindNotFound, "unrecognized approval transition %q", verb))
		return
	}

	ticket, err := rt.Approvals.SetStatus(id, status)
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// --- Action endpoints ---

type actionRequestBody struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Reason         string         `json:"reason"`
	Args           map[string]any `json:"args"`
}

func (rt *Router) handleGlobalAction(phase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pluginID, action, ok := splitColon(r.PathValue("plugin_action"))
		if !ok {
			apierr.WriteJSON(w, apierr.New(apierr.KindNotFound, "unrecognized action path"))
			return
		}
		rt.dispatchAction(w, r, pluginID, "", "", action, phase)
	}
}

func (rt *Router) handleResourceAction(phase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID, action, ok := splitColon(r.PathValue("resource_action"))
		if !ok {
			apierr.WriteJSON(w, apierr.New(apierr.KindNotFound, "unrecognized action path"))
			return
		}
		rt.dispatchAction(w, r, r.PathValue("plugin_id"), r.PathValue("resource"), resourceID, action, phase)
	}
}

func (rt *Router) dispatchAction(w http.ResponseWriter, r *http.Request, pluginID, resource, resourceID, action, phase string) {
	principal, err := rt.authenticate(r)
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}

	var body actionRequestBody
	if err := decodeJSONBody(r, &body); err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	if body.Args == nil {
		body.Args = map[string]any{}
	}

	status, respBody, err := rt.Mediator.HandleAction(r.Context(), mediator.ActionRequest{
		Principal: principal, PluginID: pluginID, Resource: resource, ResourceID: resourceID,
		ActionName: action, Phase: phase, IdempotencyKey: body.IdempotencyKey, Reason: body.Reason, Args: body.Args,
	})
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	writeJSON(w, status, respBody)
}

// --- Read endpoints ---

func (rt *Router) handleCollectionRead(w http.ResponseWriter, r *http.Request) {
	principal, err := rt.authenticate(r)
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}

	query := r.URL.Query()
	status, body, err := rt.Mediator.HandleCollectionRead(r.Context(), mediator.ReadRequest{
		Principal: principal, PluginID: r.PathValue("plugin_id"), Resource: r.PathValue("resource"),
		Limit: parseQueryInt(query, "limit", 20), Cursor: query.Get("cursor"), Sort: query.Get("sort"),
		Q: query.Get("q"), RawQuery: extractFilters(query),
	})
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	writeJSON(w, status, body)
}

func (rt *Router) handleItemRead(w http.ResponseWriter, r *http.Request) {
	rt.doItemRead(w, r, "")
}

func (rt *Router) handleViewRead(w http.ResponseWriter, r *http.Request) {
	rt.doItemRead(w, r, r.PathValue("view"))
}

func (rt *Router) doItemRead(w http.ResponseWriter, r *http.Request, view string) {
	principal, err := rt.authenticate(r)
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}

	query := r.URL.Query()
	status, body, err := rt.Mediator.HandleItemRead(r.Context(), mediator.ReadRequest{
		Principal: principal, PluginID: r.PathValue("plugin_id"), Resource: r.PathValue("resource"),
		ResourceID: r.PathValue("resource_id"), View: manifest.View(view),
		MaxChars: parseOptionalInt(query, "max_chars"), RawQuery: extractFilters(query),
	})
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	writeJSON(w, status, body)
}
