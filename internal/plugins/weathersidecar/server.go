// Package weathersidecar is a standalone HTTP-JSON server implementing
// the exact plugin contract of spec §4.7: GET /plugin/manifest, POST
// /plugin/resources/{resource}/list, POST
// /plugin/resources/{resource}/{resource_id}/get, and POST
// /plugin/actions/{action_name}/{phase}. It exists to give
// internal/sidecar a real counterpart to dial, rather than only a
// synthetic httptest.Server in its own unit tests.
package weathersidecar

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
)

const sharedSecretHeader = "X-Clawgate-Sidecar-Secret"

//go:embed manifest.yaml
var manifestYAML []byte

// Manifest parses and validates the server's embedded descriptor. A real
// sidecar deployment would serve the same bytes from GET /plugin/manifest.
func Manifest() (*manifest.Manifest, error) {
	return manifest.Load(manifestYAML)
}

type forecast struct {
	City    string `json:"city"`
	Summary string `json:"summary"`
}

// Server holds a small in-memory set of city forecasts and a shared
// secret it expects on every request, mirroring the sidecar transport's
// shared-secret header.
type Server struct {
	sharedSecret string

	mu        sync.Mutex
	forecasts map[string]forecast
	refreshes int
}

// NewServer builds a Server seeded with two fixture cities. An empty
// sharedSecret disables the header check.
func NewServer(sharedSecret string) *Server {
	return &Server{
		sharedSecret: sharedSecret,
		forecasts: map[string]forecast{
			"nyc": {City: "nyc", Summary: "partly cloudy, 18C"},
			"sf":  {City: "sf", Summary: "fog clearing by noon, 15C"},
		},
	}
}

// Handler returns the http.Handler implementing the sidecar contract.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /plugin/manifest", s.handleManifest)
	mux.HandleFunc("POST /plugin/resources/{resource}/list", s.handleList)
	mux.HandleFunc("POST /plugin/resources/{resource}/{resource_id}/get", s.handleGet)
	mux.HandleFunc("POST /plugin/actions/{action_name}/{phase}", s.handleAction)

	return s.withSecretCheck(mux)
}

func (s *Server) withSecretCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sharedSecret != "" && r.Header.Get(sharedSecretHeader) != s.sharedSecret {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": "missing or invalid shared secret"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m, err := Manifest()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("resource") != "forecasts" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown resource"})
		return
	}

	s.mu.Lock()
	items := make([]any, 0, len(s.forecasts))
	for _, f := range s.forecasts {
		items = append(items, f)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"data": items, "next_cursor": "", "policy_items": []any{},
	}})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("resource") != "forecasts" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown resource"})
		return
	}

	s.mu.Lock()
	f, ok := s.forecasts[r.PathValue("resource_id")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown city"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"data": f, "next_cursor": "", "policy_items": []any{},
	}})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("action_name") != "refresh" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown action"})
		return
	}

	var body struct {
		Resource   string         `json:"resource"`
		ResourceID string         `json:"resource_id"`
		Args       map[string]any `json:"args"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	city, _ := body.Args["city"].(string)
	if city == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": string(pluginapi.StatusBlocked), "summary": "refresh requires a city argument",
		})
		return
	}

	if r.PathValue("phase") == "propose" {
		writeJSON(w, http.StatusOK, map[string]any{
			"summary":         "refresh forecast for " + city,
			"proposed_effect": map[string]any{"city": city, "fetches_from": "upstream weather service"},
		})
		return
	}

	s.mu.Lock()
	s.refreshes++
	s.forecasts[city] = forecast{City: city, Summary: "refreshed forecast #" + strconv.Itoa(s.refreshes)}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": string(pluginapi.StatusSuccess), "summary": "forecast refreshed",
		"result": map[string]any{"city": city, "refreshed": true},
	})
}
