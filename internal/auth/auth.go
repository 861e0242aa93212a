// Package auth authenticates inbound requests against a static table of
// token records and checks capability grants with trailing-wildcard
// matching.
package auth

import (
	"net/http"
	"strings"

	"clawgate/internal/apierr"
)

const identityHeader = "X-Tailscale-Identity"

// TokenRecord is a server-side bearer-token grant: the agent it names, the
// network identity it is bound to ("*" for unbound), and the capabilities
// it carries.
type TokenRecord struct {
	Token            string   `json:"token"`
	AgentID          string   `json:"agent_id"`
	TailscaleIdentity string  `json:"tailscale_identity"`
	Capabilities     []string `json:"capabilities"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	AgentID        string
	NetworkIdentity string
	Capabilities   []string
}

// Can reports whether cap is granted to p: by exact match, by the
// universal "*", or by a trailing-wildcard entry "prefix.*" where cap
// begins with "prefix.".
func (p Principal) Can(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap || c == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(c, "*"); ok && strings.HasPrefix(cap, prefix) {
			return true
		}
	}
	return false
}

// syntheticPrincipal is returned for every request when auth is disabled.
var syntheticPrincipal = Principal{AgentID: "anonymous", NetworkIdentity: "*", Capabilities: []string{"*"}}

// Service authenticates requests against a fixed set of token records.
type Service struct {
	requireAuth bool
	byToken     map[string]TokenRecord
}

// New builds a Service. When requireAuth is false, Authenticate always
// succeeds with a synthetic all-capability principal, regardless of the
// token table.
func New(requireAuth bool, tokens []TokenRecord) *Service {
	byToken := make(map[string]TokenRecord, len(tokens))
	for _, t := range tokens {
		byToken[t.Token] = t
	}
	return &Service{requireAuth: requireAuth, byToken: byToken}
}

// Authenticate extracts and validates the bearer token and network
// identity from r, returning the bound Principal.
func (s *Service) Authenticate(r *http.Request) (Principal, error) {
	if !s.requireAuth {
		return syntheticPrincipal, nil
	}

	token, err := bearerToken(r)
	if err != nil {
		return Principal{}, err
	}

	identity := r.Header.Get(identityHeader)
	if identity == "" {
		return Principal{}, apierr.New(apierr.KindUnauthorized, "missing %s header", identityHeader)
	}

	rec, ok := s.byToken[token]
	if !ok {
		return Principal{}, apierr.New(apierr.KindUnauthorized, "unknown bearer token")
	}

	if rec.TailscaleIdentity != "*" && rec.TailscaleIdentity != identity {
		return Principal{}, apierr.New(apierr.KindUnauthorized, "token not bound to presented identity")
	}

	return Principal{AgentID: rec.AgentID, NetworkIdentity: identity, Capabilities: rec.Capabilities}, nil
}

// Authorize checks that p carries cap, returning CAPABILITY_DENIED if not.
func Authorize(p Principal, cap string) error {
	if !p.Can(cap) {
		return apierr.New(apierr.KindCapabilityDenied, "capability %q not granted", cap)
	}
	return nil
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", apierr.New(apierr.KindUnauthorized, "missing or malformed Authorization header")
	}
	token := strings.TrimPrefix(h, prefix)
	if token == "" {
		return "", apierr.New(apierr.KindUnauthorized, "empty bearer token")
	}
	return token, nil
}
