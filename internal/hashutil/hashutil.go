// Package hashutil computes the deterministic, canonical-JSON hashes the
// idempotency store and approval store key their records by. Canonicalization
// uses RFC 8785 (JSON Canonicalization Scheme) so that two equivalent
// payloads produced by different marshalers still hash identically.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON marshals v to JSON and rewrites it into RFC 8785 canonical
// form (sorted object keys, no insignificant whitespace, stable number
// formatting).
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hashutil: marshal: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("hashutil: canonicalize: %w", err)
	}
	return canon, nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of v's canonical JSON
// encoding.
func SHA256Hex(v any) (string, error) {
	canon, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// RequestHashInput is the tuple the request hash is computed over (spec
// §4.6): plugin/resource/action identity plus phase and the request's
// arguments, so that two requests differing in any of these never collide.
type RequestHashInput struct {
	PluginID   string `json:"plugin_id"`
	Resource   string `json:"resource"`
	ResourceID string `json:"resource_id"`
	Action     string `json:"action"`
	Phase      string `json:"phase"`
	Args       any    `json:"args"`
}

// RequestHash computes the request hash used to detect idempotency-key
// reuse with a changed payload.
func RequestHash(in RequestHashInput) (string, error) {
	return SHA256Hex(in)
}

// FingerprintInput is the tuple an approval fingerprint is computed over
// (spec §4.6). Two executions of the same capability with identical
// arguments against the same resource instance share a fingerprint and so
// coalesce onto one pending approval ticket.
type FingerprintInput struct {
	CapabilityID string `json:"capability_id"`
	ResourceID   string `json:"resource_id"`
	Args         any    `json:"args"`
}

// Fingerprint computes the approval fingerprint.
func Fingerprint(in FingerprintInput) (string, error) {
	return SHA256Hex(in)
}
