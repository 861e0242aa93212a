// Package idempotency implements the scoped, in-memory idempotency store:
// a replay cache keyed by "scope:idempotency_key" that memoizes a single
// response per key and detects key reuse against a changed payload.
package idempotency

import (
	"sync"

	"clawgate/internal/apierr"
)

// Record is a memoized response.
type Record struct {
	RequestHash string
	StatusCode  int
	Payload     any
}

// Store is a mutex-serialized map from scoped key to Record. A single lock
// guards all operations; it is held only around map access, never across
// plugin dispatch.
type Store struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewStore builds an empty idempotency store.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Scope builds the scope string "{plugin_id}:{resource or '_'}:{action_name}".
func Scope(pluginID, resource, actionName string) string {
	if resource == "" {
		resource = "_"
	}
	return pluginID + ":" + resource + ":" + actionName
}

func key(scope, idempotencyKey string) string {
	return scope + ":" + idempotencyKey
}

// FetchOrValidate looks up scope:key. A miss returns (nil, nil). A hit with
// the same request hash returns the stored record for the caller to
// replay. A hit with a different hash returns IDEMPOTENCY_KEY_REUSED.
func (s *Store) FetchOrValidate(scope, idempotencyKey, requestHash string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key(scope, idempotencyKey)]
	if !ok {
		return nil, nil
	}
	if rec.RequestHash != requestHash {
		return nil, apierr.New(apierr.KindIdempotencyKeyReused, "idempotency key %q reused with a different payload", idempotencyKey)
	}
	snapshot := rec
	return &snapshot, nil
}

// Save unconditionally stores a record for scope:key, overwriting any
// prior entry. Callers only save after a successful execute.
func (s *Store) Save(scope, idempotencyKey, requestHash string, statusCode int, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key(scope, idempotencyKey)] = Record{RequestHash: requestHash, StatusCode: statusCode, Payload: payload}
}
