package audittrail

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GenesisHash is the PrevHash of the first event ever recorded.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// computeEventHash hashes the canonical fields of an event, excluding
// EventHash itself.
func computeEventHash(e *Event) string {
	hashInput := struct {
		EventID      string `json:"event_id"`
		Timestamp    string `json:"timestamp"`
		Kind         Kind   `json:"kind"`
		TraceID      string `json:"trace_id,omitempty"`
		AgentID      string `json:"agent_id"`
		PluginID     string `json:"plugin_id"`
		Resource     string `json:"resource,omitempty"`
		ResourceID   string `json:"resource_id,omitempty"`
		CapabilityID string `json:"capability_id,omitempty"`
		Action       string `json:"action,omitempty"`
		Phase        string `json:"phase,omitempty"`
		View         string `json:"view,omitempty"`
		StatusCode   int    `json:"status_code"`
		ErrorKind    string `json:"error_kind,omitempty"`
		DurationMS   int64  `json:"duration_ms"`
		PrevHash     string `json:"prev_hash,omitempty"`
	}{
		EventID: e.EventID, Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
		Kind: e.Kind, TraceID: e.TraceID, AgentID: e.AgentID, PluginID: e.PluginID,
		Resource: e.Resource, ResourceID: e.ResourceID, CapabilityID: e.CapabilityID,
		Action: e.Action, Phase: e.Phase, View: e.View,
		StatusCode: e.StatusCode, ErrorKind: e.ErrorKind, DurationMS: e.DurationMS,
		PrevHash: e.PrevHash,
	}

	data, err := json.Marshal(hashInput)
	if err != nil {
		data = []byte(e.EventID)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChainStatus is the result of verifying a run of events in insertion order.
type ChainStatus struct {
	Valid        bool   `json:"valid"`
	TotalEvents  int    `json:"total_events"`
	BrokenAt     int    `json:"broken_at,omitempty"`
	Error        string `json:"error,omitempty"`
	LastHash     string `json:"last_hash,omitempty"`
}

// verifyChain walks events (chronological insertion order) and checks every
// PrevHash/EventHash link. It returns the index of the first broken link, or
// -1 if the chain holds.
func verifyChain(events []Event) (int, error) {
	for i, e := range events {
		if e.EventHash != "" && computeEventHash(&e) != e.EventHash {
			return i, fmt.Errorf("event %s has an invalid hash", e.EventID)
		}
		if i == 0 {
			if e.PrevHash != "" && e.PrevHash != GenesisHash {
				return i, fmt.Errorf("first event %s has a non-genesis prev_hash", e.EventID)
			}
			continue
		}
		prev := events[i-1]
		if e.PrevHash != prev.EventHash {
			return i, fmt.Errorf("event %s breaks the chain: prev_hash=%s expected=%s", e.EventID, e.PrevHash, prev.EventHash)
		}
	}
	return -1, nil
}

func verifyChainStatus(events []Event) ChainStatus {
	status := ChainStatus{TotalEvents: len(events), BrokenAt: -1}
	if len(events) == 0 {
		status.Valid = true
		return status
	}
	status.LastHash = events[len(events)-1].EventHash

	brokenAt, err := verifyChain(events)
	if err != nil {
		status.BrokenAt = brokenAt
		status.Error = err.Error()
		return status
	}
	status.Valid = true
	return status
}
