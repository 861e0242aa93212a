// Package approval implements the in-memory, non-durable approval ticket
// store: a process-resident table of tickets that pause a mutating execute
// until a human resolves them. Tickets never outlive the process — spec
// scopes persistence out entirely.
package approval

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"clawgate/internal/apierr"
)

// Status is the lifecycle state of a ticket. Once a ticket leaves
// StatusPending it is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Ticket is a server-side approval record.
type Ticket struct {
	ID             string
	Status         Status
	Summary        string
	ProposedEffect map[string]any
	Fingerprint    string
	CapabilityID   string
}

// Store is a process-resident, mutex-serialized table of tickets, keyed by
// id; dedup lookups by (capability_id, fingerprint) scan the table. A
// single lock guards all map operations; it is never held across plugin
// dispatch or any other I/O, per the locking discipline in the concurrency
// model.
type Store struct {
	mu      sync.Mutex
	tickets map[string]*Ticket
}

// NewStore builds an empty ticket store.
func NewStore() *Store {
	return &Store{tickets: make(map[string]*Ticket)}
}

// CreateTicket generates a new pending ticket. Callers must already hold
// no assumption about uniqueness of (capabilityID, fingerprint) — use
// FindForFingerprint first to dedup concurrent requests for the same
// action.
func (s *Store) CreateTicket(summary string, proposedEffect map[string]any, capabilityID, fingerprint string) (*Ticket, error) {
	id, err := newTicketID()
	if err != nil {
		return nil, fmt.Errorf("approval: generate ticket id: %w", err)
	}

	t := &Ticket{
		ID:             id,
		Status:         StatusPending,
		Summary:        summary,
		ProposedEffect: proposedEffect,
		Fingerprint:    fingerprint,
		CapabilityID:   capabilityID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[id] = t

	snapshot := *t
	return &snapshot, nil
}

// FindForFingerprint returns the first ticket matching capabilityID,
// fingerprint, and one of statuses, or nil if none exists. Call this
// before CreateTicket, under the same critical section where possible, so
// that two concurrent executes against the same fingerprint produce at
// most one pending ticket.
func (s *Store) FindForFingerprint(capabilityID, fingerprint string, statuses []Status) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	for _, t := range s.tickets {
		if t.CapabilityID == capabilityID && t.Fingerprint == fingerprint && want[t.Status] {
			snapshot := *t
			return &snapshot
		}
	}
	return nil
}

// GetOrCreateForFingerprint atomically looks up a pending-or-approved
// ticket for (capabilityID, fingerprint) and creates one if none exists,
// all under a single lock acquisition. This is the operation that
// guarantees at most one pending ticket per fingerprint under concurrent
// execute calls.
func (s *Store) GetOrCreateForFingerprint(summary string, proposedEffect map[string]any, capabilityID, fingerprint string) (*Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tickets {
		if t.CapabilityID == capabilityID && t.Fingerprint == fingerprint &&
			(t.Status == StatusPending || t.Status == StatusApproved) {
			snapshot := *t
			return &snapshot, false, nil
		}
	}

	id, err := newTicketID()
	if err != nil {
		return nil, false, fmt.Errorf("approval: generate ticket id: %w", err)
	}
	t := &Ticket{
		ID:             id,
		Status:         StatusPending,
		Summary:        summary,
		ProposedEffect: proposedEffect,
		Fingerprint:    fingerprint,
		CapabilityID:   capabilityID,
	}
	s.tickets[id] = t

	snapshot := *t
	return &snapshot, true, nil
}

// Get returns the ticket with id, or NOT_FOUND.
func (s *Store) Get(id string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "approval ticket %q not found", id)
	}
	snapshot := *t
	return &snapshot, nil
}

// SetStatus transitions a ticket to approved or denied. Unknown id yields
// NOT_FOUND; an invalid status yields VALIDATION_ERROR; a no-op transition
// (same status as current) returns the ticket unchanged; any other
// transition out of a terminal state yields APPROVAL_ALREADY_FINALIZED.
func (s *Store) SetStatus(id string, status Status) (*Ticket, error) {
	if status != StatusApproved && status != StatusDenied {
		return nil, apierr.New(apierr.KindValidation, "invalid approval status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "approval ticket %q not found", id)
	}

	if t.Status == status {
		snapshot := *t
		return &snapshot, nil
	}
	if t.Status != StatusPending {
		return nil, apierr.New(apierr.KindApprovalAlreadyFinalized, "ticket %q is already %s", id, t.Status)
	}

	t.Status = status
	snapshot := *t
	return &snapshot, nil
}

func newTicketID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "appr_" + hex.EncodeToString(buf), nil
}
