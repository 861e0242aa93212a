package approval

import (
	"sync"
	"testing"

	"clawgate/internal/apierr"
)

func TestCreateTicket_IDShape(t *testing.T) {
	s := NewStore()
	tk, err := s.CreateTicket("reply to alice", map[string]any{"action": "send a reply"}, "gmail.messages.reply", "fp-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tk.ID) != len("appr_")+12 {
		t.Fatalf("unexpected ticket id shape: %q", tk.ID)
	}
	if tk.Status != StatusPending {
		t.Fatalf("expected pending, got %s", tk.Status)
	}
}

func TestSetStatus_Lifecycle(t *testing.T) {
	s := NewStore()
	tk, _ := s.CreateTicket("s", map[string]any{"e": true}, "cap", "fp")

	if _, err := s.SetStatus("missing", StatusApproved); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := s.SetStatus(tk.ID, "bogus"); !apierr.Is(err, apierr.KindValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	got, err := s.SetStatus(tk.ID, StatusApproved)
	if err != nil || got.Status != StatusApproved {
		t.Fatalf("expected approved, got %+v, %v", got, err)
	}

	// idempotent: same status again returns unchanged, no error.
	got, err = s.SetStatus(tk.ID, StatusApproved)
	if err != nil || got.Status != StatusApproved {
		t.Fatalf("expected idempotent approved, got %+v, %v", got, err)
	}

	// already terminal, different status -> APPROVAL_ALREADY_FINALIZED.
	if _, err := s.SetStatus(tk.ID, StatusDenied); !apierr.Is(err, apierr.KindApprovalAlreadyFinalized) {
		t.Fatalf("expected APPROVAL_ALREADY_FINALIZED, got %v", err)
	}
}

func TestGetOrCreateForFingerprint_Dedup(t *testing.T) {
	s := NewStore()

	first, created, err := s.GetOrCreateForFingerprint("s", map[string]any{"e": true}, "cap", "fp")
	if err != nil || !created {
		t.Fatalf("expected first call to create, got created=%v err=%v", created, err)
	}

	second, created, err := s.GetOrCreateForFingerprint("s", map[string]any{"e": true}, "cap", "fp")
	if err != nil || created {
		t.Fatalf("expected second call to dedup, got created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same ticket id, got %s vs %s", first.ID, second.ID)
	}
}

func TestGetOrCreateForFingerprint_ConcurrentCallsProduceOneTicket(t *testing.T) {
	s := NewStore()

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			tk, _, err := s.GetOrCreateForFingerprint("s", map[string]any{"e": true}, "gmail.messages.reply", "fp-shared")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids[i] = tk.ID
		}(i)
	}
	wg.Wait()

	first := ids[0]
	for _, id := range ids {
		if id != first {
			t.Fatalf("expected all concurrent calls to share one ticket id, got %v", ids)
		}
	}
}

func TestFindForFingerprint(t *testing.T) {
	s := NewStore()
	tk, _ := s.CreateTicket("s", map[string]any{"e": true}, "cap", "fp")

	found := s.FindForFingerprint("cap", "fp", []Status{StatusPending})
	if found == nil || found.ID != tk.ID {
		t.Fatalf("expected to find ticket, got %+v", found)
	}

	notFound := s.FindForFingerprint("cap", "fp", []Status{StatusApproved})
	if notFound != nil {
		t.Fatalf("expected no match for wrong status, got %+v", notFound)
	}
}
