package call

import (
	"errors"
	"sync"
	"testing"

	"github.com/teamforge/realtime/internal/domain"
)

func TestRegistry_StartOnce(t *testing.T) {
	r := NewRegistry()
	project := domain.ProjectID("p1")

	sess, err := r.Start(project, "u1", domain.CallVideo)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if sess.Status != domain.CallRinging {
		t.Errorf("Expected ringing status, got %s", sess.Status)
	}
	if len(sess.Participants) != 1 || sess.Participants[0] != "u1" {
		t.Errorf("Expected caller as sole participant, got %v", sess.Participants)
	}

	if _, err := r.Start(project, "u3", domain.CallAudio); !errors.Is(err, ErrCallInProgress) {
		t.Errorf("Expected ErrCallInProgress, got %v", err)
	}

	// The losing start must not have touched the existing session.
	got, ok := r.Get(project)
	if !ok || got.CallerID != "u1" || got.Kind != domain.CallVideo || got.Status != domain.CallRinging {
		t.Errorf("Existing session modified by failed start: %+v", got)
	}
}

func TestRegistry_ConcurrentStartSingleWinner(t *testing.T) {
	r := NewRegistry()
	project := domain.ProjectID("p1")

	const n = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Start(project, domain.UserID(rune('a'+i%26)), domain.CallAudio); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}
	if _, ok := r.Get(project); !ok {
		t.Error("Expected a session to exist after the race")
	}
}

func TestRegistry_AddParticipant(t *testing.T) {
	r := NewRegistry()
	project := domain.ProjectID("p1")
	r.Start(project, "u1", domain.CallAudio)

	sess, err := r.AddParticipant(project, "u2")
	if err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if sess.Status != domain.CallActive {
		t.Errorf("Expected active status, got %s", sess.Status)
	}
	if len(sess.Participants) != 2 {
		t.Errorf("Expected 2 participants, got %v", sess.Participants)
	}

	// Re-joining must not duplicate the seat.
	sess, _ = r.AddParticipant(project, "u2")
	if len(sess.Participants) != 2 {
		t.Errorf("Expected rejoin to be a set-union, got %v", sess.Participants)
	}
}

func TestRegistry_AddParticipantNoSession(t *testing.T) {
	r := NewRegistry()
	if _, err := r.AddParticipant("p1", "u2"); !errors.Is(err, ErrNoActiveCall) {
		t.Errorf("Expected ErrNoActiveCall, got %v", err)
	}
}

func TestRegistry_EndIdempotent(t *testing.T) {
	r := NewRegistry()
	project := domain.ProjectID("p1")
	r.Start(project, "u1", domain.CallAudio)

	if _, ok := r.End(project); !ok {
		t.Error("Expected first end to remove the session")
	}
	if _, ok := r.End(project); ok {
		t.Error("Expected second end to be a no-op")
	}
	if _, ok := r.End(domain.ProjectID("never-started")); ok {
		t.Error("Expected end of unknown project to be a no-op")
	}
}

func TestRegistry_EndIfParticipant(t *testing.T) {
	r := NewRegistry()
	project := domain.ProjectID("p1")
	r.Start(project, "u1", domain.CallAudio)
	r.AddParticipant(project, "u2")

	// A user outside the call dropping must not destroy the session.
	if _, ok := r.EndIfParticipant(project, "u9"); ok {
		t.Error("Expected non-participant disconnect to be a no-op")
	}
	if _, ok := r.Get(project); !ok {
		t.Fatal("Session should survive a non-participant disconnect")
	}

	if _, ok := r.EndIfParticipant(project, "u2"); !ok {
		t.Error("Expected participant disconnect to remove the session")
	}
	if _, ok := r.Get(project); ok {
		t.Error("Expected registry to be empty")
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	project := domain.ProjectID("p1")
	sess, _ := r.Start(project, "u1", domain.CallAudio)

	sess.Participants = append(sess.Participants, "intruder")
	sess.Status = domain.CallActive

	got, _ := r.Get(project)
	if len(got.Participants) != 1 || got.Status != domain.CallRinging {
		t.Errorf("Registry state aliased by caller mutation: %+v", got)
	}
}
