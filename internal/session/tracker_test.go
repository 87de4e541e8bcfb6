package session

import "testing"

func TestTrackerStartsActiveAndListening(t *testing.T) {
	tr := NewTracker()
	s := tr.Snapshot()
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}
	if s.Status != StatusActive || s.Phase != PhaseListening {
		t.Fatalf("unexpected session state: %+v", s)
	}
}

func TestTrackerTurnLifecycle(t *testing.T) {
	tr := NewTracker()
	first := tr.StartTurn()
	if got := tr.Snapshot(); got.ActiveTurnID != first || got.TurnCount != 1 || got.Phase != PhaseResponding {
		t.Fatalf("after StartTurn: %+v", got)
	}

	tr.EndTurn("stale-turn", true)
	if got := tr.Snapshot(); got.ActiveTurnID != first || got.FailedTurns != 0 {
		t.Fatalf("EndTurn(stale) changed state: %+v", got)
	}

	tr.EndTurn(first, true)
	got := tr.Snapshot()
	if got.ActiveTurnID != "" || got.FailedTurns != 1 || got.Phase != PhaseSpeaking {
		t.Fatalf("after EndTurn: %+v", got)
	}

	second := tr.StartTurn()
	if second == first {
		t.Fatalf("turn ids should be unique")
	}
	if tr.Snapshot().TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2", tr.Snapshot().TurnCount)
	}
}

func TestTrackerInterruptClearsTurn(t *testing.T) {
	tr := NewTracker()
	tr.StartTurn()
	tr.Interrupt()

	got := tr.Snapshot()
	if got.ActiveTurnID != "" {
		t.Fatalf("ActiveTurnID = %q, want empty", got.ActiveTurnID)
	}
	if got.InterruptionCount != 1 {
		t.Fatalf("InterruptionCount = %d, want 1", got.InterruptionCount)
	}
}

func TestTrackerEndFreezesPhase(t *testing.T) {
	tr := NewTracker()
	ended := tr.End()
	if ended.Status != StatusEnded || ended.Phase != PhaseStopped {
		t.Fatalf("End() = %+v", ended)
	}
	tr.SetPhase(PhaseListening)
	if got := tr.Snapshot().Phase; got != PhaseStopped {
		t.Fatalf("Phase after End = %q, want %q", got, PhaseStopped)
	}
}
