// Package session tracks the lifecycle of the single spoken conversation.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Phase is what the conversation loop is doing right now.
type Phase string

const (
	PhaseListening  Phase = "listening"
	PhaseResponding Phase = "responding"
	PhaseSpeaking   Phase = "speaking"
	PhaseStopped    Phase = "stopped"
)

type Session struct {
	ID                string    `json:"session_id"`
	Status            Status    `json:"status"`
	Phase             Phase     `json:"phase"`
	ActiveTurnID      string    `json:"active_turn_id"`
	TurnCount         int       `json:"turn_count"`
	FailedTurns       int       `json:"failed_turns"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// Tracker owns the session record. All methods are safe for concurrent use;
// readers get copies.
type Tracker struct {
	mu sync.RWMutex
	s  Session
}

func NewTracker() *Tracker {
	now := time.Now().UTC()
	return &Tracker{s: Session{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		Phase:          PhaseListening,
		StartedAt:      now,
		LastActivityAt: now,
	}}
}

func (t *Tracker) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s.ID
}

func (t *Tracker) Snapshot() Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

func (t *Tracker) SetPhase(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.Status == StatusEnded {
		return
	}
	t.s.Phase = p
	t.s.LastActivityAt = time.Now().UTC()
}

// StartTurn opens a new turn and returns its id.
func (t *Tracker) StartTurn() string {
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.ActiveTurnID = id
	t.s.TurnCount++
	t.s.Phase = PhaseResponding
	t.s.LastActivityAt = time.Now().UTC()
	return id
}

// EndTurn closes turnID if it is still the active one. A failed turn is
// counted separately.
func (t *Tracker) EndTurn(turnID string, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.ActiveTurnID != turnID {
		return
	}
	t.s.ActiveTurnID = ""
	if failed {
		t.s.FailedTurns++
	}
	if t.s.Status == StatusActive {
		t.s.Phase = PhaseSpeaking
	}
	t.s.LastActivityAt = time.Now().UTC()
}

func (t *Tracker) Interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.InterruptionCount++
	t.s.ActiveTurnID = ""
	t.s.LastActivityAt = time.Now().UTC()
}

func (t *Tracker) End() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Status = StatusEnded
	t.s.Phase = PhaseStopped
	t.s.ActiveTurnID = ""
	t.s.LastActivityAt = time.Now().UTC()
	return t.s
}
