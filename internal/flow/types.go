package flow

import (
	"context"
	"errors"
	"time"
)

// Errors returned by the flow engine and its session store.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptySessionID  = errors.New("session ID cannot be empty")
)

// Phase is one of the five ordered conversational stages.
type Phase string

const (
	PhaseConnect    Phase = "CONNECT"
	PhaseListen     Phase = "LISTEN"
	PhaseUnderstand Phase = "UNDERSTAND"
	PhaseGuide      Phase = "GUIDE"
	PhaseEmpower    Phase = "EMPOWER"
)

// phaseOrder maps each phase to its position in the progression.
var phaseOrder = map[Phase]int{
	PhaseConnect:    0,
	PhaseListen:     1,
	PhaseUnderstand: 2,
	PhaseGuide:      3,
	PhaseEmpower:    4,
}

// phases lists the progression in order.
var phases = []Phase{PhaseConnect, PhaseListen, PhaseUnderstand, PhaseGuide, PhaseEmpower}

// Index returns the phase's position in the progression, or -1 for an
// unknown phase.
func (p Phase) Index() int {
	if i, ok := phaseOrder[p]; ok {
		return i
	}
	return -1
}

// Valid reports whether p is one of the five phases.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Next returns the following phase, or the phase itself at EMPOWER.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i >= len(phases)-1 {
		return p
	}
	return phases[i+1]
}

// Snapshot is the per-session conversation state.
//
// self_sufficient_turns counts turns answered without the LLM and can never
// exceed turn_count. Closed snapshots are retained for aggregate statistics
// and are never advanced again.
type Snapshot struct {
	// ID is the unique snapshot identifier (UUID).
	ID string `json:"id"`

	// SessionID is the caller-supplied session key.
	SessionID string `json:"session_id"`

	// Phase is the current conversational stage.
	Phase Phase `json:"phase"`

	// TurnCount is the number of turns processed for this session.
	TurnCount int `json:"turn_count"`

	// TurnsInPhase is the number of turns spent in the current phase.
	// Reset on every phase transition.
	TurnsInPhase int `json:"turns_in_phase"`

	// SelfSufficientTurns counts turns resolved without the LLM.
	SelfSufficientTurns int `json:"self_sufficient_turns"`

	// UsedVerseRefs are the reference IDs already surfaced this session.
	UsedVerseRefs []string `json:"used_verse_refs"`

	// UsedAtomIDs are the atom IDs already used this session.
	UsedAtomIDs []string `json:"used_atom_ids"`

	// Closed marks the session as ended. Closed snapshots feed the
	// system-wide self-sufficiency rate.
	Closed bool `json:"closed"`

	// CreatedAt is when the first turn arrived.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the snapshot last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionFilter narrows ListSessions results.
type SessionFilter struct {
	// Closed filters on the closed flag when non-nil.
	Closed *bool
}

// SessionStore persists conversation snapshots.
//
// GetOpenSession returns the open (not closed) snapshot for a session ID,
// or ErrSessionNotFound. Closed snapshots are reachable only through
// ListSessions.
type SessionStore interface {
	GetOpenSession(ctx context.Context, sessionID string) (*Snapshot, error)
	PutSession(ctx context.Context, snap *Snapshot) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]Snapshot, error)
}
