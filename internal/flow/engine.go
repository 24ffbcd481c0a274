package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sattvalabs/wisdomd/internal/config"
)

// Engine advances per-session conversation phase.
//
// The engine holds no session state itself; every call reads and writes the
// snapshot through the store, so one engine is safe to share across
// concurrent sessions. Concurrent Advance calls for the same session ID are
// the caller's responsibility to serialize.
type Engine struct {
	store  SessionStore
	cfg    config.FlowConfig
	logger *zap.Logger
}

// NewEngine creates a flow engine.
func NewEngine(store SessionStore, cfg config.FlowConfig, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, cfg: cfg, logger: logger}, nil
}

// AdvanceInput carries one turn's worth of context into the state machine.
type AdvanceInput struct {
	SessionID    string
	Mood         string
	Topic        string
	Intent       string
	Entities     []string
	VerseRefUsed string
	AtomIDsUsed  []string
	UsedLLM      bool
}

// Advance processes one conversational turn.
//
// It creates the snapshot on the session's first turn (CONNECT, zero turns),
// increments turn_count by exactly one, appends any used reference/atom IDs,
// counts the turn as self-sufficient when the LLM was not used, and then
// applies the phase transition rules:
//
//   - a crisis signal resets to CONNECT from any phase
//   - an advice-seeking intent advances one phase immediately, up to GUIDE
//   - otherwise the phase advances after the configured minimum turns
//
// The machine never moves more than one phase forward per turn; only the
// crisis reset can jump.
func (e *Engine) Advance(ctx context.Context, in AdvanceInput) (*Snapshot, error) {
	if in.SessionID == "" {
		return nil, ErrEmptySessionID
	}

	snap, err := e.store.GetOpenSession(ctx, in.SessionID)
	switch {
	case err == nil:
	case isNotFound(err):
		now := time.Now().UTC()
		snap = &Snapshot{
			ID:        uuid.NewString(),
			SessionID: in.SessionID,
			Phase:     PhaseConnect,
			CreatedAt: now,
			UpdatedAt: now,
		}
	default:
		return nil, fmt.Errorf("loading session %s: %w", in.SessionID, err)
	}

	snap.TurnCount++
	snap.TurnsInPhase++
	if !in.UsedLLM {
		snap.SelfSufficientTurns++
	}
	if in.VerseRefUsed != "" {
		snap.UsedVerseRefs = appendUnique(snap.UsedVerseRefs, in.VerseRefUsed)
	}
	for _, id := range in.AtomIDsUsed {
		snap.UsedAtomIDs = appendUnique(snap.UsedAtomIDs, id)
	}

	prev := snap.Phase
	crisis := e.isCrisis(in)
	snap.Phase = e.nextPhase(snap, crisis, in)
	// A crisis turn restarts the phase clock even when the session is
	// already in CONNECT, so the full minimum dwell applies afterward.
	if snap.Phase != prev || crisis {
		snap.TurnsInPhase = 0
	}
	if snap.Phase != prev {
		e.logger.Debug("phase transition",
			zap.String("session_id", in.SessionID),
			zap.String("from", string(prev)),
			zap.String("to", string(snap.Phase)),
			zap.Int("turn", snap.TurnCount))
	}
	snap.UpdatedAt = time.Now().UTC()

	if err := e.store.PutSession(ctx, snap); err != nil {
		return nil, fmt.Errorf("saving session %s: %w", in.SessionID, err)
	}

	return snap, nil
}

// nextPhase applies the transition rules for one turn.
func (e *Engine) nextPhase(snap *Snapshot, crisis bool, in AdvanceInput) Phase {
	if crisis {
		return PhaseConnect
	}

	if e.isAdviceSeeking(in.Intent) && snap.Phase.Index() < PhaseGuide.Index() {
		return snap.Phase.Next()
	}

	if snap.TurnsInPhase >= e.cfg.MinTurnsPerPhase {
		return snap.Phase.Next()
	}

	return snap.Phase
}

// isCrisis reports whether the turn carries a crisis/reset signal.
func (e *Engine) isCrisis(in AdvanceInput) bool {
	for _, intent := range e.cfg.CrisisIntents {
		if strings.EqualFold(in.Intent, intent) {
			return true
		}
	}
	for _, entity := range in.Entities {
		lowered := strings.ToLower(entity)
		for _, kw := range e.cfg.CrisisKeywords {
			if strings.Contains(lowered, kw) {
				return true
			}
		}
	}
	return false
}

func (e *Engine) isAdviceSeeking(intent string) bool {
	for _, candidate := range e.cfg.AdviceIntents {
		if strings.EqualFold(intent, candidate) {
			return true
		}
	}
	return false
}

// CloseSession marks the open snapshot for a session as closed. Its final
// counters then contribute to the system-wide self-sufficiency rate.
// Closing an unknown or already-closed session returns ErrSessionNotFound.
func (e *Engine) CloseSession(ctx context.Context, sessionID string) (*Snapshot, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	snap, err := e.store.GetOpenSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snap.Closed = true
	snap.UpdatedAt = time.Now().UTC()

	if err := e.store.PutSession(ctx, snap); err != nil {
		return nil, fmt.Errorf("closing session %s: %w", sessionID, err)
	}

	e.logger.Info("session closed",
		zap.String("session_id", sessionID),
		zap.Int("turns", snap.TurnCount),
		zap.Int("self_sufficient_turns", snap.SelfSufficientTurns))

	return snap, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
