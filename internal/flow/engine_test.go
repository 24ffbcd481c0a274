package flow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sattvalabs/wisdomd/internal/config"
	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/store"
)

func newTestEngine(t *testing.T) *flow.Engine {
	t.Helper()
	e, err := flow.NewEngine(store.NewMemory(), config.Default().Flow, zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestAdvance_FirstTurnStartsAtConnect(t *testing.T) {
	e := newTestEngine(t)

	snap, err := e.Advance(context.Background(), flow.AdvanceInput{
		SessionID: "s1",
		Mood:      "sad",
		Topic:     "loss",
		Intent:    "vent",
		UsedLLM:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, flow.PhaseConnect, snap.Phase)
	assert.Equal(t, 1, snap.TurnCount)
	assert.Zero(t, snap.SelfSufficientTurns)
	assert.NotEmpty(t, snap.ID)
	assert.False(t, snap.Closed)
}

func TestAdvance_EmptySessionID(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Advance(context.Background(), flow.AdvanceInput{})
	assert.ErrorIs(t, err, flow.ErrEmptySessionID)
}

func TestAdvance_MinTurnsProgression(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// With min_turns_per_phase = 2 the session moves up every second turn
	// and parks at EMPOWER.
	want := []flow.Phase{
		flow.PhaseConnect,
		flow.PhaseListen, flow.PhaseListen,
		flow.PhaseUnderstand, flow.PhaseUnderstand,
		flow.PhaseGuide, flow.PhaseGuide,
		flow.PhaseEmpower, flow.PhaseEmpower,
		flow.PhaseEmpower,
	}

	for turn, phase := range want {
		snap, err := e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
		require.NoError(t, err)
		assert.Equal(t, phase, snap.Phase, "turn %d", turn+1)
		assert.Equal(t, turn+1, snap.TurnCount, "turn count advances by exactly one")
	}
}

func TestAdvance_CrisisResetsToConnect(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Walk the session into GUIDE.
	for i := 0; i < 6; i++ {
		_, err := e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
		require.NoError(t, err)
	}

	snap, err := e.Advance(ctx, flow.AdvanceInput{
		SessionID: "s1",
		Intent:    "crisis",
		UsedLLM:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, flow.PhaseConnect, snap.Phase)
	assert.Zero(t, snap.TurnsInPhase, "reset starts the phase clock over")
}

func TestAdvance_SustainedCrisisHoldsConnect(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
	require.NoError(t, err)

	// A crisis turn while already in CONNECT restarts the phase clock even
	// though the phase does not change.
	snap, err := e.Advance(ctx, flow.AdvanceInput{
		SessionID: "s1",
		Intent:    "crisis",
		UsedLLM:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, flow.PhaseConnect, snap.Phase)
	assert.Zero(t, snap.TurnsInPhase)

	snap, err = e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
	require.NoError(t, err)
	assert.Equal(t, flow.PhaseConnect, snap.Phase, "full minimum dwell applies after the crisis turn")

	snap, err = e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
	require.NoError(t, err)
	assert.Equal(t, flow.PhaseListen, snap.Phase)
}

func TestAdvance_CrisisKeywordInEntities(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
		require.NoError(t, err)
	}

	snap, err := e.Advance(ctx, flow.AdvanceInput{
		SessionID: "s1",
		Intent:    "vent",
		Entities:  []string{"thoughts of suicide"},
		UsedLLM:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, flow.PhaseConnect, snap.Phase)
}

func TestAdvance_AdviceIntentJumpsOnePhase(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	snap, err := e.Advance(ctx, flow.AdvanceInput{
		SessionID: "s1",
		Intent:    "seek_advice",
		UsedLLM:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, flow.PhaseListen, snap.Phase, "advice seeking skips the waiting period")

	// Never more than one phase per turn, even with the same intent.
	snap, err = e.Advance(ctx, flow.AdvanceInput{
		SessionID: "s1",
		Intent:    "seek_advice",
		UsedLLM:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, flow.PhaseUnderstand, snap.Phase)
}

func TestAdvance_AdviceIntentStopsAtGuide(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var snap *flow.Snapshot
	var err error
	for i := 0; i < 3; i++ {
		snap, err = e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", Intent: "seek_advice", UsedLLM: true})
		require.NoError(t, err)
	}
	require.Equal(t, flow.PhaseGuide, snap.Phase)

	// At GUIDE the advice shortcut no longer applies; the next turn follows
	// the normal minimum-turn rule and stays put.
	snap, err = e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", Intent: "seek_advice", UsedLLM: true})
	require.NoError(t, err)
	assert.Equal(t, flow.PhaseGuide, snap.Phase)
}

func TestAdvance_SelfSufficientAccounting(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	snap, err := e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
	require.NoError(t, err)
	assert.Zero(t, snap.SelfSufficientTurns)

	snap, err = e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: false})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SelfSufficientTurns)
	assert.LessOrEqual(t, snap.SelfSufficientTurns, snap.TurnCount)
}

func TestAdvance_TracksUsedRefsWithoutDuplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Advance(ctx, flow.AdvanceInput{
		SessionID:    "s1",
		VerseRefUsed: "2.47",
		AtomIDsUsed:  []string{"a1", "a2"},
	})
	require.NoError(t, err)

	snap, err := e.Advance(ctx, flow.AdvanceInput{
		SessionID:    "s1",
		VerseRefUsed: "2.47",
		AtomIDsUsed:  []string{"a2", "a3"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2.47"}, snap.UsedVerseRefs)
	assert.Equal(t, []string{"a1", "a2", "a3"}, snap.UsedAtomIDs)
}

func TestCloseSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: false})
	require.NoError(t, err)

	snap, err := e.CloseSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, snap.Closed)

	// Closing again finds no open snapshot.
	_, err = e.CloseSession(ctx, "s1")
	assert.ErrorIs(t, err, flow.ErrSessionNotFound)
}

func TestCloseSession_EmptyID(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CloseSession(context.Background(), "")
	assert.ErrorIs(t, err, flow.ErrEmptySessionID)
}

func TestAdvance_ReusedSessionIDStartsFresh(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
	require.NoError(t, err)
	_, err = e.CloseSession(ctx, "s1")
	require.NoError(t, err)

	second, err := e.Advance(ctx, flow.AdvanceInput{SessionID: "s1", UsedLLM: true})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.TurnCount)
	assert.Equal(t, flow.PhaseConnect, second.Phase)
}
