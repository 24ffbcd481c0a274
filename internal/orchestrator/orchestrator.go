package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sattvalabs/wisdomd/internal/compose"
	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/logging"
	"github.com/sattvalabs/wisdomd/internal/metrics"
	"github.com/sattvalabs/wisdomd/internal/versegraph"
	"github.com/sattvalabs/wisdomd/internal/wisdom"
)

// SessionReader is the slice of the session store the orchestrator needs
// for aggregate statistics.
type SessionReader interface {
	ListSessions(ctx context.Context, filter flow.SessionFilter) ([]flow.Snapshot, error)
}

// Orchestrator coordinates the learning engines behind a single call
// surface: TryRespond, LearnFromLLM, RecordFeedback, and SystemStats. It is
// the only API other subsystems should use.
type Orchestrator struct {
	distiller *wisdom.Distiller
	graph     *versegraph.Graph
	flow      *flow.Engine
	composer  *compose.Composer
	sessions  SessionReader
	atoms     wisdom.AtomStore
	templates compose.TemplateStore
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New creates an orchestrator. All collaborators are required except
// metrics, which may be nil.
func New(
	distiller *wisdom.Distiller,
	graph *versegraph.Graph,
	flowEngine *flow.Engine,
	composer *compose.Composer,
	sessions SessionReader,
	atoms wisdom.AtomStore,
	templates compose.TemplateStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if distiller == nil {
		return nil, fmt.Errorf("distiller cannot be nil")
	}
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}
	if flowEngine == nil {
		return nil, fmt.Errorf("flow engine cannot be nil")
	}
	if composer == nil {
		return nil, fmt.Errorf("composer cannot be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session reader cannot be nil")
	}
	if atoms == nil {
		return nil, fmt.Errorf("atom store cannot be nil")
	}
	if templates == nil {
		return nil, fmt.Errorf("template store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		distiller: distiller,
		graph:     graph,
		flow:      flowEngine,
		composer:  composer,
		sessions:  sessions,
		atoms:     atoms,
		templates: templates,
		metrics:   m,
		logger:    logger,
	}, nil
}

// TryRespond attempts to answer a user turn from stored knowledge.
//
// The flow engine advances first so turn progression is recorded whether or
// not composition succeeds. On success the used verse and atoms are recorded
// (show event on the graph, usage counters on the atoms) and the flow engine
// re-advances with the used IDs and UsedLLM=false. On decline the caller
// must follow up with LearnFromLLM, which performs the UsedLLM=true advance.
func (o *Orchestrator) TryRespond(ctx context.Context, in TryRespondInput) (*Result, error) {
	ctx = logging.ContextWithSession(ctx, in.SessionID)

	snap, err := o.flow.Advance(ctx, flow.AdvanceInput{
		SessionID: in.SessionID,
		Mood:      in.Mood,
		Topic:     in.Topic,
		Intent:    in.Intent,
		Entities:  in.Entities,
		// Provisional: the turn is only confirmed self-sufficient by the
		// re-advance below or by LearnFromLLM.
		UsedLLM: true,
	})
	if err != nil {
		return nil, fmt.Errorf("advancing flow: %w", err)
	}

	start := time.Now()
	response, err := o.composer.Compose(ctx, compose.ComposeInput{
		Mood:            in.Mood,
		Topic:           in.Topic,
		Phase:           snap.Phase,
		Intent:          in.Intent,
		Entities:        in.Entities,
		RecentAtomIDs:   snap.UsedAtomIDs,
		RecentVerseRefs: snap.UsedVerseRefs,
	})
	o.metrics.RecordComposeDuration(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("composing response: %w", err)
	}

	if response == nil {
		o.metrics.RecordDecline(ctx)
		o.logger.Debug("composition declined, deferring to LLM",
			zap.String("session_id", in.SessionID),
			zap.String("mood", in.Mood),
			zap.String("topic", in.Topic),
			zap.String("phase", string(snap.Phase)))
		return &Result{
			IsSelfSufficient: false,
			Phase:            snap.Phase,
			TurnCount:        snap.TurnCount,
		}, nil
	}

	if response.VerseRef != "" {
		if _, err := o.graph.RecordShow(ctx, response.VerseRef, in.Mood, in.Topic); err != nil {
			return nil, fmt.Errorf("recording show: %w", err)
		}
	}
	if err := o.composer.RecordUsage(ctx, response.AtomIDs); err != nil {
		return nil, fmt.Errorf("recording atom usage: %w", err)
	}

	snap, err = o.flow.Advance(ctx, flow.AdvanceInput{
		SessionID:    in.SessionID,
		Mood:         in.Mood,
		Topic:        in.Topic,
		Intent:       in.Intent,
		Entities:     in.Entities,
		VerseRefUsed: response.VerseRef,
		AtomIDsUsed:  response.AtomIDs,
		UsedLLM:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("re-advancing flow: %w", err)
	}

	o.metrics.RecordTurn(ctx, true)
	o.logger.Info("self-sufficient response composed",
		zap.String("session_id", in.SessionID),
		zap.Float64("confidence", response.Confidence),
		zap.Int("atoms", len(response.AtomIDs)),
		zap.String("verse_ref", response.VerseRef))

	return &Result{
		IsSelfSufficient: true,
		Response:         response,
		Phase:            snap.Phase,
		TurnCount:        snap.TurnCount,
	}, nil
}

// LearnFromLLM distills a delivered LLM response into atoms and records the
// turn as LLM-assisted.
func (o *Orchestrator) LearnFromLLM(ctx context.Context, in LearnInput) (*LearnStats, error) {
	ctx = logging.ContextWithSession(ctx, in.SessionID)

	atoms, err := o.distiller.Distill(ctx, wisdom.DistillInput{
		LLMResponse: in.LLMResponse,
		UserMessage: in.UserMessage,
		Mood:        in.Mood,
		Topic:       in.Topic,
		Intent:      in.Intent,
		Phase:       in.Phase,
		SourceRef:   in.SourceMessageID,
	})
	if err != nil {
		return nil, fmt.Errorf("distilling response: %w", err)
	}

	atomIDs := make([]string, 0, len(atoms))
	for _, atom := range atoms {
		atomIDs = append(atomIDs, atom.ID)
	}

	snap, err := o.flow.Advance(ctx, flow.AdvanceInput{
		SessionID:   in.SessionID,
		Mood:        in.Mood,
		Topic:       in.Topic,
		Intent:      in.Intent,
		AtomIDsUsed: atomIDs,
		UsedLLM:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("advancing flow: %w", err)
	}

	o.metrics.RecordTurn(ctx, false)
	o.metrics.RecordAtomsCreated(ctx, len(atoms))
	o.logger.Info("learned from LLM response",
		zap.String("session_id", in.SessionID),
		zap.Int("new_atoms", len(atoms)))

	return &LearnStats{
		NewAtoms:  len(atoms),
		AtomIDs:   atomIDs,
		Phase:     snap.Phase,
		TurnCount: snap.TurnCount,
	}, nil
}

// RecordFeedback fans one user feedback event out to the graph and the
// composer. Store failures propagate: losing a signal would corrupt the
// learning loop.
func (o *Orchestrator) RecordFeedback(ctx context.Context, in FeedbackInput) error {
	ctx = logging.ContextWithSession(ctx, in.SessionID)

	if in.VerseRef != "" {
		if _, err := o.graph.RecordSignal(ctx, in.VerseRef, in.Mood, in.Topic, in.Positive); err != nil {
			return fmt.Errorf("recording graph signal: %w", err)
		}
	}

	if err := o.composer.RecordFeedback(ctx, in.AtomIDs, in.TemplateID, in.Positive); err != nil {
		return fmt.Errorf("recording composer feedback: %w", err)
	}

	o.metrics.RecordFeedback(ctx, in.Positive)
	return nil
}

// CloseSession marks a session as ended so its counters contribute to the
// system-wide self-sufficiency rate.
func (o *Orchestrator) CloseSession(ctx context.Context, sessionID string) error {
	_, err := o.flow.CloseSession(ctx, sessionID)
	return err
}

// SystemStats aggregates atom, graph, template, and session statistics.
// The self-sufficiency rate is the mean of per-session rates across closed
// sessions.
func (o *Orchestrator) SystemStats(ctx context.Context) (*SystemStats, error) {
	byCategory, err := o.atoms.CountAtomsByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting atoms: %w", err)
	}
	total := 0
	for _, count := range byCategory {
		total += count
	}

	graphStats, err := o.graph.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("gathering graph stats: %w", err)
	}

	activeTemplates, err := o.templates.CountActiveTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting templates: %w", err)
	}

	open := false
	active, err := o.sessions.ListSessions(ctx, flow.SessionFilter{Closed: &open})
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}

	closedFlag := true
	closed, err := o.sessions.ListSessions(ctx, flow.SessionFilter{Closed: &closedFlag})
	if err != nil {
		return nil, fmt.Errorf("listing closed sessions: %w", err)
	}

	// Every user turn advances the snapshot twice: once provisionally and
	// once confirming (either the UsedLLM=false re-advance in TryRespond
	// or the UsedLLM=true advance in LearnFromLLM). The self-sufficient
	// share of user turns is therefore 2·ss/tc, clamped for sessions where
	// a caller skipped the follow-up.
	rate := 0.0
	counted := 0
	for _, snap := range closed {
		if snap.TurnCount == 0 {
			continue
		}
		sessionRate := 2 * float64(snap.SelfSufficientTurns) / float64(snap.TurnCount)
		if sessionRate > 1 {
			sessionRate = 1
		}
		rate += sessionRate
		counted++
	}
	if counted > 0 {
		rate /= float64(counted)
	}

	return &SystemStats{
		AtomsByCategory:     byCategory,
		TotalAtoms:          total,
		Graph:               graphStats,
		ActiveTemplates:     activeTemplates,
		ActiveSessions:      len(active),
		ClosedSessions:      len(closed),
		SelfSufficiencyRate: rate,
	}, nil
}
