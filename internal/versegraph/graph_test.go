package versegraph

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sattvalabs/wisdomd/internal/config"
)

// memEdgeStore is a minimal in-process EdgeStore for tests. Unlike the real
// store it exposes its map so tests can backdate edges for decay scenarios.
type memEdgeStore struct {
	mu    sync.Mutex
	edges map[string]*Edge
}

func newMemEdgeStore() *memEdgeStore {
	return &memEdgeStore{edges: make(map[string]*Edge)}
}

func (m *memEdgeStore) key(ref, mood, topic string) string {
	return strings.Join([]string{ref, mood, topic}, "\x00")
}

func (m *memEdgeStore) put(e *Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *e
	m.edges[m.key(e.VerseRef, e.Mood, e.Topic)] = &copied
}

func (m *memEdgeStore) GetEdge(ctx context.Context, ref, mood, topic string) (*Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edge, ok := m.edges[m.key(ref, mood, topic)]
	if !ok {
		return nil, ErrEdgeNotFound
	}
	copied := *edge
	return &copied, nil
}

func (m *memEdgeStore) UpdateEdge(ctx context.Context, ref, mood, topic string, seed Edge, mutate func(*Edge) error) (*Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.key(ref, mood, topic)
	edge, ok := m.edges[key]
	if !ok {
		now := time.Now().UTC()
		created := seed
		created.VerseRef = ref
		created.Mood = mood
		created.Topic = topic
		created.CreatedAt = now
		created.UpdatedAt = now
		edge = &created
		m.edges[key] = edge
	}

	if err := mutate(edge); err != nil {
		return nil, err
	}
	edge.UpdatedAt = time.Now().UTC()

	copied := *edge
	return &copied, nil
}

func (m *memEdgeStore) ListEdges(ctx context.Context, filter EdgeFilter) ([]Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Edge
	for _, edge := range m.edges {
		if filter.VerseRef != "" && edge.VerseRef != filter.VerseRef {
			continue
		}
		if filter.Mood != "" && edge.Mood != filter.Mood {
			continue
		}
		if filter.Topic != "" && edge.Topic != filter.Topic {
			continue
		}
		if filter.MinConfidence > 0 && edge.Confidence < filter.MinConfidence {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !edge.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		result = append(result, *edge)
	}
	return result, nil
}

func newTestGraph(t *testing.T) (*Graph, *memEdgeStore) {
	t.Helper()
	store := newMemEdgeStore()
	g, err := NewGraph(store, config.Default().Graph, zap.NewNop())
	require.NoError(t, err)
	return g, store
}

func TestRecordShow_SeedsEdge(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	edge, err := g.RecordShow(ctx, "2.47", "anxious", "exam")
	require.NoError(t, err)
	assert.Equal(t, 1, edge.TimesShown)
	assert.Equal(t, 0.5, edge.Weight)
	assert.Equal(t, 0.1, edge.Confidence)

	edge, err = g.RecordShow(ctx, "2.47", "anxious", "exam")
	require.NoError(t, err)
	assert.Equal(t, 2, edge.TimesShown)
}

func TestRecordShow_EmptyRef(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.RecordShow(context.Background(), "", "anxious", "exam")
	assert.ErrorIs(t, err, ErrEmptyRef)
}

func TestRecordSignal_PositiveConvergence(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	var edge *Edge
	var err error
	prevConfidence := 0.0
	for i := 0; i < 5; i++ {
		edge, err = g.RecordSignal(ctx, "2.47", "anxious", "academic", true)
		require.NoError(t, err)
		assert.Greater(t, edge.Confidence, prevConfidence, "confidence must grow with consistent signals")
		prevConfidence = edge.Confidence
	}

	// Closed form: w = 1 - (1-lr)^5 * 0.5 with lr = 0.1.
	assert.InDelta(t, 0.704755, edge.Weight, 1e-6)
	assert.Equal(t, 5, edge.PositiveSignals)
	assert.Equal(t, 0, edge.NegativeSignals)
}

func TestRecordSignal_ConfidenceCrossesThresholdOnSecondSignal(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()
	threshold := config.Default().Graph.MinRecommendConfidence

	edge, err := g.RecordSignal(ctx, "18.66", "sad", "loss", true)
	require.NoError(t, err)
	assert.Less(t, edge.Confidence, threshold, "one signal is not enough to recommend")

	edge, err = g.RecordSignal(ctx, "18.66", "sad", "loss", true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, edge.Confidence, threshold, "two consistent signals qualify the edge")
}

func TestRecordSignal_NegativePullsWeightDown(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	edge, err := g.RecordSignal(ctx, "2.47", "angry", "work", false)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, edge.Weight, 1e-9)
	assert.Equal(t, 1, edge.NegativeSignals)
}

func TestRecordSignal_BoundsHoldUnderLongSequences(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		edge, err := g.RecordSignal(ctx, "9.22", "anxious", "health", i%3 == 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, edge.Weight, 0.0)
		assert.LessOrEqual(t, edge.Weight, 1.0)
		assert.GreaterOrEqual(t, edge.Confidence, 0.0)
		assert.LessOrEqual(t, edge.Confidence, 1.0)
		assert.Equal(t, i+1, edge.SignalCount())
	}
}

func TestConfidence_SampleSizeScaling(t *testing.T) {
	g, _ := newTestGraph(t)

	assert.Zero(t, g.confidence(0, 0), "no signals means no confidence")

	// At saturation the sample factor is 1 and only the Beta estimate remains.
	assert.InDelta(t, 51.0/52.0, g.confidence(50, 0), 1e-9)

	// Same ratio, more samples, more confidence.
	assert.Greater(t, g.confidence(10, 10), g.confidence(2, 2))
}

func TestRecommend_RanksAndFiltersByConfidence(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	// Strong edge: three consistent positives.
	for i := 0; i < 3; i++ {
		_, err := g.RecordSignal(ctx, "2.47", "anxious", "exam", true)
		require.NoError(t, err)
	}
	// Weaker edge: mixed feedback.
	for _, positive := range []bool{true, true, false} {
		_, err := g.RecordSignal(ctx, "18.66", "anxious", "exam", positive)
		require.NoError(t, err)
	}
	// Cold edge: shown but never endorsed, stays below the floor.
	_, err := g.RecordShow(ctx, "4.07", "anxious", "exam")
	require.NoError(t, err)

	recs, err := g.Recommend(ctx, "anxious", "exam", nil, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2.47", recs[0].VerseRef)
	assert.Equal(t, "18.66", recs[1].VerseRef)
	assert.Greater(t, recs[0].Score, recs[1].Score)
}

func TestRecommend_ExcludesRecentRefs(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	for _, ref := range []string{"2.47", "18.66"} {
		for i := 0; i < 2; i++ {
			_, err := g.RecordSignal(ctx, ref, "anxious", "exam", true)
			require.NoError(t, err)
		}
	}

	recs, err := g.Recommend(ctx, "anxious", "exam", []string{"2.47"}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "18.66", recs[0].VerseRef)
}

func TestRecommend_RelaxesTopicWhenSituationUnknown(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.RecordSignal(ctx, "2.14", "sad", "loss", true)
		require.NoError(t, err)
	}

	// No edges for (sad, career); the mood-only fallback still serves.
	recs, err := g.Recommend(ctx, "sad", "career", nil, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2.14", recs[0].VerseRef)
}

func TestRecommend_DefaultLimit(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	for _, ref := range []string{"1.01", "2.02", "3.03", "4.04"} {
		for i := 0; i < 2; i++ {
			_, err := g.RecordSignal(ctx, ref, "calm", "practice", true)
			require.NoError(t, err)
		}
	}

	recs, err := g.Recommend(ctx, "calm", "practice", nil, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestDecayStaleEdges_MovesWeightTowardNeutral(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	tenDaysAgo := time.Now().UTC().Add(-10 * 24 * time.Hour)

	store.put(&Edge{
		VerseRef: "2.47", Mood: "anxious", Topic: "exam",
		Weight: 0.9, Confidence: 0.4, PositiveSignals: 8,
		CreatedAt: tenDaysAgo, UpdatedAt: tenDaysAgo,
	})
	store.put(&Edge{
		VerseRef: "18.66", Mood: "sad", Topic: "loss",
		Weight: 0.2, Confidence: 0.3, NegativeSignals: 4,
		CreatedAt: tenDaysAgo, UpdatedAt: tenDaysAgo,
	})
	// Fresh edge, must not be touched.
	_, err := g.RecordShow(ctx, "4.07", "calm", "practice")
	require.NoError(t, err)

	decayed, err := g.DecayStaleEdges(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, decayed)

	// 10 days at 0.005/day pulls 0.9 down by 0.05.
	edge, err := store.GetEdge(ctx, "2.47", "anxious", "exam")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, edge.Weight, 1e-4)
	assert.Equal(t, 8, edge.PositiveSignals, "decay never touches signal counters")

	// Below-neutral weights rise toward 0.5 symmetrically.
	edge, err = store.GetEdge(ctx, "18.66", "sad", "loss")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, edge.Weight, 1e-4)

	edge, err = store.GetEdge(ctx, "4.07", "calm", "practice")
	require.NoError(t, err)
	assert.Equal(t, 0.5, edge.Weight)
}

func TestDecayStaleEdges_NeverCrossesNeutral(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	longAgo := time.Now().UTC().Add(-400 * 24 * time.Hour)

	store.put(&Edge{
		VerseRef: "2.47", Mood: "anxious", Topic: "exam",
		Weight: 0.6, Confidence: 0.4,
		CreatedAt: longAgo, UpdatedAt: longAgo,
	})

	decayed, err := g.DecayStaleEdges(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, decayed)

	edge, err := store.GetEdge(ctx, "2.47", "anxious", "exam")
	require.NoError(t, err)
	assert.Equal(t, 0.5, edge.Weight, "decay stops exactly at neutral")
}

func TestDecayStaleEdges_CountsOnlyMovedEdges(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	tenDaysAgo := time.Now().UTC().Add(-10 * 24 * time.Hour)

	store.put(&Edge{
		VerseRef: "2.47", Mood: "anxious", Topic: "exam",
		Weight: 0.9, Confidence: 0.4,
		CreatedAt: tenDaysAgo, UpdatedAt: tenDaysAgo,
	})
	// Stale but already at neutral; nothing to decay.
	store.put(&Edge{
		VerseRef: "18.66", Mood: "anxious", Topic: "exam",
		Weight: 0.5, Confidence: 0.4,
		CreatedAt: tenDaysAgo, UpdatedAt: tenDaysAgo,
	})

	decayed, err := g.DecayStaleEdges(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, decayed, "an edge resting at neutral does not count as decayed")
}

func TestDecayToward(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		target float64
		delta  float64
		want   float64
	}{
		{"above target", 0.9, 0.5, 0.1, 0.8},
		{"below target", 0.2, 0.5, 0.1, 0.3},
		{"overshoot from above", 0.55, 0.5, 0.2, 0.5},
		{"overshoot from below", 0.45, 0.5, 0.2, 0.5},
		{"at target", 0.5, 0.5, 0.1, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, decayToward(tt.value, tt.target, tt.delta), 1e-9)
		})
	}
}

func TestProfile_AggregatesAcrossSituations(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	_, err := g.RecordSignal(ctx, "2.47", "anxious", "exam", true)
	require.NoError(t, err)
	_, err = g.RecordSignal(ctx, "2.47", "sad", "career", true)
	require.NoError(t, err)
	_, err = g.RecordShow(ctx, "2.47", "anxious", "exam")
	require.NoError(t, err)

	profile, err := g.Profile(ctx, "2.47")
	require.NoError(t, err)
	assert.Equal(t, 2, profile.EdgeCount)
	assert.Equal(t, 1, profile.TotalShown)
	assert.Equal(t, 2, profile.PositiveSignals)
	assert.Len(t, profile.BestSituations, 2)
}

func TestProfile_EmptyRef(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.Profile(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyRef)
}

func TestStats(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	stats, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EdgeCount)

	_, err = g.RecordSignal(ctx, "2.47", "anxious", "exam", true)
	require.NoError(t, err)
	_, err = g.RecordSignal(ctx, "18.66", "anxious", "exam", false)
	require.NoError(t, err)
	_, err = g.RecordSignal(ctx, "2.47", "sad", "loss", true)
	require.NoError(t, err)

	stats, err = g.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EdgeCount)
	assert.Equal(t, 2, stats.VerseCount)
	assert.Equal(t, 2, stats.SituationCount)
	assert.Equal(t, 2, stats.PositiveSignals)
	assert.Equal(t, 1, stats.NegativeSignals)
}
