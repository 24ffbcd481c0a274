package versegraph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sattvalabs/wisdomd/internal/config"
)

// Graph is the feedback-weighted bipartite graph between content references
// and situations.
//
// The graph holds no edge state itself; every operation is a store
// transaction addressed by the (ref, mood, topic) natural key, so a single
// Graph is safe to share across concurrent requests.
type Graph struct {
	store  EdgeStore
	cfg    config.GraphConfig
	logger *zap.Logger
}

// NewGraph creates a graph engine.
func NewGraph(store EdgeStore, cfg config.GraphConfig, logger *zap.Logger) (*Graph, error) {
	if store == nil {
		return nil, fmt.Errorf("edge store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{store: store, cfg: cfg, logger: logger}, nil
}

// seed returns the initial state of a freshly created edge: neutral weight,
// floor confidence.
func (g *Graph) seed() Edge {
	return Edge{
		Weight:     g.cfg.SeedWeight,
		Confidence: g.cfg.SeedConfidence,
	}
}

// RecordShow increments the show counter on the edge for the triple,
// creating the edge at its seed values if this is the first sighting.
func (g *Graph) RecordShow(ctx context.Context, ref, mood, topic string) (*Edge, error) {
	if ref == "" {
		return nil, ErrEmptyRef
	}
	return g.store.UpdateEdge(ctx, ref, mood, topic, g.seed(), func(e *Edge) error {
		e.TimesShown++
		return nil
	})
}

// RecordSignal applies one feedback event to the edge.
//
// The weight takes a one-step exponential move toward 1.0 on positive and
// toward 0.0 on negative feedback. Confidence is recomputed from the full
// signal history: a Beta point estimate scaled by a sample-size factor that
// grows logarithmically and saturates once ConfidenceSampleSize signals have
// accumulated. Both values are clamped to [0,1].
func (g *Graph) RecordSignal(ctx context.Context, ref, mood, topic string, positive bool) (*Edge, error) {
	if ref == "" {
		return nil, ErrEmptyRef
	}
	edge, err := g.store.UpdateEdge(ctx, ref, mood, topic, g.seed(), func(e *Edge) error {
		if positive {
			e.PositiveSignals++
			e.Weight += g.cfg.LearningRate * (1 - e.Weight)
		} else {
			e.NegativeSignals++
			e.Weight -= g.cfg.LearningRate * e.Weight
		}
		e.Weight = clamp01(e.Weight)
		e.Confidence = g.confidence(e.PositiveSignals, e.NegativeSignals)
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Debug("signal recorded",
		zap.String("verse_ref", ref),
		zap.String("mood", mood),
		zap.String("topic", topic),
		zap.Bool("positive", positive),
		zap.Float64("weight", edge.Weight),
		zap.Float64("confidence", edge.Confidence))

	return edge, nil
}

// confidence computes the Bayesian confidence estimate for a signal history.
func (g *Graph) confidence(positive, negative int) float64 {
	total := float64(positive + negative)
	p := (float64(positive) + g.cfg.PriorPositive) /
		(total + g.cfg.PriorPositive + g.cfg.PriorNegative)

	sampleFactor := math.Log(1+total) / math.Log(1+float64(g.cfg.ConfidenceSampleSize))
	if sampleFactor > 1 {
		sampleFactor = 1
	}

	return clamp01(p * sampleFactor)
}

// Recommend returns the top references for a situation, ranked by composite
// score (weight × confidence, plus an exploration bonus for edges shown
// fewer than ExplorationShowThreshold times).
//
// Only edges at or above MinRecommendConfidence participate; a freshly
// seeded edge sits below the threshold and needs at least one signal to
// surface. When the exact (mood, topic) situation has no qualifying edges,
// the topic is relaxed and mood-only matches are considered. Ties break
// toward fewer shows so under-sampled references are not starved.
func (g *Graph) Recommend(ctx context.Context, mood, topic string, excludeRefs []string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 3
	}

	edges, err := g.store.ListEdges(ctx, EdgeFilter{
		Mood:          mood,
		Topic:         topic,
		MinConfidence: g.cfg.MinRecommendConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	edges = excludeEdges(edges, excludeRefs)

	if len(edges) == 0 {
		// Relax the topic: any situation with this mood.
		edges, err = g.store.ListEdges(ctx, EdgeFilter{
			Mood:          mood,
			MinConfidence: g.cfg.MinRecommendConfidence,
		})
		if err != nil {
			return nil, fmt.Errorf("listing mood-only edges: %w", err)
		}
		edges = excludeEdges(edges, excludeRefs)
	}

	recs := make([]Recommendation, 0, len(edges))
	for _, edge := range edges {
		recs = append(recs, Recommendation{Edge: edge, Score: g.score(&edge)})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].TimesShown != recs[j].TimesShown {
			return recs[i].TimesShown < recs[j].TimesShown
		}
		return recs[i].VerseRef < recs[j].VerseRef
	})

	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// score computes the composite ranking score for an edge.
func (g *Graph) score(e *Edge) float64 {
	score := e.Weight * e.Confidence
	if e.TimesShown < g.cfg.ExplorationShowThreshold {
		score += g.cfg.ExplorationBonus
	}
	return score
}

// DecayStaleEdges pulls the weight of every edge untouched for at least
// staleAfter toward neutral (0.5) at DecayRatePerDay per day of staleness.
// Decay never crosses neutral and never touches the signal counters. This
// is a scheduled maintenance pass, not a request-path operation.
//
// Returns the number of edges decayed.
func (g *Graph) DecayStaleEdges(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)

	stale, err := g.store.ListEdges(ctx, EdgeFilter{UpdatedBefore: cutoff})
	if err != nil {
		return 0, fmt.Errorf("listing stale edges: %w", err)
	}

	// Each decay is a transaction on an independent edge row, so the pass
	// can run with bounded parallelism.
	var decayed atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, candidate := range stale {
		group.Go(func() error {
			moved := false
			_, err := g.store.UpdateEdge(groupCtx, candidate.VerseRef, candidate.Mood, candidate.Topic, g.seed(), func(e *Edge) error {
				days := time.Since(e.UpdatedAt).Hours() / 24
				if days <= 0 {
					return nil
				}
				next := decayToward(e.Weight, g.cfg.SeedWeight, g.cfg.DecayRatePerDay*days)
				if next == e.Weight {
					// Already at neutral; not a decay.
					return nil
				}
				e.Weight = next
				moved = true
				return nil
			})
			if err != nil {
				return fmt.Errorf("decaying edge (%s,%s,%s): %w",
					candidate.VerseRef, candidate.Mood, candidate.Topic, err)
			}
			if moved {
				decayed.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return int(decayed.Load()), err
	}

	if decayed.Load() > 0 {
		g.logger.Info("decay pass complete",
			zap.Int64("edges_decayed", decayed.Load()),
			zap.Duration("stale_after", staleAfter))
	}
	return int(decayed.Load()), nil
}

// decayToward moves value toward target by delta, stopping exactly at the
// target rather than oscillating past it.
func decayToward(value, target, delta float64) float64 {
	switch {
	case value > target:
		value -= delta
		if value < target {
			value = target
		}
	case value < target:
		value += delta
		if value > target {
			value = target
		}
	}
	return value
}

// Profile returns the aggregate view of one reference across all situations.
func (g *Graph) Profile(ctx context.Context, ref string) (*VerseProfile, error) {
	if ref == "" {
		return nil, ErrEmptyRef
	}

	edges, err := g.store.ListEdges(ctx, EdgeFilter{VerseRef: ref})
	if err != nil {
		return nil, fmt.Errorf("listing edges for %s: %w", ref, err)
	}

	profile := &VerseProfile{VerseRef: ref, EdgeCount: len(edges)}
	if len(edges) == 0 {
		return profile, nil
	}

	var weightSum, confSum float64
	best := make([]Recommendation, 0, len(edges))
	for _, edge := range edges {
		profile.TotalShown += edge.TimesShown
		profile.PositiveSignals += edge.PositiveSignals
		profile.NegativeSignals += edge.NegativeSignals
		weightSum += edge.Weight
		confSum += edge.Confidence
		best = append(best, Recommendation{Edge: edge, Score: g.score(&edge)})
	}
	profile.AvgWeight = weightSum / float64(len(edges))
	profile.AvgConfidence = confSum / float64(len(edges))

	sort.SliceStable(best, func(i, j int) bool { return best[i].Score > best[j].Score })
	if len(best) > 3 {
		best = best[:3]
	}
	profile.BestSituations = best

	return profile, nil
}

// Stats returns whole-graph aggregates.
func (g *Graph) Stats(ctx context.Context) (*Statistics, error) {
	edges, err := g.store.ListEdges(ctx, EdgeFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}

	stats := &Statistics{EdgeCount: len(edges)}
	if len(edges) == 0 {
		return stats, nil
	}

	verses := make(map[string]struct{})
	situations := make(map[string]struct{})
	var weightSum, confSum float64
	for _, edge := range edges {
		verses[edge.VerseRef] = struct{}{}
		situations[edge.Mood+"\x00"+edge.Topic] = struct{}{}
		stats.TotalShown += edge.TimesShown
		stats.PositiveSignals += edge.PositiveSignals
		stats.NegativeSignals += edge.NegativeSignals
		weightSum += edge.Weight
		confSum += edge.Confidence
	}
	stats.VerseCount = len(verses)
	stats.SituationCount = len(situations)
	stats.AvgWeight = weightSum / float64(len(edges))
	stats.AvgConfidence = confSum / float64(len(edges))

	return stats, nil
}

func excludeEdges(edges []Edge, excludeRefs []string) []Edge {
	if len(excludeRefs) == 0 {
		return edges
	}
	excluded := make(map[string]struct{}, len(excludeRefs))
	for _, ref := range excludeRefs {
		excluded[ref] = struct{}{}
	}
	kept := edges[:0]
	for _, edge := range edges {
		if _, skip := excluded[edge.VerseRef]; !skip {
			kept = append(kept, edge)
		}
	}
	return kept
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
