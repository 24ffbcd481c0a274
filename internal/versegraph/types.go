package versegraph

import (
	"context"
	"errors"
	"time"
)

// Errors returned by the graph and its edge store.
var (
	ErrEdgeNotFound = errors.New("edge not found")
	ErrEmptyRef     = errors.New("verse reference cannot be empty")
)

// Edge is a weighted link between a content reference and a situation
// (mood × topic pair).
//
// Weight and confidence stay within [0,1]. The show and signal counters are
// monotonically non-decreasing; decay moves only the weight, never the
// counters. Exactly one edge exists per distinct (ref, mood, topic) triple,
// and edges are never deleted.
type Edge struct {
	// VerseRef is the content reference identifier (e.g. "2.47").
	VerseRef string `json:"verse_ref"`

	// Mood and Topic form the situation this edge applies to.
	Mood  string `json:"mood"`
	Topic string `json:"topic"`

	// Weight reflects how well the reference lands in this situation,
	// learned by exponential moving average over feedback signals.
	Weight float64 `json:"weight"`

	// Confidence is a Bayesian estimate of how much the weight can be
	// trusted, scaled by sample size.
	Confidence float64 `json:"confidence"`

	// TimesShown counts recommendations surfaced to users.
	TimesShown int `json:"times_shown"`

	// PositiveSignals and NegativeSignals count feedback events. Shows
	// and signals are independent counters.
	PositiveSignals int `json:"positive_signals"`
	NegativeSignals int `json:"negative_signals"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignalCount is the total number of feedback signals on the edge.
func (e *Edge) SignalCount() int {
	return e.PositiveSignals + e.NegativeSignals
}

// EdgeFilter narrows ListEdges results. Zero-valued fields are ignored.
type EdgeFilter struct {
	VerseRef      string
	Mood          string
	Topic         string
	MinConfidence float64
	UpdatedBefore time.Time
}

// EdgeStore persists reference application edges.
//
// UpdateEdge is the single write path: a read-modify-write transaction
// scoped to one edge, creating it from seed when absent, so concurrent
// signals on the same triple never lose updates.
type EdgeStore interface {
	GetEdge(ctx context.Context, ref, mood, topic string) (*Edge, error)
	UpdateEdge(ctx context.Context, ref, mood, topic string, seed Edge, mutate func(*Edge) error) (*Edge, error)
	ListEdges(ctx context.Context, filter EdgeFilter) ([]Edge, error)
}

// Recommendation is a ranked graph query result.
type Recommendation struct {
	Edge

	// Score is the composite ranking score: weight × confidence plus an
	// exploration bonus for under-sampled edges.
	Score float64 `json:"score"`
}

// VerseProfile aggregates everything the graph knows about one reference.
type VerseProfile struct {
	VerseRef        string  `json:"verse_ref"`
	EdgeCount       int     `json:"edge_count"`
	TotalShown      int     `json:"total_shown"`
	PositiveSignals int     `json:"positive_signals"`
	NegativeSignals int     `json:"negative_signals"`
	AvgWeight       float64 `json:"avg_weight"`
	AvgConfidence   float64 `json:"avg_confidence"`

	// BestSituations are the situations this reference scores highest in.
	BestSituations []Recommendation `json:"best_situations"`
}

// Statistics summarizes the whole graph.
type Statistics struct {
	EdgeCount       int     `json:"edge_count"`
	VerseCount      int     `json:"verse_count"`
	SituationCount  int     `json:"situation_count"`
	TotalShown      int     `json:"total_shown"`
	PositiveSignals int     `json:"positive_signals"`
	NegativeSignals int     `json:"negative_signals"`
	AvgWeight       float64 `json:"avg_weight"`
	AvgConfidence   float64 `json:"avg_confidence"`
}
