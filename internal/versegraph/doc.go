// Package versegraph maintains the feedback-weighted bipartite graph between
// content references (verses) and situations (mood × topic pairs).
//
// Every feedback signal nudges the edge weight with a one-step exponential
// update and recomputes a sample-size-scaled Bayesian confidence. Queries
// rank edges by weight × confidence with a small exploration bonus for
// under-sampled edges. A background scheduler decays stale edges toward
// neutral so the graph forgets gracefully.
package versegraph
