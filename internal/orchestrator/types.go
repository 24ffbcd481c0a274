package orchestrator

import (
	"github.com/sattvalabs/wisdomd/internal/compose"
	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/versegraph"
	"github.com/sattvalabs/wisdomd/internal/wisdom"
)

// TryRespondInput carries one user turn into the orchestrator.
type TryRespondInput struct {
	SessionID   string
	UserID      string
	UserMessage string
	Mood        string
	Topic       string
	Intent      string
	Entities    []string
}

// Result is the outcome of a self-sufficiency attempt.
//
// When IsSelfSufficient is false, Response is nil and the caller is expected
// to obtain an LLM answer and feed it back through LearnFromLLM.
type Result struct {
	IsSelfSufficient bool                      `json:"is_self_sufficient"`
	Response         *compose.ComposedResponse `json:"response,omitempty"`
	Phase            flow.Phase                `json:"phase"`
	TurnCount        int                       `json:"turn_count"`
}

// LearnInput carries an LLM turn into the distillation pipeline.
type LearnInput struct {
	SessionID       string
	UserMessage     string
	LLMResponse     string
	Mood            string
	Topic           string
	Intent          string
	Phase           flow.Phase
	SourceMessageID string
}

// LearnStats reports what one LLM turn taught the system.
type LearnStats struct {
	NewAtoms  int        `json:"new_atoms"`
	AtomIDs   []string   `json:"atom_ids"`
	Phase     flow.Phase `json:"phase"`
	TurnCount int        `json:"turn_count"`
}

// FeedbackInput carries one user feedback event.
type FeedbackInput struct {
	SessionID  string
	VerseRef   string
	Mood       string
	Topic      string
	AtomIDs    []string
	TemplateID string
	Positive   bool
}

// SystemStats aggregates the learning system's health.
type SystemStats struct {
	AtomsByCategory     map[wisdom.Category]int `json:"atoms_by_category"`
	TotalAtoms          int                     `json:"total_atoms"`
	Graph               *versegraph.Statistics  `json:"graph"`
	ActiveTemplates     int                     `json:"active_templates"`
	ActiveSessions      int                     `json:"active_sessions"`
	ClosedSessions      int                     `json:"closed_sessions"`
	SelfSufficiencyRate float64                 `json:"self_sufficiency_rate"`
}
