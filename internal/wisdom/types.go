package wisdom

import (
	"context"
	"errors"
	"time"

	"github.com/sattvalabs/wisdomd/internal/flow"
)

// Errors returned by the distillation pipeline and its atom store.
var (
	ErrDuplicateContent = errors.New("atom with identical content already exists")
	ErrAtomNotFound     = errors.New("atom not found")
)

// Category classifies the conversational function of an atom.
type Category string

const (
	// CategoryValidation acknowledges and normalizes the user's feelings.
	CategoryValidation Category = "validation"

	// CategoryReframe offers an alternative perspective on the situation.
	CategoryReframe Category = "reframe"

	// CategoryInsight states a principle or teaching.
	CategoryInsight Category = "insight"

	// CategoryAction suggests a concrete next step.
	CategoryAction Category = "action"

	// CategoryClosing wraps up or encourages.
	CategoryClosing Category = "closing"
)

// Categories lists all atom categories.
func Categories() []Category {
	return []Category{
		CategoryValidation,
		CategoryReframe,
		CategoryInsight,
		CategoryAction,
		CategoryClosing,
	}
}

// Atom is an atomic, reusable response fragment mined from an LLM response.
//
// The content hash is the dedup key: no two non-deleted atoms may store
// byte-identical (after normalization) content. Atoms are never hard-deleted,
// only soft-deleted.
type Atom struct {
	// ID is the unique atom identifier (UUID).
	ID string `json:"id"`

	// ContentHash is a sha256 hex digest over the normalized content.
	ContentHash string `json:"content_hash"`

	// Category is the conversational function of this fragment.
	Category Category `json:"category"`

	// Content is the reusable fragment text.
	Content string `json:"content"`

	// Mood and Topic are the situation labels this atom was learned in.
	// Opaque labels from the external classifier, not a closed vocabulary.
	Mood  string `json:"mood"`
	Topic string `json:"topic"`

	// Phase is the conversation phase this fragment fits.
	Phase flow.Phase `json:"phase"`

	// VerseRef links to a content reference detected in the fragment
	// (e.g. "2.47"), if any.
	VerseRef string `json:"verse_ref,omitempty"`

	// SourceRef identifies the LLM turn this atom was distilled from.
	SourceRef string `json:"source_ref,omitempty"`

	// PositiveFeedback and NegativeFeedback count explicit user signals.
	PositiveFeedback int `json:"positive_feedback"`
	NegativeFeedback int `json:"negative_feedback"`

	// UsageCount tracks how many compositions used this atom.
	UsageCount int `json:"usage_count"`

	// Deleted soft-deletes the atom without losing its history.
	Deleted bool `json:"deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeedbackRatio returns the positive share of feedback in [0,1], or 0.5
// when the atom has no feedback yet.
func (a *Atom) FeedbackRatio() float64 {
	total := a.PositiveFeedback + a.NegativeFeedback
	if total == 0 {
		return 0.5
	}
	return float64(a.PositiveFeedback) / float64(total)
}

// AtomFilter narrows ListAtoms results. Zero-valued fields are ignored.
type AtomFilter struct {
	Mood       string
	Topic      string
	Phase      flow.Phase
	Category   Category
	ExcludeIDs []string
	Limit      int
}

// AtomStore persists wisdom atoms.
//
// CreateAtom must enforce content-hash uniqueness among non-deleted atoms
// and return ErrDuplicateContent on violation; a concurrent duplicate insert
// resolves through the same error, never a raw constraint failure.
type AtomStore interface {
	CreateAtom(ctx context.Context, atom *Atom) error
	GetAtomByHash(ctx context.Context, hash string) (*Atom, error)
	GetAtom(ctx context.Context, id string) (*Atom, error)
	ListAtoms(ctx context.Context, filter AtomFilter) ([]Atom, error)

	// RecordAtomUsage atomically increments the usage counter.
	RecordAtomUsage(ctx context.Context, id string) error

	// RecordAtomFeedback atomically increments a feedback counter.
	RecordAtomFeedback(ctx context.Context, id string, positive bool) error

	// CountAtomsByCategory aggregates non-deleted atom counts.
	CountAtomsByCategory(ctx context.Context) (map[Category]int, error)
}
