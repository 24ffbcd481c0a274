package compose

import (
	"context"
	"errors"
	"time"

	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/wisdom"
)

// Errors returned by the composer and its template store.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrNoSlots          = errors.New("template must have at least one slot")
)

// Slot names a position in a composition template.
type Slot string

const (
	SlotOpener Slot = "opener"
	SlotBody   Slot = "body"
	SlotAction Slot = "action"
	SlotCloser Slot = "closer"
)

// slotCategories maps each slot to the atom categories that can fill it.
var slotCategories = map[Slot][]wisdom.Category{
	SlotOpener: {wisdom.CategoryValidation},
	SlotBody:   {wisdom.CategoryInsight, wisdom.CategoryReframe},
	SlotAction: {wisdom.CategoryAction},
	SlotCloser: {wisdom.CategoryClosing, wisdom.CategoryValidation},
}

// Template is a proven assembly pattern: an ordered slot list tagged by
// phase and situation.
//
// A template is structurally immutable once created; only its counters and
// active flag change. Templates are deactivated, never deleted, when their
// success rate falls below the usability threshold.
type Template struct {
	// ID is the unique template identifier (UUID).
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Slots is the ordered list of positions to fill.
	Slots []Slot `json:"slots"`

	// Phase is the conversation phase this template fits.
	Phase flow.Phase `json:"phase"`

	// Mood and Topic scope the template to a situation. Empty means the
	// template is generic for that dimension.
	Mood  string `json:"mood,omitempty"`
	Topic string `json:"topic,omitempty"`

	// SuccessCount and FailureCount track composition feedback.
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`

	// IsActive gates the template out of selection once its success rate
	// drops below the usability threshold.
	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SuccessRate returns the positive share of feedback in [0,1], or 0.5 when
// the template is unproven.
func (t *Template) SuccessRate() float64 {
	total := t.SuccessCount + t.FailureCount
	if total == 0 {
		return 0.5
	}
	return float64(t.SuccessCount) / float64(total)
}

// Uses is the total recorded feedback count.
func (t *Template) Uses() int {
	return t.SuccessCount + t.FailureCount
}

// TemplateFilter narrows ListTemplates results. Zero-valued fields are
// ignored.
type TemplateFilter struct {
	Phase      flow.Phase
	Mood       string
	Topic      string
	ActiveOnly bool
}

// TemplateStore persists composition templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, tmpl *Template) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context, filter TemplateFilter) ([]Template, error)

	// UpdateTemplate runs a read-modify-write transaction on one template.
	UpdateTemplate(ctx context.Context, id string, mutate func(*Template) error) (*Template, error)

	CountActiveTemplates(ctx context.Context) (int, error)
}

// ComposedResponse is a successfully assembled candidate response.
type ComposedResponse struct {
	// Text is the assembled response.
	Text string `json:"text"`

	// AtomIDs lists the atoms used, in slot order.
	AtomIDs []string `json:"atom_ids"`

	// TemplateID is the template the response was assembled from.
	TemplateID string `json:"template_id"`

	// VerseRef is the interpolated reference, if any.
	VerseRef string `json:"verse_ref,omitempty"`

	// Confidence is the composer's own usability estimate in [0,1].
	Confidence float64 `json:"confidence"`

	// Phase is the conversation phase the response was composed for.
	Phase flow.Phase `json:"phase"`

	// SlotsFilled and SlotsTotal expose coverage for observability.
	SlotsFilled int `json:"slots_filled"`
	SlotsTotal  int `json:"slots_total"`
}
