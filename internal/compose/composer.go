package compose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sattvalabs/wisdomd/internal/config"
	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/versegraph"
	"github.com/sattvalabs/wisdomd/internal/wisdom"
)

// VerseRecommender supplies ranked reference recommendations for a
// situation. Satisfied by *versegraph.Graph.
type VerseRecommender interface {
	Recommend(ctx context.Context, mood, topic string, excludeRefs []string, limit int) ([]versegraph.Recommendation, error)
}

// Composer assembles candidate responses from stored atoms and templates.
//
// Compose returning (nil, nil) is the designed "fall back to the LLM"
// signal, not an error: absence of sufficient data is structural, and the
// composer never raises for missing atoms or templates.
type Composer struct {
	atoms     wisdom.AtomStore
	templates TemplateStore
	verses    VerseRecommender
	cfg       config.ComposeConfig
	logger    *zap.Logger
}

// NewComposer creates a composition engine. The verse recommender may be
// nil, in which case responses are composed without reference interpolation.
func NewComposer(atoms wisdom.AtomStore, templates TemplateStore, verses VerseRecommender, cfg config.ComposeConfig, logger *zap.Logger) (*Composer, error) {
	if atoms == nil {
		return nil, fmt.Errorf("atom store cannot be nil")
	}
	if templates == nil {
		return nil, fmt.Errorf("template store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		atoms:     atoms,
		templates: templates,
		verses:    verses,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// ComposeInput carries the current situation into the composer.
type ComposeInput struct {
	Mood            string
	Topic           string
	Phase           flow.Phase
	Intent          string
	Entities        []string
	RecentAtomIDs   []string
	RecentVerseRefs []string
}

// Compose attempts to assemble a response for the situation.
//
// It selects the best active template for (phase, mood, topic), fills its
// slots in order with the best matching atoms (recency-excluded so a session
// never repeats a fragment), optionally interpolates a verse recommendation,
// and scores its own confidence from atom feedback ratios, template success
// rate, and slot coverage. Below the usability threshold it declines by
// returning (nil, nil).
func (c *Composer) Compose(ctx context.Context, in ComposeInput) (*ComposedResponse, error) {
	tmpl, err := c.selectTemplate(ctx, in)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, nil
	}

	parts := make([]string, 0, len(tmpl.Slots)+1)
	atomIDs := make([]string, 0, len(tmpl.Slots))
	used := append([]string(nil), in.RecentAtomIDs...)
	var ratioSum float64
	filled := 0

	for _, slot := range tmpl.Slots {
		atom, err := c.fillSlot(ctx, slot, in, used)
		if err != nil {
			return nil, err
		}
		if atom == nil {
			continue
		}
		parts = append(parts, atom.Content)
		atomIDs = append(atomIDs, atom.ID)
		used = append(used, atom.ID)
		ratioSum += atom.FeedbackRatio()
		filled++
	}

	// Adequate coverage means at least half the slots, and never zero.
	if filled == 0 || filled*2 < len(tmpl.Slots) {
		c.logger.Debug("composition declined: insufficient slot coverage",
			zap.String("template_id", tmpl.ID),
			zap.Int("filled", filled),
			zap.Int("slots", len(tmpl.Slots)))
		return nil, nil
	}

	verseRef := c.recommendVerse(ctx, in)
	if verseRef != "" {
		parts = append(parts, fmt.Sprintf("Verse %s speaks directly to this.", verseRef))
	}

	coverage := float64(filled) / float64(len(tmpl.Slots))
	atomScore := ratioSum / float64(filled)
	confidence := c.cfg.AtomWeight*atomScore +
		c.cfg.TemplateWeight*tmpl.SuccessRate() +
		c.cfg.CoverageWeight*coverage

	if confidence < c.cfg.MinConfidence {
		c.logger.Debug("composition declined: confidence below threshold",
			zap.String("template_id", tmpl.ID),
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", c.cfg.MinConfidence))
		return nil, nil
	}

	return &ComposedResponse{
		Text:        strings.Join(parts, " "),
		AtomIDs:     atomIDs,
		TemplateID:  tmpl.ID,
		VerseRef:    verseRef,
		Confidence:  confidence,
		Phase:       in.Phase,
		SlotsFilled: filled,
		SlotsTotal:  len(tmpl.Slots),
	}, nil
}

// selectTemplate finds the best active template, relaxing the situation
// match from (phase, mood, topic) to (phase, mood) to phase-only.
func (c *Composer) selectTemplate(ctx context.Context, in ComposeInput) (*Template, error) {
	filters := []TemplateFilter{
		{Phase: in.Phase, Mood: in.Mood, Topic: in.Topic, ActiveOnly: true},
		{Phase: in.Phase, Mood: in.Mood, ActiveOnly: true},
		{Phase: in.Phase, ActiveOnly: true},
	}

	for _, filter := range filters {
		candidates, err := c.templates.ListTemplates(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("listing templates: %w", err)
		}
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			ri, rj := candidates[i].SuccessRate(), candidates[j].SuccessRate()
			if ri != rj {
				return ri > rj
			}
			if candidates[i].Uses() != candidates[j].Uses() {
				return candidates[i].Uses() > candidates[j].Uses()
			}
			return candidates[i].ID < candidates[j].ID
		})
		return &candidates[0], nil
	}

	return nil, nil
}

// fillSlot finds the best atom for a slot, trying the exact situation first
// and then relaxing the topic.
func (c *Composer) fillSlot(ctx context.Context, slot Slot, in ComposeInput, excludeIDs []string) (*wisdom.Atom, error) {
	for _, category := range slotCategories[slot] {
		filters := []wisdom.AtomFilter{
			{Mood: in.Mood, Topic: in.Topic, Phase: in.Phase, Category: category, ExcludeIDs: excludeIDs},
			{Mood: in.Mood, Phase: in.Phase, Category: category, ExcludeIDs: excludeIDs},
		}
		for _, filter := range filters {
			atoms, err := c.atoms.ListAtoms(ctx, filter)
			if err != nil {
				return nil, fmt.Errorf("listing atoms for slot %s: %w", slot, err)
			}
			if len(atoms) == 0 {
				continue
			}
			sort.SliceStable(atoms, func(i, j int) bool {
				ri, rj := atoms[i].FeedbackRatio(), atoms[j].FeedbackRatio()
				if ri != rj {
					return ri > rj
				}
				if atoms[i].UsageCount != atoms[j].UsageCount {
					return atoms[i].UsageCount > atoms[j].UsageCount
				}
				return atoms[i].ID < atoms[j].ID
			})
			return &atoms[0], nil
		}
	}
	return nil, nil
}

// recommendVerse pulls one reference recommendation, excluding verses the
// session has already seen. Recommendation failures are deliberately
// non-fatal: a response without a verse beats no response.
func (c *Composer) recommendVerse(ctx context.Context, in ComposeInput) string {
	if c.verses == nil {
		return ""
	}
	recs, err := c.verses.Recommend(ctx, in.Mood, in.Topic, in.RecentVerseRefs, 1)
	if err != nil {
		c.logger.Warn("verse recommendation failed", zap.Error(err))
		return ""
	}
	if len(recs) == 0 {
		return ""
	}
	return recs[0].VerseRef
}

// RecordUsage increments the usage counter of every atom that made it into
// a delivered response.
func (c *Composer) RecordUsage(ctx context.Context, atomIDs []string) error {
	for _, id := range atomIDs {
		if err := c.atoms.RecordAtomUsage(ctx, id); err != nil {
			return fmt.Errorf("recording usage for atom %s: %w", id, err)
		}
	}
	return nil
}

// RecordFeedback applies one user feedback event to the atoms and template
// behind a delivered response. A template whose success rate falls below the
// usability threshold after enough samples is deactivated, not deleted.
func (c *Composer) RecordFeedback(ctx context.Context, atomIDs []string, templateID string, positive bool) error {
	for _, id := range atomIDs {
		if err := c.atoms.RecordAtomFeedback(ctx, id, positive); err != nil {
			return fmt.Errorf("recording feedback for atom %s: %w", id, err)
		}
	}

	if templateID == "" {
		return nil
	}

	deactivated := false
	tmpl, err := c.templates.UpdateTemplate(ctx, templateID, func(t *Template) error {
		if positive {
			t.SuccessCount++
		} else {
			t.FailureCount++
		}
		if t.IsActive &&
			t.Uses() >= c.cfg.DeactivateMinSamples &&
			t.SuccessRate() < c.cfg.DeactivateSuccessRate {
			t.IsActive = false
			deactivated = true
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			// Feedback for a template that has since vanished is stale,
			// not fatal.
			c.logger.Warn("feedback for unknown template", zap.String("template_id", templateID))
			return nil
		}
		return fmt.Errorf("recording feedback for template %s: %w", templateID, err)
	}

	if deactivated {
		c.logger.Info("template deactivated",
			zap.String("template_id", tmpl.ID),
			zap.Float64("success_rate", tmpl.SuccessRate()),
			zap.Int("uses", tmpl.Uses()))
	}

	return nil
}
