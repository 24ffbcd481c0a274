package wisdom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sattvalabs/wisdomd/internal/config"
	"github.com/sattvalabs/wisdomd/internal/flow"
)

// Distiller mines reusable atoms from successful LLM responses.
//
// Distillation is idempotent: running it twice over identical content yields
// zero new atoms the second time, because every segment is keyed by its
// content hash. Unparsable input degrades to zero atoms, never an error.
type Distiller struct {
	store     AtomStore
	segmenter *Segmenter
	cfg       config.DistillConfig
	logger    *zap.Logger
}

// NewDistiller creates a distillation pipeline.
func NewDistiller(store AtomStore, cfg config.DistillConfig, logger *zap.Logger) (*Distiller, error) {
	if store == nil {
		return nil, fmt.Errorf("atom store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distiller{
		store:     store,
		segmenter: NewSegmenter(cfg.MinSegmentLength),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// DistillInput carries one LLM turn into the pipeline.
type DistillInput struct {
	LLMResponse string
	UserMessage string
	Mood        string
	Topic       string
	Intent      string
	Phase       flow.Phase
	SourceRef   string
}

// Distill segments the LLM response, deduplicates by content hash, and
// persists each new segment as an atom tagged with the turn's situation.
//
// Returns only newly created atoms; an empty slice means nothing new was
// learned and is not an error. Store failures propagate: silently dropping
// a distilled atom would corrupt the learning loop.
func (d *Distiller) Distill(ctx context.Context, in DistillInput) ([]Atom, error) {
	segments := d.segmenter.Segment(in.LLMResponse)
	if len(segments) == 0 {
		return []Atom{}, nil
	}

	maxAtoms := d.cfg.MaxAtomsPerResponse
	if maxAtoms <= 0 {
		maxAtoms = len(segments)
	}

	created := make([]Atom, 0, len(segments))
	for _, segment := range segments {
		if len(created) >= maxAtoms {
			break
		}

		now := time.Now().UTC()
		atom := &Atom{
			ID:          uuid.NewString(),
			ContentHash: ContentHash(segment.Text),
			Category:    segment.Category,
			Content:     segment.Text,
			Mood:        in.Mood,
			Topic:       in.Topic,
			Phase:       in.Phase,
			VerseRef:    segment.VerseRef,
			SourceRef:   in.SourceRef,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err := d.store.CreateAtom(ctx, atom)
		switch {
		case err == nil:
			created = append(created, *atom)
		case errors.Is(err, ErrDuplicateContent):
			// Already learned, including the case where a concurrent
			// distillation won the insert race.
			continue
		default:
			return nil, fmt.Errorf("storing atom: %w", err)
		}
	}

	d.logger.Debug("distillation complete",
		zap.String("source_ref", in.SourceRef),
		zap.String("mood", in.Mood),
		zap.String("topic", in.Topic),
		zap.Int("segments", len(segments)),
		zap.Int("new_atoms", len(created)))

	return created, nil
}
