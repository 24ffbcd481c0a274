package wisdom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_CategorizesByMarkers(t *testing.T) {
	s := NewSegmenter(12)

	text := "It's okay to feel overwhelmed before a big decision. " +
		"Try to focus on the action itself, not the outcome. " +
		"Verse 2.47 teaches that effort is yours and results are not. " +
		"Remember, you are capable of more than you think."

	segments := s.Segment(text)
	require.Len(t, segments, 4)

	assert.Equal(t, CategoryValidation, segments[0].Category)
	assert.Equal(t, CategoryAction, segments[1].Category)
	assert.Equal(t, CategoryInsight, segments[2].Category)
	assert.Equal(t, CategoryClosing, segments[3].Category)
}

func TestSegment_PositionFallback(t *testing.T) {
	s := NewSegmenter(12)

	// No sentence carries a discourse marker; position decides.
	text := "The morning light fell across the quiet room. " +
		"Dust motes drifted in the narrow beam of sun. " +
		"The clock on the wall ticked toward noon."

	segments := s.Segment(text)
	require.Len(t, segments, 3)

	assert.Equal(t, CategoryValidation, segments[0].Category)
	assert.Equal(t, CategoryInsight, segments[1].Category)
	assert.Equal(t, CategoryClosing, segments[2].Category)
}

func TestSegment_DetectsVerseRef(t *testing.T) {
	s := NewSegmenter(12)

	segments := s.Segment("As verse 18.66 reminds us, surrender brings release.")
	require.Len(t, segments, 1)
	assert.Equal(t, "18.66", segments[0].VerseRef)

	segments = s.Segment("There is no citation anywhere in this sentence.")
	require.Len(t, segments, 1)
	assert.Empty(t, segments[0].VerseRef)
}

func TestSegment_DropsShortSpans(t *testing.T) {
	s := NewSegmenter(12)

	segments := s.Segment("Yes. No. It's okay to take your time with this.")
	require.Len(t, segments, 1)
	assert.Equal(t, "It's okay to take your time with this.", segments[0].Text)
}

func TestSegment_EmptyInput(t *testing.T) {
	s := NewSegmenter(12)

	assert.Empty(t, s.Segment(""))
	assert.Empty(t, s.Segment("   \n\t  "))
}

func TestContentHash_NormalizationInvariance(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{"case", "Let Go Of The Outcome.", "let go of the outcome."},
		{"whitespace", "let  go\tof the\noutcome", "let go of the outcome"},
		{"trailing punctuation", "let go of the outcome!!", "let go of the outcome"},
		{"leading whitespace", "   let go of the outcome", "let go of the outcome."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ContentHash(tt.a), ContentHash(tt.b))
		})
	}
}

func TestContentHash_DistinctContent(t *testing.T) {
	assert.NotEqual(t,
		ContentHash("act without attachment to results"),
		ContentHash("attachment to results causes suffering"))
}
