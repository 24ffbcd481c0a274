package wisdom

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment is a categorized span of an LLM response.
type Segment struct {
	Text     string
	Category Category
	VerseRef string
}

// verseRefPattern matches chapter.verse citations such as "2.47" or "18.66".
var verseRefPattern = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3})\b`)

// categoryMarkers maps discourse markers to categories. Checked in order;
// the first category whose marker appears in the lowercased sentence wins.
var categoryMarkers = []struct {
	category Category
	markers  []string
}{
	{CategoryValidation, []string{
		"it's okay", "it is okay", "it's understandable", "understandable to",
		"it's natural", "it is natural", "i hear", "that sounds", "makes sense",
		"you're not alone", "valid to feel", "it's normal", "completely normal",
	}},
	{CategoryAction, []string{
		"try to", "you can start", "consider ", "practice ", "take a moment",
		"start by", "one thing you can", "next time", "write down", "breathe",
	}},
	{CategoryReframe, []string{
		"instead of", "another way", "rather than", "on the other hand",
		"what if", "perhaps ", "think of it", "from a different", "reframe",
	}},
	{CategoryClosing, []string{
		"remember,", "remember that", "you've got", "i'm here", "take care",
		"be gentle with yourself", "one step at a time", "you are capable",
	}},
	{CategoryInsight, []string{
		"teaches", "reminds us", "the key is", "true peace", "wisdom",
		"as the gita", "verse", "attachment", "the mind is", "detachment",
	}},
}

// Segmenter splits an LLM response into category-tagged spans.
//
// The heuristic is deterministic: identical input always yields identical
// segments, which together with content-hash dedup makes distillation
// idempotent.
type Segmenter struct {
	minLength int
}

// NewSegmenter creates a segmenter. minLength is the minimum rune length for
// a span to be kept.
func NewSegmenter(minLength int) *Segmenter {
	if minLength <= 0 {
		minLength = 12
	}
	return &Segmenter{minLength: minLength}
}

// Segment splits text into categorized spans. Unparsable or empty input
// yields an empty slice, never an error.
func (s *Segmenter) Segment(text string) []Segment {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	segments := make([]Segment, 0, len(sentences))
	for i, sentence := range sentences {
		if utf8.RuneCountInString(sentence) < s.minLength {
			continue
		}
		segments = append(segments, Segment{
			Text:     sentence,
			Category: classify(sentence, i, len(sentences)),
			VerseRef: detectVerseRef(sentence),
		})
	}
	return segments
}

// splitSentences breaks text on sentence-ending punctuation and newlines.
// A period flanked by digits is a citation or decimal, not a boundary, so
// "2.47" survives intact. Deliberately simple: determinism matters more than
// linguistic precision, and the hash-based dedup absorbs over-splitting.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0

	flush := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
	}

	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; {
		case r == '\n':
			flush(i)
			start = i + 1
		case r == '!' || r == '?' ||
			(r == '.' && !(i > 0 && i+1 < len(runes) &&
				unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]))):
			for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				i++
			}
			flush(i + 1)
			start = i + 1
		}
	}
	flush(len(runes))

	return sentences
}

// classify picks a category from discourse markers, falling back on position:
// an unmarked opening sentence validates, an unmarked final sentence closes,
// anything in between is an insight.
func classify(sentence string, index, total int) Category {
	lowered := strings.ToLower(sentence)
	for _, entry := range categoryMarkers {
		for _, marker := range entry.markers {
			if strings.Contains(lowered, marker) {
				return entry.category
			}
		}
	}
	switch {
	case index == 0:
		return CategoryValidation
	case index == total-1 && total > 1:
		return CategoryClosing
	default:
		return CategoryInsight
	}
}

// detectVerseRef returns the first chapter.verse citation in the sentence.
func detectVerseRef(sentence string) string {
	return verseRefPattern.FindString(sentence)
}

// ContentHash computes the dedup key: sha256 over the normalized text.
// Normalization lowercases, collapses whitespace, and trims surrounding
// punctuation so trivial reformatting does not defeat dedup.
func ContentHash(text string) string {
	normalized := normalize(text)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	collapsed := whitespaceRun.ReplaceAllString(lowered, " ")
	return strings.Trim(collapsed, " .,!?;:")
}
