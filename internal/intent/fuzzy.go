package intent

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/agalue/jarvis-voice/internal/catalog"
)

const (
	defaultWordMatchFloor = 70.0
	defaultThreshold      = 75.0
	earlyReturnScore      = 99.0

	charWeight = 0.6
	wordWeight = 0.4
)

// FuzzyMatcher is the character/word hybrid similarity fallback used when
// the embedding Classifier's confidence is below the caller's threshold. It
// scores text against every localized phrase of every command and returns
// the best match, grounded on the same Levenshtein-distance primitive the
// phonetic word matcher uses, adapted to the hybrid ratio formula below
// rather than Jaro-Winkler ranking.
type FuzzyMatcher struct {
	threshold float64
}

// FuzzyOption configures a FuzzyMatcher.
type FuzzyOption func(*FuzzyMatcher)

// WithThreshold overrides the minimum combined score (0-100) required for a
// match to be returned. Default: 75.
func WithThreshold(threshold float64) FuzzyOption {
	return func(m *FuzzyMatcher) { m.threshold = threshold }
}

// NewFuzzyMatcher returns a FuzzyMatcher with the default threshold of 75,
// or as overridden by opts.
func NewFuzzyMatcher(opts ...FuzzyOption) *FuzzyMatcher {
	m := &FuzzyMatcher{threshold: defaultThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match scores text against every localized phrase (for lang) of every
// command in cat and returns the best-matching command id. ok is false if
// no phrase scores at or above the configured threshold.
func (m *FuzzyMatcher) Match(cat *catalog.Catalog, lang, text string) (id string, score float64, ok bool) {
	input := strings.ToLower(strings.TrimSpace(text))
	if input == "" {
		return "", 0, false
	}
	inputWords := strings.Fields(input)

	bestID := ""
	bestScore := -1.0

	for _, cmd := range cat.All() {
		for _, phrase := range cmd.Phrases(lang) {
			phraseLower := strings.ToLower(strings.TrimSpace(phrase))
			if phraseLower == "" {
				continue
			}

			combined := combinedScore(input, inputWords, phraseLower)
			if combined >= earlyReturnScore {
				return cmd.ID, combined, true
			}
			if combined > bestScore {
				bestScore = combined
				bestID = cmd.ID
			}
		}
	}

	if bestID != "" && bestScore >= m.threshold {
		return bestID, bestScore, true
	}
	return "", 0, false
}

// combinedScore implements 0.6·char_score + 0.4·word_score.
func combinedScore(input string, inputWords []string, phrase string) float64 {
	charScore := levenshteinRatio(input, phrase)
	wordScore := wordScore(inputWords, strings.Fields(phrase))
	return charWeight*charScore + wordWeight*wordScore
}

// levenshteinRatio converts a Levenshtein edit distance into a similarity
// percentage in [0, 100]: 100 when the strings are identical, 0 when they
// share no characters in common given their lengths.
func levenshteinRatio(a, b string) float64 {
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 100
	}
	dist := matchr.Levenshtein(a, b)
	ratio := (1 - float64(dist)/float64(maxLen)) * 100
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// wordScore computes, for each input word, the max character-ratio against
// any phrase word; counts it if that max is >= defaultWordMatchFloor; sums
// and normalizes by max(|input words|, |phrase words|).
func wordScore(inputWords, phraseWords []string) float64 {
	if len(inputWords) == 0 || len(phraseWords) == 0 {
		return 0
	}

	var matched float64
	for _, iw := range inputWords {
		best := 0.0
		for _, pw := range phraseWords {
			if r := levenshteinRatio(iw, pw); r > best {
				best = r
			}
		}
		if best >= defaultWordMatchFloor {
			matched += best / 100.0
		}
	}

	denom := len(inputWords)
	if len(phraseWords) > denom {
		denom = len(phraseWords)
	}
	return matched / float64(denom) * 100.0
}
