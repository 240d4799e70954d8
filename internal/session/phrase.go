package session

import "strings"

// stripWakePhrase removes a leading wake phrase from text, if present, and
// reports whether one was found. Matching is case-insensitive against the
// whole leading run of words that make up the phrase; only the first match
// is removed, since a finalized utterance repeating the wake word twice is
// not a case this filter needs to handle.
func stripWakePhrase(text string, wakePhrases []string) (remainder string, matched bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range wakePhrases {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p == "" {
			continue
		}
		if lower == p {
			return "", true
		}
		if strings.HasPrefix(lower, p+" ") {
			return strings.TrimSpace(text[len(p):]), true
		}
	}
	return text, false
}

// filterPhrase removes every filler word in fillerWords from text (as
// whole words, case-insensitively) and trims the result. Filler words are
// a language-specific list (e.g. "please", "um", "the") that carry no
// intent signal and would otherwise dilute the classifier/fuzzy match.
func filterPhrase(text string, fillerWords []string) string {
	if len(fillerWords) == 0 {
		return strings.TrimSpace(text)
	}
	skip := make(map[string]struct{}, len(fillerWords))
	for _, w := range fillerWords {
		skip[strings.ToLower(w)] = struct{}{}
	}

	words := strings.Fields(text)
	kept := words[:0:0]
	for _, w := range words {
		if _, drop := skip[strings.ToLower(w)]; drop {
			continue
		}
		kept = append(kept, w)
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}
