// Package slots defines the Provider interface for zero-shot span
// extraction (C7). A slots provider takes an utterance and a set of
// free-text entity labels and returns the spans of the utterance that match
// each label. The labels themselves are part of the model's input at
// inference time, the same way GLiNER-style NER models work, so no
// per-label training or fine-tuning is required to add a new slot.
package slots

import "context"

// Span is one recognized entity occurrence in the input text.
type Span struct {
	// Label is the entity label this span was recognized as, exactly as
	// passed to Extract.
	Label string

	// Text is the verbatim substring of the input that matched Label.
	Text string

	// Confidence is the model's decoded score for this span, in [0,1].
	Confidence float64
}

// Provider is the abstraction over any zero-shot span-extraction backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Extract scores candidate spans of text against each of labels and
	// returns the surviving, non-overlapping spans. Returns an empty
	// slice (not an error) when text contains no recognizable spans for
	// labels; an error is reserved for the provider itself being unusable
	// (model missing, inference failure). Callers must treat an error the
	// same as "no slots found" rather than propagating it to the user.
	Extract(ctx context.Context, text string, labels []string) ([]Span, error)
}
