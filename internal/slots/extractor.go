package slots

import (
	"context"
	"sort"

	"github.com/agalue/jarvis-voice/internal/catalog"
	slotsprovider "github.com/agalue/jarvis-voice/pkg/provider/slots"
)

// Extractor resolves map[slot_name]Value for a command from free text,
// using an underlying zero-shot span-extraction Provider.
type Extractor struct {
	provider slotsprovider.Provider
}

// New returns an Extractor backed by provider.
func New(provider slotsprovider.Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Extract resolves cmd's declared slots from text. It never blocks the
// command on a provider failure: any error, or a command with no slots
// declared, yields an empty (non-nil) map.
func (e *Extractor) Extract(ctx context.Context, cmd *catalog.Command, text string) map[string]Value {
	result := map[string]Value{}
	if len(cmd.Slots) == 0 {
		return result
	}

	names := make([]string, 0, len(cmd.Slots))
	for name := range cmd.Slots {
		names = append(names, name)
	}
	sort.Strings(names)

	// entity label -> slot names declared with that label, in deterministic
	// (sorted) order, so that when two slots share a label the first one
	// encountered here still wins, matching the catalog's "first occurrence
	// wins" resolution.
	labelToSlots := make(map[string][]string)
	labels := make([]string, 0, len(names))
	for _, name := range names {
		label := cmd.Slots[name].EntityLabel
		if label == "" {
			continue
		}
		if _, seen := labelToSlots[label]; !seen {
			labels = append(labels, label)
		}
		labelToSlots[label] = append(labelToSlots[label], name)
	}
	if len(labels) == 0 {
		return result
	}

	spans, err := e.provider.Extract(ctx, text, labels)
	if err != nil || len(spans) == 0 {
		return result
	}

	for _, span := range spans {
		for _, name := range labelToSlots[span.Label] {
			if _, filled := result[name]; filled {
				continue
			}
			result[name] = parseSlotValue(span.Text)
			break
		}
	}
	return result
}
