package intent_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/intent"
)

func fuzzyCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	root := t.TempDir()
	writeCmd(t, root, "lights_on", `
id: lights_on
type: noop
phrases:
  en:
    - "turn on the lights"
`)
	writeCmd(t, root, "weather", `
id: weather
type: noop
phrases:
  en:
    - "what is the weather today"
`)
	cat, err := catalog.Load(root)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return cat
}

func TestMatch_ExactPhraseEarlyReturnsPerfectScore(t *testing.T) {
	cat := fuzzyCatalog(t)
	m := intent.NewFuzzyMatcher()

	id, score, ok := m.Match(cat, "en", "turn on the lights")
	if !ok {
		t.Fatal("Match: expected a match for exact phrase")
	}
	if id != "lights_on" {
		t.Errorf("Match id = %q; want lights_on", id)
	}
	if score < 99 {
		t.Errorf("Match score = %f; want >= 99 for exact match", score)
	}
}

func TestMatch_CaseAndWhitespaceInsensitive(t *testing.T) {
	cat := fuzzyCatalog(t)
	m := intent.NewFuzzyMatcher()

	id, _, ok := m.Match(cat, "en", "  TURN ON THE LIGHTS  ")
	if !ok || id != "lights_on" {
		t.Fatalf("Match(case/whitespace) = (%q, %v); want (lights_on, true)", id, ok)
	}
}

func TestMatch_CloseTypoStillMatchesAboveThreshold(t *testing.T) {
	cat := fuzzyCatalog(t)
	m := intent.NewFuzzyMatcher()

	id, score, ok := m.Match(cat, "en", "turn on the light")
	if !ok {
		t.Fatalf("Match: expected a near match, got none (score=%f)", score)
	}
	if id != "lights_on" {
		t.Errorf("Match id = %q; want lights_on", id)
	}
}

func TestMatch_UnrelatedTextNoMatch(t *testing.T) {
	cat := fuzzyCatalog(t)
	m := intent.NewFuzzyMatcher()

	_, _, ok := m.Match(cat, "en", "please call my grandmother in paris")
	if ok {
		t.Error("Match: expected no match for unrelated text")
	}
}

func TestMatch_EmptyText_NoMatch(t *testing.T) {
	cat := fuzzyCatalog(t)
	m := intent.NewFuzzyMatcher()

	_, _, ok := m.Match(cat, "en", "   ")
	if ok {
		t.Error("Match: expected no match for empty/whitespace-only text")
	}
}

func TestMatch_CustomThresholdIsRespected(t *testing.T) {
	cat := fuzzyCatalog(t)
	strict := intent.NewFuzzyMatcher(intent.WithThreshold(99.9))

	_, _, ok := strict.Match(cat, "en", "turn on the light")
	if ok {
		t.Error("Match: expected no match under a near-100 threshold for a near (not exact) phrase")
	}
}

func TestMatch_NoPhrasesForLanguage_NoMatch(t *testing.T) {
	root := t.TempDir()
	writeCmd(t, root, "only_de", `
id: only_de
type: noop
phrases:
  de:
    - "mach das licht an"
`)
	cat, err := catalog.Load(root)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	m := intent.NewFuzzyMatcher()

	// "fr" falls back to first-available ("de"), so this should still be
	// scored against the German phrase rather than matching nothing.
	_, _, ok := m.Match(cat, "fr", "etwas komplett anderes in einer anderen sprache")
	if ok {
		t.Error("Match: expected no match for unrelated text even with language fallback")
	}
}

func TestCommandYamlDirectoryHelper(t *testing.T) {
	// sanity check that the shared writeCmd test helper (from
	// classifier_test.go) produces a loadable manifest.
	root := t.TempDir()
	writeCmd(t, root, "x", `
id: x
type: noop
`)
	if _, err := os.Stat(filepath.Join(root, "x", "command.yaml")); err != nil {
		t.Fatalf("expected manifest file to exist: %v", err)
	}
}
