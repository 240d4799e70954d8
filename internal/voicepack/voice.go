package voicepack

import (
	"os"
	"path/filepath"
)

// soundExtensions lists the extensions tried, in order, when resolving a
// sound's basename to a file on disk.
var soundExtensions = []string{"mp3", "wav", "ogg"}

// Voice is one loaded voice pack: its manifest plus the directory it was
// loaded from, used to resolve relative sound paths.
type Voice struct {
	Meta      Meta
	Reactions map[string]Reactions
	Dir       string
}

// SupportsLanguage reports whether v declares a reactions entry for lang.
func (v *Voice) SupportsLanguage(lang string) bool {
	_, ok := v.Reactions[lang]
	return ok
}

// resolveSound locates the on-disk path for basename in lang, trying the
// language subdirectory before the voice root, and each of soundExtensions
// in order at each location. Matches the original voice pack's resolution
// order: language subdir first, voice root second, mp3 before wav before
// ogg at each.
func (v *Voice) resolveSound(lang, basename string) (string, bool) {
	candidates := make([]string, 0, len(soundExtensions)*2)
	for _, ext := range soundExtensions {
		candidates = append(candidates, filepath.Join(v.Dir, lang, basename+"."+ext))
	}
	for _, ext := range soundExtensions {
		candidates = append(candidates, filepath.Join(v.Dir, basename+"."+ext))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// soundsFor returns the candidate basenames for kind in lang, falling back
// to the voice's first declared language if lang has no reactions entry.
func (v *Voice) soundsFor(lang string, kind Kind) []string {
	reactions, ok := v.Reactions[lang]
	if !ok {
		for _, fallback := range v.Meta.Languages {
			if r, ok := v.Reactions[fallback]; ok {
				reactions = r
				break
			}
		}
	}
	return reactions.list(kind)
}
