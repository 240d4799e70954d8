package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agalue/jarvis-voice/pkg/provider/slots/gliner"
)

// loadGlinerVocab reads a JSON object mapping vocabulary tokens to input
// ids from path. The gliner package ships no loader of its own since the
// vocabulary format is a deployment concern (it is exported once, offline,
// alongside the ONNX model) rather than something the engine needs to
// produce at runtime.
func loadGlinerVocab(path string) (gliner.Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocab file %q: %w", path, err)
	}
	vocab := make(gliner.Vocab)
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocab file %q: %w", path, err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab file %q contains no entries", path)
	}
	return vocab, nil
}
