// Package intent resolves a free-form utterance to a command id: a
// cosine-similarity embedding classifier (C5) with a character/word hybrid
// fuzzy matcher (C6) as its fallback.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/pkg/provider/embeddings"
)

const (
	cacheVectorsFile = "embedding_intents.json"
	cacheHashFile    = "embedding_hash.txt"
)

// IntentVector is one command's unit-normalized centroid embedding.
type IntentVector struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// Classifier embeds localized command phrases into per-command centroids at
// startup and classifies new utterances by argmax cosine similarity.
// Built once; Classify is safe for the single pipeline thread to call
// repeatedly without re-embedding the catalog.
type Classifier struct {
	provider embeddings.Provider
	vectors  []IntentVector
}

// New builds (or loads from cache) the intent centroids for every command in
// cat that has at least one localized phrase for lang, and returns a ready
// Classifier. cacheDir may be empty to disable the disk cache.
func New(ctx context.Context, provider embeddings.Provider, cat *catalog.Catalog, lang, cacheDir string) (*Classifier, error) {
	currentHash := cat.ContentHash(lang)

	if cacheDir != "" {
		if vectors, ok := loadCache(cacheDir, currentHash); ok {
			return &Classifier{provider: provider, vectors: vectors}, nil
		}
	}

	vectors, err := buildVectors(ctx, provider, cat, lang)
	if err != nil {
		return nil, fmt.Errorf("intent: build vectors: %w", err)
	}

	if cacheDir != "" {
		writeCache(cacheDir, currentHash, vectors)
	}

	return &Classifier{provider: provider, vectors: vectors}, nil
}

func buildVectors(ctx context.Context, provider embeddings.Provider, cat *catalog.Catalog, lang string) ([]IntentVector, error) {
	var vectors []IntentVector

	for _, cmd := range cat.All() {
		phrases := cmd.Phrases(lang)
		if len(phrases) == 0 {
			continue
		}

		embs, err := provider.EmbedBatch(ctx, phrases)
		if err != nil {
			return nil, fmt.Errorf("embed phrases for %q: %w", cmd.ID, err)
		}

		avg := averageVectors(embs)
		normalize(avg)

		vectors = append(vectors, IntentVector{ID: cmd.ID, Vector: avg})
	}

	return vectors, nil
}

func averageVectors(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	avg := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i, x := range v {
			avg[i] += x
		}
	}
	n := float32(len(vecs))
	for i := range avg {
		avg[i] /= n
	}
	return avg
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
}

// Classify embeds text, L2-normalizes it, and returns the id and cosine
// score of the closest intent centroid. Callers apply their own confidence
// floor (the intent pipeline's default is 0.70) before trusting the result;
// below that floor, the caller should fall back to a FuzzyMatcher.
func (c *Classifier) Classify(ctx context.Context, text string) (id string, confidence float64, err error) {
	if len(c.vectors) == 0 {
		return "", 0, nil
	}

	query, err := c.provider.Embed(ctx, text)
	if err != nil {
		return "", 0, fmt.Errorf("intent: embed query: %w", err)
	}
	normalize(query)

	bestID := ""
	bestScore := -1.0
	for _, iv := range c.vectors {
		score := dot(query, iv.Vector)
		if score > bestScore {
			bestScore = score
			bestID = iv.ID
		}
	}
	return bestID, bestScore, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func loadCache(cacheDir, currentHash string) ([]IntentVector, bool) {
	hashBytes, err := os.ReadFile(filepath.Join(cacheDir, cacheHashFile))
	if err != nil {
		return nil, false
	}
	if string(hashBytes) != currentHash {
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(cacheDir, cacheVectorsFile))
	if err != nil {
		return nil, false
	}

	var vectors []IntentVector
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, false
	}
	return vectors, true
}

// writeCache persists vectors best-effort; a failure to cache is not fatal,
// it only means the next startup re-embeds.
func writeCache(cacheDir, currentHash string, vectors []IntentVector) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return
	}
	data, err := json.Marshal(vectors)
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(cacheDir, cacheVectorsFile), data, 0o644)
	_ = os.WriteFile(filepath.Join(cacheDir, cacheHashFile), []byte(currentHash), 0o644)
}
