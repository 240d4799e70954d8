// Package gliner implements pkg/provider/slots.Provider against a GLiNER
// zero-shot span-classification model exported to ONNX. The pipeline is
// tokenize → build prompt → encode → span tensors → run → sigmoid decode →
// greedy overlap resolution, matching the gline-rs reference architecture.
package gliner

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/agalue/jarvis-voice/pkg/provider/slots"
)

const (
	threshold     = 0.3 // decode floor applied to the raw sigmoid score
	minConfidence = 0.4 // post-filter applied after greedy overlap resolution
	maxWidth      = 12  // longest span, in words
	maxWords      = 512 // longest utterance, in words

	entSentinel = "<<ENT>>"
	sepSentinel = "<<SEP>>"

	bosTokenID int64 = 1
	eosTokenID int64 = 2
	unkTokenID int64 = 100
)

// wordRegex mirrors gline-rs's default RegexSplitter: runs of word
// characters (allowing internal hyphens/underscores), or any other single
// non-space character.
var wordRegex = regexp.MustCompile(`\w+(?:[-_]\w+)*|\S`)

// Vocab maps whole lowercased words and sentinels to a single input id. The
// model's own subword tokenizer is not available as a Go library; each
// prompt element is instead encoded as exactly one token via this
// vocabulary, looked up case-insensitively with a fallback to the unknown
// token. See DESIGN.md for why this departs from true WordPiece/BPE
// encoding.
type Vocab map[string]int64

// Engine wraps a single ONNX Runtime session running a GLiNER export. Both
// the input sequence length and the span-tensor width change with every
// utterance (word count, label count), so the session is a
// DynamicAdvancedSession rather than the fixed-shape AdvancedSession: each
// Extract call builds and destroys its own input/output tensors instead of
// reusing pre-allocated ones.
//
// Engine is safe for concurrent use: Extract serializes calls with an
// internal mutex because onnxruntime_go sessions are not safe to Run
// concurrently.
type Engine struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	vocab   Vocab
}

// Config describes where to find the model and shared runtime library.
type Config struct {
	OnnxLib   string // path to the ONNX Runtime shared library
	ModelPath string // path to the exported GLiNER model.onnx
	Vocab     Vocab  // token vocabulary; entries are looked up lowercased
}

// New initializes the ONNX Runtime environment (process-wide, idempotent
// across Engines in the same process is the caller's responsibility) and
// loads the model described by cfg.
func New(cfg Config) (*Engine, error) {
	ort.SetSharedLibraryPath(cfg.OnnxLib)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("gliner: initialize onnxruntime: %w", err)
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("gliner: inspect model: %w", err)
	}
	inputNames := make([]string, 0, len(inInfo))
	for _, in := range inInfo {
		inputNames = append(inputNames, in.Name)
	}
	outputNames := make([]string, 0, len(outInfo))
	for _, out := range outInfo {
		outputNames = append(outputNames, out.Name)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("gliner: create session: %w", err)
	}

	return &Engine{session: session, vocab: cfg.Vocab}, nil
}

// Close releases the session and the ONNX Runtime environment.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
	}
	ort.DestroyEnvironment()
	return nil
}

type wordToken struct {
	start, end int // byte offsets into the original text
	text       string
}

func splitWords(text string, limit int) []wordToken {
	matches := wordRegex.FindAllStringIndex(text, -1)
	tokens := make([]wordToken, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, wordToken{start: m[0], end: m[1], text: text[m[0]:m[1]]})
		if limit > 0 && len(tokens) >= limit {
			break
		}
	}
	return tokens
}

func (e *Engine) tokenID(s string) int64 {
	if id, ok := e.vocab[strings.ToLower(s)]; ok {
		return id
	}
	return unkTokenID
}

// encoded holds everything Extract needs to feed the model for one call.
type encoded struct {
	inputIDs      []int64
	attentionMask []int64
	wordsMask     []int64
	textLength    int64
	numWords      int // text words + 1, matching gline-rs's off-by-one span indexing
}

// encode builds the GLiNER prompt ([<<ENT>>, label]* + <<SEP>> + words),
// assigns one token id per prompt element (see Vocab's doc comment), and
// marks the first (only) sub-token position of each text word in
// wordsMask, exactly as gline-rs's encode_single does for a real subword
// tokenizer collapsed to one token per word.
func (e *Engine) encode(labels []string, words []wordToken) encoded {
	prompt := make([]string, 0, len(labels)*2+1+len(words))
	for _, label := range labels {
		prompt = append(prompt, entSentinel, label)
	}
	prompt = append(prompt, sepSentinel)
	entLen := len(prompt)
	for _, w := range words {
		prompt = append(prompt, w.text)
	}

	total := len(prompt) + 2 // BOS + EOS
	inputIDs := make([]int64, total)
	attentionMask := make([]int64, total)
	wordsMask := make([]int64, total)

	idx := 0
	inputIDs[idx] = bosTokenID
	attentionMask[idx] = 1
	idx++

	var wordID int64
	for pos, elem := range prompt {
		inputIDs[idx] = e.tokenID(elem)
		attentionMask[idx] = 1
		if pos >= entLen {
			wordsMask[idx] = wordID
			wordID++
		}
		idx++
	}

	inputIDs[idx] = eosTokenID
	attentionMask[idx] = 1

	return encoded{
		inputIDs:      inputIDs,
		attentionMask: attentionMask,
		wordsMask:     wordsMask,
		textLength:    int64(len(words) + 1),
		numWords:      len(words) + 1,
	}
}

// spanTensors lays out every (start, start+width) pair for width in
// [0, maxWidth) up to numWords, matching gline-rs's make_span_tensors.
func spanTensors(numWords int) (idx []int64, mask []int64) {
	numSpans := numWords * maxWidth
	idx = make([]int64, numSpans*2)
	mask = make([]int64, numSpans)

	for start := 0; start < numWords; start++ {
		remaining := numWords - start
		actualMax := maxWidth
		if remaining < actualMax {
			actualMax = remaining
		}
		for width := 0; width < actualMax; width++ {
			dim := start*maxWidth + width
			idx[dim*2] = int64(start)
			idx[dim*2+1] = int64(start + width)
			mask[dim] = 1
		}
	}
	return idx, mask
}

type candidate struct {
	label      string
	text       string
	prob       float64
	start, end int // byte offsets
}

// Extract runs the full GLiNER pipeline for one utterance. It never returns
// a partial-but-wrong result: any failure to build tensors or run the model
// surfaces as an error, which callers must treat as "no slots extracted".
func (e *Engine) Extract(_ context.Context, text string, labels []string) ([]slots.Span, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	words := splitWords(text, maxWords)
	if len(words) == 0 {
		return nil, nil
	}

	enc := e.encode(labels, words)
	spanIdxVals, spanMaskVals := spanTensors(enc.numWords)
	seqLen := int64(len(enc.inputIDs))
	numSpans := int64(enc.numWords * maxWidth)

	inputIDsT, err := ort.NewTensor(ort.NewShape(1, seqLen), enc.inputIDs)
	if err != nil {
		return nil, err
	}
	defer inputIDsT.Destroy()

	attnT, err := ort.NewTensor(ort.NewShape(1, seqLen), enc.attentionMask)
	if err != nil {
		return nil, err
	}
	defer attnT.Destroy()

	wordsT, err := ort.NewTensor(ort.NewShape(1, seqLen), enc.wordsMask)
	if err != nil {
		return nil, err
	}
	defer wordsT.Destroy()

	lengthsT, err := ort.NewTensor(ort.NewShape(1, 1), []int64{enc.textLength})
	if err != nil {
		return nil, err
	}
	defer lengthsT.Destroy()

	spanIdxT, err := ort.NewTensor(ort.NewShape(1, numSpans, 2), spanIdxVals)
	if err != nil {
		return nil, err
	}
	defer spanIdxT.Destroy()

	spanMaskT, err := ort.NewTensor(ort.NewShape(1, numSpans), spanMaskVals)
	if err != nil {
		return nil, err
	}
	defer spanMaskT.Destroy()

	inputs := []ort.Value{inputIDsT, attnT, wordsT, lengthsT, spanIdxT, spanMaskT}
	outputs := make([]ort.Value, 1)

	e.mu.Lock()
	err = e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("gliner: run session: %w", err)
	}
	logitsT, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("gliner: unexpected logits tensor type %T", outputs[0])
	}
	defer logitsT.Destroy()

	shape := logitsT.GetShape()
	dimMW := int(shape[2])
	dimE := int(shape[3])

	decoded := decodeAndSearch(logitsT.GetData(), dimMW, dimE, words, text, labels)

	result := make([]slots.Span, 0, len(decoded))
	for _, c := range decoded {
		if c.prob < minConfidence {
			continue
		}
		result = append(result, slots.Span{Label: c.label, Text: c.text, Confidence: c.prob})
	}
	return result, nil
}

func sigmoid(x float32) float64 {
	return 1.0 / (1.0 + math.Exp(-float64(x)))
}

func decodeAndSearch(logits []float32, dimMW, dimE int, words []wordToken, text string, labels []string) []candidate {
	numTokens := len(words)

	var spans []candidate
	for start := 1; start <= numTokens; start++ {
		maxEnd := start + maxWidth
		if maxEnd > numTokens+1 {
			maxEnd = numTokens + 1
		}
		for end := start; end < maxEnd; end++ {
			width := end - start
			for classIdx, label := range labels {
				flat := start*dimMW*dimE + width*dimE + classIdx
				if flat >= len(logits) {
					continue
				}
				prob := sigmoid(logits[flat])
				if prob < threshold {
					continue
				}
				wStart, wEnd := start-1, end-1
				spans = append(spans, candidate{
					label: label,
					text:  text[words[wStart].start:words[wEnd].end],
					prob:  prob,
					start: words[wStart].start,
					end:   words[wEnd].end,
				})
			}
		}
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})

	return greedyFlat(spans)
}

// greedyFlat resolves overlapping spans by keeping the higher-probability
// span whenever two candidates overlap, and committing whichever survives
// once the cursor moves past it, matching gline-rs's two-pointer sweep.
func greedyFlat(spans []candidate) []candidate {
	if len(spans) == 0 {
		return nil
	}

	var result []candidate
	prev, next := 0, 1

	for next < len(spans) {
		p, n := spans[prev], spans[next]
		if n.start >= p.end || p.start >= n.end {
			result = append(result, p)
			prev = next
		} else if p.prob < n.prob {
			prev = next
		}
		next++
	}
	result = append(result, spans[prev])
	return result
}

var _ slots.Provider = (*Engine)(nil)
