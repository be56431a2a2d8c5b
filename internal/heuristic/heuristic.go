// Package heuristic provides local default collaborators for the
// memory engine: a character-based token estimator, a summarising compressor
// and an importance-based relevance scorer.
package heuristic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/dsam/internal/engine"
	"github.com/rcliao/dsam/internal/model"
)

// Compression methods.
const (
	MethodSemantic = "semantic"
	MethodVerbatim = "verbatim"
)

// verbatimBelow is the payload size under which compression is skipped.
const verbatimBelow = 160

// TokenEstimator approximates tokens as one per four characters.
type TokenEstimator struct{}

// EstimateTokens implements engine.TokenCounter.
func (TokenEstimator) EstimateTokens(_ context.Context, text string) (int, error) {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4, nil
}

// Compressor keeps preserved keys and reduces everything else to the leading
// sentence of each passage.
type Compressor struct{}

// ChooseBestMethod implements engine.Compressor.
func (Compressor) ChooseBestMethod(_ context.Context, content json.RawMessage, _ float64) (string, error) {
	if len(content) < verbatimBelow {
		return MethodVerbatim, nil
	}
	return MethodSemantic, nil
}

// Compress implements engine.Compressor.
func (Compressor) Compress(_ context.Context, content json.RawMessage, opts engine.CompressOptions) (engine.CompressResult, error) {
	switch opts.Method {
	case MethodVerbatim:
		return engine.CompressResult{Compressed: content, CompressionRatio: 1}, nil
	case MethodSemantic, "":
	default:
		return engine.CompressResult{}, fmt.Errorf("unknown compression method %q", opts.Method)
	}

	var payload any
	if err := json.Unmarshal(content, &payload); err != nil {
		return engine.CompressResult{}, fmt.Errorf("decode content: %w", err)
	}

	out := map[string]any{}
	var text []string
	if obj, ok := payload.(map[string]any); ok {
		preserve := map[string]bool{}
		for _, k := range opts.PreserveKeys {
			preserve[k] = true
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if preserve[k] {
				out[k] = obj[k]
				continue
			}
			text = append(text, flatten(obj[k])...)
		}
	} else {
		text = flatten(payload)
	}
	if summary := Summarize(strings.Join(text, "\n\n"), opts.TargetRatio); summary != "" {
		out["summary"] = summary
	}

	b, err := json.Marshal(out)
	if err != nil {
		return engine.CompressResult{}, err
	}
	ratio := 0.0
	if len(content) > 0 {
		ratio = float64(len(b)) / float64(len(content))
	}
	return engine.CompressResult{Compressed: b, CompressionRatio: ratio}, nil
}

// Decompress implements engine.Compressor. Compression is lossy, so the
// reconstruction is the compressed form itself.
func (Compressor) Decompress(_ context.Context, compressed json.RawMessage, method string) (engine.DecompressResult, error) {
	switch method {
	case MethodSemantic, MethodVerbatim:
		if !json.Valid(compressed) {
			return engine.DecompressResult{}, nil
		}
		return engine.DecompressResult{Success: true, Decompressed: compressed}, nil
	default:
		return engine.DecompressResult{}, nil
	}
}

// Summarize keeps the leading sentence of each passage until roughly
// ratio of the original length is used. At least one sentence is kept.
func Summarize(text string, ratio float64) string {
	segs := Segment(text, DefaultSegmentTarget, DefaultSegmentMax)
	if len(segs) == 0 {
		return ""
	}
	if ratio <= 0 || ratio > 1 {
		ratio = engine.TargetRatio
	}
	budget := int(math.Ceil(float64(len(text)) * ratio))

	var kept []string
	used := 0
	for _, s := range segs {
		sentence := leadingSentence(s)
		if len(kept) > 0 && used+len(sentence) > budget {
			break
		}
		kept = append(kept, sentence)
		used += len(sentence) + 1
	}
	return strings.Join(kept, " ")
}

// flatten collects the string leaves of a decoded JSON value.
func flatten(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, flatten(item)...)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, flatten(t[k])...)
		}
		return out
	}
	return nil
}

// Scorer rates new memories from their declared and derived importance.
type Scorer struct{}

var importanceWeight = map[model.Importance]float64{
	model.ImportanceMinor:    0.2,
	model.ImportanceModerate: 0.4,
	model.ImportanceMajor:    0.7,
	model.ImportanceCritical: 0.9,
}

// CalculateRelevance implements engine.RelevanceScorer.
func (Scorer) CalculateRelevance(_ context.Context, a engine.Analysis, sc engine.ScoringContext) (engine.Relevance, error) {
	declared, ok := importanceWeight[sc.Importance]
	if !ok {
		declared = importanceWeight[model.ImportanceModerate]
	}
	derived := importanceWeight[a.Importance]

	overall := 0.5*declared + 0.3*derived + math.Min(0.05*float64(len(a.Themes)), 0.2)
	if a.EmotionalTone == model.ToneTense {
		overall += 0.05
	}
	return engine.Relevance{Overall: math.Min(math.Max(overall, 0), 1)}, nil
}
