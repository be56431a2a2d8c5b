package engine

import (
	"context"
	"encoding/json"

	"github.com/rcliao/dsam/internal/model"
)

// TokenCounter estimates the LLM token cost of a text.
type TokenCounter interface {
	EstimateTokens(ctx context.Context, text string) (int, error)
}

// CompressOptions configures a single compression call.
type CompressOptions struct {
	Method       string
	TargetRatio  float64
	PreserveKeys []string
}

// CompressResult is the output of Compressor.Compress.
type CompressResult struct {
	Compressed       json.RawMessage
	CompressionRatio float64
}

// DecompressResult is the output of Compressor.Decompress.
type DecompressResult struct {
	Success      bool
	Decompressed json.RawMessage
}

// Compressor turns serialized content into a smaller, lossy representation.
type Compressor interface {
	ChooseBestMethod(ctx context.Context, content json.RawMessage, targetRatio float64) (string, error)
	Compress(ctx context.Context, content json.RawMessage, opts CompressOptions) (CompressResult, error)
	Decompress(ctx context.Context, compressed json.RawMessage, method string) (DecompressResult, error)
}

// Analysis is what ingestion derived from a conversation.
type Analysis struct {
	Themes        []string         `json:"themes"`
	Tags          []string         `json:"tags"`
	Importance    model.Importance `json:"importance"`
	EmotionalTone model.Tone       `json:"emotional_tone"`
	Participants  []string         `json:"participants"`
	Location      string           `json:"location,omitempty"`
}

// ScoringContext accompanies an Analysis when scoring it.
type ScoringContext struct {
	InteractionType string
	Importance      model.Importance
	UserQuery       string
}

// Relevance is the scorer's verdict.
type Relevance struct {
	Overall float64
}

// RelevanceScorer computes the stored relevance of a new memory.
type RelevanceScorer interface {
	CalculateRelevance(ctx context.Context, a Analysis, sc ScoringContext) (Relevance, error)
}

// Persister is the persistence boundary used by Restore and Flush.
type Persister interface {
	SaveSnapshot(ctx context.Context, memories []model.Memory) error
	LoadSnapshot(ctx context.Context) ([]model.Memory, error)
}
