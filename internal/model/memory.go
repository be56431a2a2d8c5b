// Package model defines the core memory data types.
package model

import (
	"encoding/json"
	"time"
)

// MemoryType classifies what a memory describes.
type MemoryType string

const (
	TypeConversation MemoryType = "conversation"
	TypeEvent        MemoryType = "event"
	TypeCharacter    MemoryType = "character"
	TypeLocation     MemoryType = "location"
	TypeRelationship MemoryType = "relationship"
)

// AssociationType classifies the edge between a memory and its target key.
type AssociationType string

const (
	AssocTemporal  AssociationType = "temporal"
	AssocSpatial   AssociationType = "spatial"
	AssocCharacter AssociationType = "character"
	AssocThematic  AssociationType = "thematic"
	AssocCausal    AssociationType = "causal"
)

// Fixed association strengths per type.
const (
	StrengthTemporal  = 0.8
	StrengthCharacter = 0.9
	StrengthSpatial   = 0.7
	StrengthThematic  = 0.6
)

// Tone is the emotional tone of an ingested exchange.
type Tone string

const (
	TonePositive Tone = "positive"
	ToneNegative Tone = "negative"
	ToneNeutral  Tone = "neutral"
	ToneTense    Tone = "tense"
)

// Importance is a coarse importance level.
type Importance string

const (
	ImportanceMinor    Importance = "minor"
	ImportanceModerate Importance = "moderate"
	ImportanceMajor    Importance = "major"
	ImportanceCritical Importance = "critical"
)

// Detail controls how much an expansion reconstructs.
type Detail string

const (
	DetailMinimal  Detail = "minimal"
	DetailBalanced Detail = "balanced"
	DetailDetailed Detail = "detailed"
)

// Memory represents a stored, compressed unit of world knowledge.
type Memory struct {
	ID               string          `json:"id"`
	Content          json.RawMessage `json:"content"`
	Timestamp        time.Time       `json:"timestamp"`
	Type             MemoryType      `json:"type"`
	Associations     []Association   `json:"associations"`
	CompressionLevel int             `json:"compression_level"`
	RelevanceScore   float64         `json:"relevance_score"`
	Metadata         Metadata        `json:"metadata"`
}

// Metadata holds compression accounting and analysis output.
type Metadata struct {
	OriginalTokens   int      `json:"original_tokens"`
	CompressedTokens int      `json:"compressed_tokens"`
	CompressionRatio float64  `json:"compression_ratio"`
	Context          []string `json:"context"`
	Tags             []string `json:"tags"`
}

// Association is a typed, weighted edge from a memory to a target key.
// TargetID is a semantic key ("theme:x", "time:2024-01-01"), a participant
// or a location; it is not necessarily another memory's ID.
type Association struct {
	TargetID     string          `json:"target_id"`
	Strength     float64         `json:"strength"`
	Type         AssociationType `json:"type"`
	Reason       string          `json:"reason"`
	LastAccessed time.Time       `json:"last_accessed"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (m Memory) Clone() Memory {
	out := m
	if m.Content != nil {
		out.Content = append(json.RawMessage(nil), m.Content...)
	}
	out.Associations = append([]Association(nil), m.Associations...)
	out.Metadata.Context = append([]string(nil), m.Metadata.Context...)
	out.Metadata.Tags = append([]string(nil), m.Metadata.Tags...)
	return out
}

// ValidTones are the accepted emotional tones.
var ValidTones = map[Tone]bool{
	TonePositive: true,
	ToneNegative: true,
	ToneNeutral:  true,
	ToneTense:    true,
}

// ValidImportances are the accepted importance levels.
var ValidImportances = map[Importance]bool{
	ImportanceMinor:    true,
	ImportanceModerate: true,
	ImportanceMajor:    true,
	ImportanceCritical: true,
}

// ValidDetails are the accepted expansion detail levels.
var ValidDetails = map[Detail]bool{
	DetailMinimal:  true,
	DetailBalanced: true,
	DetailDetailed: true,
}
