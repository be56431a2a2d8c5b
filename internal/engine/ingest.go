package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/dsam/internal/model"
	"github.com/rcliao/dsam/internal/notify"
)

// ConversationContext describes the circumstances of an ingested exchange.
type ConversationContext struct {
	Participants  []string         `json:"participants"`
	Location      string           `json:"location,omitempty"`
	Time          time.Time        `json:"time"`
	Themes        []string         `json:"themes,omitempty"`
	EmotionalTone model.Tone       `json:"emotional_tone,omitempty"`
	Importance    model.Importance `json:"importance,omitempty"`
}

// Compression targets for ingestion.
const (
	TargetRatio     = 0.1
	interactionType = "social"
)

// PreservedKeys survive compression unchanged.
var PreservedKeys = []string{"participants", "timestamp", "location", "key_points"}

// themeKeywords are scanned against content; a theme needs two distinct hits.
var themeKeywords = []struct {
	theme    string
	keywords []string
}{
	{"romance", []string{"love", "kiss", "romance", "heart", "passion", "affection", "embrace", "flirt"}},
	{"combat", []string{"attack", "fight", "battle", "sword", "weapon", "defend", "strike", "wound"}},
	{"mystery", []string{"mystery", "clue", "secret", "hidden", "investigate", "puzzle", "suspicious", "riddle"}},
	{"adventure", []string{"quest", "journey", "explore", "adventure", "travel", "discover", "treasure", "dungeon"}},
	{"politics", []string{"king", "queen", "council", "alliance", "treaty", "throne", "noble", "court"}},
	{"magic", []string{"spell", "magic", "wizard", "enchant", "ritual", "arcane", "mana", "potion"}},
}

// StoreConversation analyses, compresses and stores content as a new memory.
// Any collaborator error aborts ingestion without touching the store.
func (e *Engine) StoreConversation(ctx context.Context, content any, cc ConversationContext) (*model.Memory, error) {
	if !e.cfg.Enabled {
		return nil, ErrDisabled
	}
	if e.isClosed() {
		return nil, ErrClosed
	}

	raw, err := serialize(content)
	if err != nil {
		return nil, fmt.Errorf("serialize content: %w", err)
	}
	now := e.now().UTC()
	if cc.Time.IsZero() {
		cc.Time = now
	}
	if cc.EmotionalTone == "" {
		cc.EmotionalTone = model.ToneNeutral
	}
	if cc.Importance == "" {
		cc.Importance = model.ImportanceModerate
	}

	originalTokens, err := e.tokens.EstimateTokens(ctx, string(raw))
	if err != nil {
		return nil, fmt.Errorf("count tokens: %w", err)
	}

	themes := deriveThemes(cc.Themes, string(raw))
	analysis := Analysis{
		Themes:        themes,
		Tags:          deriveTags(cc),
		Importance:    deriveImportance(cc, themes),
		EmotionalTone: cc.EmotionalTone,
		Participants:  cc.Participants,
		Location:      cc.Location,
	}
	associations := buildAssociations(cc, themes, e.cfg.MaxAssociations, now)

	method, err := e.compressor.ChooseBestMethod(ctx, raw, TargetRatio)
	if err != nil {
		return nil, fmt.Errorf("choose compression: %w", err)
	}
	compressed, err := e.compressor.Compress(ctx, raw, CompressOptions{
		Method:       method,
		TargetRatio:  TargetRatio,
		PreserveKeys: PreservedKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	compressedTokens, err := e.tokens.EstimateTokens(ctx, string(compressed.Compressed))
	if err != nil {
		return nil, fmt.Errorf("count compressed tokens: %w", err)
	}

	ratio := compressed.CompressionRatio
	if originalTokens > 0 {
		ratio = float64(compressedTokens) / float64(originalTokens)
	}

	rel, err := e.scorer.CalculateRelevance(ctx, analysis, ScoringContext{
		InteractionType: interactionType,
		Importance:      cc.Importance,
		UserQuery:       strings.Join(themes, " "),
	})
	if err != nil {
		return nil, fmt.Errorf("score relevance: %w", err)
	}

	m := model.Memory{
		ID:               e.newID(now),
		Content:          compressed.Compressed,
		Timestamp:        now,
		Type:             model.TypeConversation,
		Associations:     associations,
		CompressionLevel: e.cfg.CompressionLevel,
		RelevanceScore:   clamp01(rel.Overall),
		Metadata: model.Metadata{
			OriginalTokens:   originalTokens,
			CompressedTokens: compressedTokens,
			CompressionRatio: ratio,
			Context:          themes,
			Tags:             analysis.Tags,
		},
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.store.Put(m)
	e.index.Add(m)
	e.mu.Unlock()

	e.publish(notify.EventMemoryStored, map[string]any{
		"id":                m.ID,
		"associations":      len(m.Associations),
		"original_tokens":   originalTokens,
		"compressed_tokens": compressedTokens,
		"relevance":         m.RelevanceScore,
	})

	out := m.Clone()
	return &out, nil
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// serialize turns a payload into JSON. Raw JSON passes through; strings that
// are not JSON are encoded as JSON strings.
func serialize(content any) (json.RawMessage, error) {
	switch v := content.(type) {
	case json.RawMessage:
		if json.Valid(v) {
			return v, nil
		}
		return json.Marshal(string(v))
	case []byte:
		if json.Valid(v) {
			return json.RawMessage(v), nil
		}
		return json.Marshal(string(v))
	default:
		return json.Marshal(v)
	}
}

// deriveThemes lower-cases and dedupes the given themes, then appends every
// keyword group with at least two hits in content.
func deriveThemes(given []string, content string) []string {
	lower := strings.ToLower(content)
	seen := map[string]bool{}
	var themes []string
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		themes = append(themes, t)
	}

	for _, t := range given {
		add(t)
	}
	for _, group := range themeKeywords {
		hits := 0
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits >= 2 {
			add(group.theme)
		}
	}
	return themes
}

func deriveTags(cc ConversationContext) []string {
	tags := make([]string, 0, len(cc.Participants)+4)
	for _, p := range cc.Participants {
		tags = append(tags, "participant:"+p)
	}
	if cc.Location != "" {
		tags = append(tags, "location:"+cc.Location)
	}
	tags = append(tags,
		"tone:"+string(cc.EmotionalTone),
		"importance:"+string(cc.Importance),
		"time:"+timeOfDay(cc.Time),
	)
	return tags
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "dawn"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

func deriveImportance(cc ConversationContext, themes []string) model.Importance {
	score := 0
	for _, p := range cc.Participants {
		if p == "player" {
			score += 3
			break
		}
	}
	for _, p := range cc.Participants {
		lp := strings.ToLower(p)
		if strings.Contains(lp, "king") || strings.Contains(lp, "queen") {
			score += 2
			break
		}
	}
	switch cc.EmotionalTone {
	case model.ToneTense:
		score += 2
	case model.ToneNegative:
		score++
	}
	for _, t := range themes {
		switch t {
		case "romance":
			score++
		case "combat", "politics":
			score += 2
		}
	}

	switch {
	case score >= 6:
		return model.ImportanceCritical
	case score >= 4:
		return model.ImportanceMajor
	case score >= 2:
		return model.ImportanceModerate
	default:
		return model.ImportanceMinor
	}
}

func buildAssociations(cc ConversationContext, themes []string, limit int, now time.Time) []model.Association {
	day := cc.Time.UTC().Format("2006-01-02")
	as := []model.Association{{
		TargetID:     "time:" + day,
		Strength:     model.StrengthTemporal,
		Type:         model.AssocTemporal,
		Reason:       "occurred on " + day,
		LastAccessed: now,
	}}
	for _, p := range cc.Participants {
		as = append(as, model.Association{
			TargetID:     p,
			Strength:     model.StrengthCharacter,
			Type:         model.AssocCharacter,
			Reason:       p + " took part",
			LastAccessed: now,
		})
	}
	if cc.Location != "" {
		as = append(as, model.Association{
			TargetID:     cc.Location,
			Strength:     model.StrengthSpatial,
			Type:         model.AssocSpatial,
			Reason:       "took place at " + cc.Location,
			LastAccessed: now,
		})
	}
	for _, t := range themes {
		as = append(as, model.Association{
			TargetID:     "theme:" + t,
			Strength:     model.StrengthThematic,
			Type:         model.AssocThematic,
			Reason:       "shares theme " + t,
			LastAccessed: now,
		})
	}

	sortAssociations(as)
	if limit > 0 && len(as) > limit {
		as = as[:limit]
	}
	return as
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
