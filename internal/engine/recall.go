package engine

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/dsam/internal/model"
	"github.com/rcliao/dsam/internal/notify"
)

// Query defaults.
const (
	DefaultLimit        = 10
	DefaultMinRelevance = 0.1
)

// Query-time score weights.
const (
	weightText      = 0.5
	weightCharacter = 0.3
	weightTheme     = 0.2
	weightTag       = 0.2
)

// TimeWindow restricts recall to memories created within [Start, End].
// A zero bound is open.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// QueryContext narrows and boosts a recall query.
type QueryContext struct {
	CharacterIDs []string    `json:"character_ids,omitempty"`
	LocationIDs  []string    `json:"location_ids,omitempty"`
	TimeWindow   *TimeWindow `json:"time_window,omitempty"`
	Themes       []string    `json:"themes,omitempty"`
}

// Query is a recall request. Limit <= 0 means DefaultLimit; a nil
// MinRelevance means DefaultMinRelevance.
type Query struct {
	Query        string       `json:"query"`
	Context      QueryContext `json:"context"`
	Limit        int          `json:"limit,omitempty"`
	MinRelevance *float64     `json:"min_relevance,omitempty"`
}

// ScoredMemory pairs a memory with its query-time relevance. The stored
// RelevanceScore is unrelated and only drives retention.
type ScoredMemory struct {
	model.Memory
	QueryRelevance float64 `json:"query_relevance"`
}

// CompressionSavings aggregates token accounting over a set of memories.
type CompressionSavings struct {
	OriginalTokens   int     `json:"original_tokens"`
	CompressedTokens int     `json:"compressed_tokens"`
	SavingsPercent   float64 `json:"savings_percent"`
}

// Result is the answer to a Query.
type Result struct {
	Memories           []ScoredMemory     `json:"memories"`
	TotalFound         int                `json:"total_found"`
	CompressionSavings CompressionSavings `json:"compression_savings"`
	QueryTime          time.Duration      `json:"query_time"`
}

// QueryMemories scores every stored memory against q, drops those under the
// minimum relevance, and returns the best q.Limit of them.
func (e *Engine) QueryMemories(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	if e.isClosed() {
		return nil, ErrClosed
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	minRel := DefaultMinRelevance
	if q.MinRelevance != nil {
		minRel = math.Max(*q.MinRelevance, 0)
	}
	window := normalizeWindow(q.Context.TimeWindow)
	needle := strings.ToLower(q.Query)

	e.mu.RLock()
	all := e.store.All()
	e.mu.RUnlock()

	var matches []ScoredMemory
	for _, m := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if window != nil && !window.contains(m.Timestamp) {
			continue
		}
		score := queryScore(m, needle, q.Context)
		if score < minRel {
			continue
		}
		matches = append(matches, ScoredMemory{Memory: m, QueryRelevance: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].QueryRelevance > matches[j].QueryRelevance
	})

	res := &Result{Memories: []ScoredMemory{}, TotalFound: len(matches)}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	res.Memories = append(res.Memories, matches...)

	returned := make([]model.Memory, len(res.Memories))
	for i, sm := range res.Memories {
		returned[i] = sm.Memory
	}
	res.CompressionSavings = savings(returned)
	res.QueryTime = time.Since(start)

	e.publish(notify.EventQueryCompleted, map[string]any{
		"query":        q.Query,
		"total_found":  res.TotalFound,
		"returned":     len(res.Memories),
		"tokens_saved": res.CompressionSavings.OriginalTokens - res.CompressionSavings.CompressedTokens,
	})
	return res, nil
}

func queryScore(m model.Memory, needle string, qc QueryContext) float64 {
	score := 0.0

	if needle != "" && strings.Contains(strings.ToLower(contentText(m.Content)), needle) {
		score += weightText
	}

	if len(qc.CharacterIDs) > 0 {
		targets := make(map[string]bool, len(m.Associations))
		for _, a := range m.Associations {
			targets[a.TargetID] = true
		}
		for _, id := range qc.CharacterIDs {
			if targets[id] {
				score += weightCharacter
				break
			}
		}
	}

	if len(qc.Themes) > 0 {
		have := make(map[string]bool, len(m.Metadata.Context))
		for _, t := range m.Metadata.Context {
			have[strings.ToLower(t)] = true
		}
		hits := 0
		for _, t := range qc.Themes {
			if have[strings.ToLower(strings.TrimSpace(t))] {
				hits++
			}
		}
		score += weightTheme * float64(hits) / float64(len(qc.Themes))
	}

	if len(m.Metadata.Tags) > 0 && needle != "" {
		hits := 0
		for _, tag := range m.Metadata.Tags {
			if strings.Contains(needle, strings.ToLower(tag)) {
				hits++
			}
		}
		score += weightTag * float64(hits) / float64(len(m.Metadata.Tags))
	}

	return score
}

// contentText returns the serialized content as text. JSON strings are
// unquoted so escapes do not hide matches.
func contentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func savings(ms []model.Memory) CompressionSavings {
	var cs CompressionSavings
	for _, m := range ms {
		cs.OriginalTokens += m.Metadata.OriginalTokens
		cs.CompressedTokens += m.Metadata.CompressedTokens
	}
	if cs.OriginalTokens > 0 {
		pct := float64(cs.OriginalTokens-cs.CompressedTokens) / float64(cs.OriginalTokens) * 100
		cs.SavingsPercent = math.Min(math.Max(pct, 0), 100)
	}
	return cs
}

type window struct {
	start, end time.Time
}

func normalizeWindow(tw *TimeWindow) *window {
	if tw == nil || (tw.Start.IsZero() && tw.End.IsZero()) {
		return nil
	}
	w := &window{start: tw.Start, end: tw.End}
	if !w.start.IsZero() && !w.end.IsZero() && w.end.Before(w.start) {
		w.start, w.end = w.end, w.start
	}
	return w
}

func (w *window) contains(t time.Time) bool {
	if !w.start.IsZero() && t.Before(w.start) {
		return false
	}
	if !w.end.IsZero() && t.After(w.end) {
		return false
	}
	return true
}
