package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rcliao/dsam/internal/model"
)

// DecompressMethod is the method label every expansion decompresses with,
// whichever method compressed the memory.
const DecompressMethod = "semantic"

// Expansion is reconstructed memory content plus, at higher detail levels,
// the memories its associations resolve to.
type Expansion struct {
	ID           string                       `json:"id"`
	Type         model.MemoryType             `json:"type"`
	Detail       model.Detail                 `json:"detail"`
	Content      json.RawMessage              `json:"content"`
	Decompressed bool                         `json:"decompressed"`
	Related      map[model.MemoryType]Related `json:"related,omitempty"`
}

// Related is one associated memory attached to an Expansion.
type Related struct {
	ID        string          `json:"id"`
	Summary   json.RawMessage `json:"summary,omitempty"`
	Relevance float64         `json:"relevance,omitempty"`
	Expanded  *Expansion      `json:"expanded,omitempty"`
}

// ExpandMemory reconstructs the memory with the given ID. An empty or unknown
// detail falls back to the configured summary detail. Expansion touches
// LastAccessed on the requested memory's associations only.
func (e *Engine) ExpandMemory(ctx context.Context, id string, detail model.Detail) (*Expansion, error) {
	if !model.ValidDetails[detail] {
		detail = e.cfg.SummaryDetail
	}
	return e.expand(ctx, id, detail, true)
}

func (e *Engine) expand(ctx context.Context, id string, detail model.Detail, touch bool) (*Expansion, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	m, ok := e.store.Get(id)
	var associated []model.Memory
	if ok && detail != model.DetailMinimal {
		associated = e.associatedMemories(m)
	}
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("expand %s: %w", id, ErrNotFound)
	}

	content, decompressed := e.decompress(ctx, m)
	out := &Expansion{
		ID:           m.ID,
		Type:         m.Type,
		Detail:       detail,
		Content:      content,
		Decompressed: decompressed,
	}

	switch detail {
	case model.DetailBalanced:
		for _, am := range associated {
			if out.Related == nil {
				out.Related = map[model.MemoryType]Related{}
			}
			out.Related[am.Type] = Related{ID: am.ID, Summary: am.Content, Relevance: am.RelevanceScore}
		}
	case model.DetailDetailed:
		for _, am := range associated {
			sub, err := e.expand(ctx, am.ID, model.DetailMinimal, false)
			if err != nil {
				// evicted between lookup and expansion
				continue
			}
			if out.Related == nil {
				out.Related = map[model.MemoryType]Related{}
			}
			out.Related[am.Type] = Related{ID: am.ID, Expanded: sub}
		}
	}

	if touch {
		e.mu.Lock()
		e.store.Touch(id, e.now().UTC())
		e.mu.Unlock()
	}
	return out, nil
}

// associatedMemories resolves each association target directly as a memory
// ID. Most targets are semantic keys, so this usually finds nothing.
// Caller must hold e.mu.
func (e *Engine) associatedMemories(m model.Memory) []model.Memory {
	var out []model.Memory
	seen := map[string]bool{m.ID: true}
	for _, a := range m.Associations {
		if seen[a.TargetID] {
			continue
		}
		seen[a.TargetID] = true
		if am, ok := e.store.Get(a.TargetID); ok {
			out = append(out, am)
		}
	}
	return out
}

// decompress returns the decompressed content, or the stored content and
// false when decompression fails.
func (e *Engine) decompress(ctx context.Context, m model.Memory) (json.RawMessage, bool) {
	if v, ok := e.cache.Get(m.ID); ok {
		if raw, ok := v.(json.RawMessage); ok {
			return append(json.RawMessage(nil), raw...), true
		}
	}

	res, err := e.compressor.Decompress(ctx, m.Content, DecompressMethod)
	if err != nil || !res.Success {
		logf("decompress %s failed, returning compressed content: %v", m.ID, err)
		return m.Content, false
	}
	cached := append(json.RawMessage(nil), res.Decompressed...)
	e.cache.Set(m.ID, cached, int64(len(cached)))
	return res.Decompressed, true
}
