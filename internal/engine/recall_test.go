package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/dsam/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

type item struct {
	text string
	cc   ConversationContext
}

func seed(t *testing.T, h *harness, items ...item) []*model.Memory {
	t.Helper()
	var out []*model.Memory
	for _, it := range items {
		m, err := h.StoreConversation(context.Background(), it.text, it.cc)
		require.NoError(t, err)
		out = append(out, m)
		h.clock.Advance(time.Minute)
	}
	return out
}

func TestQueryEmptyStoreScenarioB(t *testing.T) {
	h := newTestEngine(t, nil)

	res, err := h.QueryMemories(context.Background(), Query{Query: "dragon"})
	require.NoError(t, err)
	assert.Zero(t, res.TotalFound)
	assert.NotNil(t, res.Memories)
	assert.Empty(t, res.Memories)
	assert.Zero(t, res.CompressionSavings.SavingsPercent)
}

func TestQueryTextMatch(t *testing.T) {
	h := newTestEngine(t, nil)
	ms := seed(t, h,
		item{"A Dragon circles the keep", ConversationContext{Participants: []string{"alice"}}},
		item{"The baker sells bread", ConversationContext{Participants: []string{"bob"}}},
	)

	res, err := h.QueryMemories(context.Background(), Query{Query: "dragon"})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, ms[0].ID, res.Memories[0].ID)
	assert.InDelta(t, 0.5, res.Memories[0].QueryRelevance, 1e-9)
	assert.Equal(t, 0.7, res.Memories[0].RelevanceScore, "stored relevance is untouched")
}

func TestQueryCharacterAndThemeBoosts(t *testing.T) {
	h := newTestEngine(t, nil)
	ms := seed(t, h,
		item{"blades clash", ConversationContext{Participants: []string{"alice"}, Themes: []string{"combat"}}},
		item{"tea and gossip", ConversationContext{Participants: []string{"bob"}}},
	)
	ctx := context.Background()

	res, err := h.QueryMemories(ctx, Query{Context: QueryContext{CharacterIDs: []string{"bob", "carol"}}})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, ms[1].ID, res.Memories[0].ID)
	assert.InDelta(t, 0.3, res.Memories[0].QueryRelevance, 1e-9)

	res, err = h.QueryMemories(ctx, Query{Context: QueryContext{Themes: []string{"combat", "magic"}}})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, ms[0].ID, res.Memories[0].ID)
	assert.InDelta(t, 0.1, res.Memories[0].QueryRelevance, 1e-9)

	res, err = h.QueryMemories(ctx, Query{
		Context:      QueryContext{Themes: []string{"combat", "magic"}},
		MinRelevance: floatPtr(0.15),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Memories)
}

func TestQueryTagMatch(t *testing.T) {
	h := newTestEngine(t, nil)
	seed(t, h, item{"nothing to see", ConversationContext{Participants: []string{"alice"}}})

	// tags: participant:alice, tone:neutral, importance:moderate, time:morning
	res, err := h.QueryMemories(context.Background(), Query{Query: "what did participant:alice say at time:morning"})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.InDelta(t, 0.2*2.0/4.0, res.Memories[0].QueryRelevance, 1e-9)
}

func TestQueryLimitAndOrdering(t *testing.T) {
	h := newTestEngine(t, nil)
	var items []item
	for i := 0; i < 5; i++ {
		cc := ConversationContext{Participants: []string{fmt.Sprintf("npc%d", i)}}
		if i%2 == 0 {
			cc.Participants = append(cc.Participants, "alice")
		}
		items = append(items, item{fmt.Sprintf("rumor number %d about the mine", i), cc})
	}
	seed(t, h, items...)

	res, err := h.QueryMemories(context.Background(), Query{
		Query:   "mine",
		Context: QueryContext{CharacterIDs: []string{"alice"}},
		Limit:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalFound)
	require.Len(t, res.Memories, 2)
	for _, sm := range res.Memories {
		assert.InDelta(t, 0.8, sm.QueryRelevance, 1e-9)
	}

	var orig, comp int
	for _, sm := range res.Memories {
		orig += sm.Metadata.OriginalTokens
		comp += sm.Metadata.CompressedTokens
	}
	assert.Equal(t, orig, res.CompressionSavings.OriginalTokens, "savings cover returned memories only")
	assert.Equal(t, comp, res.CompressionSavings.CompressedTokens)
}

func TestQueryPropertiesHold(t *testing.T) {
	h := newTestEngine(t, nil)
	for i := 0; i < 12; i++ {
		seed(t, h, item{fmt.Sprintf("battle report %d: attack with every weapon", i), ConversationContext{Participants: []string{"alice"}}})
	}

	for _, q := range []Query{
		{Query: "battle"},
		{Query: "battle", Limit: 3},
		{Query: "battle", Limit: -4},
		{Query: "report", MinRelevance: floatPtr(-1)},
		{Query: "nothing matches", MinRelevance: floatPtr(0.9)},
	} {
		res, err := h.QueryMemories(context.Background(), q)
		require.NoError(t, err)

		limit := q.Limit
		if limit <= 0 {
			limit = DefaultLimit
		}
		minRel := DefaultMinRelevance
		if q.MinRelevance != nil {
			minRel = *q.MinRelevance
		}
		assert.LessOrEqual(t, len(res.Memories), limit)
		for _, sm := range res.Memories {
			assert.GreaterOrEqual(t, sm.QueryRelevance, minRel)
		}
		pct := res.CompressionSavings.SavingsPercent
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.LessOrEqual(t, pct, 100.0)
		if len(res.Memories) == 0 {
			assert.Zero(t, pct)
		}
	}
}

func TestQueryTimeWindow(t *testing.T) {
	h := newTestEngine(t, nil)
	ms := seed(t, h,
		item{"first omen", ConversationContext{}},
		item{"second omen", ConversationContext{}},
		item{"third omen", ConversationContext{}},
	)

	res, err := h.QueryMemories(context.Background(), Query{
		Query: "omen",
		// reversed bounds are swapped
		Context: QueryContext{TimeWindow: &TimeWindow{Start: ms[1].Timestamp, End: ms[0].Timestamp}},
	})
	require.NoError(t, err)
	require.Len(t, res.Memories, 2)
	ids := []string{res.Memories[0].ID, res.Memories[1].ID}
	assert.ElementsMatch(t, []string{ms[0].ID, ms[1].ID}, ids)
}

func TestSavings(t *testing.T) {
	assert.Equal(t, CompressionSavings{}, savings(nil))

	got := savings([]model.Memory{
		{Metadata: model.Metadata{OriginalTokens: 80, CompressedTokens: 10}},
		{Metadata: model.Metadata{OriginalTokens: 20, CompressedTokens: 10}},
	})
	assert.Equal(t, 100, got.OriginalTokens)
	assert.Equal(t, 20, got.CompressedTokens)
	assert.InDelta(t, 80.0, got.SavingsPercent, 1e-9)

	got = savings([]model.Memory{{Metadata: model.Metadata{OriginalTokens: 10, CompressedTokens: 30}}})
	assert.Zero(t, got.SavingsPercent, "growth clamps to zero")
}
